package app

import (
	"context"
	"fmt"

	"github.com/yungbote/talentgraph-backend/internal/pkg/errors"
	"github.com/yungbote/talentgraph-backend/internal/pkg/logger"
	"github.com/yungbote/talentgraph-backend/internal/platform/gcp"
)

var newArchive = gcp.NewArchive

type ArchiveBootstrapErrorCode string

const (
	ArchiveBootstrapErrorInvalidMode         ArchiveBootstrapErrorCode = "invalid_mode"
	ArchiveBootstrapErrorMissingEmulatorHost ArchiveBootstrapErrorCode = "missing_emulator_host"
	ArchiveBootstrapErrorInvalidEmulatorHost ArchiveBootstrapErrorCode = "invalid_emulator_host"
	ArchiveBootstrapErrorConnectFailed       ArchiveBootstrapErrorCode = "connect_failed"
)

type ArchiveBootstrapError struct {
	Code         ArchiveBootstrapErrorCode
	Mode         string
	EmulatorHost string
	Cause        error
}

func (e *ArchiveBootstrapError) Error() string {
	if e == nil {
		return "document archive bootstrap failed"
	}
	return fmt.Sprintf(
		"document archive bootstrap failed (code=%s mode=%q emulator_host=%q): %v",
		e.Code,
		e.Mode,
		e.EmulatorHost,
		e.Cause,
	)
}

func (e *ArchiveBootstrapError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// resolveArchive returns a nil archive when no bucket is configured; document
// payloads then stay inline only.
func resolveArchive(ctx context.Context, log *logger.Logger, cfg gcp.ArchiveConfig) (gcp.Archive, error) {
	cfg = cfg.Normalize()
	if !cfg.Enabled() {
		log.Info("Document archive disabled (no bucket configured)")
		return nil, nil
	}
	if err := gcp.ValidateArchiveConfig(cfg); err != nil {
		classified := classifyArchiveBootstrapError(cfg, err)
		log.Error(
			"Document archive selection failed",
			"mode", cfg.Mode,
			"emulator_host", cfg.EmulatorHost,
			"error_code", archiveBootstrapErrorCode(classified),
			"error", classified,
		)
		return nil, classified
	}

	log.Info("Selecting document archive", "mode", cfg.Mode, "bucket", cfg.Bucket, "emulator_host", cfg.EmulatorHost)
	archive, err := newArchive(ctx, log, cfg)
	if err != nil {
		classified := classifyArchiveBootstrapError(cfg, err)
		log.Error(
			"Document archive bootstrap failed",
			"mode", cfg.Mode,
			"emulator_host", cfg.EmulatorHost,
			"error_code", archiveBootstrapErrorCode(classified),
			"error", classified,
		)
		return nil, classified
	}
	return archive, nil
}

func classifyArchiveBootstrapError(cfg gcp.ArchiveConfig, err error) error {
	code := ArchiveBootstrapErrorConnectFailed
	var cfgErr *gcp.ConfigError
	if errors.As(err, &cfgErr) {
		switch cfgErr.Code {
		case gcp.ConfigErrorInvalidMode:
			code = ArchiveBootstrapErrorInvalidMode
		case gcp.ConfigErrorMissingEmulatorHost:
			code = ArchiveBootstrapErrorMissingEmulatorHost
		case gcp.ConfigErrorInvalidEmulatorHost:
			code = ArchiveBootstrapErrorInvalidEmulatorHost
		}
	}
	return &ArchiveBootstrapError{
		Code:         code,
		Mode:         string(cfg.Mode),
		EmulatorHost: cfg.EmulatorHost,
		Cause:        err,
	}
}

func archiveBootstrapErrorCode(err error) ArchiveBootstrapErrorCode {
	var bootstrapErr *ArchiveBootstrapError
	if errors.As(err, &bootstrapErr) && bootstrapErr.Code != "" {
		return bootstrapErr.Code
	}
	return ArchiveBootstrapErrorConnectFailed
}
