package gcp

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/yungbote/talentgraph-backend/internal/pkg/errors"
	"github.com/yungbote/talentgraph-backend/internal/pkg/logger"
)

// Archive stores immutable document payloads as objects.
type Archive interface {
	Put(ctx context.Context, key, contentType string, body []byte) (string, error)
	Get(ctx context.Context, uri string) ([]byte, error)
	Close() error
}

type gcsArchive struct {
	log    *logger.Logger
	client *storage.Client
	bucket string
	prefix string
}

func NewArchive(ctx context.Context, log *logger.Logger, cfg ArchiveConfig) (Archive, error) {
	cfg = cfg.Normalize()
	if !cfg.Enabled() {
		return nil, errors.New("gcs archive: bucket not configured")
	}
	if err := ValidateArchiveConfig(cfg); err != nil {
		return nil, errors.Wrap(err, "validate archive config")
	}
	client, err := newStorageClient(ctx, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "create storage client")
	}
	archiveLog := log.With("service", "DocumentArchive")
	archiveLog.Info("Document archive initialized", "mode", cfg.Mode, "bucket", cfg.Bucket, "prefix", cfg.Prefix)
	return &gcsArchive{log: archiveLog, client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

func newStorageClient(ctx context.Context, cfg ArchiveConfig) (*storage.Client, error) {
	switch cfg.Mode {
	case ObjectStorageModeGCSEmulator:
		_ = os.Setenv("STORAGE_EMULATOR_HOST", cfg.EmulatorHost)
		return storage.NewClient(ctx, option.WithoutAuthentication(), option.WithEndpoint(cfg.EmulatorHost+"/storage/v1/"))
	default:
		opts := ClientOptions(cfg.CredentialsJSON, cfg.CredentialsFile)
		opts = append(opts, option.WithScopes(storage.ScopeReadWrite))
		return storage.NewClient(ctx, opts...)
	}
}

// ObjectKey is the object name for a document payload.
func ObjectKey(prefix, projectID, documentID string) string {
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		prefix = "documents"
	}
	return fmt.Sprintf("%s/%s/%s.json", prefix, projectID, documentID)
}

// URI renders a gs:// reference.
func URI(bucket, key string) string {
	return "gs://" + bucket + "/" + strings.TrimLeft(key, "/")
}

// ParseURI splits a gs:// reference into bucket and key.
func ParseURI(uri string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(uri), "gs://")
	if !ok {
		return "", "", errors.Newf("not a gs uri: %q", uri)
	}
	bucket, key, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", errors.Newf("malformed gs uri: %q", uri)
	}
	return bucket, key, nil
}

func (a *gcsArchive) Put(ctx context.Context, key, contentType string, body []byte) (string, error) {
	if !strings.HasPrefix(key, a.prefix+"/") {
		key = a.prefix + "/" + strings.TrimLeft(key, "/")
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := a.client.Bucket(a.bucket).Object(key).NewWriter(ctx)
	if contentType != "" {
		w.ContentType = contentType
	}
	if _, err := io.Copy(w, bytes.NewReader(body)); err != nil {
		_ = w.Close()
		return "", errors.Wrap(err, "write object")
	}
	if err := w.Close(); err != nil {
		return "", errors.Wrap(err, "close object writer")
	}
	return URI(a.bucket, key), nil
}

func (a *gcsArchive) Get(ctx context.Context, uri string) ([]byte, error) {
	bucket, key, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}
	r, err := a.client.Bucket(bucket).Object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, errors.NotFound("gcs.Get", "object %s not found", uri)
		}
		return nil, errors.Wrap(err, "open object")
	}
	defer r.Close()
	return io.ReadAll(r)
}

func (a *gcsArchive) Close() error {
	return a.client.Close()
}
