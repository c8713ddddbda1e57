package modules

import (
	"context"
	"fmt"
	"time"

	types "github.com/yungbote/talentgraph-backend/internal/domain"
	"github.com/yungbote/talentgraph-backend/internal/observability"
	"github.com/yungbote/talentgraph-backend/internal/pkg/errors"
	"github.com/yungbote/talentgraph-backend/internal/pkg/logger"
)

// Dispatcher resolves a run's module key and executes its handler. It never
// panics: unknown keys, handler errors and handler panics all become a
// failed Result.
type Dispatcher struct {
	log      *logger.Logger
	registry *Registry
}

func NewDispatcher(baseLog *logger.Logger, registry *Registry) *Dispatcher {
	return &Dispatcher{
		log:      baseLog.With("component", "ModuleDispatcher"),
		registry: registry,
	}
}

func (d *Dispatcher) Dispatch(ctx context.Context, run *types.ModuleRun) (res Result) {
	const op = "modules.Dispatch"
	if run == nil {
		return Failed(errors.Validation(op, "nil module run"))
	}
	h, ok := d.registry.Get(run.ModuleKey)
	if !ok {
		d.log.Warn("Unknown module key", "module_key", run.ModuleKey, "module_run_id", run.ID)
		return Failed(errors.Validation(op, "unknown module key %q", run.ModuleKey))
	}

	ctx, span := observability.StartSpan(ctx, "module.execute",
		"module.key", run.ModuleKey,
		"module.version", run.ModuleVersion,
		"module_run.id", run.ID.String(),
	)
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("Module handler panic", "module_key", run.ModuleKey, "module_run_id", run.ID, "panic", r)
			res = Failed(errors.NewError(errors.CodeInternal, op, fmt.Sprintf("panic in %s: %v", run.ModuleKey, r), nil))
		}
		observability.EndSpan(span, res.Err)
		d.log.Info("Module executed",
			"module_key", run.ModuleKey,
			"module_run_id", run.ID,
			"success", res.Success(),
			"duration", time.Since(start).String(),
		)
	}()

	out, err := h.Execute(ctx, run)
	if err != nil {
		return Failed(err)
	}
	if out.Err != nil {
		return out
	}
	return Succeeded(out.Output)
}
