package orchestrator

import (
	"context"
	"strings"

	"github.com/google/uuid"

	types "github.com/yungbote/talentgraph-backend/internal/domain"
	"github.com/yungbote/talentgraph-backend/internal/domain/flows"
	domainmod "github.com/yungbote/talentgraph-backend/internal/domain/modules"
	"github.com/yungbote/talentgraph-backend/internal/observability"
	"github.com/yungbote/talentgraph-backend/internal/pkg/dbctx"
	"github.com/yungbote/talentgraph-backend/internal/pkg/errors"
)

// CheckAndProgressStage is called after every module run of a flow reaches a
// terminal state. It fails the flow on any failed run of the current stage,
// waits while runs are pending, and otherwise moves to the next stage.
func (e *Engine) CheckAndProgressStage(ctx context.Context, flowRunID uuid.UUID) error {
	ctx, span := observability.StartSpan(ctx, "flow.progress", "flow_run.id", flowRunID.String())
	err := e.checkAndProgressStage(ctx, flowRunID)
	observability.EndSpan(span, err)
	return err
}

func (e *Engine) checkAndProgressStage(ctx context.Context, flowRunID uuid.UUID) error {
	const op = "flows.CheckAndProgressStage"
	unlock, err := e.lock(ctx, flowRunID)
	if err != nil {
		return err
	}
	defer unlock()

	dbc := dbctx.Context{Ctx: ctx}
	fr, err := e.loadFlowRun(dbc, op, flowRunID)
	if err != nil {
		return err
	}
	if fr.Status.Terminal() {
		return nil
	}
	if fr.Status == flows.StatusQueued {
		// flow_run.process has not scheduled anything yet
		return nil
	}
	stage := fr.CurrentStage
	runs, err := e.repos.ModuleRun.ListByFlowRunStage(dbc, fr.ID, string(stage))
	if err != nil {
		return errors.MapDBError(op, err)
	}

	var completed, failed []*types.ModuleRun
	for _, r := range runs {
		switch r.Status {
		case domainmod.RunCompleted:
			completed = append(completed, r)
		case domainmod.RunFailed:
			failed = append(failed, r)
		}
	}
	bookkeeping := map[string]interface{}{
		"completed_modules": appendRefs(fr.CompletedModules, refsOf(completed)),
		"failed_modules":    appendRefs(fr.FailedModules, refsOf(failed)),
	}

	// siblings keep running after a failure; the stage settles once all are terminal
	if len(completed)+len(failed) < len(runs) {
		e.log.Debug("Stage still running", "flow_run_id", fr.ID, "stage", stage, "done", len(completed)+len(failed), "total", len(runs))
		return nil
	}
	if len(failed) > 0 {
		return e.failFlowWith(ctx, fr, stageFailure(stage, failed), bookkeeping)
	}

	def, err := e.catalog.Resolve(fr.FlowKey)
	if err != nil {
		return e.failFlowWith(ctx, fr, err, bookkeeping)
	}

	if stage == flows.StageConnectors && strings.TrimSpace(fr.InputSummary.Data().FilterInstructions) != "" {
		res, err := e.evaluateFilter(ctx, fr)
		if err != nil {
			if errors.IsCode(err, errors.CodeConflict) {
				return err
			}
			return e.failFlowWith(ctx, fr, err, bookkeeping)
		}
		if !res.ShouldProceed {
			cause := errors.NewError(errors.CodeValidation, op, "filter rejected profile: "+res.Reason, nil).
				WithDetails(map[string]any{"filterResult": res})
			return e.failFlowWith(ctx, fr, cause, bookkeeping)
		}
	}

	return e.advance(ctx, fr, def, stage.Next(), bookkeeping)
}

// stageFailure aggregates the failed runs of a stage. The code of the first
// failure is kept so callers can tell provider errors from validation ones.
func stageFailure(stage flows.Stage, failed []*types.ModuleRun) error {
	keys := make([]string, 0, len(failed))
	details := make([]map[string]any, 0, len(failed))
	code := errors.CodeInternal
	for i, r := range failed {
		keys = append(keys, r.ModuleKey)
		d := map[string]any{"moduleRunId": r.ID, "moduleKey": r.ModuleKey, "version": r.ModuleVersion}
		if p := decodePayload(r.ErrorJSON); p != nil {
			d["error"] = p
			if i == 0 && p.Code != "" {
				code = p.Code
			}
		}
		details = append(details, d)
	}
	msg := "stage " + string(stage) + " failed: " + strings.Join(keys, ", ")
	return errors.NewError(code, "flows.stage", msg, nil).
		WithDetails(map[string]any{"stage": stage, "failedModules": details})
}
