package module_run_execute

import (
	"encoding/json"

	"gorm.io/datatypes"

	types "github.com/yungbote/talentgraph-backend/internal/domain"
	jobrt "github.com/yungbote/talentgraph-backend/internal/jobs/runtime"
	"github.com/yungbote/talentgraph-backend/internal/modules"
	"github.com/yungbote/talentgraph-backend/internal/pkg/errors"
)

// Run executes one module run. Module failures are recorded on the run and
// the job still succeeds; database and progression errors are returned so
// the queue retries the job.
func (p *Pipeline) Run(jc *jobrt.Context) error {
	if jc == nil || jc.Job == nil {
		return nil
	}
	id, err := jc.RequireUUID("module_run_id")
	if err != nil {
		jc.FailPermanent(err)
		return nil
	}
	dbc := jc.DBC()
	run, err := p.runs.GetByID(dbc, id)
	if err != nil {
		return errors.MapDBError(JobType, err)
	}
	if run == nil {
		jc.FailPermanent(errors.NotFound(JobType, "module run %s not found", id))
		return nil
	}

	result := map[string]any{"module_run_id": id.String(), "module_key": run.ModuleKey}
	if run.Status.Terminal() {
		p.log.Info("Module run already terminal", "module_run_id", id, "status", run.Status)
		result["skipped"] = true
	} else {
		ok, err := p.runs.MarkRunning(dbc, id)
		if err != nil {
			return errors.MapDBError(JobType, err)
		}
		if ok {
			res := p.dispatcher.Dispatch(jc.Ctx, run)
			if err := p.record(jc, run, res); err != nil {
				return err
			}
			result["success"] = res.Success()
		} else {
			result["skipped"] = true
		}
	}

	if run.FlowRunID != nil && p.progress != nil {
		if err := p.progress.CheckAndProgressStage(jc.Ctx, *run.FlowRunID); err != nil {
			return err
		}
		result["flow_run_id"] = run.FlowRunID.String()
	}
	jc.Succeed(result)
	return nil
}

func (p *Pipeline) record(jc *jobrt.Context, run *types.ModuleRun, res modules.Result) error {
	dbc := jc.DBC()
	if !res.Success() {
		p.log.Warn("Module run failed", "module_run_id", run.ID, "module_key", run.ModuleKey, "code", errors.CodeOf(res.Err), "error", res.Err)
		if _, err := p.runs.MarkFailed(dbc, run.ID, datatypes.JSON(errors.JSON(res.Err))); err != nil {
			return errors.MapDBError(JobType, err)
		}
		return nil
	}
	out := datatypes.JSON(`{}`)
	if res.Output != nil {
		b, err := json.Marshal(res.Output)
		if err != nil {
			cause := errors.NewError(errors.CodeInternal, JobType, "encode module output", err)
			if _, err := p.runs.MarkFailed(dbc, run.ID, datatypes.JSON(errors.JSON(cause))); err != nil {
				return errors.MapDBError(JobType, err)
			}
			return nil
		}
		out = datatypes.JSON(b)
	}
	if _, err := p.runs.MarkCompleted(dbc, run.ID, out); err != nil {
		return errors.MapDBError(JobType, err)
	}
	return nil
}
