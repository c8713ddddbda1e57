package flow_run_process

import (
	jobrt "github.com/yungbote/talentgraph-backend/internal/jobs/runtime"
	"github.com/yungbote/talentgraph-backend/internal/pkg/errors"
)

func (p *Pipeline) Run(jc *jobrt.Context) error {
	if jc == nil || jc.Job == nil {
		return nil
	}
	id, err := jc.RequireUUID("flow_run_id")
	if err != nil {
		jc.FailPermanent(err)
		return nil
	}
	if err := p.engine.ProcessFlowRun(jc.Ctx, id); err != nil {
		if errors.IsCode(err, errors.CodeNotFound) {
			jc.FailPermanent(err)
			return nil
		}
		return err
	}
	jc.Succeed(map[string]any{"flow_run_id": id.String()})
	return nil
}
