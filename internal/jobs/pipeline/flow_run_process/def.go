package flow_run_process

import (
	"context"

	"github.com/google/uuid"

	"github.com/yungbote/talentgraph-backend/internal/jobs/orchestrator"
	"github.com/yungbote/talentgraph-backend/internal/pkg/logger"
)

const JobType = orchestrator.JobFlowRunProcess

type FlowProcessor interface {
	ProcessFlowRun(ctx context.Context, flowRunID uuid.UUID) error
}

type Pipeline struct {
	log    *logger.Logger
	engine FlowProcessor
}

func New(baseLog *logger.Logger, engine FlowProcessor) *Pipeline {
	return &Pipeline{log: baseLog.With("job", JobType), engine: engine}
}

func (p *Pipeline) Type() string { return JobType }
