package module_run_execute

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/talentgraph-backend/internal/data/repos"
	"github.com/yungbote/talentgraph-backend/internal/jobs/orchestrator"
	"github.com/yungbote/talentgraph-backend/internal/modules"
	"github.com/yungbote/talentgraph-backend/internal/pkg/logger"
)

const JobType = orchestrator.JobModuleRunExecute

// StageProgressor is notified after a flow-owned run reaches a terminal state.
type StageProgressor interface {
	CheckAndProgressStage(ctx context.Context, flowRunID uuid.UUID) error
}

type Pipeline struct {
	db         *gorm.DB
	log        *logger.Logger
	runs       repos.ModuleRunRepo
	dispatcher *modules.Dispatcher
	progress   StageProgressor
}

func New(
	db *gorm.DB,
	baseLog *logger.Logger,
	runs repos.ModuleRunRepo,
	dispatcher *modules.Dispatcher,
	progress StageProgressor,
) *Pipeline {
	return &Pipeline{
		db:         db,
		log:        baseLog.With("job", JobType),
		runs:       runs,
		dispatcher: dispatcher,
		progress:   progress,
	}
}

func (p *Pipeline) Type() string { return JobType }
