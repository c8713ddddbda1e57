package modules

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	types "github.com/yungbote/talentgraph-backend/internal/domain"
	domainmod "github.com/yungbote/talentgraph-backend/internal/domain/modules"
	"github.com/yungbote/talentgraph-backend/internal/pkg/dbctx"
	"github.com/yungbote/talentgraph-backend/internal/pkg/logger"
)

var terminalStatuses = []string{string(domainmod.RunCompleted), string(domainmod.RunFailed)}

type ModuleRunRepo interface {
	Create(dbc dbctx.Context, runs []*types.ModuleRun) ([]*types.ModuleRun, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.ModuleRun, error)
	ListByFlowRun(dbc dbctx.Context, flowRunID uuid.UUID) ([]*types.ModuleRun, error)
	ListByFlowRunStage(dbc dbctx.Context, flowRunID uuid.UUID, stage string) ([]*types.ModuleRun, error)
	CountByFlowRunStage(dbc dbctx.Context, flowRunID uuid.UUID, stage string) (int64, error)
	// MarkRunning moves a non-terminal run to RUNNING; false when already terminal.
	MarkRunning(dbc dbctx.Context, id uuid.UUID) (bool, error)
	MarkCompleted(dbc dbctx.Context, id uuid.UUID, output datatypes.JSON) (bool, error)
	MarkFailed(dbc dbctx.Context, id uuid.UUID, errJSON datatypes.JSON) (bool, error)
}

type moduleRunRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewModuleRunRepo(db *gorm.DB, baseLog *logger.Logger) ModuleRunRepo {
	return &moduleRunRepo{
		db:  db,
		log: baseLog.With("repo", "ModuleRunRepo"),
	}
}

func (r *moduleRunRepo) Create(dbc dbctx.Context, runs []*types.ModuleRun) ([]*types.ModuleRun, error) {
	if len(runs) == 0 {
		return []*types.ModuleRun{}, nil
	}
	if err := dbc.DB(r.db).Create(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}

func (r *moduleRunRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.ModuleRun, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var run types.ModuleRun
	if err := dbc.DB(r.db).Where("id = ?", id).Limit(1).Find(&run).Error; err != nil {
		return nil, err
	}
	if run.ID == uuid.Nil {
		return nil, nil
	}
	return &run, nil
}

func (r *moduleRunRepo) ListByFlowRun(dbc dbctx.Context, flowRunID uuid.UUID) ([]*types.ModuleRun, error) {
	var out []*types.ModuleRun
	if flowRunID == uuid.Nil {
		return out, nil
	}
	if err := dbc.DB(r.db).
		Where("flow_run_id = ?", flowRunID).
		Order("created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *moduleRunRepo) ListByFlowRunStage(dbc dbctx.Context, flowRunID uuid.UUID, stage string) ([]*types.ModuleRun, error) {
	var out []*types.ModuleRun
	if flowRunID == uuid.Nil {
		return out, nil
	}
	if err := dbc.DB(r.db).
		Where("flow_run_id = ? AND flow_stage = ?", flowRunID, stage).
		Order("created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *moduleRunRepo) CountByFlowRunStage(dbc dbctx.Context, flowRunID uuid.UUID, stage string) (int64, error) {
	var count int64
	err := dbc.DB(r.db).
		Model(&types.ModuleRun{}).
		Where("flow_run_id = ? AND flow_stage = ?", flowRunID, stage).
		Count(&count).Error
	return count, err
}

func (r *moduleRunRepo) updateUnlessTerminal(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) (bool, error) {
	if id == uuid.Nil {
		return false, nil
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	res := dbc.DB(r.db).
		Model(&types.ModuleRun{}).
		Where("id = ? AND status NOT IN ?", id, terminalStatuses).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *moduleRunRepo) MarkRunning(dbc dbctx.Context, id uuid.UUID) (bool, error) {
	return r.updateUnlessTerminal(dbc, id, map[string]interface{}{
		"status":     string(domainmod.RunRunning),
		"started_at": time.Now().UTC(),
	})
}

func (r *moduleRunRepo) MarkCompleted(dbc dbctx.Context, id uuid.UUID, output datatypes.JSON) (bool, error) {
	return r.updateUnlessTerminal(dbc, id, map[string]interface{}{
		"status":      string(domainmod.RunCompleted),
		"finished_at": time.Now().UTC(),
		"output_json": output,
	})
}

func (r *moduleRunRepo) MarkFailed(dbc dbctx.Context, id uuid.UUID, errJSON datatypes.JSON) (bool, error) {
	return r.updateUnlessTerminal(dbc, id, map[string]interface{}{
		"status":      string(domainmod.RunFailed),
		"finished_at": time.Now().UTC(),
		"error_json":  errJSON,
	})
}
