package flows

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/talentgraph-backend/internal/domain"
	"github.com/yungbote/talentgraph-backend/internal/pkg/dbctx"
	"github.com/yungbote/talentgraph-backend/internal/pkg/logger"
)

type FlowRunRepo interface {
	Create(dbc dbctx.Context, run *types.FlowRun) (*types.FlowRun, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.FlowRun, error)
	ListByFlowSet(dbc dbctx.Context, flowSetID uuid.UUID) ([]*types.FlowRun, error)
	// CompareAndSwap applies updates only when the row is still at
	// expectedVersion, bumping the version. False means another writer won.
	CompareAndSwap(dbc dbctx.Context, id uuid.UUID, expectedVersion int, updates map[string]interface{}) (bool, error)
}

type flowRunRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewFlowRunRepo(db *gorm.DB, baseLog *logger.Logger) FlowRunRepo {
	return &flowRunRepo{
		db:  db,
		log: baseLog.With("repo", "FlowRunRepo"),
	}
}

func (r *flowRunRepo) Create(dbc dbctx.Context, run *types.FlowRun) (*types.FlowRun, error) {
	if run == nil {
		return nil, nil
	}
	if err := dbc.DB(r.db).Create(run).Error; err != nil {
		return nil, err
	}
	return run, nil
}

func (r *flowRunRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.FlowRun, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var run types.FlowRun
	if err := dbc.DB(r.db).Where("id = ?", id).Limit(1).Find(&run).Error; err != nil {
		return nil, err
	}
	if run.ID == uuid.Nil {
		return nil, nil
	}
	return &run, nil
}

func (r *flowRunRepo) ListByFlowSet(dbc dbctx.Context, flowSetID uuid.UUID) ([]*types.FlowRun, error) {
	var out []*types.FlowRun
	if flowSetID == uuid.Nil {
		return out, nil
	}
	if err := dbc.DB(r.db).
		Where("flow_set_id = ?", flowSetID).
		Order("created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *flowRunRepo) CompareAndSwap(dbc dbctx.Context, id uuid.UUID, expectedVersion int, updates map[string]interface{}) (bool, error) {
	if id == uuid.Nil {
		return false, nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	updates["version"] = expectedVersion + 1
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	res := dbc.DB(r.db).
		Model(&types.FlowRun{}).
		Where("id = ? AND version = ?", id, expectedVersion).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

type FlowSetRepo interface {
	Create(dbc dbctx.Context, set *types.FlowSet) (*types.FlowSet, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.FlowSet, error)
	SetItemCount(dbc dbctx.Context, id uuid.UUID, count int) error
}

type flowSetRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewFlowSetRepo(db *gorm.DB, baseLog *logger.Logger) FlowSetRepo {
	return &flowSetRepo{
		db:  db,
		log: baseLog.With("repo", "FlowSetRepo"),
	}
}

func (r *flowSetRepo) Create(dbc dbctx.Context, set *types.FlowSet) (*types.FlowSet, error) {
	if err := dbc.DB(r.db).Create(set).Error; err != nil {
		return nil, err
	}
	return set, nil
}

func (r *flowSetRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.FlowSet, error) {
	var set types.FlowSet
	if err := dbc.DB(r.db).Where("id = ?", id).Limit(1).Find(&set).Error; err != nil {
		return nil, err
	}
	if set.ID == uuid.Nil {
		return nil, nil
	}
	return &set, nil
}

func (r *flowSetRepo) SetItemCount(dbc dbctx.Context, id uuid.UUID, count int) error {
	return dbc.DB(r.db).
		Model(&types.FlowSet{}).
		Where("id = ?", id).
		Update("item_count", count).Error
}
