package entities

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/talentgraph-backend/internal/domain"
	"github.com/yungbote/talentgraph-backend/internal/pkg/dbctx"
	"github.com/yungbote/talentgraph-backend/internal/pkg/logger"
)

type DiscoveryRunItemRepo interface {
	Create(dbc dbctx.Context, item *types.DiscoveryRunItem) (*types.DiscoveryRunItem, error)
	ListByModuleRun(dbc dbctx.Context, moduleRunID uuid.UUID) ([]*types.DiscoveryRunItem, error)
}

type discoveryRunItemRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDiscoveryRunItemRepo(db *gorm.DB, baseLog *logger.Logger) DiscoveryRunItemRepo {
	return &discoveryRunItemRepo{db: db, log: baseLog.With("repo", "DiscoveryRunItemRepo")}
}

func (r *discoveryRunItemRepo) Create(dbc dbctx.Context, item *types.DiscoveryRunItem) (*types.DiscoveryRunItem, error) {
	if err := dbc.DB(r.db).Create(item).Error; err != nil {
		return nil, err
	}
	return item, nil
}

func (r *discoveryRunItemRepo) ListByModuleRun(dbc dbctx.Context, moduleRunID uuid.UUID) ([]*types.DiscoveryRunItem, error) {
	var out []*types.DiscoveryRunItem
	if err := dbc.DB(r.db).
		Where("module_run_id = ?", moduleRunID).
		Order("item_index ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
