package modules

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/talentgraph-backend/internal/domain"
	"github.com/yungbote/talentgraph-backend/internal/pkg/dbctx"
	"github.com/yungbote/talentgraph-backend/internal/pkg/logger"
)

type ModuleRepo interface {
	ListEnabledByKeys(dbc dbctx.Context, keys []string) ([]*types.Module, error)
	GetByKeyVersion(dbc dbctx.Context, key, version string) (*types.Module, error)
	List(dbc dbctx.Context) ([]*types.Module, error)
	// CreateIfAbsent ignores a (key, version) conflict.
	CreateIfAbsent(dbc dbctx.Context, m *types.Module) (bool, error)
	SetEnabled(dbc dbctx.Context, key, version string, enabled bool) error
}

type moduleRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewModuleRepo(db *gorm.DB, baseLog *logger.Logger) ModuleRepo {
	return &moduleRepo{
		db:  db,
		log: baseLog.With("repo", "ModuleRepo"),
	}
}

func (r *moduleRepo) ListEnabledByKeys(dbc dbctx.Context, keys []string) ([]*types.Module, error) {
	var out []*types.Module
	if len(keys) == 0 {
		return out, nil
	}
	if err := dbc.DB(r.db).
		Where("module_key IN ? AND enabled = ?", keys, true).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *moduleRepo) GetByKeyVersion(dbc dbctx.Context, key, version string) (*types.Module, error) {
	var m types.Module
	if err := dbc.DB(r.db).
		Where("module_key = ? AND version = ?", key, version).
		Limit(1).
		Find(&m).Error; err != nil {
		return nil, err
	}
	if m.ID == uuid.Nil {
		return nil, nil
	}
	return &m, nil
}

func (r *moduleRepo) List(dbc dbctx.Context) ([]*types.Module, error) {
	var out []*types.Module
	if err := dbc.DB(r.db).Order("module_key ASC").Order("created_at ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *moduleRepo) CreateIfAbsent(dbc dbctx.Context, m *types.Module) (bool, error) {
	res := dbc.DB(r.db).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "module_key"}, {Name: "version"}},
			DoNothing: true,
		}).
		Create(m)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *moduleRepo) SetEnabled(dbc dbctx.Context, key, version string, enabled bool) error {
	return dbc.DB(r.db).
		Model(&types.Module{}).
		Where("module_key = ? AND version = ?", key, version).
		Update("enabled", enabled).Error
}
