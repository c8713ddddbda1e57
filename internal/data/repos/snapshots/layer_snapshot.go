package snapshots

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/talentgraph-backend/internal/domain"
	"github.com/yungbote/talentgraph-backend/internal/pkg/dbctx"
	"github.com/yungbote/talentgraph-backend/internal/pkg/logger"
)

type LayerSnapshotRepo interface {
	MaxVersion(dbc dbctx.Context, projectID, personID uuid.UUID, layer int) (int, error)
	Create(dbc dbctx.Context, snap *types.LayerSnapshot) (*types.LayerSnapshot, error)
	GetLatest(dbc dbctx.Context, projectID, personID uuid.UUID, layer int) (*types.LayerSnapshot, error)
	GetVersion(dbc dbctx.Context, projectID, personID uuid.UUID, layer, version int) (*types.LayerSnapshot, error)
	List(dbc dbctx.Context, projectID, personID uuid.UUID, layer int) ([]*types.LayerSnapshot, error)
}

type layerSnapshotRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewLayerSnapshotRepo(db *gorm.DB, baseLog *logger.Logger) LayerSnapshotRepo {
	return &layerSnapshotRepo{
		db:  db,
		log: baseLog.With("repo", "LayerSnapshotRepo"),
	}
}

func (r *layerSnapshotRepo) scope(dbc dbctx.Context, projectID, personID uuid.UUID, layer int) *gorm.DB {
	return dbc.DB(r.db).
		Where("project_id = ? AND person_id = ? AND layer_number = ?", projectID, personID, layer)
}

// MaxVersion returns 0 when no snapshot exists.
func (r *layerSnapshotRepo) MaxVersion(dbc dbctx.Context, projectID, personID uuid.UUID, layer int) (int, error) {
	var max int
	err := r.scope(dbc, projectID, personID, layer).
		Model(&types.LayerSnapshot{}).
		Select("COALESCE(MAX(snapshot_version), 0)").
		Scan(&max).Error
	if err != nil {
		return 0, err
	}
	return max, nil
}

func (r *layerSnapshotRepo) Create(dbc dbctx.Context, snap *types.LayerSnapshot) (*types.LayerSnapshot, error) {
	if err := dbc.DB(r.db).Create(snap).Error; err != nil {
		return nil, err
	}
	return snap, nil
}

func (r *layerSnapshotRepo) GetLatest(dbc dbctx.Context, projectID, personID uuid.UUID, layer int) (*types.LayerSnapshot, error) {
	var snap types.LayerSnapshot
	err := r.scope(dbc, projectID, personID, layer).
		Order("snapshot_version DESC").
		Limit(1).
		Find(&snap).Error
	if err != nil {
		return nil, err
	}
	if snap.ID == uuid.Nil {
		return nil, nil
	}
	return &snap, nil
}

func (r *layerSnapshotRepo) GetVersion(dbc dbctx.Context, projectID, personID uuid.UUID, layer, version int) (*types.LayerSnapshot, error) {
	var snap types.LayerSnapshot
	err := r.scope(dbc, projectID, personID, layer).
		Where("snapshot_version = ?", version).
		Limit(1).
		Find(&snap).Error
	if err != nil {
		return nil, err
	}
	if snap.ID == uuid.Nil {
		return nil, nil
	}
	return &snap, nil
}

func (r *layerSnapshotRepo) List(dbc dbctx.Context, projectID, personID uuid.UUID, layer int) ([]*types.LayerSnapshot, error) {
	var out []*types.LayerSnapshot
	if err := r.scope(dbc, projectID, personID, layer).
		Order("snapshot_version ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
