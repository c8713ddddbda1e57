package documents

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	types "github.com/yungbote/talentgraph-backend/internal/domain"
	"github.com/yungbote/talentgraph-backend/internal/pkg/dbctx"
	"github.com/yungbote/talentgraph-backend/internal/pkg/logger"
)

type DocumentRepo interface {
	Create(dbc dbctx.Context, doc *types.Document) (*types.Document, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Document, error)
	GetLatestValid(dbc dbctx.Context, subject types.Subject, source, kind string) (*types.Document, error)
	ListValid(dbc dbctx.Context, subject types.Subject, source, kind string) ([]*types.Document, error)
	SetValidity(dbc dbctx.Context, id uuid.UUID, valid bool, meta types.InvalidatedMeta) (bool, error)
	InvalidateOthers(dbc dbctx.Context, subject types.Subject, source, kind string, keepID uuid.UUID, meta types.InvalidatedMeta) (int64, error)
	SetStorageURI(dbc dbctx.Context, id uuid.UUID, uri string) error
}

type documentRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDocumentRepo(db *gorm.DB, baseLog *logger.Logger) DocumentRepo {
	return &documentRepo{
		db:  db,
		log: baseLog.With("repo", "DocumentRepo"),
	}
}

func scopeSubject(q *gorm.DB, subject types.Subject) *gorm.DB {
	q = q.Where("project_id = ?", subject.ProjectID)
	if subject.HasPerson() {
		return q.Where("person_id = ?", *subject.PersonID)
	}
	return q.Where("person_id IS NULL")
}

func (r *documentRepo) Create(dbc dbctx.Context, doc *types.Document) (*types.Document, error) {
	if doc == nil {
		return nil, nil
	}
	if err := dbc.DB(r.db).Create(doc).Error; err != nil {
		return nil, err
	}
	return doc, nil
}

func (r *documentRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Document, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var doc types.Document
	if err := dbc.DB(r.db).Where("id = ?", id).Limit(1).Find(&doc).Error; err != nil {
		return nil, err
	}
	if doc.ID == uuid.Nil {
		return nil, nil
	}
	return &doc, nil
}

// GetLatestValid returns nil when no valid document exists.
func (r *documentRepo) GetLatestValid(dbc dbctx.Context, subject types.Subject, source, kind string) (*types.Document, error) {
	var doc types.Document
	q := scopeSubject(dbc.DB(r.db), subject).
		Where("source = ? AND kind = ? AND is_valid = ?", source, kind, true).
		Order("captured_at DESC").
		Order("created_at DESC").
		Limit(1)
	if err := q.Find(&doc).Error; err != nil {
		return nil, err
	}
	if doc.ID == uuid.Nil {
		return nil, nil
	}
	return &doc, nil
}

func (r *documentRepo) ListValid(dbc dbctx.Context, subject types.Subject, source, kind string) ([]*types.Document, error) {
	var out []*types.Document
	err := scopeSubject(dbc.DB(r.db), subject).
		Where("source = ? AND kind = ? AND is_valid = ?", source, kind, true).
		Order("captured_at DESC").
		Order("created_at DESC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SetValidity flips is_valid and replaces invalidated_meta. It reports false
// when the id does not exist.
func (r *documentRepo) SetValidity(dbc dbctx.Context, id uuid.UUID, valid bool, meta types.InvalidatedMeta) (bool, error) {
	if id == uuid.Nil {
		return false, nil
	}
	res := dbc.DB(r.db).
		Model(&types.Document{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"is_valid":         valid,
			"invalidated_meta": datatypes.NewJSONType(meta),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *documentRepo) InvalidateOthers(dbc dbctx.Context, subject types.Subject, source, kind string, keepID uuid.UUID, meta types.InvalidatedMeta) (int64, error) {
	if meta.InvalidatedAt == nil {
		now := time.Now().UTC()
		meta.InvalidatedAt = &now
	}
	res := scopeSubject(dbc.DB(r.db).Model(&types.Document{}), subject).
		Where("source = ? AND kind = ? AND is_valid = ? AND id <> ?", source, kind, true, keepID).
		Updates(map[string]interface{}{
			"is_valid":         false,
			"invalidated_meta": datatypes.NewJSONType(meta),
		})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *documentRepo) SetStorageURI(dbc dbctx.Context, id uuid.UUID, uri string) error {
	if id == uuid.Nil || uri == "" {
		return nil
	}
	return dbc.DB(r.db).
		Model(&types.Document{}).
		Where("id = ?", id).
		Update("storage_uri", uri).Error
}
