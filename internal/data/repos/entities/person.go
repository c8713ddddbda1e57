package entities

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/talentgraph-backend/internal/domain"
	"github.com/yungbote/talentgraph-backend/internal/pkg/dbctx"
	"github.com/yungbote/talentgraph-backend/internal/pkg/logger"
)

type PersonRepo interface {
	Create(dbc dbctx.Context, p *types.Person) (*types.Person, error)
	// CreateIfAbsent inserts p unless its linkedin_url exists; created is false on conflict.
	CreateIfAbsent(dbc dbctx.Context, p *types.Person) (bool, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Person, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Person, error)
	GetByLinkedinURL(dbc dbctx.Context, url string) (*types.Person, error)
	GetByPublicIdentifier(dbc dbctx.Context, publicID string) (*types.Person, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
}

type personRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPersonRepo(db *gorm.DB, baseLog *logger.Logger) PersonRepo {
	return &personRepo{db: db, log: baseLog.With("repo", "PersonRepo")}
}

func (r *personRepo) Create(dbc dbctx.Context, p *types.Person) (*types.Person, error) {
	if err := dbc.DB(r.db).Create(p).Error; err != nil {
		return nil, err
	}
	return p, nil
}

func (r *personRepo) first(q *gorm.DB) (*types.Person, error) {
	var p types.Person
	if err := q.Limit(1).Find(&p).Error; err != nil {
		return nil, err
	}
	if p.ID == uuid.Nil {
		return nil, nil
	}
	return &p, nil
}

func (r *personRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Person, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	return r.first(dbc.DB(r.db).Where("id = ?", id))
}

func (r *personRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Person, error) {
	var out []*types.Person
	if len(ids) == 0 {
		return out, nil
	}
	if err := dbc.DB(r.db).Where("id IN ?", ids).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *personRepo) GetByLinkedinURL(dbc dbctx.Context, url string) (*types.Person, error) {
	if url == "" {
		return nil, nil
	}
	return r.first(dbc.DB(r.db).Where("linkedin_url = ?", url))
}

func (r *personRepo) GetByPublicIdentifier(dbc dbctx.Context, publicID string) (*types.Person, error) {
	if publicID == "" {
		return nil, nil
	}
	return r.first(dbc.DB(r.db).Where("public_identifier = ?", publicID))
}

func (r *personRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil || len(updates) == 0 {
		return nil
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	return dbc.DB(r.db).Model(&types.Person{}).Where("id = ?", id).Updates(updates).Error
}

type PersonProjectRepo interface {
	Create(dbc dbctx.Context, pp *types.PersonProject) (*types.PersonProject, error)
	CreateIfAbsent(dbc dbctx.Context, pp *types.PersonProject) (bool, error)
	Get(dbc dbctx.Context, projectID, personID uuid.UUID) (*types.PersonProject, error)
	ListPersonIDs(dbc dbctx.Context, projectID uuid.UUID) ([]uuid.UUID, error)
}

type personProjectRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPersonProjectRepo(db *gorm.DB, baseLog *logger.Logger) PersonProjectRepo {
	return &personProjectRepo{db: db, log: baseLog.With("repo", "PersonProjectRepo")}
}

func (r *personProjectRepo) Create(dbc dbctx.Context, pp *types.PersonProject) (*types.PersonProject, error) {
	if err := dbc.DB(r.db).Create(pp).Error; err != nil {
		return nil, err
	}
	return pp, nil
}

func (r *personProjectRepo) Get(dbc dbctx.Context, projectID, personID uuid.UUID) (*types.PersonProject, error) {
	var pp types.PersonProject
	if err := dbc.DB(r.db).
		Where("project_id = ? AND person_id = ?", projectID, personID).
		Limit(1).
		Find(&pp).Error; err != nil {
		return nil, err
	}
	if pp.ID == uuid.Nil {
		return nil, nil
	}
	return &pp, nil
}

func (r *personProjectRepo) ListPersonIDs(dbc dbctx.Context, projectID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	if err := dbc.DB(r.db).
		Model(&types.PersonProject{}).
		Where("project_id = ?", projectID).
		Order("added_at ASC").
		Pluck("person_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *personRepo) CreateIfAbsent(dbc dbctx.Context, p *types.Person) (bool, error) {
	res := dbc.DB(r.db).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "linkedin_url"}}, DoNothing: true}).
		Create(p)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *personProjectRepo) CreateIfAbsent(dbc dbctx.Context, pp *types.PersonProject) (bool, error) {
	res := dbc.DB(r.db).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "person_id"}, {Name: "project_id"}}, DoNothing: true}).
		Create(pp)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
