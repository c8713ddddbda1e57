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

type OrganizationRepo interface {
	Create(dbc dbctx.Context, o *types.Organization) (*types.Organization, error)
	// CreateIfAbsent ignores a linkedin_company_id conflict.
	CreateIfAbsent(dbc dbctx.Context, o *types.Organization) (bool, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Organization, error)
	GetByLinkedinCompanyID(dbc dbctx.Context, companyID string) (*types.Organization, error)
	GetByDomain(dbc dbctx.Context, domain string) (*types.Organization, error)
	GetByNameKey(dbc dbctx.Context, nameKey string) (*types.Organization, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
}

type organizationRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewOrganizationRepo(db *gorm.DB, baseLog *logger.Logger) OrganizationRepo {
	return &organizationRepo{db: db, log: baseLog.With("repo", "OrganizationRepo")}
}

func (r *organizationRepo) Create(dbc dbctx.Context, o *types.Organization) (*types.Organization, error) {
	if err := dbc.DB(r.db).Create(o).Error; err != nil {
		return nil, err
	}
	return o, nil
}

func (r *organizationRepo) first(q *gorm.DB) (*types.Organization, error) {
	var o types.Organization
	if err := q.Order("created_at ASC").Limit(1).Find(&o).Error; err != nil {
		return nil, err
	}
	if o.ID == uuid.Nil {
		return nil, nil
	}
	return &o, nil
}

func (r *organizationRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Organization, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	return r.first(dbc.DB(r.db).Where("id = ?", id))
}

func (r *organizationRepo) GetByLinkedinCompanyID(dbc dbctx.Context, companyID string) (*types.Organization, error) {
	if companyID == "" {
		return nil, nil
	}
	return r.first(dbc.DB(r.db).Where("linkedin_company_id = ?", companyID))
}

func (r *organizationRepo) GetByDomain(dbc dbctx.Context, domain string) (*types.Organization, error) {
	if domain == "" {
		return nil, nil
	}
	return r.first(dbc.DB(r.db).Where("domain = ?", domain))
}

func (r *organizationRepo) GetByNameKey(dbc dbctx.Context, nameKey string) (*types.Organization, error) {
	if nameKey == "" {
		return nil, nil
	}
	return r.first(dbc.DB(r.db).Where("name_key = ?", nameKey))
}

func (r *organizationRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil || len(updates) == 0 {
		return nil
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	return dbc.DB(r.db).Model(&types.Organization{}).Where("id = ?", id).Updates(updates).Error
}

type LocationRepo interface {
	Create(dbc dbctx.Context, l *types.Location) (*types.Location, error)
	CreateIfAbsent(dbc dbctx.Context, l *types.Location) (bool, error)
	GetByKey(dbc dbctx.Context, key string) (*types.Location, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Location, error)
}

type locationRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewLocationRepo(db *gorm.DB, baseLog *logger.Logger) LocationRepo {
	return &locationRepo{db: db, log: baseLog.With("repo", "LocationRepo")}
}

func (r *locationRepo) Create(dbc dbctx.Context, l *types.Location) (*types.Location, error) {
	if err := dbc.DB(r.db).Create(l).Error; err != nil {
		return nil, err
	}
	return l, nil
}

func (r *locationRepo) GetByKey(dbc dbctx.Context, key string) (*types.Location, error) {
	if key == "" {
		return nil, nil
	}
	var l types.Location
	if err := dbc.DB(r.db).Where("location_key = ?", key).Limit(1).Find(&l).Error; err != nil {
		return nil, err
	}
	if l.ID == uuid.Nil {
		return nil, nil
	}
	return &l, nil
}

func (r *locationRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Location, error) {
	var out []*types.Location
	if len(ids) == 0 {
		return out, nil
	}
	if err := dbc.DB(r.db).Where("id IN ?", ids).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *organizationRepo) CreateIfAbsent(dbc dbctx.Context, o *types.Organization) (bool, error) {
	q := dbc.DB(r.db)
	if o.LinkedinCompanyID != nil {
		q = q.Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "linkedin_company_id"}}, DoNothing: true})
	}
	res := q.Create(o)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *locationRepo) CreateIfAbsent(dbc dbctx.Context, l *types.Location) (bool, error) {
	res := dbc.DB(r.db).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "location_key"}}, DoNothing: true}).
		Create(l)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
