package claims

import (
	"hash/fnv"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/talentgraph-backend/internal/domain"
	"github.com/yungbote/talentgraph-backend/internal/pkg/dbctx"
	"github.com/yungbote/talentgraph-backend/internal/pkg/logger"
)

// Key identifies one supersession chain.
type Key struct {
	ProjectID uuid.UUID
	PersonID  uuid.UUID
	ClaimType string
	GroupKey  string
}

type ClaimRepo interface {
	// InsertClaimAndSupersedePrevious inserts claim and, in the same
	// transaction, supersedes every other active row of its key.
	InsertClaimAndSupersedePrevious(dbc dbctx.Context, claim *types.Claim) (*types.Claim, int64, error)
	// LockKey serializes writers of one key for the rest of the transaction.
	LockKey(dbc dbctx.Context, key Key) error
	GetActiveClaims(dbc dbctx.Context, projectID, personID uuid.UUID, claimTypes ...string) ([]*types.Claim, error)
	GetActiveClaim(dbc dbctx.Context, key Key) (*types.Claim, error)
	GetLatestActiveByType(dbc dbctx.Context, projectID, personID uuid.UUID, claimType string) (*types.Claim, error)
	ListHistory(dbc dbctx.Context, key Key) ([]*types.Claim, error)
}

type claimRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewClaimRepo(db *gorm.DB, baseLog *logger.Logger) ClaimRepo {
	return &claimRepo{
		db:  db,
		log: baseLog.With("repo", "ClaimRepo"),
	}
}

func KeyOf(c *types.Claim) Key {
	return Key{ProjectID: c.ProjectID, PersonID: c.PersonID, ClaimType: c.ClaimType, GroupKey: c.GroupKey}
}

func scopeKey(q *gorm.DB, key Key) *gorm.DB {
	groupKey := key.GroupKey
	if groupKey == "" {
		groupKey = "single"
	}
	return q.Where(
		"project_id = ? AND person_id = ? AND claim_type = ? AND group_key = ?",
		key.ProjectID, key.PersonID, key.ClaimType, groupKey,
	)
}

func (r *claimRepo) InsertClaimAndSupersedePrevious(dbc dbctx.Context, claim *types.Claim) (*types.Claim, int64, error) {
	if claim == nil {
		return nil, 0, nil
	}
	var superseded int64
	run := func(tx *gorm.DB) error {
		if err := tx.Create(claim).Error; err != nil {
			return err
		}
		now := time.Now().UTC()
		res := scopeKey(tx.Model(&types.Claim{}), KeyOf(claim)).
			Where("superseded_at IS NULL AND id <> ?", claim.ID).
			Updates(map[string]interface{}{
				"superseded_at":        now,
				"replaced_by_claim_id": claim.ID,
			})
		if res.Error != nil {
			return res.Error
		}
		superseded = res.RowsAffected
		return nil
	}

	var err error
	if dbc.Tx != nil {
		err = run(dbc.DB(r.db))
	} else {
		err = dbc.DB(r.db).Transaction(run)
	}
	if err != nil {
		return nil, 0, err
	}
	return claim, superseded, nil
}

// LockKey takes a transaction-scoped advisory lock on postgres. sqlite
// already serializes writers, so it is a no-op there.
func (r *claimRepo) LockKey(dbc dbctx.Context, key Key) error {
	if dbc.Tx == nil {
		return nil
	}
	tx := dbc.DB(r.db)
	if tx.Dialector.Name() != "postgres" {
		return nil
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(key.ProjectID.String() + "|" + key.PersonID.String() + "|" + key.ClaimType + "|" + key.GroupKey))
	return tx.Exec("SELECT pg_advisory_xact_lock(?)", int64(h.Sum64())).Error
}

// GetActiveClaims returns active rows oldest first.
func (r *claimRepo) GetActiveClaims(dbc dbctx.Context, projectID, personID uuid.UUID, claimTypes ...string) ([]*types.Claim, error) {
	var out []*types.Claim
	q := dbc.DB(r.db).
		Where("project_id = ? AND person_id = ? AND superseded_at IS NULL", projectID, personID)
	if len(claimTypes) > 0 {
		q = q.Where("claim_type IN ?", claimTypes)
	}
	if err := q.Order("created_at ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *claimRepo) GetActiveClaim(dbc dbctx.Context, key Key) (*types.Claim, error) {
	var c types.Claim
	err := scopeKey(dbc.DB(r.db), key).
		Where("superseded_at IS NULL").
		Order("created_at DESC").
		Limit(1).
		Find(&c).Error
	if err != nil {
		return nil, err
	}
	if c.ID == uuid.Nil {
		return nil, nil
	}
	return &c, nil
}

func (r *claimRepo) GetLatestActiveByType(dbc dbctx.Context, projectID, personID uuid.UUID, claimType string) (*types.Claim, error) {
	var c types.Claim
	err := dbc.DB(r.db).
		Where("project_id = ? AND person_id = ? AND claim_type = ? AND superseded_at IS NULL", projectID, personID, claimType).
		Order("created_at DESC").
		Limit(1).
		Find(&c).Error
	if err != nil {
		return nil, err
	}
	if c.ID == uuid.Nil {
		return nil, nil
	}
	return &c, nil
}

// ListHistory returns every row of the key, oldest first.
func (r *claimRepo) ListHistory(dbc dbctx.Context, key Key) ([]*types.Claim, error) {
	var out []*types.Claim
	if err := scopeKey(dbc.DB(r.db), key).Order("created_at ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
