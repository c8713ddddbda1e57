package services

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/talentgraph-backend/internal/data/aggregates"
	"github.com/yungbote/talentgraph-backend/internal/data/repos"
	types "github.com/yungbote/talentgraph-backend/internal/domain"
	"github.com/yungbote/talentgraph-backend/internal/domain/claims"
	"github.com/yungbote/talentgraph-backend/internal/pkg/dbctx"
	"github.com/yungbote/talentgraph-backend/internal/pkg/errors"
	"github.com/yungbote/talentgraph-backend/internal/pkg/jsonutil"
	"github.com/yungbote/talentgraph-backend/internal/pkg/logger"
)

// ClaimMeta carries provenance shared by every value of one write.
type ClaimMeta struct {
	Confidence       float64
	ObservedAt       time.Time
	ValidFrom        *time.Time
	ValidTo          *time.Time
	SourceDocumentID *uuid.UUID
	ModuleRunID      *uuid.UUID
}

type RecordResult struct {
	Claim      *types.Claim
	Unchanged  bool
	Superseded int64
}

type RecordSummary struct {
	Written   int
	Unchanged int
	Claims    []*types.Claim
}

type ClaimLedger interface {
	// Record writes value unless the active claim of its key already holds an
	// equal value. Comparison and write share one transaction.
	Record(dbc dbctx.Context, projectID, personID uuid.UUID, value claims.Value, meta ClaimMeta) (*RecordResult, error)
	RecordAll(dbc dbctx.Context, projectID, personID uuid.UUID, values []claims.Value, meta ClaimMeta) (*RecordSummary, error)
	GetActiveClaims(dbc dbctx.Context, projectID, personID uuid.UUID, claimTypes ...claims.Type) ([]*types.Claim, error)
	GetActiveClaim(dbc dbctx.Context, projectID, personID uuid.UUID, claimType claims.Type, groupKey string) (*types.Claim, error)
	LatestActive(dbc dbctx.Context, projectID, personID uuid.UUID, claimType claims.Type) (*types.Claim, error)
	History(dbc dbctx.Context, projectID, personID uuid.UUID, claimType claims.Type, groupKey string) ([]*types.Claim, error)
}

type claimLedger struct {
	db   *gorm.DB
	log  *logger.Logger
	tx   aggregates.TxRunner
	repo repos.ClaimRepo
}

func NewClaimLedger(db *gorm.DB, baseLog *logger.Logger, repo repos.ClaimRepo) ClaimLedger {
	return &claimLedger{
		db:   db,
		log:  baseLog.With("service", "ClaimLedger"),
		tx:   aggregates.NewGormTxRunner(db),
		repo: repo,
	}
}

func (s *claimLedger) Record(dbc dbctx.Context, projectID, personID uuid.UUID, value claims.Value, meta ClaimMeta) (*RecordResult, error) {
	var out *RecordResult
	err := s.tx.Join(dbc, func(inner dbctx.Context) error {
		res, err := s.record(inner, projectID, personID, value, meta)
		out = res
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *claimLedger) RecordAll(dbc dbctx.Context, projectID, personID uuid.UUID, values []claims.Value, meta ClaimMeta) (*RecordSummary, error) {
	sum := &RecordSummary{}
	err := s.tx.Join(dbc, func(inner dbctx.Context) error {
		for _, v := range values {
			res, err := s.record(inner, projectID, personID, v, meta)
			if err != nil {
				return err
			}
			if res.Unchanged {
				sum.Unchanged++
			} else {
				sum.Written++
			}
			sum.Claims = append(sum.Claims, res.Claim)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Debug("Claims recorded", "project_id", projectID, "person_id", personID, "written", sum.Written, "unchanged", sum.Unchanged)
	return sum, nil
}

func (s *claimLedger) record(dbc dbctx.Context, projectID, personID uuid.UUID, value claims.Value, meta ClaimMeta) (*RecordResult, error) {
	const op = "claims.Record"
	if projectID == uuid.Nil || personID == uuid.Nil {
		return nil, errors.Validation(op, "missing subject")
	}
	if value == nil {
		return nil, errors.Validation(op, "missing value")
	}
	if meta.Confidence < 0 || meta.Confidence > 1 {
		return nil, errors.Validation(op, "confidence %v outside [0,1]", meta.Confidence)
	}
	raw, err := jsonutil.CanonicalValue(value)
	if err != nil {
		return nil, errors.Validation(op, "encode value: %v", err)
	}
	key := repos.ClaimKey{
		ProjectID: projectID,
		PersonID:  personID,
		ClaimType: string(value.ClaimType()),
		GroupKey:  value.GroupKey(),
	}
	if key.GroupKey == "" {
		key.GroupKey = claims.GroupSingle
	}

	if err := s.repo.LockKey(dbc, key); err != nil {
		return nil, errors.MapDBError(op, err)
	}
	active, err := s.repo.GetActiveClaim(dbc, key)
	if err != nil {
		return nil, errors.MapDBError(op, err)
	}
	if active != nil && jsonutil.Equal(active.ValueJSON, raw) {
		return &RecordResult{Claim: active, Unchanged: true}, nil
	}

	observed := meta.ObservedAt
	if observed.IsZero() {
		observed = time.Now()
	}
	claim := &types.Claim{
		ID:               uuid.New(),
		ProjectID:        projectID,
		PersonID:         personID,
		ClaimType:        key.ClaimType,
		GroupKey:         key.GroupKey,
		ValueJSON:        datatypes.JSON(raw),
		Confidence:       meta.Confidence,
		ObservedAt:       observed.UTC(),
		ValidFrom:        meta.ValidFrom,
		ValidTo:          meta.ValidTo,
		SourceDocumentID: meta.SourceDocumentID,
		ModuleRunID:      meta.ModuleRunID,
		SchemaVersion:    value.SchemaVersion(),
	}
	created, superseded, err := s.repo.InsertClaimAndSupersedePrevious(dbc, claim)
	if err != nil {
		return nil, errors.MapDBError(op, err)
	}
	return &RecordResult{Claim: created, Superseded: superseded}, nil
}

func (s *claimLedger) GetActiveClaims(dbc dbctx.Context, projectID, personID uuid.UUID, claimTypes ...claims.Type) ([]*types.Claim, error) {
	names := make([]string, 0, len(claimTypes))
	for _, t := range claimTypes {
		names = append(names, string(t))
	}
	rows, err := s.repo.GetActiveClaims(dbc, projectID, personID, names...)
	if err != nil {
		return nil, errors.MapDBError("claims.GetActiveClaims", err)
	}
	return rows, nil
}

func (s *claimLedger) GetActiveClaim(dbc dbctx.Context, projectID, personID uuid.UUID, claimType claims.Type, groupKey string) (*types.Claim, error) {
	row, err := s.repo.GetActiveClaim(dbc, repos.ClaimKey{ProjectID: projectID, PersonID: personID, ClaimType: string(claimType), GroupKey: groupKey})
	if err != nil {
		return nil, errors.MapDBError("claims.GetActiveClaim", err)
	}
	return row, nil
}

func (s *claimLedger) LatestActive(dbc dbctx.Context, projectID, personID uuid.UUID, claimType claims.Type) (*types.Claim, error) {
	row, err := s.repo.GetLatestActiveByType(dbc, projectID, personID, string(claimType))
	if err != nil {
		return nil, errors.MapDBError("claims.LatestActive", err)
	}
	return row, nil
}

func (s *claimLedger) History(dbc dbctx.Context, projectID, personID uuid.UUID, claimType claims.Type, groupKey string) ([]*types.Claim, error) {
	rows, err := s.repo.ListHistory(dbc, repos.ClaimKey{ProjectID: projectID, PersonID: personID, ClaimType: string(claimType), GroupKey: groupKey})
	if err != nil {
		return nil, errors.MapDBError("claims.History", err)
	}
	return rows, nil
}
