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
	"github.com/yungbote/talentgraph-backend/internal/domain/snapshots"
	"github.com/yungbote/talentgraph-backend/internal/pkg/dbctx"
	"github.com/yungbote/talentgraph-backend/internal/pkg/errors"
	"github.com/yungbote/talentgraph-backend/internal/pkg/jsonutil"
	"github.com/yungbote/talentgraph-backend/internal/pkg/logger"
)

const snapshotVersionAttempts = 3

type NewSnapshot struct {
	ProjectID       uuid.UUID
	PersonID        uuid.UUID
	LayerNumber     int
	Compiled        any
	ComposerKey     string
	ComposerVersion string
	ModuleRunID     *uuid.UUID
}

type SnapshotService interface {
	// CreateNextSnapshotVersion appends version max+1 for the subject and layer.
	CreateNextSnapshotVersion(dbc dbctx.Context, in NewSnapshot) (*types.LayerSnapshot, error)
	GetLatest(dbc dbctx.Context, projectID, personID uuid.UUID, layer int) (*types.LayerSnapshot, error)
	GetVersion(dbc dbctx.Context, projectID, personID uuid.UUID, layer, version int) (*types.LayerSnapshot, error)
	List(dbc dbctx.Context, projectID, personID uuid.UUID, layer int) ([]*types.LayerSnapshot, error)
}

type snapshotService struct {
	db   *gorm.DB
	log  *logger.Logger
	tx   aggregates.TxRunner
	repo repos.LayerSnapshotRepo
}

func NewSnapshotService(db *gorm.DB, baseLog *logger.Logger, repo repos.LayerSnapshotRepo) SnapshotService {
	return &snapshotService{
		db:   db,
		log:  baseLog.With("service", "SnapshotService"),
		tx:   aggregates.NewGormTxRunner(db),
		repo: repo,
	}
}

func (s *snapshotService) CreateNextSnapshotVersion(dbc dbctx.Context, in NewSnapshot) (*types.LayerSnapshot, error) {
	const op = "snapshots.CreateNextSnapshotVersion"
	if in.ProjectID == uuid.Nil || in.PersonID == uuid.Nil {
		return nil, errors.Validation(op, "missing subject")
	}
	if in.LayerNumber <= 0 {
		return nil, errors.Validation(op, "invalid layer %d", in.LayerNumber)
	}
	compiled, err := jsonutil.CanonicalValue(in.Compiled)
	if err != nil {
		return nil, errors.Validation(op, "encode compiled view: %v", err)
	}

	// A caller-owned transaction cannot be retried after a failed insert.
	attempts := snapshotVersionAttempts
	if dbc.Tx != nil {
		attempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		var snap *types.LayerSnapshot
		err := s.tx.Join(dbc, func(inner dbctx.Context) error {
			maxVersion, err := s.repo.MaxVersion(inner, in.ProjectID, in.PersonID, in.LayerNumber)
			if err != nil {
				return err
			}
			snap = &types.LayerSnapshot{
				ID:                    uuid.New(),
				ProjectID:             in.ProjectID,
				PersonID:              in.PersonID,
				LayerNumber:           in.LayerNumber,
				SnapshotVersion:       maxVersion + 1,
				ComposerModuleKey:     in.ComposerKey,
				ComposerModuleVersion: in.ComposerVersion,
				CompiledJSON:          datatypes.JSON(compiled),
				GeneratedAt:           time.Now().UTC(),
				ModuleRunID:           in.ModuleRunID,
			}
			_, err = s.repo.Create(inner, snap)
			return err
		})
		if err == nil {
			s.log.Info("Layer snapshot created",
				"project_id", in.ProjectID,
				"person_id", in.PersonID,
				"layer", in.LayerNumber,
				"version", snap.SnapshotVersion,
			)
			return snap, nil
		}
		lastErr = err
		if !errors.IsUniqueViolation(err) {
			return nil, errors.MapDBError(op, err)
		}
		s.log.Warn("Snapshot version conflict; retrying", "attempt", attempt, "layer", in.LayerNumber)
	}
	return nil, errors.Conflict(op, lastErr)
}

func (s *snapshotService) GetLatest(dbc dbctx.Context, projectID, personID uuid.UUID, layer int) (*types.LayerSnapshot, error) {
	snap, err := s.repo.GetLatest(dbc, projectID, personID, layer)
	if err != nil {
		return nil, errors.MapDBError("snapshots.GetLatest", err)
	}
	return snap, nil
}

func (s *snapshotService) GetVersion(dbc dbctx.Context, projectID, personID uuid.UUID, layer, version int) (*types.LayerSnapshot, error) {
	snap, err := s.repo.GetVersion(dbc, projectID, personID, layer, version)
	if err != nil {
		return nil, errors.MapDBError("snapshots.GetVersion", err)
	}
	return snap, nil
}

func (s *snapshotService) List(dbc dbctx.Context, projectID, personID uuid.UUID, layer int) ([]*types.LayerSnapshot, error) {
	rows, err := s.repo.List(dbc, projectID, personID, layer)
	if err != nil {
		return nil, errors.MapDBError("snapshots.List", err)
	}
	return rows, nil
}

// ComposeCoreIdentity folds active claims, oldest first, into the layer-1
// view. Singleton types keep the last value seen; grouped types accumulate.
func ComposeCoreIdentity(rows []*types.Claim) (snapshots.CoreIdentityV1, error) {
	out := snapshots.CoreIdentityV1{
		Education:      []snapshots.Education{},
		Roles:          []snapshots.Role{},
		Certifications: []snapshots.Certification{},
		ClaimIDs:       []uuid.UUID{},
	}
	for _, c := range rows {
		if c == nil {
			continue
		}
		v, err := c.Decoded()
		if err != nil {
			return out, errors.Wrapf(err, "claim %s", c.ID)
		}
		switch x := v.(type) {
		case claims.LegalNameV1:
			out.LegalName = &snapshots.LegalName{FullName: x.FullName, FirstName: x.FirstName, LastName: x.LastName}
		case claims.LocationV1:
			out.Location = &snapshots.Location{Raw: x.Raw, City: x.City, Region: x.Region, Country: x.Country}
		case claims.EducationV1:
			out.Education = append(out.Education, snapshots.Education{
				School:       x.School,
				Degree:       x.Degree,
				FieldOfStudy: x.FieldOfStudy,
				StartYear:    x.StartYear,
				EndYear:      x.EndYear,
			})
		case claims.RoleV1:
			out.Roles = append(out.Roles, snapshots.Role{
				Title:     x.Title,
				Company:   x.Company,
				StartDate: x.StartDate,
				EndDate:   x.EndDate,
				IsCurrent: x.IsCurrent,
			})
		case claims.CertificationV1:
			out.Certifications = append(out.Certifications, snapshots.Certification{
				Name:      x.Name,
				Authority: x.Authority,
				IssuedAt:  x.IssuedAt,
			})
		default:
			continue
		}
		out.ClaimIDs = append(out.ClaimIDs, c.ID)
	}
	return out, nil
}
