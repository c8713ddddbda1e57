package services

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/talentgraph-backend/internal/data/aggregates"
	"github.com/yungbote/talentgraph-backend/internal/data/repos"
	types "github.com/yungbote/talentgraph-backend/internal/domain"
	"github.com/yungbote/talentgraph-backend/internal/pkg/dbctx"
	"github.com/yungbote/talentgraph-backend/internal/pkg/errors"
	"github.com/yungbote/talentgraph-backend/internal/pkg/jsonutil"
	"github.com/yungbote/talentgraph-backend/internal/pkg/logger"
	"github.com/yungbote/talentgraph-backend/internal/platform/gcp"
)

// NewDocument is the input to DocumentService.Create.
type NewDocument struct {
	Subject     types.Subject
	Source      string
	Kind        string
	SourceRef   string
	ContentType string
	CapturedAt  time.Time
	ModuleRunID *uuid.UUID
	Payload     []byte
}

type GetLatestOptions struct {
	AllowMissing bool
}

type DocumentService interface {
	Create(dbc dbctx.Context, in NewDocument) (*types.Document, error)
	// CreateAndSupersede creates the document and invalidates every other
	// valid document of the same subject, source and kind.
	CreateAndSupersede(dbc dbctx.Context, in NewDocument) (*types.Document, int64, error)
	Invalidate(dbc dbctx.Context, id uuid.UUID, reason string, supersededBy *uuid.UUID) (*types.Document, error)
	Revalidate(dbc dbctx.Context, id uuid.UUID, reason string) (*types.Document, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Document, error)
	GetLatestValid(dbc dbctx.Context, subject types.Subject, source, kind string, opts GetLatestOptions) (*types.Document, error)
}

type documentService struct {
	db      *gorm.DB
	log     *logger.Logger
	tx      aggregates.TxRunner
	repo    repos.DocumentRepo
	archive gcp.Archive
}

// NewDocumentService wires the store. archive may be nil.
func NewDocumentService(db *gorm.DB, baseLog *logger.Logger, repo repos.DocumentRepo, archive gcp.Archive) DocumentService {
	return &documentService{
		db:      db,
		log:     baseLog.With("service", "DocumentService"),
		tx:      aggregates.NewGormTxRunner(db),
		repo:    repo,
		archive: archive,
	}
}

func (s *documentService) build(in NewDocument) (*types.Document, error) {
	const op = "documents.Create"
	if in.Subject.ProjectID == uuid.Nil {
		return nil, errors.Validation(op, "missing project_id")
	}
	if in.Source == "" || in.Kind == "" {
		return nil, errors.Validation(op, "missing source or kind")
	}
	canonical, err := jsonutil.Canonical(in.Payload)
	if err != nil {
		return nil, errors.Validation(op, "payload is not valid json: %v", err)
	}
	hash, err := jsonutil.HashJSON(canonical)
	if err != nil {
		return nil, errors.Validation(op, "payload hash: %v", err)
	}
	captured := in.CapturedAt
	if captured.IsZero() {
		captured = time.Now()
	}
	return &types.Document{
		ID:          uuid.New(),
		ProjectID:   in.Subject.ProjectID,
		PersonID:    in.Subject.PersonID,
		Source:      in.Source,
		Kind:        in.Kind,
		SourceRef:   in.SourceRef,
		ContentType: in.ContentType,
		Hash:        hash,
		CapturedAt:  captured.UTC(),
		IsValid:     true,
		ModuleRunID: in.ModuleRunID,
		Payload:     datatypes.JSON(canonical),
	}, nil
}

func (s *documentService) Create(dbc dbctx.Context, in NewDocument) (*types.Document, error) {
	doc, err := s.build(in)
	if err != nil {
		return nil, err
	}
	if _, err := s.repo.Create(dbc, doc); err != nil {
		return nil, errors.MapDBError("documents.Create", err)
	}
	s.archivePayload(dbc, doc)
	return doc, nil
}

func (s *documentService) CreateAndSupersede(dbc dbctx.Context, in NewDocument) (*types.Document, int64, error) {
	doc, err := s.build(in)
	if err != nil {
		return nil, 0, err
	}
	var invalidated int64
	err = s.tx.Join(dbc, func(inner dbctx.Context) error {
		if _, err := s.repo.Create(inner, doc); err != nil {
			return errors.MapDBError("documents.CreateAndSupersede", err)
		}
		now := time.Now().UTC()
		n, err := s.repo.InvalidateOthers(inner, in.Subject, doc.Source, doc.Kind, doc.ID, types.InvalidatedMeta{
			Reason:        "superseded",
			SupersededBy:  &doc.ID,
			InvalidatedAt: &now,
		})
		if err != nil {
			return errors.MapDBError("documents.CreateAndSupersede", err)
		}
		invalidated = n
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	s.archivePayload(dbc, doc)
	return doc, invalidated, nil
}

// archivePayload copies the payload to object storage. Failures leave
// storage_uri empty; the row already holds the payload.
func (s *documentService) archivePayload(dbc dbctx.Context, doc *types.Document) {
	if s.archive == nil || doc == nil {
		return
	}
	key := gcp.ObjectKey("", doc.ProjectID.String(), doc.ID.String())
	uri, err := s.archive.Put(dbc.Ctx, key, doc.ContentType, doc.Payload)
	if err != nil {
		s.log.Warn("Document archive failed", "document_id", doc.ID, "error", err)
		return
	}
	if err := s.repo.SetStorageURI(dbc, doc.ID, uri); err != nil {
		s.log.Warn("Document storage uri update failed", "document_id", doc.ID, "error", err)
		return
	}
	doc.StorageURI = &uri
}

func (s *documentService) Invalidate(dbc dbctx.Context, id uuid.UUID, reason string, supersededBy *uuid.UUID) (*types.Document, error) {
	const op = "documents.Invalidate"
	now := time.Now().UTC()
	return s.setValidity(dbc, op, id, false, func(meta *types.InvalidatedMeta) {
		meta.Reason = reason
		meta.SupersededBy = supersededBy
		meta.InvalidatedAt = &now
	})
}

func (s *documentService) Revalidate(dbc dbctx.Context, id uuid.UUID, reason string) (*types.Document, error) {
	const op = "documents.Revalidate"
	now := time.Now().UTC()
	return s.setValidity(dbc, op, id, true, func(meta *types.InvalidatedMeta) {
		meta.RevalidatedAt = &now
		meta.RevalidateReason = reason
	})
}

func (s *documentService) setValidity(dbc dbctx.Context, op string, id uuid.UUID, valid bool, stamp func(*types.InvalidatedMeta)) (*types.Document, error) {
	var out *types.Document
	err := s.tx.Join(dbc, func(inner dbctx.Context) error {
		doc, err := s.repo.GetByID(inner, id)
		if err != nil {
			return errors.MapDBError(op, err)
		}
		if doc == nil {
			return errors.NotFound(op, "document %s not found", id)
		}
		meta := doc.Meta()
		stamp(&meta)
		ok, err := s.repo.SetValidity(inner, id, valid, meta)
		if err != nil {
			return errors.MapDBError(op, err)
		}
		if !ok {
			return errors.NotFound(op, "document %s not found", id)
		}
		doc.IsValid = valid
		jt := datatypes.NewJSONType(meta)
		doc.InvalidatedMeta = &jt
		out = doc
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("Document validity changed", "document_id", id, "is_valid", valid)
	return out, nil
}

func (s *documentService) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Document, error) {
	doc, err := s.repo.GetByID(dbc, id)
	if err != nil {
		return nil, errors.MapDBError("documents.GetByID", err)
	}
	if doc == nil {
		return nil, errors.NotFound("documents.GetByID", "document %s not found", id)
	}
	return doc, nil
}

func (s *documentService) GetLatestValid(dbc dbctx.Context, subject types.Subject, source, kind string, opts GetLatestOptions) (*types.Document, error) {
	const op = "documents.GetLatestValid"
	doc, err := s.repo.GetLatestValid(dbc, subject, source, kind)
	if err != nil {
		return nil, errors.MapDBError(op, err)
	}
	if doc == nil && !opts.AllowMissing {
		return nil, errors.NotFound(op, "no valid %s/%s document", source, kind)
	}
	return doc, nil
}
