package modules

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/talentgraph-backend/internal/data/repos"
	types "github.com/yungbote/talentgraph-backend/internal/domain"
	"github.com/yungbote/talentgraph-backend/internal/pkg/dbctx"
	"github.com/yungbote/talentgraph-backend/internal/pkg/errors"
	"github.com/yungbote/talentgraph-backend/internal/pkg/logger"
	"github.com/yungbote/talentgraph-backend/internal/platform/apify"
	"github.com/yungbote/talentgraph-backend/internal/platform/llm"
	"github.com/yungbote/talentgraph-backend/internal/services"
)

const (
	KeyLinkedinProfileConnector = "linkedin_profile_connector"
	KeyLinkedinPostsConnector   = "linkedin_posts_connector"
	KeyPeopleSearchConnector    = "people_search_connector"
	KeyCoreIdentityEnricher     = "core_identity_enricher"
	KeyLayer1Composer           = "layer1_core_identity_composer"
	KeyFinalSummaryComposer     = "final_summary_composer"
)

type Searcher interface {
	Search(ctx context.Context, req apify.SearchRequest) (*apify.SearchResult, error)
}

type ProfileScraper interface {
	ScrapeProfile(ctx context.Context, urls []string) (*apify.ScrapeResult, error)
}

// Deps is everything the shipped modules consume. AI, Search and Scraper may
// be nil; modules needing them fail their run with external_provider.
type Deps struct {
	DB        *gorm.DB
	Log       *logger.Logger
	Repos     repos.Set
	Documents services.DocumentService
	Claims    services.ClaimLedger
	Snapshots services.SnapshotService
	Entities  services.EntityResolutionService
	AI        llm.Runner
	AIModel   string
	Search    Searcher
	Scraper   ProfileScraper
}

// NewDefaultRegistry registers every shipped module.
func NewDefaultRegistry(d Deps) (*Registry, error) {
	reg := NewRegistry()
	for _, h := range []Handler{
		NewLinkedinProfileConnector(d),
		NewLinkedinPostsConnector(d),
		NewPeopleSearchConnector(d),
		NewCoreIdentityEnricher(d),
		NewLayer1Composer(d),
		NewFinalSummaryComposer(d),
	} {
		if err := reg.Register(h); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// requirePerson resolves the person a person-level run targets.
func requirePerson(ctx context.Context, d Deps, run *types.ModuleRun) (*types.Person, error) {
	op := run.ModuleKey
	if run.PersonID == nil || *run.PersonID == uuid.Nil {
		return nil, errors.Validation(op, "module run %s has no person_id", run.ID)
	}
	p, err := d.Repos.Person.GetByID(dbctx.Context{Ctx: ctx}, *run.PersonID)
	if err != nil {
		return nil, errors.MapDBError(op, err)
	}
	if p == nil {
		return nil, errors.NotFound(op, "person %s not found", *run.PersonID)
	}
	return p, nil
}

func runID(run *types.ModuleRun) *uuid.UUID {
	id := run.ID
	return &id
}
