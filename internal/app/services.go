package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/talentgraph-backend/internal/data/graph"
	"github.com/yungbote/talentgraph-backend/internal/data/repos"
	"github.com/yungbote/talentgraph-backend/internal/jobs/orchestrator"
	"github.com/yungbote/talentgraph-backend/internal/jobs/pipeline/flow_run_process"
	"github.com/yungbote/talentgraph-backend/internal/jobs/pipeline/module_run_execute"
	"github.com/yungbote/talentgraph-backend/internal/jobs/runtime"
	"github.com/yungbote/talentgraph-backend/internal/jobs/worker"
	"github.com/yungbote/talentgraph-backend/internal/modules"
	"github.com/yungbote/talentgraph-backend/internal/pkg/errors"
	"github.com/yungbote/talentgraph-backend/internal/pkg/logger"
	"github.com/yungbote/talentgraph-backend/internal/services"
)

type Services struct {
	Jobs      services.JobService
	Documents services.DocumentService
	Claims    services.ClaimLedger
	Snapshots services.SnapshotService
	Entities  services.EntityResolutionService

	Modules    *modules.Registry
	Dispatcher *modules.Dispatcher
	Engine     *orchestrator.Engine

	JobRegistry *runtime.Registry
	Worker      *worker.Worker
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, rs repos.Set, clients Clients) (Services, error) {
	log.Info("Wiring services...")

	jobs := services.NewJobService(db, log, rs.JobRun)
	docs := services.NewDocumentService(db, log, rs.Document, clients.Archive)
	claimLedger := services.NewClaimLedger(db, log, rs.Claim)
	snapshots := services.NewSnapshotService(db, log, rs.LayerSnapshot)
	entities := services.NewEntityResolutionService(db, log, rs, docs, graph.NewTalentGraph(clients.Neo4j, log))

	registry, err := modules.NewDefaultRegistry(modules.Deps{
		DB:        db,
		Log:       log,
		Repos:     rs,
		Documents: docs,
		Claims:    claimLedger,
		Snapshots: snapshots,
		Entities:  entities,
		AI:        clients.AI,
		AIModel:   cfg.OpenAI.Model,
		Search:    clients.Search,
		Scraper:   clients.Scraper,
	})
	if err != nil {
		return Services{}, errors.Wrap(err, "register modules")
	}
	dispatcher := modules.NewDispatcher(log, registry)

	catalog, err := loadCatalog(cfg.Flows)
	if err != nil {
		return Services{}, err
	}
	engine := orchestrator.NewEngine(db, log, orchestrator.Deps{
		Repos:    rs,
		Jobs:     jobs,
		Docs:     docs,
		Claims:   claimLedger,
		Entities: entities,
		Locker:   clients.Locker,
		Catalog:  catalog,
		AI:       clients.AI,
	}, orchestrator.Config{
		LockTTL:  cfg.Flows.LockTTL,
		LockWait: cfg.Flows.LockWait,
		AIModel:  cfg.OpenAI.Model,
	})

	jobRegistry := runtime.NewRegistry()
	for _, h := range []runtime.Handler{
		flow_run_process.New(log, engine),
		module_run_execute.New(db, log, rs.ModuleRun, dispatcher, engine),
	} {
		if err := jobRegistry.Register(h); err != nil {
			return Services{}, errors.Wrap(err, "register job handler")
		}
	}

	return Services{
		Jobs:        jobs,
		Documents:   docs,
		Claims:      claimLedger,
		Snapshots:   snapshots,
		Entities:    entities,
		Modules:     registry,
		Dispatcher:  dispatcher,
		Engine:      engine,
		JobRegistry: jobRegistry,
		Worker:      worker.NewWorker(db, log, rs.JobRun, jobRegistry, cfg.Worker),
	}, nil
}

func loadCatalog(cfg FlowsConfig) (*orchestrator.Catalog, error) {
	if cfg.DefinitionsFile != "" {
		catalog, err := orchestrator.LoadCatalog(cfg.DefinitionsFile)
		if err != nil {
			return nil, errors.Wrapf(err, "load flow definitions %s", cfg.DefinitionsFile)
		}
		return catalog, nil
	}
	catalog, err := orchestrator.DefaultCatalog()
	if err != nil {
		return nil, errors.Wrap(err, "load default flow definitions")
	}
	return catalog, nil
}
