package app

import (
	"context"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	dbpkg "github.com/yungbote/talentgraph-backend/internal/data/db"
	"github.com/yungbote/talentgraph-backend/internal/data/repos"
	apphttp "github.com/yungbote/talentgraph-backend/internal/http"
	"github.com/yungbote/talentgraph-backend/internal/modules"
	"github.com/yungbote/talentgraph-backend/internal/observability"
	"github.com/yungbote/talentgraph-backend/internal/pkg/dbctx"
	"github.com/yungbote/talentgraph-backend/internal/pkg/errors"
	"github.com/yungbote/talentgraph-backend/internal/pkg/logger"
)

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Router   *gin.Engine
	Cfg      Config
	Repos    repos.Set
	Clients  Clients
	Services Services

	pg           *dbpkg.PostgresService
	otelShutdown func(context.Context) error
}

func NewLogger(cfg LogConfig) (*logger.Logger, error) {
	mode := cfg.Mode
	if mode == "" {
		mode = "development"
	}
	return logger.NewWithOptions(mode, logger.Options{
		DisableRedaction: cfg.DisableRedaction,
		HashSalt:         cfg.HashSalt,
	})
}

func New(ctx context.Context, cfg Config) (*App, error) {
	log, err := NewLogger(cfg.Log)
	if err != nil {
		return nil, errors.Wrap(err, "init logger")
	}

	shutdown := observability.InitOTel(ctx, log, cfg.OTel)

	pg, err := dbpkg.NewPostgresService(cfg.Postgres, log)
	if err != nil {
		log.Sync()
		return nil, errors.Wrap(err, "init database")
	}
	theDB := pg.DB()

	clients, err := wireClients(ctx, log, cfg)
	if err != nil {
		_ = pg.Close()
		log.Sync()
		return nil, err
	}

	reposet := repos.NewSet(theDB, log)
	serviceset, err := wireServices(theDB, log, cfg, reposet, clients)
	if err != nil {
		clients.Close(ctx)
		_ = pg.Close()
		log.Sync()
		return nil, err
	}

	handlerset := wireHandlers(log, serviceset)
	router := wireRouter(log, cfg, handlerset)

	return &App{
		Log:          log,
		DB:           theDB,
		Router:       router,
		Cfg:          cfg,
		Repos:        reposet,
		Clients:      clients,
		Services:     serviceset,
		pg:           pg,
		otelShutdown: shutdown,
	}, nil
}

// Migrate creates the schema and seeds one catalogue row per registered
// module version.
func (a *App) Migrate(ctx context.Context) error {
	if err := dbpkg.AutoMigrateAll(a.DB); err != nil {
		return err
	}
	created, err := modules.Seed(dbctx.Context{Ctx: ctx}, a.Repos.Module, a.Services.Modules)
	if err != nil {
		return errors.Wrap(err, "seed modules")
	}
	a.Log.Info("Schema migrated", "driver", a.pg.Driver(), "modules_seeded", created)
	return nil
}

// Serve runs the HTTP surface and, unless withWorker is false, the job
// worker pool until ctx ends.
func (a *App) Serve(ctx context.Context, withWorker bool) error {
	g, gctx := errgroup.WithContext(ctx)
	server := &apphttp.Server{Engine: a.Router}
	g.Go(func() error {
		a.Log.Info("HTTP server listening", "addr", a.Cfg.HTTP.Addr)
		return server.Run(gctx, a.Cfg.HTTP.Addr)
	})
	if withWorker {
		g.Go(func() error { return a.RunWorker(gctx) })
	}
	return g.Wait()
}

func (a *App) RunWorker(ctx context.Context) error {
	a.Log.Info("Job worker starting", "job_types", a.Services.JobRegistry.Types())
	err := a.Services.Worker.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (a *App) Close() {
	if a == nil {
		return
	}
	ctx := context.Background()
	a.Clients.Close(ctx)
	if a.pg != nil {
		_ = a.pg.Close()
	}
	if a.otelShutdown != nil {
		_ = a.otelShutdown(ctx)
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
