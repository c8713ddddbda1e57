package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/talentgraph-backend/internal/http/handlers"
	httpMW "github.com/yungbote/talentgraph-backend/internal/http/middleware"
	"github.com/yungbote/talentgraph-backend/internal/pkg/logger"
)

type RouterConfig struct {
	Log            *logger.Logger
	ServiceName    string
	TracingEnabled bool
	CORSOrigins    []string

	HealthHandler    *httpH.HealthHandler
	FlowHandler      *httpH.FlowHandler
	ModuleRunHandler *httpH.ModuleRunHandler
	DocumentHandler  *httpH.DocumentHandler
	SnapshotHandler  *httpH.SnapshotHandler
	JobHandler       *httpH.JobHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.TracingEnabled {
		name := cfg.ServiceName
		if name == "" {
			name = "talentgraph-api"
		}
		r.Use(otelgin.Middleware(name))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.CORS(cfg.CORSOrigins))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}

	api := r.Group("/api")
	{
		// Flows
		if cfg.FlowHandler != nil {
			api.POST("/flow-runs", cfg.FlowHandler.CreateFlowRun)
			api.GET("/flow-runs/:id", cfg.FlowHandler.GetFlowRun)
			api.POST("/flow-batches", cfg.FlowHandler.CreateFlowBatch)
		}

		// Standalone module runs
		if cfg.ModuleRunHandler != nil {
			api.POST("/module-runs", cfg.ModuleRunHandler.CreateModuleRun)
		}

		// Documents
		if cfg.DocumentHandler != nil {
			api.POST("/documents/:id/invalidate", cfg.DocumentHandler.Invalidate)
			api.POST("/documents/:id/revalidate", cfg.DocumentHandler.Revalidate)
		}

		// Snapshots
		if cfg.SnapshotHandler != nil {
			api.GET("/projects/:projectId/people/:personId/snapshots/:layer/latest", cfg.SnapshotHandler.GetLatest)
		}

		// Job
		if cfg.JobHandler != nil {
			api.GET("/jobs/:id", cfg.JobHandler.GetJob)
		}
	}

	return r
}
