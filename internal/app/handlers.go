package app

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/talentgraph-backend/internal/http"
	httpH "github.com/yungbote/talentgraph-backend/internal/http/handlers"
	"github.com/yungbote/talentgraph-backend/internal/pkg/logger"
)

type Handlers struct {
	Health    *httpH.HealthHandler
	Flow      *httpH.FlowHandler
	ModuleRun *httpH.ModuleRunHandler
	Document  *httpH.DocumentHandler
	Snapshot  *httpH.SnapshotHandler
	Job       *httpH.JobHandler
}

func wireHandlers(log *logger.Logger, services Services) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Health:    httpH.NewHealthHandler(),
		Flow:      httpH.NewFlowHandler(services.Engine),
		ModuleRun: httpH.NewModuleRunHandler(services.Engine),
		Document:  httpH.NewDocumentHandler(services.Documents),
		Snapshot:  httpH.NewSnapshotHandler(services.Snapshots),
		Job:       httpH.NewJobHandler(services.Jobs),
	}
}

func wireRouter(log *logger.Logger, cfg Config, handlers Handlers) *gin.Engine {
	return http.NewRouter(http.RouterConfig{
		Log:              log,
		ServiceName:      cfg.OTel.ServiceName,
		TracingEnabled:   cfg.OTel.Enabled,
		CORSOrigins:      cfg.HTTP.CORSOrigins,
		HealthHandler:    handlers.Health,
		FlowHandler:      handlers.Flow,
		ModuleRunHandler: handlers.ModuleRun,
		DocumentHandler:  handlers.Document,
		SnapshotHandler:  handlers.Snapshot,
		JobHandler:       handlers.Job,
	})
}
