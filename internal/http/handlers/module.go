package handlers

import (
	"encoding/json"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	domainmod "github.com/yungbote/talentgraph-backend/internal/domain/modules"
	"github.com/yungbote/talentgraph-backend/internal/http/response"
	"github.com/yungbote/talentgraph-backend/internal/jobs/orchestrator"
)

type ModuleRunHandler struct {
	engine FlowEngine
}

func NewModuleRunHandler(engine FlowEngine) *ModuleRunHandler {
	return &ModuleRunHandler{engine: engine}
}

type createModuleRunRequest struct {
	ProjectID      uuid.UUID       `json:"projectId" binding:"required"`
	PersonID       *uuid.UUID      `json:"personId"`
	ModuleKey      string          `json:"moduleKey" binding:"required"`
	Version        string          `json:"version"`
	ProfileURL     string          `json:"profileUrl"`
	SearchProvider string          `json:"searchProvider"`
	SearchPayload  json.RawMessage `json:"searchPayload"`
	MaxPages       int             `json:"maxPages"`
	MaxItems       int             `json:"maxItems"`
	EnrichProfiles bool            `json:"enrichProfiles"`
}

// POST /api/module-runs
func (h *ModuleRunHandler) CreateModuleRun(c *gin.Context) {
	var req createModuleRunRequest
	if err := bindJSON(c, &req); err != nil {
		response.RespondErr(c, err)
		return
	}
	res, err := h.engine.CreateModuleRun(c.Request.Context(), orchestrator.CreateModuleRunInput{
		ProjectID: req.ProjectID,
		PersonID:  req.PersonID,
		ModuleKey: req.ModuleKey,
		Version:   req.Version,
		Config: domainmod.InputConfig{
			ProfileURL:     req.ProfileURL,
			SearchProvider: req.SearchProvider,
			SearchPayload:  req.SearchPayload,
			MaxPages:       req.MaxPages,
			MaxItems:       req.MaxItems,
			EnrichProfiles: req.EnrichProfiles,
		},
	})
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondAccepted(c, res)
}
