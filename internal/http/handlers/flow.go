package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/talentgraph-backend/internal/http/response"
	"github.com/yungbote/talentgraph-backend/internal/jobs/orchestrator"
	"github.com/yungbote/talentgraph-backend/internal/pkg/errors"
)

type FlowEngine interface {
	CreateFlowRun(ctx context.Context, in orchestrator.CreateFlowRunInput) (*orchestrator.CreateFlowRunResult, error)
	CreateFlowBatch(ctx context.Context, in orchestrator.CreateFlowBatchInput) (*orchestrator.FlowBatchResult, error)
	GetFlowRunStatus(ctx context.Context, flowRunID uuid.UUID) (*orchestrator.FlowRunStatus, error)
	CreateModuleRun(ctx context.Context, in orchestrator.CreateModuleRunInput) (*orchestrator.CreateModuleRunResult, error)
}

type FlowHandler struct {
	engine FlowEngine
}

func NewFlowHandler(engine FlowEngine) *FlowHandler {
	return &FlowHandler{engine: engine}
}

type createFlowRunRequest struct {
	ProjectID          uuid.UUID `json:"projectId" binding:"required"`
	PersonID           uuid.UUID `json:"personId" binding:"required"`
	ProfileURL         string    `json:"profileUrl"`
	TriggeredByUserID  string    `json:"triggeredByUserId"`
	FlowKey            string    `json:"flowKey"`
	FilterInstructions string    `json:"filterInstructions"`
}

// POST /api/flow-runs
func (h *FlowHandler) CreateFlowRun(c *gin.Context) {
	var req createFlowRunRequest
	if err := bindJSON(c, &req); err != nil {
		response.RespondErr(c, err)
		return
	}
	res, err := h.engine.CreateFlowRun(c.Request.Context(), orchestrator.CreateFlowRunInput{
		ProjectID:          req.ProjectID,
		PersonID:           req.PersonID,
		ProfileURL:         req.ProfileURL,
		TriggeredBy:        req.TriggeredByUserID,
		FlowKey:            req.FlowKey,
		FilterInstructions: req.FilterInstructions,
	})
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondAccepted(c, res)
}

// GET /api/flow-runs/:id
func (h *FlowHandler) GetFlowRun(c *gin.Context) {
	id, err := paramUUID(c, "id")
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	st, err := h.engine.GetFlowRunStatus(c.Request.Context(), id)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, st)
}

type createFlowBatchRequest struct {
	ProjectID          uuid.UUID `json:"projectId" binding:"required"`
	Profiles           []string  `json:"profiles"`
	TriggeredByUserID  string    `json:"triggeredByUserId"`
	FlowKey            string    `json:"flowKey"`
	FilterInstructions string    `json:"filterInstructions"`
}

// POST /api/flow-batches
func (h *FlowHandler) CreateFlowBatch(c *gin.Context) {
	var req createFlowBatchRequest
	if err := bindJSON(c, &req); err != nil {
		response.RespondErr(c, err)
		return
	}
	if len(req.Profiles) > maxBatchProfiles {
		response.RespondErr(c, errors.Validation("http.CreateFlowBatch", "at most %d profiles per batch", maxBatchProfiles))
		return
	}
	res, err := h.engine.CreateFlowBatch(c.Request.Context(), orchestrator.CreateFlowBatchInput{
		ProjectID:          req.ProjectID,
		Profiles:           req.Profiles,
		TriggeredBy:        req.TriggeredByUserID,
		FlowKey:            req.FlowKey,
		FilterInstructions: req.FilterInstructions,
	})
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondAccepted(c, res)
}

const maxBatchProfiles = 500
