package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/talentgraph-backend/internal/http/response"
	"github.com/yungbote/talentgraph-backend/internal/services"
)

type JobHandler struct {
	jobs services.JobService
}

func NewJobHandler(jobs services.JobService) *JobHandler {
	return &JobHandler{jobs: jobs}
}

// GET /api/jobs/:id
func (h *JobHandler) GetJob(c *gin.Context) {
	jobID, err := paramUUID(c, "id")
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	job, err := h.jobs.GetByID(requestDBC(c), jobID)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"job": job})
}
