package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/talentgraph-backend/internal/http/response"
	"github.com/yungbote/talentgraph-backend/internal/pkg/errors"
	"github.com/yungbote/talentgraph-backend/internal/services"
)

type SnapshotHandler struct {
	snapshots services.SnapshotService
}

func NewSnapshotHandler(snapshots services.SnapshotService) *SnapshotHandler {
	return &SnapshotHandler{snapshots: snapshots}
}

// GET /api/projects/:projectId/people/:personId/snapshots/:layer/latest
func (h *SnapshotHandler) GetLatest(c *gin.Context) {
	const op = "http.GetLatestSnapshot"
	projectID, err := paramUUID(c, "projectId")
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	personID, err := paramUUID(c, "personId")
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	layer, err := strconv.Atoi(c.Param("layer"))
	if err != nil || layer < 1 {
		response.RespondErr(c, errors.Validation(op, "invalid layer %q", c.Param("layer")))
		return
	}
	snap, err := h.snapshots.GetLatest(requestDBC(c), projectID, personID, layer)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	if snap == nil {
		response.RespondErr(c, errors.NotFound(op, "no layer %d snapshot for person %s", layer, personID))
		return
	}
	response.RespondOK(c, gin.H{"snapshot": snap})
}
