package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/talentgraph-backend/internal/http/response"
	"github.com/yungbote/talentgraph-backend/internal/services"
)

type DocumentHandler struct {
	docs services.DocumentService
}

func NewDocumentHandler(docs services.DocumentService) *DocumentHandler {
	return &DocumentHandler{docs: docs}
}

type validityRequest struct {
	Reason       string     `json:"reason"`
	SupersededBy *uuid.UUID `json:"supersededBy"`
}

// POST /api/documents/:id/invalidate
func (h *DocumentHandler) Invalidate(c *gin.Context) {
	id, req, ok := h.parse(c)
	if !ok {
		return
	}
	doc, err := h.docs.Invalidate(requestDBC(c), id, req.Reason, req.SupersededBy)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"document": doc})
}

// POST /api/documents/:id/revalidate
func (h *DocumentHandler) Revalidate(c *gin.Context) {
	id, req, ok := h.parse(c)
	if !ok {
		return
	}
	doc, err := h.docs.Revalidate(requestDBC(c), id, req.Reason)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"document": doc})
}

// parse accepts an empty body.
func (h *DocumentHandler) parse(c *gin.Context) (uuid.UUID, validityRequest, bool) {
	var req validityRequest
	id, err := paramUUID(c, "id")
	if err != nil {
		response.RespondErr(c, err)
		return uuid.Nil, req, false
	}
	if c.Request.ContentLength != 0 {
		if err := bindJSON(c, &req); err != nil {
			response.RespondErr(c, err)
			return uuid.Nil, req, false
		}
	}
	return id, req, true
}
