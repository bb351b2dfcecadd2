package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/ctxhub/ctxhub/internal/model"
	"github.com/ctxhub/ctxhub/internal/pkg/errcode"
	"github.com/ctxhub/ctxhub/internal/pkg/response"
	"github.com/ctxhub/ctxhub/internal/service"
)

type IngestHandler struct {
	ingest *service.IngestService
}

func NewIngestHandler(ingest *service.IngestService) *IngestHandler {
	return &IngestHandler{ingest: ingest}
}

type ingestFileRequest struct {
	Path     string `json:"path"`
	Content  string `json:"content"`
	MimeType string `json:"mime_type"`
}

type ingestRequest struct {
	Files []ingestFileRequest `json:"files"`
}

func (h *IngestHandler) Ingest(c *gin.Context) {
	var req ingestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	if len(req.Files) == 0 {
		response.Error(c, errcode.ErrInvalid, "files required")
		return
	}
	batch := make([]model.IngestFile, 0, len(req.Files))
	for _, item := range req.Files {
		batch = append(batch, model.IngestFile{
			Path:     item.Path,
			Content:  []byte(item.Content),
			MimeType: item.MimeType,
		})
	}
	report, err := h.ingest.Ingest(c.Request.Context(), getUserID(c), c.Param("id"), batch)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, report)
}
