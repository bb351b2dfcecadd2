package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ctxhub/ctxhub/internal/pkg/errcode"
	"github.com/ctxhub/ctxhub/internal/pkg/response"
	"github.com/ctxhub/ctxhub/internal/service"
)

type SearchHandler struct {
	search *service.SearchService
}

func NewSearchHandler(search *service.SearchService) *SearchHandler {
	return &SearchHandler{search: search}
}

type searchRequest struct {
	Query     string `json:"query"`
	PackageID string `json:"package_id"`
	Limit     int    `json:"limit"`
}

func (h *SearchHandler) Search(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	results, err := h.search.Search(c.Request.Context(), getUserID(c), req.Query, req.PackageID, req.Limit)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, results)
}

func (h *SearchHandler) SearchGet(c *gin.Context) {
	limit := 0
	if value := c.Query("limit"); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			limit = parsed
		}
	}
	results, err := h.search.Search(c.Request.Context(), getUserID(c), c.Query("q"), c.Query("package_id"), limit)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, results)
}
