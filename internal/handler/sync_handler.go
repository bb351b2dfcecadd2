package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ctxhub/ctxhub/internal/model"
	"github.com/ctxhub/ctxhub/internal/pkg/errcode"
	"github.com/ctxhub/ctxhub/internal/pkg/response"
	"github.com/ctxhub/ctxhub/internal/service"
)

type SyncHandler struct {
	sync *service.SyncService
}

func NewSyncHandler(sync *service.SyncService) *SyncHandler {
	return &SyncHandler{sync: sync}
}

type connectionCreateRequest struct {
	PackageID string `json:"package_id"`
	Provider  string `json:"provider"`
	RepoOwner string `json:"repo_owner"`
	RepoName  string `json:"repo_name"`
	Branch    string `json:"branch"`
	Token     string `json:"token"`
}

func (h *SyncHandler) CreateConnection(c *gin.Context) {
	var req connectionCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	conn, secret, err := h.sync.CreateConnection(c.Request.Context(), getUserID(c), &model.RepoConnection{
		PackageID: req.PackageID,
		Provider:  req.Provider,
		RepoOwner: req.RepoOwner,
		RepoName:  req.RepoName,
		Branch:    req.Branch,
		Token:     req.Token,
	})
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"connection": conn, "webhook_secret": secret})
}

func (h *SyncHandler) ListConnections(c *gin.Context) {
	conns, err := h.sync.ListConnections(c.Request.Context(), getUserID(c))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, conns)
}

func (h *SyncHandler) GetConnection(c *gin.Context) {
	conn, err := h.sync.GetConnection(c.Request.Context(), getUserID(c), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, conn)
}

func (h *SyncHandler) DeleteConnection(c *gin.Context) {
	if err := h.sync.DeleteConnection(c.Request.Context(), getUserID(c), c.Param("id")); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"deleted": true})
}

func (h *SyncHandler) Trigger(c *gin.Context) {
	job, err := h.sync.Trigger(c.Request.Context(), getUserID(c), c.Param("id"), "manual")
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, job)
}

func (h *SyncHandler) GetJob(c *gin.Context) {
	job, err := h.sync.GetJob(c.Request.Context(), getUserID(c), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, job)
}

func (h *SyncHandler) ListJobs(c *gin.Context) {
	limit := 20
	if value := c.Query("limit"); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	jobs, err := h.sync.ListJobs(c.Request.Context(), getUserID(c), c.Param("id"), limit)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, jobs)
}

type webhookRequest struct {
	Secret string `json:"secret"`
}

// Webhook lets the remote repository trigger a sync without a user token.
// The per-connection secret issued at creation time authenticates the call.
func (h *SyncHandler) Webhook(c *gin.Context) {
	var req webhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	conn, err := h.sync.VerifyWebhook(c.Request.Context(), c.Param("id"), req.Secret)
	if err != nil {
		handleError(c, err)
		return
	}
	job, err := h.sync.Trigger(c.Request.Context(), "", conn.ID, "webhook")
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, job)
}
