package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/ctxhub/ctxhub/internal/pkg/errcode"
	"github.com/ctxhub/ctxhub/internal/pkg/response"
	"github.com/ctxhub/ctxhub/internal/service"
)

type VersionHandler struct {
	packages  *service.PackageService
	lifecycle *service.LifecycleService
}

func NewVersionHandler(packages *service.PackageService, lifecycle *service.LifecycleService) *VersionHandler {
	return &VersionHandler{packages: packages, lifecycle: lifecycle}
}

type versionCreateRequest struct {
	Version string `json:"version"`
}

func (h *VersionHandler) Create(c *gin.Context) {
	var req versionCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	version, err := h.packages.CreateVersion(c.Request.Context(), getUserID(c), c.Param("id"), req.Version)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, version)
}

func (h *VersionHandler) List(c *gin.Context) {
	versions, err := h.packages.ListVersions(c.Request.Context(), getUserID(c), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, versions)
}

func (h *VersionHandler) Get(c *gin.Context) {
	version, err := h.packages.GetVersion(c.Request.Context(), getUserID(c), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, version)
}

func (h *VersionHandler) Delete(c *gin.Context) {
	if err := h.packages.DeleteVersion(c.Request.Context(), getUserID(c), c.Param("id")); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"deleted": true})
}

func (h *VersionHandler) Lock(c *gin.Context) {
	version, err := h.lifecycle.Lock(c.Request.Context(), getUserID(c), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, version)
}

func (h *VersionHandler) Publish(c *gin.Context) {
	version, err := h.lifecycle.Publish(c.Request.Context(), getUserID(c), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, version)
}

func (h *VersionHandler) RecalculateStats(c *gin.Context) {
	version, err := h.lifecycle.RecalculateStats(c.Request.Context(), getUserID(c), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, version)
}

func (h *VersionHandler) ListFiles(c *gin.Context) {
	files, err := h.packages.ListFiles(c.Request.Context(), getUserID(c), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, files)
}

func (h *VersionHandler) GetFile(c *gin.Context) {
	path := c.Query("path")
	if path == "" {
		response.Error(c, errcode.ErrInvalid, "path required")
		return
	}
	file, err := h.packages.GetFile(c.Request.Context(), getUserID(c), c.Param("id"), path)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, file)
}

func (h *VersionHandler) ListFileChunks(c *gin.Context) {
	path := c.Query("path")
	if path == "" {
		response.Error(c, errcode.ErrInvalid, "path required")
		return
	}
	chunks, err := h.packages.ListFileChunks(c.Request.Context(), getUserID(c), c.Param("id"), path)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, chunks)
}
