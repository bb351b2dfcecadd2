package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/ctxhub/ctxhub/internal/pkg/errcode"
	"github.com/ctxhub/ctxhub/internal/pkg/response"
	"github.com/ctxhub/ctxhub/internal/service"
)

type PackageHandler struct {
	packages *service.PackageService
}

func NewPackageHandler(packages *service.PackageService) *PackageHandler {
	return &PackageHandler{packages: packages}
}

type packageCreateRequest struct {
	Name       string `json:"name"`
	Slug       string `json:"slug"`
	Visibility string `json:"visibility"`
}

func (h *PackageHandler) Create(c *gin.Context) {
	var req packageCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	pkg, err := h.packages.Create(c.Request.Context(), getUserID(c), req.Name, req.Slug, req.Visibility)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, pkg)
}

func (h *PackageHandler) List(c *gin.Context) {
	pkgs, err := h.packages.List(c.Request.Context(), getUserID(c))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, pkgs)
}

func (h *PackageHandler) Get(c *gin.Context) {
	pkg, err := h.packages.Get(c.Request.Context(), getUserID(c), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, pkg)
}

func (h *PackageHandler) GetBySlug(c *gin.Context) {
	pkg, err := h.packages.GetBySlug(c.Request.Context(), getUserID(c), c.Param("slug"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, pkg)
}

type packageUpdateRequest struct {
	Name       *string `json:"name"`
	Visibility *string `json:"visibility"`
	Archived   *bool   `json:"archived"`
}

func (h *PackageHandler) Update(c *gin.Context) {
	var req packageUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	pkg, err := h.packages.Update(c.Request.Context(), getUserID(c), c.Param("id"), req.Name, req.Visibility, req.Archived)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, pkg)
}
