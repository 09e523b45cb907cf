package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/atlasedu/academy-api/internal/service"
	appErrors "github.com/atlasedu/academy-api/pkg/errors"
	"github.com/atlasedu/academy-api/pkg/response"
)

// BranchHandler exposes branch management endpoints.
type BranchHandler struct {
	service *service.BranchService
}

// NewBranchHandler constructs BranchHandler.
func NewBranchHandler(service *service.BranchService) *BranchHandler {
	return &BranchHandler{service: service}
}

// List godoc
// @Summary List branches visible to the acting user
// @Tags Branches
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /branches [get]
func (h *BranchHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	branches, err := h.service.List(c.Request.Context(), claims.AuthUser())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, branches, nil)
}

// Get godoc
// @Summary Get a branch
// @Tags Branches
// @Produce json
// @Param id path string true "Branch id"
// @Success 200 {object} response.Envelope
// @Router /branches/{id} [get]
func (h *BranchHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	branch, err := h.service.Get(c.Request.Context(), c.Param("id"), claims.AuthUser())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, branch, nil)
}

// Create godoc
// @Summary Create a branch
// @Tags Branches
// @Accept json
// @Produce json
// @Param request body service.BranchRequest true "Branch payload"
// @Success 201 {object} response.Envelope
// @Router /branches [post]
func (h *BranchHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.BranchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid branch payload"))
		return
	}
	branch, err := h.service.Create(c.Request.Context(), req, claims.AuthUser())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, branch, nil)
}

// Update godoc
// @Summary Rename a branch
// @Tags Branches
// @Accept json
// @Produce json
// @Param id path string true "Branch id"
// @Param request body service.BranchRequest true "Branch payload"
// @Success 200 {object} response.Envelope
// @Router /branches/{id} [patch]
func (h *BranchHandler) Update(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.BranchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid branch payload"))
		return
	}
	branch, err := h.service.Update(c.Request.Context(), c.Param("id"), req, claims.AuthUser())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, branch, nil)
}

// Delete godoc
// @Summary Delete a branch
// @Tags Branches
// @Param id path string true "Branch id"
// @Success 204
// @Router /branches/{id} [delete]
func (h *BranchHandler) Delete(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.service.Delete(c.Request.Context(), c.Param("id"), claims.AuthUser()); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
