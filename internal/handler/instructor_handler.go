package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/atlasedu/academy-api/internal/service"
	appErrors "github.com/atlasedu/academy-api/pkg/errors"
	"github.com/atlasedu/academy-api/pkg/response"
)

// InstructorHandler exposes instructor CRUD endpoints.
type InstructorHandler struct {
	service *service.InstructorService
}

// NewInstructorHandler constructs InstructorHandler.
func NewInstructorHandler(service *service.InstructorService) *InstructorHandler {
	return &InstructorHandler{service: service}
}

// List godoc
// @Summary List instructors
// @Tags Instructors
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /instructors [get]
func (h *InstructorHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	instructors, err := h.service.List(c.Request.Context(), claims.AuthUser())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, instructors, nil)
}

// Get godoc
// @Summary Get an instructor
// @Tags Instructors
// @Produce json
// @Param id path string true "Instructor id"
// @Success 200 {object} response.Envelope
// @Router /instructors/{id} [get]
func (h *InstructorHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	instructor, err := h.service.Get(c.Request.Context(), c.Param("id"), claims.AuthUser())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, instructor, nil)
}

// Create godoc
// @Summary Register an instructor
// @Tags Instructors
// @Accept json
// @Produce json
// @Param request body service.CreateInstructorRequest true "Instructor payload"
// @Success 201 {object} response.Envelope
// @Router /instructors [post]
func (h *InstructorHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.CreateInstructorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid instructor payload"))
		return
	}
	instructor, err := h.service.Create(c.Request.Context(), req, claims.AuthUser())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, instructor, nil)
}

// Update godoc
// @Summary Update an instructor
// @Tags Instructors
// @Accept json
// @Produce json
// @Param id path string true "Instructor id"
// @Param request body service.UpdateInstructorRequest true "Patch payload"
// @Success 200 {object} response.Envelope
// @Router /instructors/{id} [patch]
func (h *InstructorHandler) Update(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.UpdateInstructorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid instructor payload"))
		return
	}
	instructor, err := h.service.Update(c.Request.Context(), c.Param("id"), req, claims.AuthUser())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, instructor, nil)
}

// Delete godoc
// @Summary Delete an instructor
// @Tags Instructors
// @Param id path string true "Instructor id"
// @Success 204
// @Router /instructors/{id} [delete]
func (h *InstructorHandler) Delete(c *gin.Context) {
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
