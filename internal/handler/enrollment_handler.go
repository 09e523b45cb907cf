package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/atlasedu/academy-api/internal/service"
	appErrors "github.com/atlasedu/academy-api/pkg/errors"
	"github.com/atlasedu/academy-api/pkg/response"
)

// EnrollmentHandler exposes the enrollment lifecycle over HTTP.
type EnrollmentHandler struct {
	service *service.EnrollmentService
}

// NewEnrollmentHandler constructs EnrollmentHandler.
func NewEnrollmentHandler(service *service.EnrollmentService) *EnrollmentHandler {
	return &EnrollmentHandler{service: service}
}

// Enroll godoc
// @Summary Enroll a student into a course
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param request body service.EnrollRequest true "Enrollment payload"
// @Success 201 {object} response.Envelope
// @Router /enroll [post]
func (h *EnrollmentHandler) Enroll(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.EnrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid enrollment payload"))
		return
	}
	detail, err := h.service.Enroll(c.Request.Context(), req, claims.AuthUser())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, detail, nil)
}

// Complete godoc
// @Summary Mark an enrollment completed
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param request body service.CompleteRequest true "Completion payload"
// @Success 200 {object} response.Envelope
// @Router /enroll/complete [post]
func (h *EnrollmentHandler) Complete(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.CompleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid completion payload"))
		return
	}
	detail, err := h.service.Complete(c.Request.Context(), req, claims.AuthUser())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// Unenroll godoc
// @Summary Cancel an enrollment
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param request body service.UnenrollRequest true "Unenroll payload"
// @Success 200 {object} response.Envelope
// @Router /enroll/unenroll [post]
func (h *EnrollmentHandler) Unenroll(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.UnenrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid unenroll payload"))
		return
	}
	detail, err := h.service.Unenroll(c.Request.Context(), req, claims.AuthUser())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// List godoc
// @Summary List enrollments visible to the acting user
// @Tags Enrollments
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /enroll [get]
func (h *EnrollmentHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	details, err := h.service.List(c.Request.Context(), claims.AuthUser())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, details, nil)
}

// ListActive godoc
// @Summary List active enrollments
// @Tags Enrollments
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /enrollments/active [get]
func (h *EnrollmentHandler) ListActive(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	details, err := h.service.ListActive(c.Request.Context(), claims.AuthUser())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, details, nil)
}

// Get godoc
// @Summary Get a single enrollment
// @Tags Enrollments
// @Produce json
// @Param id path string true "Enrollment id"
// @Success 200 {object} response.Envelope
// @Router /enroll/{id} [get]
func (h *EnrollmentHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	detail, err := h.service.Get(c.Request.Context(), c.Param("id"), claims.AuthUser())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// Update godoc
// @Summary Patch enrollment fields directly (superadmin only)
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param id path string true "Enrollment id"
// @Param request body service.UpdateEnrollmentRequest true "Patch payload"
// @Success 200 {object} response.Envelope
// @Router /enroll/{id} [patch]
func (h *EnrollmentHandler) Update(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.UpdateEnrollmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid patch payload"))
		return
	}
	detail, err := h.service.Update(c.Request.Context(), c.Param("id"), req, claims.AuthUser())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// Delete godoc
// @Summary Delete an enrollment row
// @Tags Enrollments
// @Param id path string true "Enrollment id"
// @Success 204
// @Router /enroll/{id} [delete]
func (h *EnrollmentHandler) Delete(c *gin.Context) {
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

// Events godoc
// @Summary List the audit trail of an enrollment
// @Tags Enrollments
// @Produce json
// @Param id path string true "Enrollment id"
// @Success 200 {object} response.Envelope
// @Router /enroll/{id}/events [get]
func (h *EnrollmentHandler) Events(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	events, err := h.service.Events(c.Request.Context(), c.Param("id"), claims.AuthUser())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, events, nil)
}

// History godoc
// @Summary List every enrollment of a student, newest first
// @Tags Enrollments
// @Produce json
// @Param id path string true "Student id"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/history [get]
func (h *EnrollmentHandler) History(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	details, err := h.service.History(c.Request.Context(), c.Param("id"), claims.AuthUser())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, details, nil)
}
