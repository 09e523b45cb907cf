package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/atlasedu/academy-api/internal/models"
	"github.com/atlasedu/academy-api/internal/service"
	appErrors "github.com/atlasedu/academy-api/pkg/errors"
	"github.com/atlasedu/academy-api/pkg/export"
	"github.com/atlasedu/academy-api/pkg/response"
)

// CourseHandler exposes the course catalog and roster endpoints.
type CourseHandler struct {
	courses        *service.CourseService
	enrollments    *service.EnrollmentService
	csv            *export.CSVExporter
	pdf            *export.PDFExporter
	exportsEnabled bool
}

// NewCourseHandler constructs CourseHandler.
func NewCourseHandler(courses *service.CourseService, enrollments *service.EnrollmentService, csv *export.CSVExporter, pdf *export.PDFExporter, exportsEnabled bool) *CourseHandler {
	return &CourseHandler{
		courses:        courses,
		enrollments:    enrollments,
		csv:            csv,
		pdf:            pdf,
		exportsEnabled: exportsEnabled,
	}
}

// List godoc
// @Summary List courses
// @Tags Courses
// @Produce json
// @Param status query string false "Derived status filter (upcoming|ongoing|completed)"
// @Success 200 {object} response.Envelope
// @Router /courses [get]
func (h *CourseHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	filter := models.CourseFilter{Status: models.CourseStatus(c.Query("status"))}
	courses, err := h.courses.List(c.Request.Context(), filter, claims.AuthUser())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, courses, nil)
}

// Get godoc
// @Summary Get a course
// @Tags Courses
// @Produce json
// @Param id path string true "Course id"
// @Success 200 {object} response.Envelope
// @Router /courses/{id} [get]
func (h *CourseHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	course, err := h.courses.Get(c.Request.Context(), c.Param("id"), claims.AuthUser())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, course, nil)
}

// Create godoc
// @Summary Create a course
// @Tags Courses
// @Accept json
// @Produce json
// @Param request body service.CreateCourseRequest true "Course payload"
// @Success 201 {object} response.Envelope
// @Router /courses [post]
func (h *CourseHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.CreateCourseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid course payload"))
		return
	}
	course, err := h.courses.Create(c.Request.Context(), req, claims.AuthUser())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, course, nil)
}

// Update godoc
// @Summary Update a course
// @Tags Courses
// @Accept json
// @Produce json
// @Param id path string true "Course id"
// @Param request body service.UpdateCourseRequest true "Patch payload"
// @Success 200 {object} response.Envelope
// @Router /courses/{id} [patch]
func (h *CourseHandler) Update(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.UpdateCourseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid course payload"))
		return
	}
	course, err := h.courses.Update(c.Request.Context(), c.Param("id"), req, claims.AuthUser())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, course, nil)
}

// Delete godoc
// @Summary Delete a course
// @Tags Courses
// @Param id path string true "Course id"
// @Success 204
// @Router /courses/{id} [delete]
func (h *CourseHandler) Delete(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.courses.Delete(c.Request.Context(), c.Param("id"), claims.AuthUser()); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Roster godoc
// @Summary List active enrollments of a course
// @Tags Courses
// @Produce json
// @Param id path string true "Course id"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/roster [get]
func (h *CourseHandler) Roster(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	roster, err := h.enrollments.Roster(c.Request.Context(), c.Param("id"), claims.AuthUser())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, roster, nil)
}

// ExportRoster godoc
// @Summary Export a course roster as CSV or PDF
// @Tags Courses
// @Produce octet-stream
// @Param id path string true "Course id"
// @Param format query string false "Export format (csv|pdf)" default(csv)
// @Success 200 {file} file
// @Router /courses/{id}/roster/export [get]
func (h *CourseHandler) ExportRoster(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if !h.exportsEnabled {
		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "exports are disabled"))
		return
	}

	actor := claims.AuthUser()
	courseID := c.Param("id")
	course, err := h.courses.Get(c.Request.Context(), courseID, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	roster, err := h.enrollments.Roster(c.Request.Context(), courseID, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	table := h.courses.RosterTable(roster)

	switch c.DefaultQuery("format", "csv") {
	case "csv":
		payload, err := h.csv.Render(table)
		if err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv"))
			return
		}
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "roster-"+courseID+".csv"))
		c.Data(http.StatusOK, "text/csv", payload)
	case "pdf":
		payload, err := h.pdf.Render(table, course.Title)
		if err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf"))
			return
		}
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "roster-"+courseID+".pdf"))
		c.Data(http.StatusOK, "application/pdf", payload)
	default:
		response.Error(c, appErrors.Clone(appErrors.ErrBadRequest, "unsupported export format"))
	}
}
