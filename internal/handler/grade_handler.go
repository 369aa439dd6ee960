package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/campushq/campus-api/internal/service"
	appErrors "github.com/campushq/campus-api/pkg/errors"
	"github.com/campushq/campus-api/pkg/response"
)

// GradeHandler wires grade and section endpoints.
type GradeHandler struct {
	service *service.GradeService
}

// NewGradeHandler creates a new handler.
func NewGradeHandler(svc *service.GradeService) *GradeHandler {
	return &GradeHandler{service: svc}
}

// Create godoc
// @Summary Create a grade
// @Description Create a grade under the school, unique by standard number
// @Tags Grades
// @Accept json
// @Produce json
// @Param short_name path string true "School short name"
// @Param payload body service.CreateGradeRequest true "Grade payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /schools/{short_name}/grades [post]
func (h *GradeHandler) Create(c *gin.Context) {
	var req service.CreateGradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid grade payload"))
		return
	}

	grade, err := h.service.CreateGrade(c.Request.Context(), c.Param("short_name"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, grade)
}

// List godoc
// @Summary List grades
// @Description List a school's grades with their sections
// @Tags Grades
// @Produce json
// @Param short_name path string true "School short name"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Security BearerAuth
// @Router /schools/{short_name}/grades [get]
func (h *GradeHandler) List(c *gin.Context) {
	grades, err := h.service.ListGrades(c.Request.Context(), c.Param("short_name"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, grades, nil)
}

// CreateSection godoc
// @Summary Create a section
// @Description Add a named section to a grade
// @Tags Grades
// @Accept json
// @Produce json
// @Param short_name path string true "School short name"
// @Param standard path int true "Grade standard"
// @Param payload body service.CreateSectionRequest true "Section payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /schools/{short_name}/grades/{standard}/sections [post]
func (h *GradeHandler) CreateSection(c *gin.Context) {
	standard, err := strconv.Atoi(c.Param("standard"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "standard must be a number"))
		return
	}

	var req service.CreateSectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid section payload"))
		return
	}

	section, err := h.service.CreateSection(c.Request.Context(), c.Param("short_name"), standard, req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, section)
}
