package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/campushq/campus-api/internal/models"
	"github.com/campushq/campus-api/internal/service"
	appErrors "github.com/campushq/campus-api/pkg/errors"
	"github.com/campushq/campus-api/pkg/response"
)

// SchoolHandler wires HTTP endpoints to the school service.
type SchoolHandler struct {
	service *service.SchoolService
}

// NewSchoolHandler creates a new handler.
func NewSchoolHandler(svc *service.SchoolService) *SchoolHandler {
	return &SchoolHandler{service: svc}
}

// Create godoc
// @Summary Bootstrap a school
// @Description Create a school and bind the caller as its admin
// @Tags Schools
// @Accept json
// @Produce json
// @Param payload body service.CreateSchoolRequest true "School payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /schools [post]
func (h *SchoolHandler) Create(c *gin.Context) {
	var req service.CreateSchoolRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid school payload"))
		return
	}

	school, err := h.service.Create(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, school)
}

// Get godoc
// @Summary Fetch a school profile
// @Description Fetch a school with its admin and co-admins by short name
// @Tags Schools
// @Produce json
// @Param short_name path string true "School short name"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /schools/{short_name} [get]
func (h *SchoolHandler) Get(c *gin.Context) {
	school, err := h.service.Get(c.Request.Context(), c.Param("short_name"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, school, nil)
}

// Members godoc
// @Summary List school members
// @Description Paginated member listing, admin and co-admin only
// @Tags Schools
// @Produce json
// @Param short_name path string true "School short name"
// @Param role query string false "Filter by role"
// @Param search query string false "Search by name or email"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Security BearerAuth
// @Router /schools/{short_name}/members [get]
func (h *SchoolHandler) Members(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	filter := models.UserFilter{
		Search:   c.Query("search"),
		Page:     page,
		PageSize: pageSize,
		SortBy:   c.DefaultQuery("sort_by", "full_name"),
	}
	if role := c.Query("role"); role != "" {
		r := models.UserRole(role)
		filter.Role = &r
	}

	users, pagination, err := h.service.Members(c.Request.Context(), c.Param("short_name"), filter, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, users, pagination)
}

// ExportMembers godoc
// @Summary Export school members
// @Description Download the member roster as CSV or PDF
// @Tags Schools
// @Produce text/csv
// @Param short_name path string true "School short name"
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {file} file
// @Failure 403 {object} response.Envelope
// @Security BearerAuth
// @Router /schools/{short_name}/members/export [get]
func (h *SchoolHandler) ExportMembers(c *gin.Context) {
	format := c.DefaultQuery("format", "csv")

	data, contentType, err := h.service.ExportMembers(c.Request.Context(), c.Param("short_name"), format, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	filename := "members." + format
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, contentType, data)
}
