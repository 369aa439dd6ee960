package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campushq/campus-api/internal/service"
	appErrors "github.com/campushq/campus-api/pkg/errors"
	"github.com/campushq/campus-api/pkg/response"
)

// RoleHandler wires co-admin slot management endpoints.
type RoleHandler struct {
	service *service.RoleService
}

// NewRoleHandler creates a new handler.
func NewRoleHandler(svc *service.RoleService) *RoleHandler {
	return &RoleHandler{service: svc}
}

// AssignCoAdmin godoc
// @Summary Assign a co-admin
// @Description Place a user into one of the school's two co-admin slots
// @Tags Roles
// @Accept json
// @Produce json
// @Param short_name path string true "School short name"
// @Param payload body service.AssignCoAdminRequest true "Assignment payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /schools/{short_name}/co-admins [put]
func (h *RoleHandler) AssignCoAdmin(c *gin.Context) {
	var req service.AssignCoAdminRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid assignment payload"))
		return
	}

	user, err := h.service.AssignCoAdmin(c.Request.Context(), c.Param("short_name"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, user, nil)
}

// RemoveCoAdmin godoc
// @Summary Remove a co-admin
// @Description Clear the user's co-admin slot and demote them to the fallback role
// @Tags Roles
// @Produce json
// @Param short_name path string true "School short name"
// @Param user_id path string true "User ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /schools/{short_name}/co-admins/{user_id} [delete]
func (h *RoleHandler) RemoveCoAdmin(c *gin.Context) {
	user, err := h.service.RemoveCoAdmin(c.Request.Context(), c.Param("short_name"), c.Param("user_id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, user, nil)
}
