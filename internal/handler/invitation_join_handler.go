package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campushq/campus-api/internal/models"
	"github.com/campushq/campus-api/internal/service"
	appErrors "github.com/campushq/campus-api/pkg/errors"
	"github.com/campushq/campus-api/pkg/response"
)

// InvitationJoinHandler wires the membership workflow endpoints.
type InvitationJoinHandler struct {
	service *service.InvitationJoinService
}

// NewInvitationJoinHandler creates a new handler.
func NewInvitationJoinHandler(svc *service.InvitationJoinService) *InvitationJoinHandler {
	return &InvitationJoinHandler{service: svc}
}

// Invite godoc
// @Summary Invite a user
// @Description Create a pending invitation from the caller's school to a user by email
// @Tags Workflows
// @Accept json
// @Produce json
// @Param payload body service.InviteRequest true "Invitation payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /invitations [post]
func (h *InvitationJoinHandler) Invite(c *gin.Context) {
	var req service.InviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid invitation payload"))
		return
	}

	rec, err := h.service.Invite(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, rec)
}

// RequestJoin godoc
// @Summary Request to join a school
// @Description Create a pending join request from the caller to a school
// @Tags Workflows
// @Accept json
// @Produce json
// @Param payload body service.JoinSchoolRequest true "Join payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /join-requests [post]
func (h *InvitationJoinHandler) RequestJoin(c *gin.Context) {
	var req service.JoinSchoolRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid join payload"))
		return
	}

	rec, err := h.service.RequestJoin(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, rec)
}

// ListInvitations godoc
// @Summary List a school's invitations
// @Tags Workflows
// @Produce json
// @Param short_name path string true "School short name"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Security BearerAuth
// @Router /schools/{short_name}/invitations [get]
func (h *InvitationJoinHandler) ListInvitations(c *gin.Context) {
	recs, err := h.service.ListSchool(c.Request.Context(), c.Param("short_name"), models.TypeInvitation, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, recs, nil)
}

// ListJoinRequests godoc
// @Summary List a school's join requests
// @Tags Workflows
// @Produce json
// @Param short_name path string true "School short name"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Security BearerAuth
// @Router /schools/{short_name}/join-requests [get]
func (h *InvitationJoinHandler) ListJoinRequests(c *gin.Context) {
	recs, err := h.service.ListSchool(c.Request.Context(), c.Param("short_name"), models.TypeJoin, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, recs, nil)
}

// ListReceived godoc
// @Summary List invitations received by the caller
// @Tags Workflows
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /invitation-joins/received [get]
func (h *InvitationJoinHandler) ListReceived(c *gin.Context) {
	recs, err := h.service.ListReceived(c.Request.Context(), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, recs, nil)
}

// ListSent godoc
// @Summary List join requests sent by the caller
// @Tags Workflows
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /invitation-joins/sent [get]
func (h *InvitationJoinHandler) ListSent(c *gin.Context) {
	recs, err := h.service.ListSent(c.Request.Context(), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, recs, nil)
}

// Complete godoc
// @Summary Complete a workflow record
// @Description Accept a pending invitation or join request, granting role and affiliation
// @Tags Workflows
// @Produce json
// @Param id path string true "Workflow record ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /invitation-joins/{id}/complete [post]
func (h *InvitationJoinHandler) Complete(c *gin.Context) {
	rec, err := h.service.Complete(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, rec, nil)
}

// Cancel godoc
// @Summary Cancel a workflow record
// @Description Void a pending invitation or join request with no side effects
// @Tags Workflows
// @Produce json
// @Param id path string true "Workflow record ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /invitation-joins/{id}/cancel [post]
func (h *InvitationJoinHandler) Cancel(c *gin.Context) {
	rec, err := h.service.Cancel(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, rec, nil)
}
