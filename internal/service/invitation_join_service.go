package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/campushq/campus-api/internal/models"
	appErrors "github.com/campushq/campus-api/pkg/errors"
)

type invitationJoinStore interface {
	Create(ctx context.Context, rec *models.InvitationJoin) error
	FindByID(ctx context.Context, id string) (*models.InvitationJoin, error)
	ListBySchool(ctx context.Context, schoolID string, recType models.InvitationJoinType) ([]models.InvitationJoin, error)
	ListByUser(ctx context.Context, userID string, recType models.InvitationJoinType) ([]models.InvitationJoin, error)
	Complete(ctx context.Context, id string) (*models.InvitationJoin, error)
	Cancel(ctx context.Context, id string) (*models.InvitationJoin, error)
}

type workflowUserReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
}

type workflowSchoolReader interface {
	FindByShortName(ctx context.Context, shortName string) (*models.School, error)
	FindByID(ctx context.Context, id string) (*models.School, error)
}

type notifier interface {
	Record(ctx context.Context, n *models.Notification) error
}

// InviteRequest is an admin-issued invitation addressed by email.
type InviteRequest struct {
	Email string          `json:"email" validate:"required,email"`
	Role  models.UserRole `json:"role" validate:"required,oneof=TEACHER STUDENT"`
}

// JoinSchoolRequest is a user-issued request to join a school.
type JoinSchoolRequest struct {
	ShortName string          `json:"short_name" validate:"required"`
	Role      models.UserRole `json:"role" validate:"required,oneof=TEACHER STUDENT"`
}

// InvitationJoinService drives the membership workflow state machine:
// pending records transition once to accepted or cancelled, and acceptance
// grants the subject user their role and affiliation.
type InvitationJoinService struct {
	repo      invitationJoinStore
	users     workflowUserReader
	schools   workflowSchoolReader
	profiles  profileInvalidator
	notify    notifier
	audit     auditLogger
	validator *validator.Validate
	logger    *zap.Logger
}

// NewInvitationJoinService builds an InvitationJoinService.
func NewInvitationJoinService(repo invitationJoinStore, users workflowUserReader, schools workflowSchoolReader, profiles profileInvalidator, notify notifier, audit auditLogger, validate *validator.Validate, logger *zap.Logger) *InvitationJoinService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InvitationJoinService{
		repo:      repo,
		users:     users,
		schools:   schools,
		profiles:  profiles,
		notify:    notify,
		audit:     audit,
		validator: validate,
		logger:    logger,
	}
}

// Invite creates a pending invitation from the caller's school to the user
// addressed by email. Only the school's admin or co-admins may invite.
func (s *InvitationJoinService) Invite(ctx context.Context, req InviteRequest, actor *models.JWTClaims) (*models.InvitationJoin, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid invitation payload")
	}
	if actor == nil || actor.SchoolID == nil {
		return nil, appErrors.ErrForbidden
	}

	school, err := s.schools.FindByID(ctx, *actor.SchoolID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "school not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load school")
	}
	if err := authorizeSchoolRole(actor, school, models.RoleAdmin, models.RoleCoAdmin); err != nil {
		return nil, err
	}

	target, err := s.users.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no user registered with this email")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	if target.SchoolID != nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "user already belongs to a school")
	}

	rec := &models.InvitationJoin{
		Type:     models.TypeInvitation,
		SchoolID: school.ID,
		UserID:   target.ID,
		Role:     req.Role,
	}
	if err := s.createRecord(ctx, rec); err != nil {
		return nil, err
	}

	s.emitAudit(ctx, actor, models.AuditActionWorkflowCreate, rec)
	s.record(ctx, target.ID, models.NotificationInvitationCreated, fmt.Sprintf("%s invited you to join as %s", school.Name, rec.Role), &school.ID)
	return rec, nil
}

// RequestJoin creates a pending join request from the caller to a school.
// The caller must not already belong to a school.
func (s *InvitationJoinService) RequestJoin(ctx context.Context, req JoinSchoolRequest, actor *models.JWTClaims) (*models.InvitationJoin, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid join payload")
	}
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}

	user, err := s.users.FindByID(ctx, actor.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	if user.SchoolID != nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "user already belongs to a school")
	}

	school, err := s.schools.FindByShortName(ctx, req.ShortName)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "school not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load school")
	}

	rec := &models.InvitationJoin{
		Type:     models.TypeJoin,
		SchoolID: school.ID,
		UserID:   user.ID,
		Role:     req.Role,
	}
	if err := s.createRecord(ctx, rec); err != nil {
		return nil, err
	}

	s.emitAudit(ctx, actor, models.AuditActionWorkflowCreate, rec)
	s.record(ctx, school.AdminID, models.NotificationJoinRequested, fmt.Sprintf("%s requested to join %s as %s", user.FullName, school.Name, rec.Role), &school.ID)
	return rec, nil
}

// ListSchool returns a school's workflow records of one type in insertion
// order. Restricted to the school's admin and co-admins.
func (s *InvitationJoinService) ListSchool(ctx context.Context, shortName string, recType models.InvitationJoinType, claims *models.JWTClaims) ([]models.InvitationJoin, error) {
	school, err := s.schools.FindByShortName(ctx, shortName)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "school not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load school")
	}
	if err := authorizeSchoolRole(claims, school, models.RoleAdmin, models.RoleCoAdmin); err != nil {
		return nil, err
	}

	recs, err := s.repo.ListBySchool(ctx, school.ID, recType)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list workflows")
	}
	return recs, nil
}

// ListReceived returns the caller's pending and resolved invitations.
func (s *InvitationJoinService) ListReceived(ctx context.Context, claims *models.JWTClaims) ([]models.InvitationJoin, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	recs, err := s.repo.ListByUser(ctx, claims.UserID, models.TypeInvitation)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list invitations")
	}
	return recs, nil
}

// ListSent returns the join requests the caller has issued.
func (s *InvitationJoinService) ListSent(ctx context.Context, claims *models.JWTClaims) ([]models.InvitationJoin, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	recs, err := s.repo.ListByUser(ctx, claims.UserID, models.TypeJoin)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list join requests")
	}
	return recs, nil
}

// Complete accepts a pending record and grants the subject user their role
// and affiliation. An invitation is completed by its subject user; a join
// request by the school's admin or a co-admin.
func (s *InvitationJoinService) Complete(ctx context.Context, id string, actor *models.JWTClaims) (*models.InvitationJoin, error) {
	rec, school, err := s.loadRecord(ctx, id)
	if err != nil {
		return nil, err
	}

	switch rec.Type {
	case models.TypeInvitation:
		if err := authorizeSelf(actor, rec.UserID); err != nil {
			return nil, err
		}
	case models.TypeJoin:
		if err := authorizeSchoolRole(actor, school, models.RoleAdmin, models.RoleCoAdmin); err != nil {
			return nil, err
		}
	}

	subject, err := s.users.FindByID(ctx, rec.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	if subject.SchoolID != nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "user already belongs to a school")
	}

	updated, err := s.repo.Complete(ctx, id)
	if err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to complete workflow")
	}

	s.profiles.InvalidateProfile(ctx, school.ShortName)
	s.emitAudit(ctx, actor, models.AuditActionWorkflowAccept, updated)
	s.record(ctx, updated.UserID, models.NotificationWorkflowAccepted, fmt.Sprintf("You joined %s as %s", school.Name, updated.Role), &school.ID)
	if updated.Type == models.TypeJoin {
		s.record(ctx, school.AdminID, models.NotificationWorkflowAccepted, fmt.Sprintf("%s joined %s", subject.FullName, school.Name), &school.ID)
	}
	return updated, nil
}

// Cancel voids a pending record with no side effects. Either side of the
// workflow may cancel: the subject user, or the school's admin or co-admins.
func (s *InvitationJoinService) Cancel(ctx context.Context, id string, actor *models.JWTClaims) (*models.InvitationJoin, error) {
	rec, school, err := s.loadRecord(ctx, id)
	if err != nil {
		return nil, err
	}

	if authorizeSelf(actor, rec.UserID) != nil {
		if err := authorizeSchoolRole(actor, school, models.RoleAdmin, models.RoleCoAdmin); err != nil {
			return nil, err
		}
	}

	updated, err := s.repo.Cancel(ctx, id)
	if err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel workflow")
	}

	s.emitAudit(ctx, actor, models.AuditActionWorkflowCancel, updated)
	s.record(ctx, updated.UserID, models.NotificationWorkflowCancelled, fmt.Sprintf("Your %s workflow with %s was cancelled", typeLabel(updated.Type), school.Name), &school.ID)
	return updated, nil
}

func (s *InvitationJoinService) createRecord(ctx context.Context, rec *models.InvitationJoin) error {
	if err := s.repo.Create(ctx, rec); err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return appErr
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create workflow record")
	}
	return nil
}

func (s *InvitationJoinService) loadRecord(ctx context.Context, id string) (*models.InvitationJoin, *models.School, error) {
	if id == "" {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "workflow id is required")
	}
	rec, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "workflow record not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load workflow record")
	}
	school, err := s.schools.FindByID(ctx, rec.SchoolID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "school not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load school")
	}
	return rec, school, nil
}

func (s *InvitationJoinService) record(ctx context.Context, userID, kind, message string, schoolID *string) {
	if s.notify == nil {
		return
	}
	if err := s.notify.Record(ctx, &models.Notification{
		UserID:   userID,
		Type:     kind,
		Message:  message,
		SchoolID: schoolID,
	}); err != nil {
		s.logger.Warn("failed to record notification", zap.String("type", kind), zap.Error(err))
	}
}

func (s *InvitationJoinService) emitAudit(ctx context.Context, actor *models.JWTClaims, action string, rec *models.InvitationJoin) {
	if s.audit == nil {
		return
	}
	var userID *string
	if actor != nil {
		userID = &actor.UserID
	}
	payload, _ := json.Marshal(map[string]interface{}{
		"type":      rec.Type,
		"status":    rec.Status,
		"school_id": rec.SchoolID,
		"user_id":   rec.UserID,
		"role":      rec.Role,
	})
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     userID,
		Action:     action,
		Resource:   "invitation_joins",
		ResourceID: &rec.ID,
		NewValues:  payload,
		IPAddress:  "system",
		UserAgent:  "invitation-join-service",
	}); err != nil {
		s.logger.Warn("failed to record workflow audit log", zap.Error(err))
	}
}

func typeLabel(t models.InvitationJoinType) string {
	if t == models.TypeJoin {
		return "join request"
	}
	return "invitation"
}
