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

type roleSchoolStore interface {
	FindByShortName(ctx context.Context, shortName string) (*models.School, error)
	AssignCoAdmin(ctx context.Context, schoolID, userID string, slot models.CoAdminSlot) (models.CoAdminSlot, error)
	RemoveCoAdmin(ctx context.Context, schoolID, userID string, fallback models.UserRole) (bool, error)
}

type roleUserReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type profileInvalidator interface {
	InvalidateProfile(ctx context.Context, shortName string)
}

// AssignCoAdminRequest selects the target user and optionally a slot.
// Slot 0 auto-picks the first empty slot.
type AssignCoAdminRequest struct {
	UserID string `json:"user_id" validate:"required"`
	Slot   int    `json:"slot" validate:"omitempty,oneof=1 2"`
}

// RoleService mutates user roles through school co-admin slots. Slot and role
// always change together; a failed precondition leaves both entities as they
// were.
type RoleService struct {
	schools      roleSchoolStore
	users        roleUserReader
	profiles     profileInvalidator
	notify       notifier
	audit        auditLogger
	fallbackRole models.UserRole
	validator    *validator.Validate
	logger       *zap.Logger
}

// NewRoleService builds a RoleService. fallbackRole is the role a removed
// co-admin returns to.
func NewRoleService(schools roleSchoolStore, users roleUserReader, profiles profileInvalidator, notify notifier, audit auditLogger, fallbackRole models.UserRole, validate *validator.Validate, logger *zap.Logger) *RoleService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if !fallbackRole.Valid() {
		fallbackRole = models.RoleTeacher
	}
	return &RoleService{
		schools:      schools,
		users:        users,
		profiles:     profiles,
		notify:       notify,
		audit:        audit,
		fallbackRole: fallbackRole,
		validator:    validate,
		logger:       logger,
	}
}

// AssignCoAdmin places the target user into a co-admin slot of the caller's
// school. Only the school admin may assign; a full school or an occupied
// explicit slot is rejected with a capacity error, never overwritten.
func (s *RoleService) AssignCoAdmin(ctx context.Context, shortName string, req AssignCoAdminRequest, actor *models.JWTClaims) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid co-admin payload")
	}

	school, err := s.findSchool(ctx, shortName)
	if err != nil {
		return nil, err
	}
	if err := authorizeSchoolRole(actor, school, models.RoleAdmin); err != nil {
		return nil, err
	}

	target, err := s.users.FindByID(ctx, req.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	if target.ID == school.AdminID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "the school admin cannot hold a co-admin slot")
	}
	if target.SchoolID != nil && *target.SchoolID != school.ID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "user belongs to another school")
	}
	if school.HoldsCoAdmin(target.ID) != models.SlotAuto {
		return nil, appErrors.Clone(appErrors.ErrConflict, "user already holds a co-admin slot")
	}

	assigned, err := s.schools.AssignCoAdmin(ctx, school.ID, target.ID, models.CoAdminSlot(req.Slot))
	if err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to assign co-admin")
	}

	target.Role = models.RoleCoAdmin
	s.profiles.InvalidateProfile(ctx, school.ShortName)
	s.emitAudit(ctx, actor, models.AuditActionCoAdminAssign, school.ID,
		map[string]interface{}{"role": models.RoleNone},
		map[string]interface{}{"user_id": target.ID, "role": models.RoleCoAdmin, "slot": int(assigned)})
	s.record(ctx, target.ID, models.NotificationCoAdminAssigned, fmt.Sprintf("You are now a co-admin of %s", school.Name), &school.ID)

	return target, nil
}

// RemoveCoAdmin vacates the slot held by the target user and demotes them to
// the configured fallback role. A user holding no slot is a no-op.
func (s *RoleService) RemoveCoAdmin(ctx context.Context, shortName, userID string, actor *models.JWTClaims) (*models.User, error) {
	school, err := s.findSchool(ctx, shortName)
	if err != nil {
		return nil, err
	}
	if err := authorizeSchoolRole(actor, school, models.RoleAdmin); err != nil {
		return nil, err
	}

	target, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	removed, err := s.schools.RemoveCoAdmin(ctx, school.ID, target.ID, s.fallbackRole)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to remove co-admin")
	}
	if !removed {
		return target, nil
	}

	target.Role = s.fallbackRole
	s.profiles.InvalidateProfile(ctx, school.ShortName)
	s.emitAudit(ctx, actor, models.AuditActionCoAdminRemove, school.ID,
		map[string]interface{}{"user_id": target.ID, "role": models.RoleCoAdmin},
		map[string]interface{}{"user_id": target.ID, "role": s.fallbackRole})
	s.record(ctx, target.ID, models.NotificationCoAdminRemoved, fmt.Sprintf("You are no longer a co-admin of %s", school.Name), &school.ID)

	return target, nil
}

func (s *RoleService) findSchool(ctx context.Context, shortName string) (*models.School, error) {
	school, err := s.schools.FindByShortName(ctx, shortName)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "school not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load school")
	}
	return school, nil
}

func (s *RoleService) record(ctx context.Context, userID, kind, message string, schoolID *string) {
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

func (s *RoleService) emitAudit(ctx context.Context, actor *models.JWTClaims, action, resourceID string, oldValues, newValues map[string]interface{}) {
	if s.audit == nil {
		return
	}
	var userID *string
	if actor != nil {
		userID = &actor.UserID
	}
	var oldPayload, newPayload []byte
	if oldValues != nil {
		oldPayload, _ = json.Marshal(oldValues)
	}
	if newValues != nil {
		newPayload, _ = json.Marshal(newValues)
	}
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     userID,
		Action:     action,
		Resource:   "schools",
		ResourceID: &resourceID,
		OldValues:  oldPayload,
		NewValues:  newPayload,
		IPAddress:  "system",
		UserAgent:  "role-service",
	}); err != nil {
		s.logger.Warn("failed to record role audit log", zap.Error(err))
	}
}
