package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/campushq/campus-api/internal/models"
	appErrors "github.com/campushq/campus-api/pkg/errors"
)

type subjectStore interface {
	CreateSubjects(ctx context.Context, subjects []*models.Subject) error
	ListBySchool(ctx context.Context, schoolID string) ([]models.Subject, error)
}

type subjectSchoolReader interface {
	FindByShortName(ctx context.Context, shortName string) (*models.School, error)
}

// SubjectInput names one subject to add.
type SubjectInput struct {
	Name        string `json:"name" validate:"required,min=1,max=80"`
	Description string `json:"description" validate:"max=280"`
}

// CreateSubjectsRequest carries a batch of subjects to add to a school.
type CreateSubjectsRequest struct {
	Subjects []SubjectInput `json:"subjects" validate:"required,min=1,max=20,dive"`
}

// SubjectService manages a school's subject catalogue. Subjects are unique
// per school by name.
type SubjectService struct {
	repo      subjectStore
	schools   subjectSchoolReader
	audit     auditLogger
	validator *validator.Validate
	logger    *zap.Logger
}

// NewSubjectService builds a SubjectService.
func NewSubjectService(repo subjectStore, schools subjectSchoolReader, audit auditLogger, validate *validator.Validate, logger *zap.Logger) *SubjectService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubjectService{repo: repo, schools: schools, audit: audit, validator: validate, logger: logger}
}

// Create adds a batch of subjects to the named school. A name repeated in
// the payload or already present in the school is rejected as a conflict.
// Admin or co-admin only.
func (s *SubjectService) Create(ctx context.Context, shortName string, req CreateSubjectsRequest, actor *models.JWTClaims) ([]models.Subject, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid subjects payload")
	}

	school, err := s.findSchool(ctx, shortName)
	if err != nil {
		return nil, err
	}
	if err := authorizeSchoolRole(actor, school, models.RoleAdmin, models.RoleCoAdmin); err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(req.Subjects))
	subjects := make([]*models.Subject, 0, len(req.Subjects))
	for _, input := range req.Subjects {
		name := strings.TrimSpace(input.Name)
		if name == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "subject name is required")
		}
		key := strings.ToLower(name)
		if _, ok := seen[key]; ok {
			return nil, appErrors.Clone(appErrors.ErrConflict, "payload repeats subject "+name)
		}
		seen[key] = struct{}{}
		subjects = append(subjects, &models.Subject{
			SchoolID:    school.ID,
			Name:        name,
			Description: strings.TrimSpace(input.Description),
		})
	}

	if err := s.repo.CreateSubjects(ctx, subjects); err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create subjects")
	}

	created := make([]models.Subject, 0, len(subjects))
	names := make([]string, 0, len(subjects))
	for _, subject := range subjects {
		created = append(created, *subject)
		names = append(names, subject.Name)
	}

	s.emitAudit(ctx, actor, school.ID, names)
	return created, nil
}

// List returns a school's subjects. Any member of the school may list.
func (s *SubjectService) List(ctx context.Context, shortName string, actor *models.JWTClaims) ([]models.Subject, error) {
	school, err := s.findSchool(ctx, shortName)
	if err != nil {
		return nil, err
	}
	if err := authorizeSchoolRole(actor, school, models.RoleAdmin, models.RoleCoAdmin, models.RoleTeacher, models.RoleStudent); err != nil {
		return nil, err
	}

	subjects, err := s.repo.ListBySchool(ctx, school.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list subjects")
	}
	return subjects, nil
}

func (s *SubjectService) findSchool(ctx context.Context, shortName string) (*models.School, error) {
	if shortName == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "school short name is required")
	}
	school, err := s.schools.FindByShortName(ctx, shortName)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "school not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load school")
	}
	return school, nil
}

func (s *SubjectService) emitAudit(ctx context.Context, actor *models.JWTClaims, schoolID string, names []string) {
	if s.audit == nil {
		return
	}
	var userID *string
	if actor != nil {
		userID = &actor.UserID
	}
	payload, _ := json.Marshal(map[string]interface{}{
		"school_id": schoolID,
		"names":     names,
	})
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:    userID,
		Action:    models.AuditActionSubjectCreate,
		Resource:  "subjects",
		NewValues: payload,
		IPAddress: "system",
		UserAgent: "subject-service",
	}); err != nil {
		s.logger.Warn("failed to record subject audit log", zap.Error(err))
	}
}
