package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/campushq/campus-api/internal/models"
	appErrors "github.com/campushq/campus-api/pkg/errors"
)

type gradeStore interface {
	CreateGrade(ctx context.Context, grade *models.Grade) error
	FindGrade(ctx context.Context, schoolID string, standard int) (*models.Grade, error)
	ListGrades(ctx context.Context, schoolID string) ([]models.Grade, error)
	CreateSection(ctx context.Context, section *models.Section) error
	ListSections(ctx context.Context, gradeID string) ([]models.Section, error)
}

type gradeSchoolReader interface {
	FindByShortName(ctx context.Context, shortName string) (*models.School, error)
}

// CreateGradeRequest names the standard of the grade to create.
type CreateGradeRequest struct {
	Standard int `json:"standard" validate:"required,min=1,max=12"`
}

// CreateSectionRequest names a section within a grade.
type CreateSectionRequest struct {
	Name string `json:"name" validate:"required,min=1,max=10"`
}

// GradeService manages a school's academic structure. Grades are unique per
// school by standard number and hold named sections.
type GradeService struct {
	repo      gradeStore
	schools   gradeSchoolReader
	audit     auditLogger
	validator *validator.Validate
	logger    *zap.Logger
}

// NewGradeService builds a GradeService.
func NewGradeService(repo gradeStore, schools gradeSchoolReader, audit auditLogger, validate *validator.Validate, logger *zap.Logger) *GradeService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GradeService{repo: repo, schools: schools, audit: audit, validator: validate, logger: logger}
}

// CreateGrade creates a grade under the named school. Duplicate standards
// within a school are rejected. Admin or co-admin only.
func (s *GradeService) CreateGrade(ctx context.Context, shortName string, req CreateGradeRequest, actor *models.JWTClaims) (*models.Grade, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grade payload")
	}

	school, err := s.findSchool(ctx, shortName)
	if err != nil {
		return nil, err
	}
	if err := authorizeSchoolRole(actor, school, models.RoleAdmin, models.RoleCoAdmin); err != nil {
		return nil, err
	}

	if _, err := s.repo.FindGrade(ctx, school.ID, req.Standard); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "grade already exists for this standard")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check grade")
	}

	grade := &models.Grade{SchoolID: school.ID, Standard: req.Standard}
	if err := s.repo.CreateGrade(ctx, grade); err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create grade")
	}

	s.emitAudit(ctx, actor, models.AuditActionGradeCreate, "grades", grade.ID, map[string]interface{}{
		"school_id": school.ID,
		"standard":  grade.Standard,
	})
	return grade, nil
}

// ListGrades returns a school's grades with their sections. Any member of
// the school may list.
func (s *GradeService) ListGrades(ctx context.Context, shortName string, actor *models.JWTClaims) ([]models.Grade, error) {
	school, err := s.findSchool(ctx, shortName)
	if err != nil {
		return nil, err
	}
	if err := authorizeSchoolRole(actor, school, models.RoleAdmin, models.RoleCoAdmin, models.RoleTeacher, models.RoleStudent); err != nil {
		return nil, err
	}

	grades, err := s.repo.ListGrades(ctx, school.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list grades")
	}
	for i := range grades {
		sections, err := s.repo.ListSections(ctx, grades[i].ID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sections")
		}
		grades[i].Sections = sections
	}
	return grades, nil
}

// CreateSection adds a named section to a grade. Admin or co-admin only.
func (s *GradeService) CreateSection(ctx context.Context, shortName string, standard int, req CreateSectionRequest, actor *models.JWTClaims) (*models.Section, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid section payload")
	}

	school, err := s.findSchool(ctx, shortName)
	if err != nil {
		return nil, err
	}
	if err := authorizeSchoolRole(actor, school, models.RoleAdmin, models.RoleCoAdmin); err != nil {
		return nil, err
	}

	grade, err := s.repo.FindGrade(ctx, school.ID, standard)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "grade not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grade")
	}

	section := &models.Section{GradeID: grade.ID, Name: req.Name}
	if err := s.repo.CreateSection(ctx, section); err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create section")
	}

	s.emitAudit(ctx, actor, models.AuditActionSectionCreate, "sections", section.ID, map[string]interface{}{
		"grade_id": grade.ID,
		"name":     section.Name,
	})
	return section, nil
}

func (s *GradeService) findSchool(ctx context.Context, shortName string) (*models.School, error) {
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

func (s *GradeService) emitAudit(ctx context.Context, actor *models.JWTClaims, action, resource, resourceID string, values map[string]interface{}) {
	if s.audit == nil {
		return
	}
	var userID *string
	if actor != nil {
		userID = &actor.UserID
	}
	payload, _ := json.Marshal(values)
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     userID,
		Action:     action,
		Resource:   resource,
		ResourceID: &resourceID,
		NewValues:  payload,
		IPAddress:  "system",
		UserAgent:  "grade-service",
	}); err != nil {
		s.logger.Warn("failed to record grade audit log", zap.Error(err))
	}
}
