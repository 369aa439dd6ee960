package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/campushq/campus-api/internal/models"
	appErrors "github.com/campushq/campus-api/pkg/errors"
	"github.com/campushq/campus-api/pkg/export"
)

const schoolCacheKeyPrefix = "school:"

type schoolStore interface {
	FindByShortName(ctx context.Context, shortName string) (*models.School, error)
	FindByID(ctx context.Context, id string) (*models.School, error)
	Create(ctx context.Context, school *models.School) error
}

type schoolUserReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	ListByIDs(ctx context.Context, ids []string) ([]models.User, error)
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
}

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// CreateSchoolRequest is the payload for bootstrapping a school.
type CreateSchoolRequest struct {
	Name        string `json:"name" validate:"required"`
	ShortName   string `json:"short_name" validate:"required,lowercase,alphanum,min=3,max=30"`
	Email       string `json:"email" validate:"required,email"`
	Phone       string `json:"phone"`
	Description string `json:"description"`
}

// SchoolService bootstraps schools and serves school profile reads.
type SchoolService struct {
	repo      schoolStore
	users     schoolUserReader
	cache     *CacheService
	audit     auditLogger
	validator *validator.Validate
	logger    *zap.Logger
	exportMax int
}

// NewSchoolService builds a SchoolService.
func NewSchoolService(repo schoolStore, users schoolUserReader, cache *CacheService, audit auditLogger, validate *validator.Validate, logger *zap.Logger, exportMax int) *SchoolService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if exportMax <= 0 {
		exportMax = 5000
	}
	return &SchoolService{
		repo:      repo,
		users:     users,
		cache:     cache,
		audit:     audit,
		validator: validate,
		logger:    logger,
		exportMax: exportMax,
	}
}

// Create bootstraps a new school and binds the caller as its admin. The
// caller must not already belong to a school, and the short name must be
// unique across all schools.
func (s *SchoolService) Create(ctx context.Context, req CreateSchoolRequest, actor *models.JWTClaims) (*models.School, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid school payload")
	}

	admin, err := s.users.FindByID(ctx, actor.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	if admin.SchoolID != nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "user already belongs to a school")
	}

	shortName := strings.ToLower(req.ShortName)
	if _, err := s.repo.FindByShortName(ctx, shortName); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "school short name already taken")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check short name uniqueness")
	}

	school := &models.School{
		Name:        req.Name,
		ShortName:   shortName,
		Email:       strings.ToLower(req.Email),
		Phone:       req.Phone,
		Description: req.Description,
		AdminID:     admin.ID,
	}
	if err := s.repo.Create(ctx, school); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create school")
	}

	admin.Role = models.RoleAdmin
	admin.SchoolID = &school.ID
	school.Admin = admin

	s.emitAudit(ctx, actor, models.AuditActionSchoolCreate, school.ID, nil, map[string]interface{}{
		"short_name": school.ShortName,
		"admin_id":   admin.ID,
	})
	return school, nil
}

// Get returns a school by short name with admin and co-admin relations
// eagerly resolved, read through the cache when enabled.
func (s *SchoolService) Get(ctx context.Context, shortName string) (*models.School, error) {
	if shortName == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "school short name is required")
	}

	cacheKey := schoolCacheKeyPrefix + shortName
	var cached models.School
	if hit, _ := s.cache.Get(ctx, cacheKey, &cached); hit {
		return &cached, nil
	}

	school, err := s.repo.FindByShortName(ctx, shortName)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "school not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load school")
	}

	if err := s.resolveRelations(ctx, school); err != nil {
		return nil, err
	}

	if err := s.cache.Set(ctx, cacheKey, school, 0); err != nil {
		s.logger.Warn("failed to cache school profile", zap.String("short_name", shortName), zap.Error(err))
	}
	return school, nil
}

// Members lists the users affiliated with the school. Restricted to the
// school's admin and co-admins.
func (s *SchoolService) Members(ctx context.Context, shortName string, filter models.UserFilter, claims *models.JWTClaims) ([]models.User, *models.Pagination, error) {
	school, err := s.findSchool(ctx, shortName)
	if err != nil {
		return nil, nil, err
	}
	if err := authorizeSchoolRole(claims, school, models.RoleAdmin, models.RoleCoAdmin); err != nil {
		return nil, nil, err
	}

	filter.SchoolID = school.ID
	users, total, err := s.users.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list members")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}

	return users, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// ExportMembers renders the member roster as CSV or PDF bytes.
func (s *SchoolService) ExportMembers(ctx context.Context, shortName, format string, claims *models.JWTClaims) ([]byte, string, error) {
	school, err := s.findSchool(ctx, shortName)
	if err != nil {
		return nil, "", err
	}
	if err := authorizeSchoolRole(claims, school, models.RoleAdmin, models.RoleCoAdmin); err != nil {
		return nil, "", err
	}

	var users []models.User
	for page := 1; len(users) < s.exportMax; page++ {
		batch, total, err := s.users.List(ctx, models.UserFilter{SchoolID: school.ID, Page: page, PageSize: 100, SortBy: "created_at", SortOrder: "ASC"})
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load members")
		}
		users = append(users, batch...)
		if len(batch) == 0 || len(users) >= total {
			break
		}
	}
	if len(users) > s.exportMax {
		users = users[:s.exportMax]
	}

	dataset := export.Dataset{
		Headers: []string{"Email", "Full Name", "Role", "Joined"},
	}
	for _, u := range users {
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Email":     u.Email,
			"Full Name": u.FullName,
			"Role":      string(u.Role),
			"Joined":    u.CreatedAt.Format(time.RFC3339),
		})
	}

	s.emitAudit(ctx, claims, models.AuditActionMembersExported, school.ID, nil, map[string]interface{}{"format": format, "rows": len(dataset.Rows)})

	switch format {
	case "pdf":
		payload, err := export.NewPDFExporter().Render(dataset, fmt.Sprintf("%s members", school.Name))
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
		}
		return payload, "application/pdf", nil
	case "", "csv":
		payload, err := export.NewCSVExporter().Render(dataset)
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
		}
		return payload, "text/csv", nil
	default:
		return nil, "", appErrors.Clone(appErrors.ErrValidation, "unsupported export format")
	}
}

// InvalidateProfile drops the cached profile after membership mutations.
func (s *SchoolService) InvalidateProfile(ctx context.Context, shortName string) {
	if err := s.cache.Invalidate(ctx, schoolCacheKeyPrefix+shortName); err != nil {
		s.logger.Warn("failed to invalidate school cache", zap.String("short_name", shortName), zap.Error(err))
	}
}

func (s *SchoolService) findSchool(ctx context.Context, shortName string) (*models.School, error) {
	school, err := s.repo.FindByShortName(ctx, shortName)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "school not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load school")
	}
	return school, nil
}

func (s *SchoolService) resolveRelations(ctx context.Context, school *models.School) error {
	ids := []string{school.AdminID}
	if school.CoAdmin1ID != nil {
		ids = append(ids, *school.CoAdmin1ID)
	}
	if school.CoAdmin2ID != nil {
		ids = append(ids, *school.CoAdmin2ID)
	}

	users, err := s.users.ListByIDs(ctx, ids)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load school relations")
	}
	for i := range users {
		u := users[i]
		switch {
		case u.ID == school.AdminID:
			school.Admin = &u
		case school.CoAdmin1ID != nil && u.ID == *school.CoAdmin1ID:
			school.CoAdmin1 = &u
		case school.CoAdmin2ID != nil && u.ID == *school.CoAdmin2ID:
			school.CoAdmin2 = &u
		}
	}
	return nil
}

func (s *SchoolService) emitAudit(ctx context.Context, actor *models.JWTClaims, action, resourceID string, oldValues, newValues map[string]interface{}) {
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
		UserAgent:  "school-service",
	}); err != nil {
		s.logger.Warn("failed to record school audit log", zap.Error(err))
	}
}
