package service

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"

	"github.com/campushq/campus-api/internal/models"
	appErrors "github.com/campushq/campus-api/pkg/errors"
)

type userReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type userSchoolReader interface {
	FindByID(ctx context.Context, id string) (*models.School, error)
}

// UserService serves the authenticated user's own profile.
type UserService struct {
	users   userReader
	schools userSchoolReader
	logger  *zap.Logger
}

// NewUserService builds a UserService.
func NewUserService(users userReader, schools userSchoolReader, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{users: users, schools: schools, logger: logger}
}

// Profile couples the user with their school, when they belong to one.
type Profile struct {
	User   models.UserInfo `json:"user"`
	School *models.School  `json:"school,omitempty"`
}

// Me returns the caller's profile.
func (s *UserService) Me(ctx context.Context, claims *models.JWTClaims) (*Profile, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}

	user, err := s.users.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	profile := &Profile{User: models.UserInfo{
		ID:       user.ID,
		Email:    user.Email,
		FullName: user.FullName,
		Role:     user.Role,
		SchoolID: user.SchoolID,
	}}

	if user.SchoolID != nil {
		school, err := s.schools.FindByID(ctx, *user.SchoolID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load school")
		}
		profile.School = school
	}

	return profile, nil
}
