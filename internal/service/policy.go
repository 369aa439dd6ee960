package service

import (
	"github.com/campushq/campus-api/internal/models"
	appErrors "github.com/campushq/campus-api/pkg/errors"
)

// authorizeSchoolRole allows the caller when they are affiliated with the
// given school and hold one of the required roles. Route-level RBAC already
// gates by role; this check pins the caller to the specific school.
func authorizeSchoolRole(claims *models.JWTClaims, school *models.School, roles ...models.UserRole) error {
	if claims == nil {
		return appErrors.ErrUnauthorized
	}
	if school == nil || claims.SchoolID == nil || *claims.SchoolID != school.ID {
		return appErrors.ErrForbidden
	}
	for _, role := range roles {
		if claims.Role == role {
			return nil
		}
	}
	return appErrors.ErrForbidden
}

// authorizeSelf allows only the subject user themselves.
func authorizeSelf(claims *models.JWTClaims, userID string) error {
	if claims == nil {
		return appErrors.ErrUnauthorized
	}
	if claims.UserID != userID {
		return appErrors.ErrForbidden
	}
	return nil
}
