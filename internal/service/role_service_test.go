package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/campushq/campus-api/internal/models"
	appErrors "github.com/campushq/campus-api/pkg/errors"
)

type mockRoleSchools struct {
	school       *models.School
	assignedSlot models.CoAdminSlot
	assignErr    error
	assignCalls  int
	removed      bool
	removeErr    error
	removeCalls  int
}

func (m *mockRoleSchools) FindByShortName(ctx context.Context, shortName string) (*models.School, error) {
	if m.school == nil || m.school.ShortName != shortName {
		return nil, sql.ErrNoRows
	}
	return m.school, nil
}

func (m *mockRoleSchools) AssignCoAdmin(ctx context.Context, schoolID, userID string, slot models.CoAdminSlot) (models.CoAdminSlot, error) {
	m.assignCalls++
	if m.assignErr != nil {
		return 0, m.assignErr
	}
	return m.assignedSlot, nil
}

func (m *mockRoleSchools) RemoveCoAdmin(ctx context.Context, schoolID, userID string, fallback models.UserRole) (bool, error) {
	m.removeCalls++
	if m.removeErr != nil {
		return false, m.removeErr
	}
	return m.removed, nil
}

type mockRoleUsers struct {
	byID map[string]*models.User
}

func (m *mockRoleUsers) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := m.byID[id]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

type mockProfiles struct {
	invalidated []string
}

func (m *mockProfiles) InvalidateProfile(ctx context.Context, shortName string) {
	m.invalidated = append(m.invalidated, shortName)
}

type mockNotifier struct {
	recorded []*models.Notification
}

func (m *mockNotifier) Record(ctx context.Context, n *models.Notification) error {
	m.recorded = append(m.recorded, n)
	return nil
}

func greenwoodSchool() *models.School {
	return &models.School{ID: "school-1", Name: "Greenwood High", ShortName: "greenwood", AdminID: "u1"}
}

func TestAssignCoAdminPromotesTarget(t *testing.T) {
	schools := &mockRoleSchools{school: greenwoodSchool(), assignedSlot: models.Slot1}
	users := &mockRoleUsers{byID: map[string]*models.User{
		"u2": {ID: "u2", Role: models.RoleTeacher, SchoolID: ptr("school-1")},
	}}
	profiles := &mockProfiles{}
	notify := &mockNotifier{}
	audit := &mockAudit{}
	svc := NewRoleService(schools, users, profiles, notify, audit, models.RoleTeacher, validator.New(), zap.NewNop())

	target, err := svc.AssignCoAdmin(context.Background(), "greenwood", AssignCoAdminRequest{UserID: "u2"}, adminClaims("u1", "school-1"))
	require.NoError(t, err)

	assert.Equal(t, models.RoleCoAdmin, target.Role)
	assert.Equal(t, []string{"greenwood"}, profiles.invalidated)
	require.Len(t, notify.recorded, 1)
	assert.Equal(t, models.NotificationCoAdminAssigned, notify.recorded[0].Type)
	assert.Len(t, audit.logs, 1)
}

func TestAssignCoAdminCapacityExceeded(t *testing.T) {
	schools := &mockRoleSchools{
		school:    greenwoodSchool(),
		assignErr: appErrors.Clone(appErrors.ErrCapacity, "both co-admin slots are occupied"),
	}
	users := &mockRoleUsers{byID: map[string]*models.User{
		"u4": {ID: "u4", Role: models.RoleTeacher, SchoolID: ptr("school-1")},
	}}
	svc := NewRoleService(schools, users, &mockProfiles{}, &mockNotifier{}, nil, models.RoleTeacher, validator.New(), zap.NewNop())

	_, err := svc.AssignCoAdmin(context.Background(), "greenwood", AssignCoAdminRequest{UserID: "u4"}, adminClaims("u1", "school-1"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrCapacity.Code, appErrors.FromError(err).Code)
}

func TestAssignCoAdminOnlyAdmin(t *testing.T) {
	schools := &mockRoleSchools{school: greenwoodSchool()}
	users := &mockRoleUsers{byID: map[string]*models.User{
		"u3": {ID: "u3", Role: models.RoleTeacher, SchoolID: ptr("school-1")},
	}}
	svc := NewRoleService(schools, users, &mockProfiles{}, &mockNotifier{}, nil, models.RoleTeacher, validator.New(), zap.NewNop())

	coAdmin := &models.JWTClaims{UserID: "u2", Role: models.RoleCoAdmin, SchoolID: ptr("school-1")}
	_, err := svc.AssignCoAdmin(context.Background(), "greenwood", AssignCoAdminRequest{UserID: "u3"}, coAdmin)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
	assert.Zero(t, schools.assignCalls)
}

func TestAssignCoAdminRejectsSchoolAdmin(t *testing.T) {
	schools := &mockRoleSchools{school: greenwoodSchool()}
	users := &mockRoleUsers{byID: map[string]*models.User{
		"u1": {ID: "u1", Role: models.RoleAdmin, SchoolID: ptr("school-1")},
	}}
	svc := NewRoleService(schools, users, &mockProfiles{}, &mockNotifier{}, nil, models.RoleTeacher, validator.New(), zap.NewNop())

	_, err := svc.AssignCoAdmin(context.Background(), "greenwood", AssignCoAdminRequest{UserID: "u1"}, adminClaims("u1", "school-1"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestAssignCoAdminRejectsForeignMember(t *testing.T) {
	schools := &mockRoleSchools{school: greenwoodSchool()}
	users := &mockRoleUsers{byID: map[string]*models.User{
		"u5": {ID: "u5", Role: models.RoleTeacher, SchoolID: ptr("other-school")},
	}}
	svc := NewRoleService(schools, users, &mockProfiles{}, &mockNotifier{}, nil, models.RoleTeacher, validator.New(), zap.NewNop())

	_, err := svc.AssignCoAdmin(context.Background(), "greenwood", AssignCoAdminRequest{UserID: "u5"}, adminClaims("u1", "school-1"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Zero(t, schools.assignCalls)
}

func TestAssignCoAdminDuplicateHolder(t *testing.T) {
	school := greenwoodSchool()
	school.CoAdmin1ID = ptr("u2")
	schools := &mockRoleSchools{school: school}
	users := &mockRoleUsers{byID: map[string]*models.User{
		"u2": {ID: "u2", Role: models.RoleCoAdmin, SchoolID: ptr("school-1")},
	}}
	svc := NewRoleService(schools, users, &mockProfiles{}, &mockNotifier{}, nil, models.RoleTeacher, validator.New(), zap.NewNop())

	_, err := svc.AssignCoAdmin(context.Background(), "greenwood", AssignCoAdminRequest{UserID: "u2"}, adminClaims("u1", "school-1"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	assert.Zero(t, schools.assignCalls)
}

func TestRemoveCoAdminDemotesToFallback(t *testing.T) {
	schools := &mockRoleSchools{school: greenwoodSchool(), removed: true}
	users := &mockRoleUsers{byID: map[string]*models.User{
		"u2": {ID: "u2", Role: models.RoleCoAdmin, SchoolID: ptr("school-1")},
	}}
	profiles := &mockProfiles{}
	notify := &mockNotifier{}
	svc := NewRoleService(schools, users, profiles, notify, &mockAudit{}, models.RoleStudent, validator.New(), zap.NewNop())

	target, err := svc.RemoveCoAdmin(context.Background(), "greenwood", "u2", adminClaims("u1", "school-1"))
	require.NoError(t, err)

	assert.Equal(t, models.RoleStudent, target.Role)
	assert.Equal(t, []string{"greenwood"}, profiles.invalidated)
	require.Len(t, notify.recorded, 1)
	assert.Equal(t, models.NotificationCoAdminRemoved, notify.recorded[0].Type)
}

func TestRemoveCoAdminIdempotent(t *testing.T) {
	schools := &mockRoleSchools{school: greenwoodSchool(), removed: false}
	users := &mockRoleUsers{byID: map[string]*models.User{
		"u2": {ID: "u2", Role: models.RoleTeacher, SchoolID: ptr("school-1")},
	}}
	profiles := &mockProfiles{}
	notify := &mockNotifier{}
	svc := NewRoleService(schools, users, profiles, notify, nil, models.RoleTeacher, validator.New(), zap.NewNop())

	target, err := svc.RemoveCoAdmin(context.Background(), "greenwood", "u2", adminClaims("u1", "school-1"))
	require.NoError(t, err)

	assert.Equal(t, models.RoleTeacher, target.Role)
	assert.Empty(t, profiles.invalidated)
	assert.Empty(t, notify.recorded)
}

func TestRoleServiceInvalidFallbackDefaults(t *testing.T) {
	svc := NewRoleService(&mockRoleSchools{}, &mockRoleUsers{}, &mockProfiles{}, &mockNotifier{}, nil, models.UserRole("JANITOR"), validator.New(), zap.NewNop())
	assert.Equal(t, models.RoleTeacher, svc.fallbackRole)
}
