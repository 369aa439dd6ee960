package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/campushq/campus-api/internal/models"
	appErrors "github.com/campushq/campus-api/pkg/errors"
)

type mockWorkflowStore struct {
	records     map[string]*models.InvitationJoin
	createErr   error
	created     []*models.InvitationJoin
	completeErr error
	cancelErr   error
}

func (m *mockWorkflowStore) Create(ctx context.Context, rec *models.InvitationJoin) error {
	if m.createErr != nil {
		return m.createErr
	}
	rec.ID = "wf-1"
	rec.Status = models.StatusPending
	m.created = append(m.created, rec)
	return nil
}

func (m *mockWorkflowStore) FindByID(ctx context.Context, id string) (*models.InvitationJoin, error) {
	if rec, ok := m.records[id]; ok {
		return rec, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockWorkflowStore) ListBySchool(ctx context.Context, schoolID string, recType models.InvitationJoinType) ([]models.InvitationJoin, error) {
	var out []models.InvitationJoin
	for _, rec := range m.records {
		if rec.SchoolID == schoolID && rec.Type == recType {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (m *mockWorkflowStore) ListByUser(ctx context.Context, userID string, recType models.InvitationJoinType) ([]models.InvitationJoin, error) {
	var out []models.InvitationJoin
	for _, rec := range m.records {
		if rec.UserID == userID && rec.Type == recType {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (m *mockWorkflowStore) Complete(ctx context.Context, id string) (*models.InvitationJoin, error) {
	if m.completeErr != nil {
		return nil, m.completeErr
	}
	rec := m.records[id]
	now := time.Now().UTC()
	rec.Status = models.StatusAccepted
	rec.ResolvedAt = &now
	return rec, nil
}

func (m *mockWorkflowStore) Cancel(ctx context.Context, id string) (*models.InvitationJoin, error) {
	if m.cancelErr != nil {
		return nil, m.cancelErr
	}
	rec := m.records[id]
	now := time.Now().UTC()
	rec.Status = models.StatusCancelled
	rec.ResolvedAt = &now
	return rec, nil
}

type mockWorkflowUsers struct {
	byID    map[string]*models.User
	byEmail map[string]*models.User
}

func (m *mockWorkflowUsers) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := m.byID[id]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockWorkflowUsers) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if u, ok := m.byEmail[email]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

type mockWorkflowSchools struct {
	byShortName map[string]*models.School
	byID        map[string]*models.School
}

func (m *mockWorkflowSchools) FindByShortName(ctx context.Context, shortName string) (*models.School, error) {
	if s, ok := m.byShortName[shortName]; ok {
		return s, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockWorkflowSchools) FindByID(ctx context.Context, id string) (*models.School, error) {
	if s, ok := m.byID[id]; ok {
		return s, nil
	}
	return nil, sql.ErrNoRows
}

func workflowFixture() (*mockWorkflowStore, *mockWorkflowUsers, *mockWorkflowSchools) {
	school := greenwoodSchool()
	store := &mockWorkflowStore{records: map[string]*models.InvitationJoin{}}
	users := &mockWorkflowUsers{
		byID: map[string]*models.User{
			"u1": {ID: "u1", Role: models.RoleAdmin, SchoolID: ptr("school-1")},
			"u7": {ID: "u7", Email: "new@example.com", FullName: "Nina New", Role: models.RoleNone},
		},
		byEmail: map[string]*models.User{
			"new@example.com": {ID: "u7", Email: "new@example.com", FullName: "Nina New", Role: models.RoleNone},
		},
	}
	schools := &mockWorkflowSchools{
		byShortName: map[string]*models.School{"greenwood": school},
		byID:        map[string]*models.School{"school-1": school},
	}
	return store, users, schools
}

func newWorkflowService(store *mockWorkflowStore, users *mockWorkflowUsers, schools *mockWorkflowSchools, notify *mockNotifier) *InvitationJoinService {
	if notify == nil {
		notify = &mockNotifier{}
	}
	return NewInvitationJoinService(store, users, schools, &mockProfiles{}, notify, &mockAudit{}, validator.New(), zap.NewNop())
}

func TestInviteCreatesPendingRecord(t *testing.T) {
	store, users, schools := workflowFixture()
	notify := &mockNotifier{}
	svc := newWorkflowService(store, users, schools, notify)

	rec, err := svc.Invite(context.Background(), InviteRequest{Email: "new@example.com", Role: models.RoleTeacher}, adminClaims("u1", "school-1"))
	require.NoError(t, err)

	assert.Equal(t, models.TypeInvitation, rec.Type)
	assert.Equal(t, models.StatusPending, rec.Status)
	assert.Equal(t, "school-1", rec.SchoolID)
	assert.Equal(t, "u7", rec.UserID)
	require.Len(t, notify.recorded, 1)
	assert.Equal(t, "u7", notify.recorded[0].UserID)
}

func TestInviteAffiliatedTargetRejected(t *testing.T) {
	store, users, schools := workflowFixture()
	users.byEmail["new@example.com"].SchoolID = ptr("other-school")
	svc := newWorkflowService(store, users, schools, nil)

	_, err := svc.Invite(context.Background(), InviteRequest{Email: "new@example.com", Role: models.RoleTeacher}, adminClaims("u1", "school-1"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	assert.Empty(t, store.created)
}

func TestInviteRejectsAdminRole(t *testing.T) {
	store, users, schools := workflowFixture()
	svc := newWorkflowService(store, users, schools, nil)

	_, err := svc.Invite(context.Background(), InviteRequest{Email: "new@example.com", Role: models.RoleAdmin}, adminClaims("u1", "school-1"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestInviteDuplicatePendingPassthrough(t *testing.T) {
	store, users, schools := workflowFixture()
	store.createErr = appErrors.Clone(appErrors.ErrConflict, "a pending workflow already exists for this user and school")
	svc := newWorkflowService(store, users, schools, nil)

	_, err := svc.Invite(context.Background(), InviteRequest{Email: "new@example.com", Role: models.RoleStudent}, adminClaims("u1", "school-1"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestRequestJoinRequiresUnaffiliatedCaller(t *testing.T) {
	store, users, schools := workflowFixture()
	svc := newWorkflowService(store, users, schools, nil)

	_, err := svc.RequestJoin(context.Background(), JoinSchoolRequest{ShortName: "greenwood", Role: models.RoleTeacher}, adminClaims("u1", "school-1"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestRequestJoinNotifiesAdmin(t *testing.T) {
	store, users, schools := workflowFixture()
	notify := &mockNotifier{}
	svc := newWorkflowService(store, users, schools, notify)

	rec, err := svc.RequestJoin(context.Background(), JoinSchoolRequest{ShortName: "greenwood", Role: models.RoleStudent}, &models.JWTClaims{UserID: "u7"})
	require.NoError(t, err)

	assert.Equal(t, models.TypeJoin, rec.Type)
	assert.Equal(t, models.StatusPending, rec.Status)
	require.Len(t, notify.recorded, 1)
	assert.Equal(t, "u1", notify.recorded[0].UserID)
}

func TestCompleteInvitationBySubject(t *testing.T) {
	store, users, schools := workflowFixture()
	store.records["wf-1"] = &models.InvitationJoin{
		ID: "wf-1", Type: models.TypeInvitation, Status: models.StatusPending,
		SchoolID: "school-1", UserID: "u7", Role: models.RoleTeacher,
	}
	notify := &mockNotifier{}
	svc := newWorkflowService(store, users, schools, notify)

	rec, err := svc.Complete(context.Background(), "wf-1", &models.JWTClaims{UserID: "u7"})
	require.NoError(t, err)

	assert.Equal(t, models.StatusAccepted, rec.Status)
	require.NotNil(t, rec.ResolvedAt)
	require.Len(t, notify.recorded, 1)
	assert.Equal(t, models.NotificationWorkflowAccepted, notify.recorded[0].Type)
}

func TestCompleteInvitationForbiddenForOthers(t *testing.T) {
	store, users, schools := workflowFixture()
	store.records["wf-1"] = &models.InvitationJoin{
		ID: "wf-1", Type: models.TypeInvitation, Status: models.StatusPending,
		SchoolID: "school-1", UserID: "u7", Role: models.RoleTeacher,
	}
	svc := newWorkflowService(store, users, schools, nil)

	_, err := svc.Complete(context.Background(), "wf-1", adminClaims("u1", "school-1"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestCompleteJoinRequestByAdmin(t *testing.T) {
	store, users, schools := workflowFixture()
	store.records["wf-2"] = &models.InvitationJoin{
		ID: "wf-2", Type: models.TypeJoin, Status: models.StatusPending,
		SchoolID: "school-1", UserID: "u7", Role: models.RoleStudent,
	}
	notify := &mockNotifier{}
	svc := newWorkflowService(store, users, schools, notify)

	rec, err := svc.Complete(context.Background(), "wf-2", adminClaims("u1", "school-1"))
	require.NoError(t, err)

	assert.Equal(t, models.StatusAccepted, rec.Status)
	// Both the subject and the school admin are notified for join requests.
	assert.Len(t, notify.recorded, 2)
}

func TestCompleteTerminalRecordRejected(t *testing.T) {
	store, users, schools := workflowFixture()
	resolved := time.Now().UTC()
	store.records["wf-3"] = &models.InvitationJoin{
		ID: "wf-3", Type: models.TypeInvitation, Status: models.StatusCancelled,
		SchoolID: "school-1", UserID: "u7", Role: models.RoleTeacher, ResolvedAt: &resolved,
	}
	store.completeErr = appErrors.Clone(appErrors.ErrInvalidState, "workflow record already resolved")
	svc := newWorkflowService(store, users, schools, nil)

	_, err := svc.Complete(context.Background(), "wf-3", &models.JWTClaims{UserID: "u7"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidState.Code, appErrors.FromError(err).Code)
}

func TestCompleteAffiliatedSubjectRejected(t *testing.T) {
	store, users, schools := workflowFixture()
	users.byID["u7"].SchoolID = ptr("other-school")
	store.records["wf-4"] = &models.InvitationJoin{
		ID: "wf-4", Type: models.TypeInvitation, Status: models.StatusPending,
		SchoolID: "school-1", UserID: "u7", Role: models.RoleTeacher,
	}
	svc := newWorkflowService(store, users, schools, nil)

	_, err := svc.Complete(context.Background(), "wf-4", &models.JWTClaims{UserID: "u7"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestCancelBySubject(t *testing.T) {
	store, users, schools := workflowFixture()
	store.records["wf-5"] = &models.InvitationJoin{
		ID: "wf-5", Type: models.TypeJoin, Status: models.StatusPending,
		SchoolID: "school-1", UserID: "u7", Role: models.RoleStudent,
	}
	svc := newWorkflowService(store, users, schools, nil)

	rec, err := svc.Cancel(context.Background(), "wf-5", &models.JWTClaims{UserID: "u7"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, rec.Status)
}

func TestCancelByUnrelatedUserForbidden(t *testing.T) {
	store, users, schools := workflowFixture()
	store.records["wf-6"] = &models.InvitationJoin{
		ID: "wf-6", Type: models.TypeInvitation, Status: models.StatusPending,
		SchoolID: "school-1", UserID: "u7", Role: models.RoleTeacher,
	}
	svc := newWorkflowService(store, users, schools, nil)

	outsider := &models.JWTClaims{UserID: "u9", Role: models.RoleTeacher, SchoolID: ptr("other-school")}
	_, err := svc.Cancel(context.Background(), "wf-6", outsider)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestListSchoolRestricted(t *testing.T) {
	store, users, schools := workflowFixture()
	store.records["wf-7"] = &models.InvitationJoin{
		ID: "wf-7", Type: models.TypeInvitation, Status: models.StatusPending,
		SchoolID: "school-1", UserID: "u7", Role: models.RoleTeacher,
	}
	svc := newWorkflowService(store, users, schools, nil)

	recs, err := svc.ListSchool(context.Background(), "greenwood", models.TypeInvitation, adminClaims("u1", "school-1"))
	require.NoError(t, err)
	assert.Len(t, recs, 1)

	student := &models.JWTClaims{UserID: "u3", Role: models.RoleStudent, SchoolID: ptr("school-1")}
	_, err = svc.ListSchool(context.Background(), "greenwood", models.TypeInvitation, student)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestListSentAndReceived(t *testing.T) {
	store, users, schools := workflowFixture()
	store.records["wf-8"] = &models.InvitationJoin{
		ID: "wf-8", Type: models.TypeInvitation, Status: models.StatusPending,
		SchoolID: "school-1", UserID: "u7", Role: models.RoleTeacher,
	}
	store.records["wf-9"] = &models.InvitationJoin{
		ID: "wf-9", Type: models.TypeJoin, Status: models.StatusPending,
		SchoolID: "school-1", UserID: "u7", Role: models.RoleStudent,
	}
	svc := newWorkflowService(store, users, schools, nil)

	received, err := svc.ListReceived(context.Background(), &models.JWTClaims{UserID: "u7"})
	require.NoError(t, err)
	require.Len(t, received, 1)
	assert.Equal(t, models.TypeInvitation, received[0].Type)

	sent, err := svc.ListSent(context.Background(), &models.JWTClaims{UserID: "u7"})
	require.NoError(t, err)
	require.Len(t, sent, 1)
	assert.Equal(t, models.TypeJoin, sent[0].Type)
}
