package service

import (
	"context"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/campushq/campus-api/internal/models"
	appErrors "github.com/campushq/campus-api/pkg/errors"
)

type mockSubjectStore struct {
	created   []*models.Subject
	createErr error
}

func (m *mockSubjectStore) CreateSubjects(ctx context.Context, subjects []*models.Subject) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.created = append(m.created, subjects...)
	return nil
}

func (m *mockSubjectStore) ListBySchool(ctx context.Context, schoolID string) ([]models.Subject, error) {
	var out []models.Subject
	for _, s := range m.created {
		if s.SchoolID == schoolID {
			out = append(out, *s)
		}
	}
	return out, nil
}

func newSubjectService(store *mockSubjectStore) *SubjectService {
	return NewSubjectService(store, &mockGradeSchools{school: greenwoodSchool()}, &mockAudit{}, validator.New(), zap.NewNop())
}

func TestCreateSubjectsBatch(t *testing.T) {
	store := &mockSubjectStore{}
	svc := newSubjectService(store)

	req := CreateSubjectsRequest{Subjects: []SubjectInput{
		{Name: "Mathematics", Description: "Algebra and geometry"},
		{Name: "Physics"},
	}}
	subjects, err := svc.Create(context.Background(), "greenwood", req, adminClaims("u1", "school-1"))
	require.NoError(t, err)

	require.Len(t, subjects, 2)
	assert.Equal(t, "school-1", subjects[0].SchoolID)
	assert.Equal(t, "Mathematics", subjects[0].Name)
	require.Len(t, store.created, 2)
}

func TestCreateSubjectsRepeatedNameInPayload(t *testing.T) {
	store := &mockSubjectStore{}
	svc := newSubjectService(store)

	req := CreateSubjectsRequest{Subjects: []SubjectInput{
		{Name: "History"},
		{Name: "history"},
	}}
	_, err := svc.Create(context.Background(), "greenwood", req, adminClaims("u1", "school-1"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	assert.Empty(t, store.created)
}

func TestCreateSubjectsExistingNamePassthrough(t *testing.T) {
	store := &mockSubjectStore{createErr: appErrors.Clone(appErrors.ErrConflict, `subject "Biology" already exists for this school`)}
	svc := newSubjectService(store)

	req := CreateSubjectsRequest{Subjects: []SubjectInput{{Name: "Biology"}}}
	_, err := svc.Create(context.Background(), "greenwood", req, adminClaims("u1", "school-1"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestCreateSubjectsRequiresManagement(t *testing.T) {
	svc := newSubjectService(&mockSubjectStore{})

	teacher := &models.JWTClaims{UserID: "u4", Role: models.RoleTeacher, SchoolID: ptr("school-1")}
	req := CreateSubjectsRequest{Subjects: []SubjectInput{{Name: "Chemistry"}}}
	_, err := svc.Create(context.Background(), "greenwood", req, teacher)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestCreateSubjectsEmptyPayloadRejected(t *testing.T) {
	svc := newSubjectService(&mockSubjectStore{})

	_, err := svc.Create(context.Background(), "greenwood", CreateSubjectsRequest{}, adminClaims("u1", "school-1"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestListSubjectsMemberGated(t *testing.T) {
	store := &mockSubjectStore{created: []*models.Subject{{ID: "sub-1", SchoolID: "school-1", Name: "Mathematics"}}}
	svc := newSubjectService(store)

	student := &models.JWTClaims{UserID: "u5", Role: models.RoleStudent, SchoolID: ptr("school-1")}
	subjects, err := svc.List(context.Background(), "greenwood", student)
	require.NoError(t, err)
	require.Len(t, subjects, 1)

	outsider := &models.JWTClaims{UserID: "u6", Role: models.RoleStudent, SchoolID: ptr("other-school")}
	_, err = svc.List(context.Background(), "greenwood", outsider)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}
