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

type mockGradeStore struct {
	grades   map[string]*models.Grade
	sections map[string][]models.Section
}

func newMockGradeStore() *mockGradeStore {
	return &mockGradeStore{grades: map[string]*models.Grade{}, sections: map[string][]models.Section{}}
}

func (m *mockGradeStore) key(schoolID string, standard int) string {
	return schoolID + ":" + string(rune('0'+standard))
}

func (m *mockGradeStore) CreateGrade(ctx context.Context, grade *models.Grade) error {
	grade.ID = "grade-" + string(rune('0'+grade.Standard))
	m.grades[m.key(grade.SchoolID, grade.Standard)] = grade
	return nil
}

func (m *mockGradeStore) FindGrade(ctx context.Context, schoolID string, standard int) (*models.Grade, error) {
	if g, ok := m.grades[m.key(schoolID, standard)]; ok {
		return g, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockGradeStore) ListGrades(ctx context.Context, schoolID string) ([]models.Grade, error) {
	var out []models.Grade
	for _, g := range m.grades {
		if g.SchoolID == schoolID {
			out = append(out, *g)
		}
	}
	return out, nil
}

func (m *mockGradeStore) CreateSection(ctx context.Context, section *models.Section) error {
	section.ID = "section-1"
	m.sections[section.GradeID] = append(m.sections[section.GradeID], *section)
	return nil
}

func (m *mockGradeStore) ListSections(ctx context.Context, gradeID string) ([]models.Section, error) {
	return m.sections[gradeID], nil
}

type mockGradeSchools struct {
	school *models.School
}

func (m *mockGradeSchools) FindByShortName(ctx context.Context, shortName string) (*models.School, error) {
	if m.school != nil && m.school.ShortName == shortName {
		return m.school, nil
	}
	return nil, sql.ErrNoRows
}

func TestCreateGrade(t *testing.T) {
	store := newMockGradeStore()
	svc := NewGradeService(store, &mockGradeSchools{school: greenwoodSchool()}, &mockAudit{}, validator.New(), zap.NewNop())

	grade, err := svc.CreateGrade(context.Background(), "greenwood", CreateGradeRequest{Standard: 5}, adminClaims("u1", "school-1"))
	require.NoError(t, err)
	assert.Equal(t, 5, grade.Standard)
	assert.Equal(t, "school-1", grade.SchoolID)
}

func TestCreateGradeDuplicateStandard(t *testing.T) {
	store := newMockGradeStore()
	svc := NewGradeService(store, &mockGradeSchools{school: greenwoodSchool()}, nil, validator.New(), zap.NewNop())

	_, err := svc.CreateGrade(context.Background(), "greenwood", CreateGradeRequest{Standard: 5}, adminClaims("u1", "school-1"))
	require.NoError(t, err)

	_, err = svc.CreateGrade(context.Background(), "greenwood", CreateGradeRequest{Standard: 5}, adminClaims("u1", "school-1"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestCreateGradeRequiresManagement(t *testing.T) {
	store := newMockGradeStore()
	svc := NewGradeService(store, &mockGradeSchools{school: greenwoodSchool()}, nil, validator.New(), zap.NewNop())

	teacher := &models.JWTClaims{UserID: "u4", Role: models.RoleTeacher, SchoolID: ptr("school-1")}
	_, err := svc.CreateGrade(context.Background(), "greenwood", CreateGradeRequest{Standard: 3}, teacher)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestCreateGradeStandardBounds(t *testing.T) {
	svc := NewGradeService(newMockGradeStore(), &mockGradeSchools{school: greenwoodSchool()}, nil, validator.New(), zap.NewNop())

	_, err := svc.CreateGrade(context.Background(), "greenwood", CreateGradeRequest{Standard: 13}, adminClaims("u1", "school-1"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestCreateSectionUnderGrade(t *testing.T) {
	store := newMockGradeStore()
	svc := NewGradeService(store, &mockGradeSchools{school: greenwoodSchool()}, &mockAudit{}, validator.New(), zap.NewNop())

	_, err := svc.CreateGrade(context.Background(), "greenwood", CreateGradeRequest{Standard: 7}, adminClaims("u1", "school-1"))
	require.NoError(t, err)

	section, err := svc.CreateSection(context.Background(), "greenwood", 7, CreateSectionRequest{Name: "A"}, adminClaims("u1", "school-1"))
	require.NoError(t, err)
	assert.Equal(t, "A", section.Name)

	grades, err := svc.ListGrades(context.Background(), "greenwood", adminClaims("u1", "school-1"))
	require.NoError(t, err)
	require.Len(t, grades, 1)
	require.Len(t, grades[0].Sections, 1)
}

func TestCreateSectionMissingGrade(t *testing.T) {
	svc := NewGradeService(newMockGradeStore(), &mockGradeSchools{school: greenwoodSchool()}, nil, validator.New(), zap.NewNop())

	_, err := svc.CreateSection(context.Background(), "greenwood", 9, CreateSectionRequest{Name: "B"}, adminClaims("u1", "school-1"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestListGradesMemberGated(t *testing.T) {
	svc := NewGradeService(newMockGradeStore(), &mockGradeSchools{school: greenwoodSchool()}, nil, validator.New(), zap.NewNop())

	student := &models.JWTClaims{UserID: "u5", Role: models.RoleStudent, SchoolID: ptr("school-1")}
	_, err := svc.ListGrades(context.Background(), "greenwood", student)
	require.NoError(t, err)

	outsider := &models.JWTClaims{UserID: "u6", Role: models.RoleStudent, SchoolID: ptr("other-school")}
	_, err = svc.ListGrades(context.Background(), "greenwood", outsider)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}
