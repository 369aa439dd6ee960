package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campushq/campus-api/internal/models"
	appErrors "github.com/campushq/campus-api/pkg/errors"
)

func newSubjectRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "postgres")
	cleanup := func() {
		_ = sqlxDB.Close()
		db.Close()
	}
	return sqlxDB, mock, cleanup
}

func TestSubjectRepositoryCreateBatchInOneTx(t *testing.T) {
	db, mock, cleanup := newSubjectRepoMock(t)
	defer cleanup()
	repo := NewSubjectRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO subjects`)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO subjects`)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	subjects := []*models.Subject{
		{SchoolID: "school-1", Name: "Mathematics"},
		{SchoolID: "school-1", Name: "Physics", Description: "Mechanics"},
	}
	err := repo.CreateSubjects(context.Background(), subjects)
	require.NoError(t, err)
	assert.NotEmpty(t, subjects[0].ID)
	assert.NotEmpty(t, subjects[1].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSubjectRepositoryCreateDuplicateNameRollsBack(t *testing.T) {
	db, mock, cleanup := newSubjectRepoMock(t)
	defer cleanup()
	repo := NewSubjectRepository(db)

	// The second insert hits the (school_id, name) unique index; the first
	// must not survive.
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO subjects`)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO subjects`)).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "subjects_school_id_name_key"})
	mock.ExpectRollback()

	subjects := []*models.Subject{
		{SchoolID: "school-1", Name: "Chemistry"},
		{SchoolID: "school-1", Name: "Biology"},
	}
	err := repo.CreateSubjects(context.Background(), subjects)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSubjectRepositoryListBySchool(t *testing.T) {
	db, mock, cleanup := newSubjectRepoMock(t)
	defer cleanup()
	repo := NewSubjectRepository(db)

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "school_id", "name", "description", "created_at"}).
		AddRow("sub-1", "school-1", "Mathematics", "", now).
		AddRow("sub-2", "school-1", "Physics", "Mechanics", now)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, school_id, name, description, created_at FROM subjects WHERE school_id = $1 ORDER BY name ASC`)).
		WithArgs("school-1").
		WillReturnRows(rows)

	subjects, err := repo.ListBySchool(context.Background(), "school-1")
	require.NoError(t, err)
	require.Len(t, subjects, 2)
	assert.Equal(t, "Mathematics", subjects[0].Name)
	require.NoError(t, mock.ExpectationsWereMet())
}
