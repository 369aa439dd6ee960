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

func newWorkflowRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
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

func TestInvitationJoinRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newWorkflowRepoMock(t)
	defer cleanup()
	repo := NewInvitationJoinRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS`)).
		WithArgs("school-1", "u7", models.TypeInvitation, models.StatusPending).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO invitation_joins`)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	rec := &models.InvitationJoin{Type: models.TypeInvitation, SchoolID: "school-1", UserID: "u7", Role: models.RoleTeacher}
	err := repo.Create(context.Background(), rec)
	require.NoError(t, err)
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, models.StatusPending, rec.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInvitationJoinRepositoryCreateDuplicatePending(t *testing.T) {
	db, mock, cleanup := newWorkflowRepoMock(t)
	defer cleanup()
	repo := NewInvitationJoinRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS`)).
		WithArgs("school-1", "u7", models.TypeJoin, models.StatusPending).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	rec := &models.InvitationJoin{Type: models.TypeJoin, SchoolID: "school-1", UserID: "u7", Role: models.RoleStudent}
	err := repo.Create(context.Background(), rec)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInvitationJoinRepositoryCreateLosesUniqueIndexRace(t *testing.T) {
	db, mock, cleanup := newWorkflowRepoMock(t)
	defer cleanup()
	repo := NewInvitationJoinRepository(db)

	// The pending check passes but a concurrent insert wins the race to the
	// partial unique index; the violation still surfaces as a conflict.
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS`)).
		WithArgs("school-1", "u7", models.TypeInvitation, models.StatusPending).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO invitation_joins`)).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "invitation_joins_pending_tuple_idx"})
	mock.ExpectRollback()

	rec := &models.InvitationJoin{Type: models.TypeInvitation, SchoolID: "school-1", UserID: "u7", Role: models.RoleTeacher}
	err := repo.Create(context.Background(), rec)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInvitationJoinRepositoryCompleteGrantsRole(t *testing.T) {
	db, mock, cleanup := newWorkflowRepoMock(t)
	defer cleanup()
	repo := NewInvitationJoinRepository(db)

	created := time.Now().UTC().Add(-time.Hour)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`FOR UPDATE`)).
		WithArgs("wf-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "type", "status", "school_id", "user_id", "role", "created_at", "resolved_at"}).
			AddRow("wf-1", models.TypeInvitation, models.StatusPending, "school-1", "u7", models.RoleTeacher, created, nil))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE invitation_joins SET status = $2, resolved_at = $3 WHERE id = $1`)).
		WithArgs("wf-1", models.StatusAccepted, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE users SET role = $2, school_id = $3, updated_at = $4 WHERE id = $1`)).
		WithArgs("u7", models.RoleTeacher, "school-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	rec, err := repo.Complete(context.Background(), "wf-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusAccepted, rec.Status)
	require.NotNil(t, rec.ResolvedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInvitationJoinRepositoryCompleteTerminalRecord(t *testing.T) {
	db, mock, cleanup := newWorkflowRepoMock(t)
	defer cleanup()
	repo := NewInvitationJoinRepository(db)

	created := time.Now().UTC().Add(-time.Hour)
	resolved := time.Now().UTC().Add(-time.Minute)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`FOR UPDATE`)).
		WithArgs("wf-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "type", "status", "school_id", "user_id", "role", "created_at", "resolved_at"}).
			AddRow("wf-1", models.TypeInvitation, models.StatusCancelled, "school-1", "u7", models.RoleTeacher, created, resolved))
	mock.ExpectRollback()

	_, err := repo.Complete(context.Background(), "wf-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidState.Code, appErrors.FromError(err).Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInvitationJoinRepositoryCancelLeavesUserUntouched(t *testing.T) {
	db, mock, cleanup := newWorkflowRepoMock(t)
	defer cleanup()
	repo := NewInvitationJoinRepository(db)

	created := time.Now().UTC().Add(-time.Hour)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`FOR UPDATE`)).
		WithArgs("wf-2").
		WillReturnRows(sqlmock.NewRows([]string{"id", "type", "status", "school_id", "user_id", "role", "created_at", "resolved_at"}).
			AddRow("wf-2", models.TypeJoin, models.StatusPending, "school-1", "u7", models.RoleStudent, created, nil))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE invitation_joins SET status = $2, resolved_at = $3 WHERE id = $1`)).
		WithArgs("wf-2", models.StatusCancelled, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	rec, err := repo.Cancel(context.Background(), "wf-2")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, rec.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInvitationJoinRepositoryListBySchool(t *testing.T) {
	db, mock, cleanup := newWorkflowRepoMock(t)
	defer cleanup()
	repo := NewInvitationJoinRepository(db)

	created := time.Now().UTC()
	mock.ExpectQuery(regexp.QuoteMeta(`JOIN users u ON u.id = ij.user_id`)).
		WithArgs("school-1", models.TypeInvitation).
		WillReturnRows(sqlmock.NewRows([]string{"id", "type", "status", "school_id", "user_id", "role", "created_at", "resolved_at", "user_email", "user_full_name"}).
			AddRow("wf-1", models.TypeInvitation, models.StatusPending, "school-1", "u7", models.RoleTeacher, created, nil, "new@example.com", "Nina New"))

	recs, err := repo.ListBySchool(context.Background(), "school-1", models.TypeInvitation)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "new@example.com", recs[0].UserEmail)
}
