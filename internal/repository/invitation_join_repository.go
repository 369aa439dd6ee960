package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campushq/campus-api/internal/models"
	appErrors "github.com/campushq/campus-api/pkg/errors"
)

// InvitationJoinRepository persists membership workflow records. State
// transitions run under row locks so a record resolves exactly once, and
// completion applies the role grant in the same transaction.
type InvitationJoinRepository struct {
	db *sqlx.DB
}

// NewInvitationJoinRepository constructs the repository.
func NewInvitationJoinRepository(db *sqlx.DB) *InvitationJoinRepository {
	return &InvitationJoinRepository{db: db}
}

const invitationJoinColumns = `ij.id, ij.type, ij.status, ij.school_id, ij.user_id, ij.role, ij.created_at, ij.resolved_at`

// Create inserts a pending record. A pending record already existing for the
// same (school, user, type) tuple yields ErrConflict; a partial unique index
// on the tuple backs this check against concurrent inserts.
func (r *InvitationJoinRepository) Create(ctx context.Context, rec *models.InvitationJoin) (err error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	rec.Status = models.StatusPending
	rec.CreatedAt = time.Now().UTC()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin workflow create: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var exists bool
	const dupQuery = `SELECT EXISTS (SELECT 1 FROM invitation_joins WHERE school_id = $1 AND user_id = $2 AND type = $3 AND status = $4)`
	if err = tx.GetContext(ctx, &exists, dupQuery, rec.SchoolID, rec.UserID, rec.Type, models.StatusPending); err != nil {
		return fmt.Errorf("check pending workflow: %w", err)
	}
	if exists {
		err = appErrors.Clone(appErrors.ErrConflict, "a pending workflow already exists for this user and school")
		return err
	}

	const insertQuery = `INSERT INTO invitation_joins (id, type, status, school_id, user_id, role, created_at)
VALUES (:id, :type, :status, :school_id, :user_id, :role, :created_at)`
	if _, err = tx.NamedExecContext(ctx, insertQuery, rec); err != nil {
		if isUniqueViolation(err) {
			err = appErrors.Clone(appErrors.ErrConflict, "a pending workflow already exists for this user and school")
			return err
		}
		return fmt.Errorf("insert workflow record: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit workflow create: %w", err)
	}
	return nil
}

// FindByID returns a workflow record.
func (r *InvitationJoinRepository) FindByID(ctx context.Context, id string) (*models.InvitationJoin, error) {
	query := fmt.Sprintf(`SELECT %s FROM invitation_joins ij WHERE ij.id = $1 LIMIT 1`, invitationJoinColumns)
	var rec models.InvitationJoin
	if err := r.db.GetContext(ctx, &rec, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find workflow record: %w", err)
	}
	return &rec, nil
}

// ListBySchool returns records of one type for a school in insertion order,
// with the subject user's display columns resolved.
func (r *InvitationJoinRepository) ListBySchool(ctx context.Context, schoolID string, recType models.InvitationJoinType) ([]models.InvitationJoin, error) {
	query := fmt.Sprintf(`
SELECT %s, u.email AS user_email, u.full_name AS user_full_name
FROM invitation_joins ij
JOIN users u ON u.id = ij.user_id
WHERE ij.school_id = $1 AND ij.type = $2
ORDER BY ij.created_at ASC`, invitationJoinColumns)

	var recs []models.InvitationJoin
	if err := r.db.SelectContext(ctx, &recs, query, schoolID, recType); err != nil {
		return nil, fmt.Errorf("list school workflows: %w", err)
	}
	return recs, nil
}

// ListByUser returns records of one type concerning a user in insertion
// order, with the school's short name resolved.
func (r *InvitationJoinRepository) ListByUser(ctx context.Context, userID string, recType models.InvitationJoinType) ([]models.InvitationJoin, error) {
	query := fmt.Sprintf(`
SELECT %s, s.short_name AS school_short_name
FROM invitation_joins ij
JOIN schools s ON s.id = ij.school_id
WHERE ij.user_id = $1 AND ij.type = $2
ORDER BY ij.created_at ASC`, invitationJoinColumns)

	var recs []models.InvitationJoin
	if err := r.db.SelectContext(ctx, &recs, query, userID, recType); err != nil {
		return nil, fmt.Errorf("list user workflows: %w", err)
	}
	return recs, nil
}

// Complete transitions a pending record to accepted and grants the subject
// user the record's role and school affiliation, atomically. Records in a
// terminal state yield ErrInvalidState and stay untouched.
func (r *InvitationJoinRepository) Complete(ctx context.Context, id string) (rec *models.InvitationJoin, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin workflow complete: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	rec, err = r.lockRecord(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if rec.Terminal() {
		err = appErrors.Clone(appErrors.ErrInvalidState, fmt.Sprintf("workflow is already %s", rec.Status))
		return nil, err
	}

	now := time.Now().UTC()
	const resolveQuery = `UPDATE invitation_joins SET status = $2, resolved_at = $3 WHERE id = $1`
	if _, err = tx.ExecContext(ctx, resolveQuery, id, models.StatusAccepted, now); err != nil {
		return nil, fmt.Errorf("accept workflow record: %w", err)
	}

	const grantQuery = `UPDATE users SET role = $2, school_id = $3, updated_at = $4 WHERE id = $1`
	if _, err = tx.ExecContext(ctx, grantQuery, rec.UserID, rec.Role, rec.SchoolID, now); err != nil {
		return nil, fmt.Errorf("grant membership role: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit workflow complete: %w", err)
	}

	rec.Status = models.StatusAccepted
	rec.ResolvedAt = &now
	return rec, nil
}

// Cancel transitions a pending record to cancelled with no side effects.
func (r *InvitationJoinRepository) Cancel(ctx context.Context, id string) (rec *models.InvitationJoin, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin workflow cancel: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	rec, err = r.lockRecord(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if rec.Terminal() {
		err = appErrors.Clone(appErrors.ErrInvalidState, fmt.Sprintf("workflow is already %s", rec.Status))
		return nil, err
	}

	now := time.Now().UTC()
	const resolveQuery = `UPDATE invitation_joins SET status = $2, resolved_at = $3 WHERE id = $1`
	if _, err = tx.ExecContext(ctx, resolveQuery, id, models.StatusCancelled, now); err != nil {
		return nil, fmt.Errorf("cancel workflow record: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit workflow cancel: %w", err)
	}

	rec.Status = models.StatusCancelled
	rec.ResolvedAt = &now
	return rec, nil
}

func (r *InvitationJoinRepository) lockRecord(ctx context.Context, tx *sqlx.Tx, id string) (*models.InvitationJoin, error) {
	const query = `SELECT id, type, status, school_id, user_id, role, created_at, resolved_at FROM invitation_joins WHERE id = $1 FOR UPDATE`
	var rec models.InvitationJoin
	if err := tx.GetContext(ctx, &rec, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("lock workflow record: %w", err)
	}
	return &rec, nil
}
