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

// SchoolRepository provides persistence for schools and owns the multi-entity
// transactions that keep school slots and user roles consistent.
type SchoolRepository struct {
	db *sqlx.DB
}

// NewSchoolRepository constructs the repository.
func NewSchoolRepository(db *sqlx.DB) *SchoolRepository {
	return &SchoolRepository{db: db}
}

const schoolColumns = `id, name, short_name, email, phone, description, admin_id, co_admin1_id, co_admin2_id, created_at, updated_at`

// FindByShortName returns a school by its unique short name.
func (r *SchoolRepository) FindByShortName(ctx context.Context, shortName string) (*models.School, error) {
	query := fmt.Sprintf(`SELECT %s FROM schools WHERE short_name = $1 LIMIT 1`, schoolColumns)
	var school models.School
	if err := r.db.GetContext(ctx, &school, query, shortName); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find school by short name: %w", err)
	}
	return &school, nil
}

// FindByID returns a school by identifier.
func (r *SchoolRepository) FindByID(ctx context.Context, id string) (*models.School, error) {
	query := fmt.Sprintf(`SELECT %s FROM schools WHERE id = $1 LIMIT 1`, schoolColumns)
	var school models.School
	if err := r.db.GetContext(ctx, &school, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find school by id: %w", err)
	}
	return &school, nil
}

// Create persists a new school and binds the admin user to it in a single
// transaction. The admin's role and affiliation change together with the
// school row; neither is observable without the other.
func (r *SchoolRepository) Create(ctx context.Context, school *models.School) (err error) {
	if school.ID == "" {
		school.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	school.CreatedAt = now
	school.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin school create: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const insertQuery = `INSERT INTO schools (id, name, short_name, email, phone, description, admin_id, created_at, updated_at)
VALUES (:id, :name, :short_name, :email, :phone, :description, :admin_id, :created_at, :updated_at)`
	if _, err = tx.NamedExecContext(ctx, insertQuery, school); err != nil {
		if isUniqueViolation(err) {
			err = appErrors.Clone(appErrors.ErrConflict, "short name is already taken")
			return err
		}
		return fmt.Errorf("insert school: %w", err)
	}

	const promoteQuery = `UPDATE users SET role = $2, school_id = $3, updated_at = $4 WHERE id = $1`
	if _, err = tx.ExecContext(ctx, promoteQuery, school.AdminID, models.RoleAdmin, school.ID, now); err != nil {
		return fmt.Errorf("promote school admin: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit school create: %w", err)
	}
	return nil
}

// AssignCoAdmin places the user into a co-admin slot and promotes their role,
// atomically. Slot 0 picks the first empty slot; an occupied explicit slot or
// a full school yields ErrCapacity without touching either entity. A user
// already occupying a slot yields ErrConflict, checked under the row lock.
func (r *SchoolRepository) AssignCoAdmin(ctx context.Context, schoolID, userID string, slot models.CoAdminSlot) (assigned models.CoAdminSlot, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin co-admin assign: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var current struct {
		CoAdmin1ID *string `db:"co_admin1_id"`
		CoAdmin2ID *string `db:"co_admin2_id"`
	}
	const lockQuery = `SELECT co_admin1_id, co_admin2_id FROM schools WHERE id = $1 FOR UPDATE`
	if err = tx.GetContext(ctx, &current, lockQuery, schoolID); err != nil {
		if err == sql.ErrNoRows {
			return 0, err
		}
		return 0, fmt.Errorf("lock school for co-admin assign: %w", err)
	}

	if (current.CoAdmin1ID != nil && *current.CoAdmin1ID == userID) ||
		(current.CoAdmin2ID != nil && *current.CoAdmin2ID == userID) {
		err = appErrors.Clone(appErrors.ErrConflict, "user already holds a co-admin slot")
		return 0, err
	}

	switch slot {
	case models.Slot1:
		if current.CoAdmin1ID != nil {
			err = appErrors.Clone(appErrors.ErrCapacity, "co-admin slot 1 is occupied")
			return 0, err
		}
		assigned = models.Slot1
	case models.Slot2:
		if current.CoAdmin2ID != nil {
			err = appErrors.Clone(appErrors.ErrCapacity, "co-admin slot 2 is occupied")
			return 0, err
		}
		assigned = models.Slot2
	default:
		if current.CoAdmin1ID == nil {
			assigned = models.Slot1
		} else if current.CoAdmin2ID == nil {
			assigned = models.Slot2
		} else {
			err = appErrors.Clone(appErrors.ErrCapacity, "both co-admin slots are occupied")
			return 0, err
		}
	}

	now := time.Now().UTC()
	slotQuery := `UPDATE schools SET co_admin1_id = $2, updated_at = $3 WHERE id = $1`
	if assigned == models.Slot2 {
		slotQuery = `UPDATE schools SET co_admin2_id = $2, updated_at = $3 WHERE id = $1`
	}
	if _, err = tx.ExecContext(ctx, slotQuery, schoolID, userID, now); err != nil {
		return 0, fmt.Errorf("set co-admin slot: %w", err)
	}

	const promoteQuery = `UPDATE users SET role = $2, school_id = $3, updated_at = $4 WHERE id = $1`
	if _, err = tx.ExecContext(ctx, promoteQuery, userID, models.RoleCoAdmin, schoolID, now); err != nil {
		return 0, fmt.Errorf("promote co-admin: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit co-admin assign: %w", err)
	}
	return assigned, nil
}

// RemoveCoAdmin vacates the slot held by the user and demotes them to the
// fallback role. A user holding no slot is a no-op, not an error.
func (r *SchoolRepository) RemoveCoAdmin(ctx context.Context, schoolID, userID string, fallback models.UserRole) (removed bool, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin co-admin remove: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var current struct {
		CoAdmin1ID *string `db:"co_admin1_id"`
		CoAdmin2ID *string `db:"co_admin2_id"`
	}
	const lockQuery = `SELECT co_admin1_id, co_admin2_id FROM schools WHERE id = $1 FOR UPDATE`
	if err = tx.GetContext(ctx, &current, lockQuery, schoolID); err != nil {
		if err == sql.ErrNoRows {
			return false, err
		}
		return false, fmt.Errorf("lock school for co-admin remove: %w", err)
	}

	now := time.Now().UTC()
	var slotQuery string
	if current.CoAdmin1ID != nil && *current.CoAdmin1ID == userID {
		slotQuery = `UPDATE schools SET co_admin1_id = NULL, updated_at = $2 WHERE id = $1`
	} else if current.CoAdmin2ID != nil && *current.CoAdmin2ID == userID {
		slotQuery = `UPDATE schools SET co_admin2_id = NULL, updated_at = $2 WHERE id = $1`
	} else {
		err = tx.Commit()
		return false, err
	}

	if _, err = tx.ExecContext(ctx, slotQuery, schoolID, now); err != nil {
		return false, fmt.Errorf("clear co-admin slot: %w", err)
	}

	const demoteQuery = `UPDATE users SET role = $2, updated_at = $3 WHERE id = $1`
	if _, err = tx.ExecContext(ctx, demoteQuery, userID, fallback, now); err != nil {
		return false, fmt.Errorf("demote co-admin: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return false, fmt.Errorf("commit co-admin remove: %w", err)
	}
	return true, nil
}
