package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campushq/campus-api/internal/models"
	appErrors "github.com/campushq/campus-api/pkg/errors"
)

// SubjectRepository persists a school's subjects.
type SubjectRepository struct {
	db *sqlx.DB
}

// NewSubjectRepository constructs the repository.
func NewSubjectRepository(db *sqlx.DB) *SubjectRepository {
	return &SubjectRepository{db: db}
}

// CreateSubjects inserts a batch of subjects in one transaction. A name
// already present in the school yields ErrConflict and inserts nothing; a
// unique index on (school_id, name) backs the check.
func (r *SubjectRepository) CreateSubjects(ctx context.Context, subjects []*models.Subject) (err error) {
	now := time.Now().UTC()
	for _, subject := range subjects {
		if subject.ID == "" {
			subject.ID = uuid.NewString()
		}
		subject.CreatedAt = now
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin subject create: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const insertQuery = `INSERT INTO subjects (id, school_id, name, description, created_at)
VALUES (:id, :school_id, :name, :description, :created_at)`
	for _, subject := range subjects {
		if _, err = tx.NamedExecContext(ctx, insertQuery, subject); err != nil {
			if isUniqueViolation(err) {
				err = appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("subject %q already exists for this school", subject.Name))
				return err
			}
			return fmt.Errorf("insert subject: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit subject create: %w", err)
	}
	return nil
}

// ListBySchool returns a school's subjects in name order.
func (r *SubjectRepository) ListBySchool(ctx context.Context, schoolID string) ([]models.Subject, error) {
	const query = `SELECT id, school_id, name, description, created_at FROM subjects WHERE school_id = $1 ORDER BY name ASC`
	var subjects []models.Subject
	if err := r.db.SelectContext(ctx, &subjects, query, schoolID); err != nil {
		return nil, fmt.Errorf("list subjects: %w", err)
	}
	return subjects, nil
}
