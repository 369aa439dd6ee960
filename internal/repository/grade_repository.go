package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campushq/campus-api/internal/models"
)

// GradeRepository persists grades and their sections.
type GradeRepository struct {
	db *sqlx.DB
}

// NewGradeRepository constructs the repository.
func NewGradeRepository(db *sqlx.DB) *GradeRepository {
	return &GradeRepository{db: db}
}

// CreateGrade inserts a grade scoped to a school.
func (r *GradeRepository) CreateGrade(ctx context.Context, grade *models.Grade) error {
	if grade.ID == "" {
		grade.ID = uuid.NewString()
	}
	if grade.CreatedAt.IsZero() {
		grade.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO grades (id, school_id, standard, created_at) VALUES (:id, :school_id, :standard, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, grade); err != nil {
		return fmt.Errorf("create grade: %w", err)
	}
	return nil
}

// FindGrade returns a grade by school and standard.
func (r *GradeRepository) FindGrade(ctx context.Context, schoolID string, standard int) (*models.Grade, error) {
	const query = `SELECT id, school_id, standard, created_at FROM grades WHERE school_id = $1 AND standard = $2 LIMIT 1`
	var grade models.Grade
	if err := r.db.GetContext(ctx, &grade, query, schoolID, standard); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find grade: %w", err)
	}
	return &grade, nil
}

// ListGrades returns a school's grades in ascending standard order.
func (r *GradeRepository) ListGrades(ctx context.Context, schoolID string) ([]models.Grade, error) {
	const query = `SELECT id, school_id, standard, created_at FROM grades WHERE school_id = $1 ORDER BY standard ASC`
	var grades []models.Grade
	if err := r.db.SelectContext(ctx, &grades, query, schoolID); err != nil {
		return nil, fmt.Errorf("list grades: %w", err)
	}
	return grades, nil
}

// CreateSection inserts a section under a grade.
func (r *GradeRepository) CreateSection(ctx context.Context, section *models.Section) error {
	if section.ID == "" {
		section.ID = uuid.NewString()
	}
	if section.CreatedAt.IsZero() {
		section.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO sections (id, grade_id, name, created_at) VALUES (:id, :grade_id, :name, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, section); err != nil {
		return fmt.Errorf("create section: %w", err)
	}
	return nil
}

// ListSections returns a grade's sections by name.
func (r *GradeRepository) ListSections(ctx context.Context, gradeID string) ([]models.Section, error) {
	const query = `SELECT id, grade_id, name, created_at FROM sections WHERE grade_id = $1 ORDER BY name ASC`
	var sections []models.Section
	if err := r.db.SelectContext(ctx, &sections, query, gradeID); err != nil {
		return nil, fmt.Errorf("list sections: %w", err)
	}
	return sections, nil
}
