package models

import "time"

// Grade represents a numbered grade (standard) within a school.
type Grade struct {
	ID        string    `db:"id" json:"id"`
	SchoolID  string    `db:"school_id" json:"school_id"`
	Standard  int       `db:"standard" json:"standard"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`

	Sections []Section `db:"-" json:"sections,omitempty"`
}

// Section represents a named section under a grade.
type Section struct {
	ID        string    `db:"id" json:"id"`
	GradeID   string    `db:"grade_id" json:"grade_id"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
