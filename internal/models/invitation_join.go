package models

import "time"

// InvitationJoinType distinguishes the direction of a membership workflow:
// an invitation travels admin-to-user, a join request user-to-school.
type InvitationJoinType string

const (
	TypeInvitation InvitationJoinType = "INVITATION"
	TypeJoin       InvitationJoinType = "JOIN"
)

// InvitationJoinStatus is the lifecycle state of a workflow record.
// Accepted and cancelled are terminal.
type InvitationJoinStatus string

const (
	StatusPending   InvitationJoinStatus = "PENDING"
	StatusAccepted  InvitationJoinStatus = "ACCEPTED"
	StatusCancelled InvitationJoinStatus = "CANCELLED"
)

// InvitationJoin represents one membership workflow record. Role is the role
// the subject user will hold once the record is accepted.
type InvitationJoin struct {
	ID         string               `db:"id" json:"id"`
	Type       InvitationJoinType   `db:"type" json:"type"`
	Status     InvitationJoinStatus `db:"status" json:"status"`
	SchoolID   string               `db:"school_id" json:"school_id"`
	UserID     string               `db:"user_id" json:"user_id"`
	Role       UserRole             `db:"role" json:"role"`
	CreatedAt  time.Time            `db:"created_at" json:"created_at"`
	ResolvedAt *time.Time           `db:"resolved_at" json:"resolved_at,omitempty"`

	// Joined display columns for listings.
	SchoolShortName string `db:"school_short_name" json:"school_short_name,omitempty"`
	UserEmail       string `db:"user_email" json:"user_email,omitempty"`
	UserFullName    string `db:"user_full_name" json:"user_full_name,omitempty"`
}

// Terminal reports whether the record can no longer transition.
func (r *InvitationJoin) Terminal() bool {
	return r.Status != StatusPending
}
