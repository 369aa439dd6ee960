package models

import "time"

// Notification event kinds emitted by the membership workflows.
const (
	NotificationInvitationCreated = "INVITATION_CREATED"
	NotificationJoinRequested     = "JOIN_REQUESTED"
	NotificationWorkflowAccepted  = "WORKFLOW_ACCEPTED"
	NotificationWorkflowCancelled = "WORKFLOW_CANCELLED"
	NotificationCoAdminAssigned   = "CO_ADMIN_ASSIGNED"
	NotificationCoAdminRemoved    = "CO_ADMIN_REMOVED"
)

// Notification is a per-user domain event record. Delivery transport is the
// concern of an external collaborator; rows here back the in-app feed.
type Notification struct {
	ID        string     `db:"id" json:"id"`
	UserID    string     `db:"user_id" json:"user_id"`
	Type      string     `db:"type" json:"type"`
	Message   string     `db:"message" json:"message"`
	SchoolID  *string    `db:"school_id" json:"school_id,omitempty"`
	Read      bool       `db:"read" json:"read"`
	ReadAt    *time.Time `db:"read_at" json:"read_at,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
}
