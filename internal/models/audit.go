package models

import "time"

// AuditAction constants represent actions to be logged.
const (
	AuditActionLogin           = "LOGIN"
	AuditActionSignup          = "SIGNUP"
	AuditActionSchoolCreate    = "SCHOOL_CREATE"
	AuditActionCoAdminAssign   = "CO_ADMIN_ASSIGN"
	AuditActionCoAdminRemove   = "CO_ADMIN_REMOVE"
	AuditActionWorkflowCreate  = "WORKFLOW_CREATE"
	AuditActionWorkflowAccept  = "WORKFLOW_ACCEPT"
	AuditActionWorkflowCancel  = "WORKFLOW_CANCEL"
	AuditActionGradeCreate     = "GRADE_CREATE"
	AuditActionSectionCreate   = "SECTION_CREATE"
	AuditActionSubjectCreate   = "SUBJECT_CREATE"
	AuditActionMembersExported = "MEMBERS_EXPORT"
	AuditActionMembersViewed   = "MEMBERS_VIEW"
)

// AuditLog represents an audit trail record.
type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	UserID     *string   `db:"user_id" json:"user_id,omitempty"`
	Action     string    `db:"action" json:"action"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID *string   `db:"resource_id" json:"resource_id,omitempty"`
	OldValues  []byte    `db:"old_values" json:"old_values,omitempty"`
	NewValues  []byte    `db:"new_values" json:"new_values,omitempty"`
	IPAddress  string    `db:"ip_address" json:"ip_address"`
	UserAgent  string    `db:"user_agent" json:"user_agent"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
