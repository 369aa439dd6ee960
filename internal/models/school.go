package models

import "time"

// School represents a tenant school. The admin reference is set at creation
// and never cleared; the two co-admin slots are independently nullable and
// owned exclusively by the role assignment workflow.
type School struct {
	ID          string    `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	ShortName   string    `db:"short_name" json:"short_name"`
	Email       string    `db:"email" json:"email"`
	Phone       string    `db:"phone" json:"phone,omitempty"`
	Description string    `db:"description" json:"description,omitempty"`
	AdminID     string    `db:"admin_id" json:"admin_id"`
	CoAdmin1ID  *string   `db:"co_admin1_id" json:"co_admin1_id,omitempty"`
	CoAdmin2ID  *string   `db:"co_admin2_id" json:"co_admin2_id,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`

	// Eagerly resolved relations, not persisted columns.
	Admin    *User `db:"-" json:"admin,omitempty"`
	CoAdmin1 *User `db:"-" json:"co_admin1,omitempty"`
	CoAdmin2 *User `db:"-" json:"co_admin2,omitempty"`
}

// CoAdminSlot addresses one of the two co-admin positions.
type CoAdminSlot int

const (
	SlotAuto CoAdminSlot = 0
	Slot1    CoAdminSlot = 1
	Slot2    CoAdminSlot = 2
)

// HoldsCoAdmin reports whether the given user occupies a co-admin slot.
func (s *School) HoldsCoAdmin(userID string) CoAdminSlot {
	if s.CoAdmin1ID != nil && *s.CoAdmin1ID == userID {
		return Slot1
	}
	if s.CoAdmin2ID != nil && *s.CoAdmin2ID == userID {
		return Slot2
	}
	return SlotAuto
}
