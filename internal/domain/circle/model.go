package circle

import (
	"time"

	"github.com/google/uuid"
)

// Role is a member's role within one patient circle. The set is extensible:
// unknown role strings are valid non-controller roles.
type Role string

const (
	RolePatient       Role = "patient"
	RoleLegalGuardian Role = "legal_guardian"
	RoleOwner         Role = "owner"
	RoleFamily        Role = "family"
	RoleCarer         Role = "carer"
	RoleProfessional  Role = "professional"
	RoleClinician     Role = "clinician"
)

// controllerRoles is the single authoritative controller set. Controllers
// hold unconditional access and are exempt from role defaults and member
// overrides.
var controllerRoles = map[Role]bool{
	RolePatient:       true,
	RoleLegalGuardian: true,
	RoleOwner:         true,
}

// IsController reports whether the role grants unconditional access.
func (r Role) IsController() bool {
	return controllerRoles[r]
}

// Circle is a patient's care circle: the policy scope that role defaults,
// member overrides, and encrypted fields hang off. Its ID is the patient
// identifier.
type Circle struct {
	ID          uuid.UUID `db:"id" json:"id"`
	DisplayName *string   `db:"display_name" json:"display_name,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// Member is one (patient, user) membership row.
type Member struct {
	ID        uuid.UUID `db:"id" json:"id"`
	PatientID uuid.UUID `db:"patient_id" json:"patient_id"`
	UserID    string    `db:"user_id" json:"user_id"`
	Role      Role      `db:"role" json:"role"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// IsController reports whether this member is a circle controller.
func (m *Member) IsController() bool {
	return m.Role.IsController()
}
