package policy

import (
	"time"

	"github.com/google/uuid"

	"github.com/carecircle/carecircle/internal/domain/circle"
)

// Capability is one entry in the fixed feature catalogue.
type Capability struct {
	FeatureKey  string `json:"feature_key"`
	Label       string `json:"label"`
	Description string `json:"description,omitempty"`
}

// RoleDefault is the fallback permission for a capability, scoped to a role
// within one patient circle. Unique per (patient, role, feature) triple.
type RoleDefault struct {
	PatientID  uuid.UUID   `db:"patient_id" json:"patient_id"`
	Role       circle.Role `db:"role" json:"role"`
	FeatureKey string      `db:"feature_key" json:"feature_key"`
	Allowed    bool        `db:"allowed" json:"allowed"`
	UpdatedAt  time.Time   `db:"updated_at" json:"updated_at"`
}

// MemberOverride is a per-person permission exception. It takes precedence
// over the role default for that member, in either direction.
type MemberOverride struct {
	PatientID  uuid.UUID `db:"patient_id" json:"patient_id"`
	UserID     string    `db:"user_id" json:"user_id"`
	FeatureKey string    `db:"feature_key" json:"feature_key"`
	Allowed    bool      `db:"allowed" json:"allowed"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// Decision is the outcome of a permission resolution. Unavailable means the
// backing store could not be consulted; it is a distinct state so callers can
// never mistake "couldn't determine access" for a deny (or an allow).
type Decision int

const (
	Deny Decision = iota
	Allow
	Unavailable
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case Deny:
		return "deny"
	case Unavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Allowed reports whether the decision is an affirmative allow. Unavailable
// is not allowed, but callers that need to distinguish it from deny must
// check the Decision value itself.
func (d Decision) Allowed() bool {
	return d == Allow
}
