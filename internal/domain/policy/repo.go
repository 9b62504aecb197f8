package policy

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/carecircle/carecircle/internal/domain/circle"
)

// ErrNotFound is returned by point lookups when no row exists for the
// composite key. It is an expected outcome for the resolver, not a failure.
var ErrNotFound = errors.New("not found")

type PolicyRepository interface {
	UpsertRoleDefault(ctx context.Context, d *RoleDefault) error
	GetRoleDefault(ctx context.Context, patientID uuid.UUID, role circle.Role, featureKey string) (*RoleDefault, error)
	ListRoleDefaults(ctx context.Context, patientID uuid.UUID, role circle.Role) ([]*RoleDefault, error)

	UpsertMemberOverride(ctx context.Context, o *MemberOverride) error
	// DeleteMemberOverride removes the override if present; deleting a
	// non-existent override is not an error.
	DeleteMemberOverride(ctx context.Context, patientID uuid.UUID, userID, featureKey string) error
	GetMemberOverride(ctx context.Context, patientID uuid.UUID, userID, featureKey string) (*MemberOverride, error)
	ListMemberOverrides(ctx context.Context, patientID uuid.UUID, userID string) ([]*MemberOverride, error)
}
