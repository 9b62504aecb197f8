package circle

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a circle or membership row does not exist.
var ErrNotFound = errors.New("not found")

type CircleRepository interface {
	Create(ctx context.Context, c *Circle) error
	GetByID(ctx context.Context, id uuid.UUID) (*Circle, error)
	UpdateDisplayName(ctx context.Context, id uuid.UUID, displayName *string) error

	AddMember(ctx context.Context, m *Member) error
	RemoveMember(ctx context.Context, patientID uuid.UUID, userID string) error
	GetMember(ctx context.Context, patientID uuid.UUID, userID string) (*Member, error)
	ListMembers(ctx context.Context, patientID uuid.UUID) ([]*Member, error)
	CountControllers(ctx context.Context, patientID uuid.UUID) (int, error)
}
