package circle

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrLastController is returned when a removal or demotion would leave the
// circle without any controller. Every circle keeps at least one controller
// at all times.
var ErrLastController = errors.New("circle must keep at least one controller")

// ErrNotController is returned when a non-controller attempts a mutation
// reserved for controllers.
var ErrNotController = errors.New("acting member is not a circle controller")

type Service struct {
	circles CircleRepository
}

func NewService(circles CircleRepository) *Service {
	return &Service{circles: circles}
}

// CreateCircle creates a patient circle together with its founding member.
// The founder's role must be a controller role so the circle never exists
// without one.
func (s *Service) CreateCircle(ctx context.Context, displayName *string, founderUserID string, founderRole Role) (*Circle, error) {
	if founderUserID == "" {
		return nil, fmt.Errorf("founder user id is required")
	}
	if !founderRole.IsController() {
		return nil, fmt.Errorf("founder role %q: %w", founderRole, ErrLastController)
	}

	c := &Circle{DisplayName: displayName}
	if err := s.circles.Create(ctx, c); err != nil {
		return nil, err
	}
	m := &Member{PatientID: c.ID, UserID: founderUserID, Role: founderRole}
	if err := s.circles.AddMember(ctx, m); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) GetCircle(ctx context.Context, id uuid.UUID) (*Circle, error) {
	return s.circles.GetByID(ctx, id)
}

// Rename changes the circle's display name. The only structural mutation a
// circle supports.
func (s *Service) Rename(ctx context.Context, acting *Member, id uuid.UUID, displayName *string) error {
	if !acting.IsController() {
		return ErrNotController
	}
	return s.circles.UpdateDisplayName(ctx, id, displayName)
}

// AddMember adds or re-roles a member. Demoting the last controller to a
// non-controller role is rejected.
func (s *Service) AddMember(ctx context.Context, acting *Member, patientID uuid.UUID, userID string, role Role) (*Member, error) {
	if !acting.IsController() {
		return nil, ErrNotController
	}
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}
	if role == "" {
		return nil, fmt.Errorf("role is required")
	}

	if !role.IsController() {
		existing, err := s.circles.GetMember(ctx, patientID, userID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		if existing != nil && existing.IsController() {
			count, err := s.circles.CountControllers(ctx, patientID)
			if err != nil {
				return nil, err
			}
			if count <= 1 {
				return nil, ErrLastController
			}
		}
	}

	m := &Member{PatientID: patientID, UserID: userID, Role: role}
	if err := s.circles.AddMember(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// RemoveMember removes a membership row, refusing to remove the last
// controller.
func (s *Service) RemoveMember(ctx context.Context, acting *Member, patientID uuid.UUID, userID string) error {
	if !acting.IsController() {
		return ErrNotController
	}

	m, err := s.circles.GetMember(ctx, patientID, userID)
	if err != nil {
		return err
	}
	if m.IsController() {
		count, err := s.circles.CountControllers(ctx, patientID)
		if err != nil {
			return err
		}
		if count <= 1 {
			return ErrLastController
		}
	}
	return s.circles.RemoveMember(ctx, patientID, userID)
}

func (s *Service) GetMember(ctx context.Context, patientID uuid.UUID, userID string) (*Member, error) {
	return s.circles.GetMember(ctx, patientID, userID)
}

func (s *Service) ListMembers(ctx context.Context, patientID uuid.UUID) ([]*Member, error) {
	return s.circles.ListMembers(ctx, patientID)
}
