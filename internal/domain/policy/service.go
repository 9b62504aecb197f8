package policy

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/carecircle/carecircle/internal/domain/circle"
)

// ErrNotController is returned when a policy mutation is attempted by a
// member who is not a circle controller. It is always surfaced verbatim,
// never downgraded to a silent no-op.
var ErrNotController = errors.New("acting member is not a circle controller")

// ErrUnknownFeature is returned by mutations in strict-catalogue mode for
// feature keys outside the registry.
var ErrUnknownFeature = errors.New("unknown feature key")

// Service mutates the policy store. The controller precondition is checked
// against the membership record the caller passes in. The mutation path
// never re-derives permissions through the resolver, which would be a
// circular dependency.
//
// Mutations are last-write-wins upserts with no concurrency token. Two
// controllers editing the same triple race to storage and the later write
// wins; policy edits are rare and low-cardinality, so this is a documented
// race, not a correctness guarantee.
type Service struct {
	repo    PolicyRepository
	catalog *Catalog
	strict  bool
}

func NewService(repo PolicyRepository, catalog *Catalog, strictCatalog bool) *Service {
	return &Service{repo: repo, catalog: catalog, strict: strictCatalog}
}

func (s *Service) checkFeatureKey(featureKey string) error {
	if featureKey == "" {
		return fmt.Errorf("feature key is required")
	}
	if s.strict && !s.catalog.Contains(featureKey) {
		return fmt.Errorf("%w: %q", ErrUnknownFeature, featureKey)
	}
	return nil
}

// SetRoleDefault upserts the fallback permission for (patient, role,
// feature). Re-applying the same write is a no-op in effect.
func (s *Service) SetRoleDefault(ctx context.Context, acting *circle.Member, patientID uuid.UUID, role circle.Role, featureKey string, allowed bool) error {
	if !acting.IsController() {
		return ErrNotController
	}
	if role == "" {
		return fmt.Errorf("role is required")
	}
	if err := s.checkFeatureKey(featureKey); err != nil {
		return err
	}
	if err := s.repo.UpsertRoleDefault(ctx, &RoleDefault{
		PatientID:  patientID,
		Role:       role,
		FeatureKey: featureKey,
		Allowed:    allowed,
	}); err != nil {
		return fmt.Errorf("upsert role default: %w", err)
	}
	return nil
}

// SetMemberOverride upserts a per-person exception that beats the role
// default for that member.
func (s *Service) SetMemberOverride(ctx context.Context, acting *circle.Member, patientID uuid.UUID, userID, featureKey string, allowed bool) error {
	if !acting.IsController() {
		return ErrNotController
	}
	if userID == "" {
		return fmt.Errorf("user id is required")
	}
	if err := s.checkFeatureKey(featureKey); err != nil {
		return err
	}
	if err := s.repo.UpsertMemberOverride(ctx, &MemberOverride{
		PatientID:  patientID,
		UserID:     userID,
		FeatureKey: featureKey,
		Allowed:    allowed,
	}); err != nil {
		return fmt.Errorf("upsert member override: %w", err)
	}
	return nil
}

// ClearMemberOverride removes the exception, reverting the member to the
// role default. Clearing an override that does not exist is not an error.
func (s *Service) ClearMemberOverride(ctx context.Context, acting *circle.Member, patientID uuid.UUID, userID, featureKey string) error {
	if !acting.IsController() {
		return ErrNotController
	}
	if userID == "" {
		return fmt.Errorf("user id is required")
	}
	if err := s.checkFeatureKey(featureKey); err != nil {
		return err
	}
	if err := s.repo.DeleteMemberOverride(ctx, patientID, userID, featureKey); err != nil {
		return fmt.Errorf("clear member override: %w", err)
	}
	return nil
}
