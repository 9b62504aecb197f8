package policy

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/carecircle/carecircle/internal/domain/circle"
)

// ErrResolutionUnavailable is returned by ResolveAll when the policy store
// could not be consulted. It is never folded into a deny: "no access" and
// "couldn't determine access" are different answers.
var ErrResolutionUnavailable = errors.New("permission resolution unavailable")

// Resolver answers "can member M do capability C on patient P". It is a pure
// read path over the policy store and the membership record passed in by the
// caller; it holds no per-request state.
type Resolver struct {
	repo    PolicyRepository
	catalog *Catalog
}

func NewResolver(repo PolicyRepository, catalog *Catalog) *Resolver {
	return &Resolver{repo: repo, catalog: catalog}
}

// Catalog exposes the capability registry the resolver evaluates against.
func (r *Resolver) Catalog() *Catalog {
	return r.catalog
}

// Resolve evaluates one (patient, member, capability) triple, in strict
// order:
//
//  1. Controllers are allowed unconditionally. This is a hard rule, not a
//     default; no override or role default can restrict a controller.
//  2. A member override, if present, wins, even an explicit deny against an
//     allowing role default.
//  3. Otherwise the role default, if present, applies.
//  4. Otherwise deny. An unconfigured capability is never implicitly granted.
//
// A storage failure yields Unavailable, never Deny.
func (r *Resolver) Resolve(ctx context.Context, patientID uuid.UUID, member *circle.Member, featureKey string) Decision {
	if member.IsController() {
		return Allow
	}

	override, err := r.repo.GetMemberOverride(ctx, patientID, member.UserID, featureKey)
	switch {
	case err == nil:
		if override.Allowed {
			return Allow
		}
		return Deny
	case !errors.Is(err, ErrNotFound):
		return Unavailable
	}

	def, err := r.repo.GetRoleDefault(ctx, patientID, member.Role, featureKey)
	switch {
	case err == nil:
		if def.Allowed {
			return Allow
		}
		return Deny
	case !errors.Is(err, ErrNotFound):
		return Unavailable
	}

	return Deny
}

// ResolveAll evaluates the whole catalogue for one member with a single
// fetch of overrides and defaults, for callers that gate an entire page of
// controls in one call. On storage failure it returns
// ErrResolutionUnavailable rather than a partially-denied map.
func (r *Resolver) ResolveAll(ctx context.Context, patientID uuid.UUID, member *circle.Member) (map[string]bool, error) {
	result := make(map[string]bool, len(r.catalog.keys))

	if member.IsController() {
		for _, key := range r.catalog.keys {
			result[key] = true
		}
		return result, nil
	}

	overrides, err := r.repo.ListMemberOverrides(ctx, patientID, member.UserID)
	if err != nil {
		return nil, errors.Join(ErrResolutionUnavailable, err)
	}
	defaults, err := r.repo.ListRoleDefaults(ctx, patientID, member.Role)
	if err != nil {
		return nil, errors.Join(ErrResolutionUnavailable, err)
	}

	overrideByKey := make(map[string]bool, len(overrides))
	for _, o := range overrides {
		overrideByKey[o.FeatureKey] = o.Allowed
	}
	defaultByKey := make(map[string]bool, len(defaults))
	for _, d := range defaults {
		defaultByKey[d.FeatureKey] = d.Allowed
	}

	for _, key := range r.catalog.keys {
		if allowed, ok := overrideByKey[key]; ok {
			result[key] = allowed
			continue
		}
		if allowed, ok := defaultByKey[key]; ok {
			result[key] = allowed
			continue
		}
		result[key] = false
	}
	return result, nil
}
