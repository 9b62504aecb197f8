package policy

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/carecircle/carecircle/internal/domain/circle"
)

// -- Mock Repository --

type defaultKey struct {
	patientID  uuid.UUID
	role       circle.Role
	featureKey string
}

type overrideKey struct {
	patientID  uuid.UUID
	userID     string
	featureKey string
}

var errStorageDown = errors.New("storage down")

type mockPolicyRepo struct {
	defaults  map[defaultKey]*RoleDefault
	overrides map[overrideKey]*MemberOverride

	// failAll simulates an unreachable backing store.
	failAll bool
	// failDefaults simulates one backing relation being unreachable while
	// the other still answers.
	failDefaults bool
}

func newMockPolicyRepo() *mockPolicyRepo {
	return &mockPolicyRepo{
		defaults:  make(map[defaultKey]*RoleDefault),
		overrides: make(map[overrideKey]*MemberOverride),
	}
}

func (m *mockPolicyRepo) UpsertRoleDefault(_ context.Context, d *RoleDefault) error {
	if m.failAll {
		return errStorageDown
	}
	m.defaults[defaultKey{d.PatientID, d.Role, d.FeatureKey}] = d
	return nil
}

func (m *mockPolicyRepo) GetRoleDefault(_ context.Context, patientID uuid.UUID, role circle.Role, featureKey string) (*RoleDefault, error) {
	if m.failAll || m.failDefaults {
		return nil, errStorageDown
	}
	d, ok := m.defaults[defaultKey{patientID, role, featureKey}]
	if !ok {
		return nil, ErrNotFound
	}
	return d, nil
}

func (m *mockPolicyRepo) ListRoleDefaults(_ context.Context, patientID uuid.UUID, role circle.Role) ([]*RoleDefault, error) {
	if m.failAll || m.failDefaults {
		return nil, errStorageDown
	}
	var r []*RoleDefault
	for k, d := range m.defaults {
		if k.patientID == patientID && k.role == role {
			r = append(r, d)
		}
	}
	return r, nil
}

func (m *mockPolicyRepo) UpsertMemberOverride(_ context.Context, o *MemberOverride) error {
	if m.failAll {
		return errStorageDown
	}
	m.overrides[overrideKey{o.PatientID, o.UserID, o.FeatureKey}] = o
	return nil
}

func (m *mockPolicyRepo) DeleteMemberOverride(_ context.Context, patientID uuid.UUID, userID, featureKey string) error {
	if m.failAll {
		return errStorageDown
	}
	delete(m.overrides, overrideKey{patientID, userID, featureKey})
	return nil
}

func (m *mockPolicyRepo) GetMemberOverride(_ context.Context, patientID uuid.UUID, userID, featureKey string) (*MemberOverride, error) {
	if m.failAll {
		return nil, errStorageDown
	}
	o, ok := m.overrides[overrideKey{patientID, userID, featureKey}]
	if !ok {
		return nil, ErrNotFound
	}
	return o, nil
}

func (m *mockPolicyRepo) ListMemberOverrides(_ context.Context, patientID uuid.UUID, userID string) ([]*MemberOverride, error) {
	if m.failAll {
		return nil, errStorageDown
	}
	var r []*MemberOverride
	for k, o := range m.overrides {
		if k.patientID == patientID && k.userID == userID {
			r = append(r, o)
		}
	}
	return r, nil
}

// -- Helpers --

func member(userID string, role circle.Role) *circle.Member {
	return &circle.Member{ID: uuid.New(), UserID: userID, Role: role}
}

// -- Resolver Tests --

func TestResolve_ControllerAlwaysAllowed(t *testing.T) {
	repo := newMockPolicyRepo()
	r := NewResolver(repo, DefaultCatalog())
	patientID := uuid.New()
	ctx := context.Background()

	for _, role := range []circle.Role{circle.RolePatient, circle.RoleLegalGuardian, circle.RoleOwner} {
		m := member("ctl", role)
		m.PatientID = patientID

		// Even an explicit deny override and deny default cannot restrict
		// a controller.
		repo.overrides[overrideKey{patientID, m.UserID, "meds_view"}] = &MemberOverride{
			PatientID: patientID, UserID: m.UserID, FeatureKey: "meds_view", Allowed: false,
		}
		repo.defaults[defaultKey{patientID, role, "meds_view"}] = &RoleDefault{
			PatientID: patientID, Role: role, FeatureKey: "meds_view", Allowed: false,
		}

		if got := r.Resolve(ctx, patientID, m, "meds_view"); got != Allow {
			t.Errorf("role %s: expected Allow, got %s", role, got)
		}
		if got := r.Resolve(ctx, patientID, m, "not_in_catalog"); got != Allow {
			t.Errorf("role %s: expected Allow for unknown feature, got %s", role, got)
		}
	}
}

func TestResolve_OverrideBeatsDefault(t *testing.T) {
	repo := newMockPolicyRepo()
	r := NewResolver(repo, DefaultCatalog())
	patientID := uuid.New()
	m := member("aunt", circle.RoleFamily)
	ctx := context.Background()

	// Role default allows, override denies: override wins.
	repo.defaults[defaultKey{patientID, circle.RoleFamily, "meds_view"}] = &RoleDefault{Allowed: true}
	repo.overrides[overrideKey{patientID, "aunt", "meds_view"}] = &MemberOverride{Allowed: false}

	if got := r.Resolve(ctx, patientID, m, "meds_view"); got != Deny {
		t.Errorf("expected Deny (override beats default), got %s", got)
	}

	// Role default denies, override allows: override still wins.
	repo.defaults[defaultKey{patientID, circle.RoleFamily, "journal_view"}] = &RoleDefault{Allowed: false}
	repo.overrides[overrideKey{patientID, "aunt", "journal_view"}] = &MemberOverride{Allowed: true}

	if got := r.Resolve(ctx, patientID, m, "journal_view"); got != Allow {
		t.Errorf("expected Allow (override beats default), got %s", got)
	}
}

func TestResolve_RoleDefaultApplies(t *testing.T) {
	repo := newMockPolicyRepo()
	r := NewResolver(repo, DefaultCatalog())
	patientID := uuid.New()
	m := member("aunt", circle.RoleFamily)
	ctx := context.Background()

	repo.defaults[defaultKey{patientID, circle.RoleFamily, "meds_view"}] = &RoleDefault{Allowed: true}
	repo.defaults[defaultKey{patientID, circle.RoleFamily, "meds_edit"}] = &RoleDefault{Allowed: false}

	if got := r.Resolve(ctx, patientID, m, "meds_view"); got != Allow {
		t.Errorf("expected Allow from role default, got %s", got)
	}
	if got := r.Resolve(ctx, patientID, m, "meds_edit"); got != Deny {
		t.Errorf("expected Deny from role default, got %s", got)
	}
}

func TestResolve_DefaultDeny(t *testing.T) {
	repo := newMockPolicyRepo()
	r := NewResolver(repo, DefaultCatalog())
	m := member("aunt", circle.RoleFamily)

	if got := r.Resolve(context.Background(), uuid.New(), m, "meds_view"); got != Deny {
		t.Errorf("expected Deny for unconfigured capability, got %s", got)
	}
	if got := r.Resolve(context.Background(), uuid.New(), m, "no_such_feature"); got != Deny {
		t.Errorf("expected Deny for unknown feature key, got %s", got)
	}
}

func TestResolve_StorageFailureIsUnavailableNotDeny(t *testing.T) {
	repo := newMockPolicyRepo()
	repo.failAll = true
	r := NewResolver(repo, DefaultCatalog())
	m := member("aunt", circle.RoleFamily)

	if got := r.Resolve(context.Background(), uuid.New(), m, "meds_view"); got != Unavailable {
		t.Errorf("expected Unavailable, got %s", got)
	}

	// Controllers do not touch storage at all, so they stay allowed even
	// when the store is down.
	ctl := member("ctl", circle.RolePatient)
	if got := r.Resolve(context.Background(), uuid.New(), ctl, "meds_view"); got != Allow {
		t.Errorf("expected Allow for controller with storage down, got %s", got)
	}
}

func TestResolve_PartialStorageFailure(t *testing.T) {
	// Overrides answer but role defaults are unreachable: without an
	// override the resolution is Unavailable, not Deny.
	repo := newMockPolicyRepo()
	repo.failDefaults = true
	r := NewResolver(repo, DefaultCatalog())
	patientID := uuid.New()
	m := member("aunt", circle.RoleFamily)
	ctx := context.Background()

	if got := r.Resolve(ctx, patientID, m, "meds_view"); got != Unavailable {
		t.Errorf("expected Unavailable, got %s", got)
	}

	// An override short-circuits before the failing relation is consulted.
	repo.overrides[overrideKey{patientID, "aunt", "meds_view"}] = &MemberOverride{Allowed: true}
	if got := r.Resolve(ctx, patientID, m, "meds_view"); got != Allow {
		t.Errorf("expected Allow from override, got %s", got)
	}
}

func TestResolveAll_CatalogueWide(t *testing.T) {
	repo := newMockPolicyRepo()
	catalog := DefaultCatalog()
	r := NewResolver(repo, catalog)
	patientID := uuid.New()
	m := member("aunt", circle.RoleFamily)
	ctx := context.Background()

	perms, err := r.ResolveAll(ctx, patientID, m)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(perms) != len(catalog.Keys()) {
		t.Fatalf("expected %d entries, got %d", len(catalog.Keys()), len(perms))
	}
	for key, allowed := range perms {
		if allowed {
			t.Errorf("expected every feature denied with no config, %s was allowed", key)
		}
	}
}

func TestResolveAll_ControllerAllTrue(t *testing.T) {
	repo := newMockPolicyRepo()
	repo.failAll = true // controllers never consult storage
	r := NewResolver(repo, DefaultCatalog())
	m := member("ctl", circle.RoleOwner)

	perms, err := r.ResolveAll(context.Background(), uuid.New(), m)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for key, allowed := range perms {
		if !allowed {
			t.Errorf("expected every feature allowed for controller, %s was denied", key)
		}
	}
}

func TestResolveAll_Unavailable(t *testing.T) {
	repo := newMockPolicyRepo()
	repo.failAll = true
	r := NewResolver(repo, DefaultCatalog())
	m := member("aunt", circle.RoleFamily)

	_, err := r.ResolveAll(context.Background(), uuid.New(), m)
	if !errors.Is(err, ErrResolutionUnavailable) {
		t.Fatalf("expected ErrResolutionUnavailable, got %v", err)
	}
}

// End-to-end scenario from the product flow: an unconfigured circle denies
// everything for a family member; a role default opens one feature for the
// whole role; a member override closes it again for one person only.
func TestResolve_EndToEndScenario(t *testing.T) {
	repo := newMockPolicyRepo()
	catalog := DefaultCatalog()
	resolver := NewResolver(repo, catalog)
	svc := NewService(repo, catalog, false)
	ctx := context.Background()

	patientID := uuid.New()
	controller := member("u0", circle.RolePatient)
	u1 := member("u1", circle.RoleFamily)
	u2 := member("u2", circle.RoleFamily)

	// No defaults configured: everything false for u1.
	perms, err := resolver.ResolveAll(ctx, patientID, u1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for key, allowed := range perms {
		if allowed {
			t.Fatalf("expected all-deny before configuration, %s allowed", key)
		}
	}

	// Role default opens meds_view for family.
	if err := svc.SetRoleDefault(ctx, controller, patientID, circle.RoleFamily, "meds_view", true); err != nil {
		t.Fatalf("set role default: %v", err)
	}
	if got := resolver.Resolve(ctx, patientID, u1, "meds_view"); got != Allow {
		t.Fatalf("expected Allow after role default, got %s", got)
	}
	perms, err = resolver.ResolveAll(ctx, patientID, u1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for key, allowed := range perms {
		if key == "meds_view" && !allowed {
			t.Error("meds_view should be allowed")
		}
		if key != "meds_view" && allowed {
			t.Errorf("%s should remain denied", key)
		}
	}

	// Override closes it again, for u1 only.
	if err := svc.SetMemberOverride(ctx, controller, patientID, "u1", "meds_view", false); err != nil {
		t.Fatalf("set member override: %v", err)
	}
	if got := resolver.Resolve(ctx, patientID, u1, "meds_view"); got != Deny {
		t.Errorf("expected Deny for u1 after override, got %s", got)
	}
	if got := resolver.Resolve(ctx, patientID, u2, "meds_view"); got != Allow {
		t.Errorf("expected Allow for other family member, got %s", got)
	}

	// Clearing the override reverts u1 to the role default.
	if err := svc.ClearMemberOverride(ctx, controller, patientID, "u1", "meds_view"); err != nil {
		t.Fatalf("clear member override: %v", err)
	}
	if got := resolver.Resolve(ctx, patientID, u1, "meds_view"); got != Allow {
		t.Errorf("expected Allow after clearing override, got %s", got)
	}
}

func TestClearOverride_RevertsToDefaultOrDeny(t *testing.T) {
	repo := newMockPolicyRepo()
	catalog := DefaultCatalog()
	resolver := NewResolver(repo, catalog)
	svc := NewService(repo, catalog, false)
	ctx := context.Background()

	patientID := uuid.New()
	controller := member("u0", circle.RolePatient)
	u1 := member("u1", circle.RoleCarer)

	// No role default: clearing reverts to deny.
	if err := svc.SetMemberOverride(ctx, controller, patientID, "u1", "journal_view", true); err != nil {
		t.Fatalf("set override: %v", err)
	}
	if err := svc.ClearMemberOverride(ctx, controller, patientID, "u1", "journal_view"); err != nil {
		t.Fatalf("clear override: %v", err)
	}
	if got := resolver.Resolve(ctx, patientID, u1, "journal_view"); got != Deny {
		t.Errorf("expected Deny after clear with no default, got %s", got)
	}
}
