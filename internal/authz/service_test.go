package authz

import (
	"context"
	"testing"

	"github.com/dhawalhost/authgate/internal/pbac"
	"github.com/dhawalhost/authgate/pkg/apperr"
)

var ctx = context.Background()

const rootOrg = "ROOT"

type fakeStore struct {
	userOrgs    map[string]string
	memberships map[string][]TeamMembership
	userAtts    map[string][]AttachedPolicy
	teamAtts    map[string][]AttachedPolicy
	orgAtts     map[string][]AttachedPolicy
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		userOrgs:    map[string]string{},
		memberships: map[string][]TeamMembership{},
		userAtts:    map[string][]AttachedPolicy{},
		teamAtts:    map[string][]AttachedPolicy{},
		orgAtts:     map[string][]AttachedPolicy{},
	}
}

func (f *fakeStore) UserOrganization(ctx context.Context, userID string) (string, bool, error) {
	org, ok := f.userOrgs[userID]
	return org, ok, nil
}

func (f *fakeStore) TeamMemberships(ctx context.Context, userID string) ([]TeamMembership, error) {
	return f.memberships[userID], nil
}

func (f *fakeStore) UserAttachments(ctx context.Context, userID string) ([]AttachedPolicy, error) {
	return f.userAtts[userID], nil
}

func (f *fakeStore) TeamAttachments(ctx context.Context, teamIDs []string) ([]AttachedPolicy, error) {
	var out []AttachedPolicy
	for _, id := range teamIDs {
		out = append(out, f.teamAtts[id]...)
	}
	return out, nil
}

func (f *fakeStore) OrganizationAttachments(ctx context.Context, orgID string) ([]AttachedPolicy, error) {
	return f.orgAtts[orgID], nil
}

func strptr(s string) *string { return &s }

func allow(orgID *string, actions, resources []string) AttachedPolicy {
	return AttachedPolicy{
		PolicyID: "p-allow",
		OrgID:    orgID,
		Statements: pbac.Statements{
			{Effect: pbac.EffectAllow, Actions: actions, Resources: resources},
		},
	}
}

func deny(orgID *string, actions, resources []string) AttachedPolicy {
	return AttachedPolicy{
		PolicyID: "p-deny",
		OrgID:    orgID,
		Statements: pbac.Statements{
			{Effect: pbac.EffectDeny, Actions: actions, Resources: resources},
		},
	}
}

func TestUnknownUserIsDeniedWithoutError(t *testing.T) {
	svc := NewService(newFakeStore(), rootOrg)
	allowed, err := svc.IsAuthorized(ctx, "ghost", "Read", "db:a", "org-a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if allowed {
		t.Fatalf("unknown user must be denied")
	}
}

func TestDefaultDeny(t *testing.T) {
	f := newFakeStore()
	f.userOrgs["u1"] = "org-a"
	svc := NewService(f, rootOrg)

	allowed, err := svc.IsAuthorized(ctx, "u1", "Read", "db:a", "org-a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if allowed {
		t.Fatalf("empty effective set must deny")
	}
}

func TestDenyOverridesAllowAcrossAttachments(t *testing.T) {
	f := newFakeStore()
	f.userOrgs["u1"] = "org-a"
	f.userAtts["u1"] = []AttachedPolicy{
		allow(strptr("org-a"), []string{"Read"}, []string{"db:*"}),
		deny(strptr("org-a"), []string{"Read"}, []string{"db:a"}),
	}
	svc := NewService(f, rootOrg)

	allowed, _ := svc.IsAuthorized(ctx, "u1", "Read", "db:a", "org-a")
	if allowed {
		t.Fatalf("deny must override allow")
	}
	allowed, _ = svc.IsAuthorized(ctx, "u1", "Read", "db:b", "org-a")
	if !allowed {
		t.Fatalf("allow must stand where no deny applies")
	}
}

func TestTeamAncestryInclusion(t *testing.T) {
	// hierarchy: root-team -> mid -> leaf
	f := newFakeStore()
	f.userOrgs["leafUser"] = "org-a"
	f.userOrgs["midUser"] = "org-a"
	f.memberships["leafUser"] = []TeamMembership{
		{TeamID: "leaf", Path: []string{"root-team", "mid", "leaf"}},
	}
	f.memberships["midUser"] = []TeamMembership{
		{TeamID: "mid", Path: []string{"root-team", "mid"}},
	}
	f.teamAtts["mid"] = []AttachedPolicy{
		allow(strptr("org-a"), []string{"Read"}, []string{"doc:mid"}),
	}
	f.teamAtts["leaf"] = []AttachedPolicy{
		allow(strptr("org-a"), []string{"Read"}, []string{"doc:leaf"}),
	}
	svc := NewService(f, rootOrg)

	// member of leaf inherits ancestor mid's policy
	allowed, _ := svc.IsAuthorized(ctx, "leafUser", "Read", "doc:mid", "org-a")
	if !allowed {
		t.Fatalf("leaf member must inherit mid's policy")
	}
	// member of mid does not inherit descendant leaf's policy
	allowed, _ = svc.IsAuthorized(ctx, "midUser", "Read", "doc:leaf", "org-a")
	if allowed {
		t.Fatalf("mid member must not inherit leaf's policy")
	}
}

func TestSharedPolicyUniversality(t *testing.T) {
	f := newFakeStore()
	f.userOrgs["u1"] = "org-a"
	f.userAtts["u1"] = []AttachedPolicy{
		allow(nil, []string{"Read"}, []string{"/pub/*"}),
	}
	svc := NewService(f, rootOrg)

	for _, org := range []string{"org-a", "org-b", "org-c"} {
		allowed, err := svc.IsAuthorized(ctx, "u1", "Read", "/pub/file", org)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !allowed {
			t.Fatalf("shared policy must apply in organization %s", org)
		}
	}
}

func TestTenantFilterDropsForeignPolicies(t *testing.T) {
	f := newFakeStore()
	f.userOrgs["u1"] = "org-a"
	f.userAtts["u1"] = []AttachedPolicy{
		allow(strptr("org-b"), []string{"Read"}, []string{"db:*"}),
	}
	svc := NewService(f, rootOrg)

	allowed, _ := svc.IsAuthorized(ctx, "u1", "Read", "db:a", "org-a")
	if allowed {
		t.Fatalf("a policy owned by another organization must be filtered out")
	}
}

func TestRootImpersonationIncludesRootOrgPolicies(t *testing.T) {
	f := newFakeStore()
	f.userOrgs["admin"] = rootOrg
	f.orgAtts[rootOrg] = []AttachedPolicy{
		allow(strptr(rootOrg), []string{"*"}, []string{"*"}),
	}
	svc := NewService(f, rootOrg)

	// acting on another tenant, root-org policies apply
	allowed, err := svc.IsAuthorized(ctx, "admin", "Read", "db:a", "org-b")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !allowed {
		t.Fatalf("root member impersonating must carry root-org policies")
	}

	// a regular user of org-b gains nothing from the root attachment
	f.userOrgs["u1"] = "org-b"
	allowed, _ = svc.IsAuthorized(ctx, "u1", "Read", "db:a", "org-b")
	if allowed {
		t.Fatalf("root-org policies must not leak to regular tenants")
	}
}

func TestVariablesCompileIntoResources(t *testing.T) {
	f := newFakeStore()
	f.userOrgs["u1"] = "org-a"
	f.userAtts["u1"] = []AttachedPolicy{
		{
			PolicyID: "p1",
			OrgID:    strptr("org-a"),
			Statements: pbac.Statements{
				{Effect: pbac.EffectAllow, Actions: []string{"Read"}, Resources: []string{"db:${name}"}},
			},
			Variables: pbac.Variables{"name": "reports"},
		},
	}
	svc := NewService(f, rootOrg)

	allowed, _ := svc.IsAuthorized(ctx, "u1", "Read", "db:reports", "org-a")
	if !allowed {
		t.Fatalf("variable must substitute into the resource pattern")
	}
	allowed, _ = svc.IsAuthorized(ctx, "u1", "Read", "db:other", "org-a")
	if allowed {
		t.Fatalf("substituted pattern must not match other resources")
	}
}

func TestListActionsDropsDeniedCandidates(t *testing.T) {
	f := newFakeStore()
	f.userOrgs["u1"] = "org-a"
	f.userAtts["u1"] = []AttachedPolicy{
		allow(strptr("org-a"), []string{"read", "write"}, []string{"db:*"}),
		deny(strptr("org-a"), []string{"read"}, []string{"db:secret"}),
	}
	svc := NewService(f, rootOrg)

	actions, err := svc.ListActions(ctx, "u1", "db:secret", "org-a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, a := range actions {
		if a == "read" {
			t.Fatalf("denied action must not be listed: %v", actions)
		}
	}

	allowed, _ := svc.IsAuthorized(ctx, "u1", "read", "db:public", "org-a")
	if !allowed {
		t.Fatalf("read on db:public must stay allowed")
	}
}

func TestListActionsOnResourcesPreservesOrder(t *testing.T) {
	f := newFakeStore()
	f.userOrgs["u1"] = "org-a"
	f.userAtts["u1"] = []AttachedPolicy{
		allow(strptr("org-a"), []string{"Read"}, []string{"db:*"}),
	}
	svc := NewService(f, rootOrg)

	resources := []string{"db:c", "db:a", "other:x", "db:b"}
	results, err := svc.ListActionsOnResources(ctx, "u1", resources, "org-a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != len(resources) {
		t.Fatalf("expected %d results, got %d", len(resources), len(results))
	}
	for i, r := range results {
		if r.Resource != resources[i] {
			t.Fatalf("result %d: expected resource %s, got %s", i, resources[i], r.Resource)
		}
	}
	if len(results[2].Actions) != 0 {
		t.Fatalf("unmatched resource must list no actions")
	}
}

func TestDecisionInputValidation(t *testing.T) {
	svc := NewService(newFakeStore(), rootOrg)

	if _, err := svc.IsAuthorized(ctx, "", "Read", "db:a", "org-a"); !apperr.IsValidation(err) {
		t.Fatalf("empty user id must be a validation error, got %v", err)
	}
	if _, err := svc.IsAuthorized(ctx, "u1", "", "db:a", "org-a"); !apperr.IsValidation(err) {
		t.Fatalf("empty action must be a validation error, got %v", err)
	}
	if _, err := svc.IsAuthorized(ctx, "u1", "Read", "", "org-a"); !apperr.IsValidation(err) {
		t.Fatalf("empty resource must be a validation error, got %v", err)
	}
	if _, err := svc.ListActions(ctx, "u1", "db:a", ""); !apperr.IsValidation(err) {
		t.Fatalf("empty org must be a validation error, got %v", err)
	}
	if _, err := svc.ListActionsOnResources(ctx, "u1", nil, "org-a"); !apperr.IsValidation(err) {
		t.Fatalf("empty resource list must be a validation error, got %v", err)
	}
}

func TestEffectiveOrganization(t *testing.T) {
	f := newFakeStore()
	f.userOrgs["admin"] = rootOrg
	f.userOrgs["u1"] = "org-a"
	svc := NewService(f, rootOrg)

	org, err := svc.EffectiveOrganization(ctx, "u1", "")
	if err != nil || org != "org-a" {
		t.Fatalf("expected own organization, got %q (%v)", org, err)
	}
	org, err = svc.EffectiveOrganization(ctx, "admin", "org-b")
	if err != nil || org != "org-b" {
		t.Fatalf("root member must impersonate, got %q (%v)", org, err)
	}
	if _, err := svc.EffectiveOrganization(ctx, "u1", "org-b"); !apperr.IsCrossTenant(err) {
		t.Fatalf("regular user override must be rejected, got %v", err)
	}
	if _, err := svc.EffectiveOrganization(ctx, "ghost", ""); !apperr.IsNotFound(err) {
		t.Fatalf("unknown caller must be not found, got %v", err)
	}
}
