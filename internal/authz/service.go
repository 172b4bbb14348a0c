package authz

import (
	"context"

	"github.com/dhawalhost/authgate/internal/pbac"
	"github.com/dhawalhost/authgate/pkg/apperr"
)

// Service defines the decision operations. They are read-only and safe
// for unlimited concurrent use; every call resolves the effective policy
// set fresh from the store, so a decision never observes state older
// than the last committed attachment change.
type Service interface {
	// IsAuthorized reports whether userID may perform action on resource
	// within orgID. An unknown user or an empty effective policy set
	// yields false, never an error.
	IsAuthorized(ctx context.Context, userID, action, resource, orgID string) (bool, error)
	// ListActions returns the actions userID may perform on resource
	// within orgID.
	ListActions(ctx context.Context, userID, resource, orgID string) ([]string, error)
	// ListActionsOnResources answers ListActions for each resource,
	// resolving policies once for the whole batch. Output preserves the
	// input resource order.
	ListActionsOnResources(ctx context.Context, userID string, resources []string, orgID string) ([]pbac.ResourceActions, error)
	// EffectiveOrganization resolves the organization a request operates
	// on: the caller's own, or override when the caller belongs to the
	// root organization.
	EffectiveOrganization(ctx context.Context, userID, override string) (string, error)
}

type service struct {
	store   Store
	rootOrg string
}

// NewService creates a new decision service. rootOrg names the
// organization whose members may act on other tenants.
func NewService(store Store, rootOrg string) Service {
	return &service{store: store, rootOrg: rootOrg}
}

// resolve aggregates the compiled statements that apply to userID when
// acting within reqOrg: attachments on the user, on every ancestor of
// the user's teams, on reqOrg, and, when a root-organization member is
// impersonating another tenant, on the root organization. A policy
// survives the tenant filter when it is owned by reqOrg, owned by the
// root organization under impersonation, or shared.
func (s *service) resolve(ctx context.Context, userID, reqOrg string) ([]pbac.Statement, error) {
	userOrg, found, err := s.store.UserOrganization(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	impersonating := userOrg == s.rootOrg && reqOrg != userOrg

	memberships, err := s.store.TeamMemberships(ctx, userID)
	if err != nil {
		return nil, err
	}
	// Each element of a member team's path is an ancestor-or-self id, so
	// the ancestor set is the union of all path elements.
	seen := make(map[string]struct{})
	var teamIDs []string
	for _, m := range memberships {
		for _, id := range m.Path {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			teamIDs = append(teamIDs, id)
		}
	}

	var atts []AttachedPolicy
	userAtts, err := s.store.UserAttachments(ctx, userID)
	if err != nil {
		return nil, err
	}
	atts = append(atts, userAtts...)

	teamAtts, err := s.store.TeamAttachments(ctx, teamIDs)
	if err != nil {
		return nil, err
	}
	atts = append(atts, teamAtts...)

	orgAtts, err := s.store.OrganizationAttachments(ctx, reqOrg)
	if err != nil {
		return nil, err
	}
	atts = append(atts, orgAtts...)

	if impersonating {
		rootAtts, err := s.store.OrganizationAttachments(ctx, s.rootOrg)
		if err != nil {
			return nil, err
		}
		atts = append(atts, rootAtts...)
	}

	var statements []pbac.Statement
	for _, a := range atts {
		switch {
		case a.Shared():
		case *a.OrgID == reqOrg:
		case impersonating && *a.OrgID == s.rootOrg:
		default:
			continue
		}
		statements = append(statements, pbac.CompileStatements(a.Statements, a.Variables)...)
	}
	return statements, nil
}

func validateDecisionInput(userID, orgID string) error {
	if userID == "" {
		return apperr.Validation("user id is required")
	}
	if orgID == "" {
		return apperr.Validation("organization id is required")
	}
	return nil
}

func (s *service) IsAuthorized(ctx context.Context, userID, action, resource, orgID string) (bool, error) {
	if err := validateDecisionInput(userID, orgID); err != nil {
		return false, err
	}
	if action == "" {
		return false, apperr.Validation("action is required")
	}
	if resource == "" {
		return false, apperr.Validation("resource is required")
	}
	statements, err := s.resolve(ctx, userID, orgID)
	if err != nil {
		return false, err
	}
	return pbac.Decide(statements, action, resource), nil
}

func (s *service) ListActions(ctx context.Context, userID, resource, orgID string) ([]string, error) {
	if err := validateDecisionInput(userID, orgID); err != nil {
		return nil, err
	}
	if resource == "" {
		return nil, apperr.Validation("resource is required")
	}
	statements, err := s.resolve(ctx, userID, orgID)
	if err != nil {
		return nil, err
	}
	return pbac.ListActions(statements, resource), nil
}

func (s *service) ListActionsOnResources(ctx context.Context, userID string, resources []string, orgID string) ([]pbac.ResourceActions, error) {
	if err := validateDecisionInput(userID, orgID); err != nil {
		return nil, err
	}
	if len(resources) == 0 {
		return nil, apperr.Validation("at least one resource is required")
	}
	for _, r := range resources {
		if r == "" {
			return nil, apperr.Validation("resource must not be empty")
		}
	}
	statements, err := s.resolve(ctx, userID, orgID)
	if err != nil {
		return nil, err
	}
	return pbac.ListActionsOnResources(statements, resources), nil
}

func (s *service) EffectiveOrganization(ctx context.Context, userID, override string) (string, error) {
	if userID == "" {
		return "", apperr.Validation("user id is required")
	}
	userOrg, found, err := s.store.UserOrganization(ctx, userID)
	if err != nil {
		return "", err
	}
	if !found {
		return "", apperr.NotFound("user %s not found", userID)
	}
	if override == "" || override == userOrg {
		return userOrg, nil
	}
	if userOrg != s.rootOrg {
		return "", apperr.CrossTenant("user %s may not act on organization %s", userID, override)
	}
	return override, nil
}
