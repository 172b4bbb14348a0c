package integration

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/lib/pq"

	"github.com/dhawalhost/authgate/internal/authz"
	"github.com/dhawalhost/authgate/internal/pbac"
	"github.com/dhawalhost/authgate/internal/policy"
	"github.com/dhawalhost/authgate/pkg/apperr"
)

// memStore backs both the policy store and the decision store with one
// shared in-memory state, so attachment mutations are immediately
// visible to decisions, as they are with one database.
type memStore struct {
	mu sync.Mutex

	orgs        map[string]struct{}
	users       map[string]string         // user id -> org id
	teams       map[string]memTeam        // team id -> org + path
	members     map[string][]string       // user id -> team ids
	policies    map[string]policy.Policy  // policy id -> policy
	attachments map[string]memAttachment  // instance -> attachment
}

type memTeam struct {
	orgID string
	path  []string
}

type memAttachment struct {
	instance   string
	entityKind policy.EntityKind
	entityID   string
	policyID   string
	variables  pbac.Variables
	createdAt  time.Time
}

func newMemStore() *memStore {
	return &memStore{
		orgs:        map[string]struct{}{},
		users:       map[string]string{},
		teams:       map[string]memTeam{},
		members:     map[string][]string{},
		policies:    map[string]policy.Policy{},
		attachments: map[string]memAttachment{},
	}
}

// passTx satisfies database.Transactor; the in-memory store mutates
// under its own lock.
type passTx struct{}

func (passTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (m *memStore) addOrg(id string) { m.orgs[id] = struct{}{} }

func (m *memStore) addUser(id, orgID string) { m.users[id] = orgID }

func (m *memStore) addTeam(id, orgID string, path ...string) {
	m.teams[id] = memTeam{orgID: orgID, path: path}
}

func (m *memStore) addMember(userID, teamID string) {
	m.members[userID] = append(m.members[userID], teamID)
}

func varsKey(v pbac.Variables) string {
	if len(v) == 0 {
		return "{}"
	}
	b, _ := json.Marshal(v)
	return string(b)
}

// policy.Store

func (m *memStore) CreatePolicy(ctx context.Context, p *policy.Policy) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.policies[p.ID]; ok {
		return apperr.Conflict("policy %s already exists", p.ID)
	}
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	m.policies[p.ID] = *p
	return nil
}

func (m *memStore) GetPolicy(ctx context.Context, id string) (policy.Policy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.policies[id]
	if !ok {
		return policy.Policy{}, apperr.NotFound("policy %s not found", id)
	}
	return p, nil
}

func (m *memStore) ListByOrganization(ctx context.Context, orgID string) ([]policy.Policy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []policy.Policy
	for _, p := range m.policies {
		if p.OrgID != nil && *p.OrgID == orgID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memStore) ListShared(ctx context.Context) ([]policy.Policy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []policy.Policy
	for _, p := range m.policies {
		if p.Shared() {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memStore) UpdatePolicy(ctx context.Context, p *policy.Policy) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.policies[p.ID]; !ok {
		return apperr.NotFound("policy %s not found", p.ID)
	}
	m.policies[p.ID] = *p
	return nil
}

func (m *memStore) DeletePolicy(ctx context.Context, id string, orgID *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.policies[id]
	if !ok {
		return apperr.NotFound("policy %s not found", id)
	}
	if (orgID == nil) != p.Shared() {
		return apperr.NotFound("policy %s not found", id)
	}
	if orgID != nil && *p.OrgID != *orgID {
		return apperr.NotFound("policy %s not found", id)
	}
	delete(m.policies, id)
	return nil
}

func (m *memStore) DeleteAttachmentsByPolicy(ctx context.Context, policyID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for instance, a := range m.attachments {
		if a.policyID == policyID {
			delete(m.attachments, instance)
		}
	}
	return nil
}

func (m *memStore) EntityOrganization(ctx context.Context, entity policy.EntityRef) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch entity.Kind {
	case policy.EntityOrganization:
		if _, ok := m.orgs[entity.ID]; ok {
			return entity.ID, nil
		}
	case policy.EntityTeam:
		if t, ok := m.teams[entity.ID]; ok {
			return t.orgID, nil
		}
	case policy.EntityUser:
		if org, ok := m.users[entity.ID]; ok {
			return org, nil
		}
	default:
		return "", apperr.Validation("unknown entity kind %q", entity.Kind)
	}
	return "", apperr.NotFound("%s %s not found", entity.Kind, entity.ID)
}

func (m *memStore) InsertAttachment(ctx context.Context, att *policy.Attachment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.attachments {
		if a.entityKind == att.EntityKind && a.entityID == att.EntityID &&
			a.policyID == att.PolicyID && varsKey(a.variables) == varsKey(att.Variables) {
			return apperr.Conflict("policy %s with identical variables is already attached to %s %s",
				att.PolicyID, att.EntityKind, att.EntityID)
		}
	}
	att.CreatedAt = time.Now()
	m.attachments[att.Instance] = memAttachment{
		instance:   att.Instance,
		entityKind: att.EntityKind,
		entityID:   att.EntityID,
		policyID:   att.PolicyID,
		variables:  att.Variables,
		createdAt:  att.CreatedAt,
	}
	return nil
}

func (m *memStore) InsertOrganizationAttachment(ctx context.Context, att *policy.Attachment) (policy.Attachment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.attachments {
		if a.entityKind == policy.EntityOrganization && a.entityID == att.EntityID && a.policyID == att.PolicyID {
			return a.toAttachment(), nil
		}
	}
	att.CreatedAt = time.Now()
	stored := memAttachment{
		instance:   att.Instance,
		entityKind: policy.EntityOrganization,
		entityID:   att.EntityID,
		policyID:   att.PolicyID,
		variables:  att.Variables,
		createdAt:  att.CreatedAt,
	}
	m.attachments[att.Instance] = stored
	return stored.toAttachment(), nil
}

func (a memAttachment) toAttachment() policy.Attachment {
	return policy.Attachment{
		Instance:   a.instance,
		EntityKind: a.entityKind,
		EntityID:   a.entityID,
		PolicyID:   a.policyID,
		Variables:  a.variables,
		CreatedAt:  a.createdAt,
	}
}

func (m *memStore) GetAttachment(ctx context.Context, entity policy.EntityRef, instance string) (policy.Attachment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attachments[instance]
	if !ok || a.entityKind != entity.Kind || a.entityID != entity.ID {
		return policy.Attachment{}, apperr.NotFound("attachment %s not found on %s %s", instance, entity.Kind, entity.ID)
	}
	return a.toAttachment(), nil
}

func (m *memStore) UpdateAttachmentVariables(ctx context.Context, entity policy.EntityRef, instance string, vars pbac.Variables) (policy.Attachment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attachments[instance]
	if !ok || a.entityKind != entity.Kind || a.entityID != entity.ID {
		return policy.Attachment{}, apperr.NotFound("attachment %s not found on %s %s", instance, entity.Kind, entity.ID)
	}
	for _, other := range m.attachments {
		if other.instance == instance {
			continue
		}
		if other.entityKind == entity.Kind && other.entityID == entity.ID &&
			other.policyID == a.policyID && varsKey(other.variables) == varsKey(vars) {
			return policy.Attachment{}, apperr.Conflict("amendment of instance %s duplicates another attachment", instance)
		}
	}
	a.variables = vars
	m.attachments[instance] = a
	return a.toAttachment(), nil
}

func (m *memStore) DeleteAttachments(ctx context.Context, entity policy.EntityRef, policyID, instance string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for key, a := range m.attachments {
		if a.entityKind != entity.Kind || a.entityID != entity.ID || a.policyID != policyID {
			continue
		}
		if instance != "" && a.instance != instance {
			continue
		}
		delete(m.attachments, key)
		n++
	}
	return n, nil
}

func (m *memStore) DeleteAllAttachments(ctx context.Context, entity policy.EntityRef) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, a := range m.attachments {
		if a.entityKind == entity.Kind && a.entityID == entity.ID {
			delete(m.attachments, key)
		}
	}
	return nil
}

func (m *memStore) ListAttachments(ctx context.Context, entity policy.EntityRef) ([]policy.Attachment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []policy.Attachment
	for _, a := range m.attachments {
		if a.entityKind == entity.Kind && a.entityID == entity.ID {
			att := a.toAttachment()
			if p, ok := m.policies[a.policyID]; ok {
				att.PolicyName = p.Name
				att.PolicyVersion = p.Version
			}
			out = append(out, att)
		}
	}
	return out, nil
}

// authz.Store

func (m *memStore) UserOrganization(ctx context.Context, userID string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	org, ok := m.users[userID]
	return org, ok, nil
}

func (m *memStore) TeamMemberships(ctx context.Context, userID string) ([]authz.TeamMembership, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []authz.TeamMembership
	for _, teamID := range m.members[userID] {
		t, ok := m.teams[teamID]
		if !ok {
			continue
		}
		out = append(out, authz.TeamMembership{TeamID: teamID, Path: pq.StringArray(t.path)})
	}
	return out, nil
}

func (m *memStore) attachedPolicies(kind policy.EntityKind, entityIDs map[string]struct{}) []authz.AttachedPolicy {
	var out []authz.AttachedPolicy
	for _, a := range m.attachments {
		if a.entityKind != kind {
			continue
		}
		if _, ok := entityIDs[a.entityID]; !ok {
			continue
		}
		p, ok := m.policies[a.policyID]
		if !ok {
			continue
		}
		out = append(out, authz.AttachedPolicy{
			PolicyID:   p.ID,
			Name:       p.Name,
			Version:    p.Version,
			OrgID:      p.OrgID,
			Statements: p.Statements,
			Variables:  a.variables,
		})
	}
	return out
}

func (m *memStore) UserAttachments(ctx context.Context, userID string) ([]authz.AttachedPolicy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attachedPolicies(policy.EntityUser, map[string]struct{}{userID: {}}), nil
}

func (m *memStore) TeamAttachments(ctx context.Context, teamIDs []string) ([]authz.AttachedPolicy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make(map[string]struct{}, len(teamIDs))
	for _, id := range teamIDs {
		ids[id] = struct{}{}
	}
	return m.attachedPolicies(policy.EntityTeam, ids), nil
}

func (m *memStore) OrganizationAttachments(ctx context.Context, orgID string) ([]authz.AttachedPolicy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attachedPolicies(policy.EntityOrganization, map[string]struct{}{orgID: {}}), nil
}
