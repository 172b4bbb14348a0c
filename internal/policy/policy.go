// Package policy manages tenant and shared policies and their
// attachments to organizations, teams and users.
package policy

import (
	"time"

	"github.com/dhawalhost/authgate/internal/pbac"
	"github.com/dhawalhost/authgate/pkg/apperr"
)

// Policy is a named, versioned list of statements. A nil OrgID marks a
// shared policy, visible to every tenant.
type Policy struct {
	ID         string          `db:"id" json:"id"`
	Version    string          `db:"version" json:"version"`
	Name       string          `db:"name" json:"name"`
	OrgID      *string         `db:"org_id" json:"organization_id,omitempty"`
	Statements pbac.Statements `db:"statements" json:"statements"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time       `db:"updated_at" json:"updated_at"`
}

// Shared reports whether the policy has no owning organization.
func (p Policy) Shared() bool { return p.OrgID == nil }

// EntityKind names the kind of entity a policy can be attached to.
type EntityKind string

const (
	EntityOrganization EntityKind = "organization"
	EntityTeam         EntityKind = "team"
	EntityUser         EntityKind = "user"
)

// Valid reports whether k is a known entity kind.
func (k EntityKind) Valid() bool {
	return k == EntityOrganization || k == EntityTeam || k == EntityUser
}

// EntityRef addresses one attachable entity.
type EntityRef struct {
	Kind EntityKind `json:"kind"`
	ID   string     `json:"id"`
}

// Validate checks the reference shape.
func (e EntityRef) Validate() error {
	if !e.Kind.Valid() {
		return apperr.Validation("unknown entity kind %q", e.Kind)
	}
	if e.ID == "" {
		return apperr.Validation("entity id is required")
	}
	return nil
}

// Attachment is one parameterized instance of a policy on an entity.
// PolicyName and PolicyVersion are joined in on reads.
type Attachment struct {
	Instance      string         `db:"instance" json:"instance"`
	EntityKind    EntityKind     `db:"entity_kind" json:"entity_kind"`
	EntityID      string         `db:"entity_id" json:"entity_id"`
	PolicyID      string         `db:"policy_id" json:"policy_id"`
	Variables     pbac.Variables `db:"variables" json:"variables"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
	PolicyName    string         `db:"policy_name" json:"policy_name,omitempty"`
	PolicyVersion string         `db:"policy_version" json:"policy_version,omitempty"`
}

// AttachmentRequest is one policy to attach in Attach/Replace calls.
type AttachmentRequest struct {
	PolicyID  string         `json:"policy_id" validate:"required"`
	Variables pbac.Variables `json:"variables"`
}

// Amendment updates the variable map of one existing instance.
type Amendment struct {
	Instance  string         `json:"instance" validate:"required"`
	Variables pbac.Variables `json:"variables"`
}
