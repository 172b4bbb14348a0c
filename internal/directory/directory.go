// Package directory manages the tenant structure policies attach to:
// organizations, their team hierarchies and their users.
package directory

import (
	"time"

	"github.com/lib/pq"
)

// Organization is one tenant.
type Organization struct {
	ID          string    `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// Team is one node of an organization's team hierarchy. Path is the
// materialized ancestor chain, root first and the team itself last;
// ancestry containment is prefix containment on Path.
type Team struct {
	ID          string         `db:"id" json:"id"`
	OrgID       string         `db:"org_id" json:"organization_id"`
	Name        string         `db:"name" json:"name"`
	Description string         `db:"description" json:"description,omitempty"`
	ParentID    *string        `db:"parent_id" json:"parent_id,omitempty"`
	Path        pq.StringArray `db:"path" json:"path"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at" json:"updated_at"`
}

// User belongs to exactly one organization.
type User struct {
	ID        string    `db:"id" json:"id"`
	OrgID     string    `db:"org_id" json:"organization_id"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
