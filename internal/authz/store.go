// Package authz computes authorization decisions: it resolves the
// effective policy set of a user for an organization context and
// evaluates actions and resources against it.
package authz

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/dhawalhost/authgate/internal/pbac"
	"github.com/dhawalhost/authgate/pkg/apperr"
	"github.com/dhawalhost/authgate/pkg/database"
)

// AttachedPolicy is one attachment row joined with its policy, ready for
// compilation.
type AttachedPolicy struct {
	PolicyID   string          `db:"policy_id"`
	Name       string          `db:"name"`
	Version    string          `db:"version"`
	OrgID      *string         `db:"org_id"`
	Statements pbac.Statements `db:"statements"`
	Variables  pbac.Variables  `db:"variables"`
}

// Shared reports whether the attached policy has no owning organization.
func (p AttachedPolicy) Shared() bool { return p.OrgID == nil }

// TeamMembership is one team a user belongs to, with the team's
// materialized ancestor path (root first, the team itself last).
type TeamMembership struct {
	TeamID string         `db:"team_id"`
	Path   pq.StringArray `db:"path"`
}

// Store defines the read path of the decision engine.
type Store interface {
	// UserOrganization returns the organization of userID. The second
	// return is false when the user does not exist; that is not an error
	// on the decision path.
	UserOrganization(ctx context.Context, userID string) (string, bool, error)
	TeamMemberships(ctx context.Context, userID string) ([]TeamMembership, error)
	UserAttachments(ctx context.Context, userID string) ([]AttachedPolicy, error)
	TeamAttachments(ctx context.Context, teamIDs []string) ([]AttachedPolicy, error)
	OrganizationAttachments(ctx context.Context, orgID string) ([]AttachedPolicy, error)
}

type store struct {
	db *sqlx.DB
}

// NewStore creates a new decision store.
func NewStore(db *sqlx.DB) Store {
	return &store{db: db}
}

func (s *store) q(ctx context.Context) database.Querier {
	return database.Q(ctx, s.db)
}

func (s *store) UserOrganization(ctx context.Context, userID string) (string, bool, error) {
	var orgID string
	err := s.q(ctx).GetContext(ctx, &orgID,
		`SELECT org_id FROM users WHERE id = $1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, apperr.Store(err)
	}
	return orgID, true, nil
}

func (s *store) TeamMemberships(ctx context.Context, userID string) ([]TeamMembership, error) {
	var memberships []TeamMembership
	err := s.q(ctx).SelectContext(ctx, &memberships, `
		SELECT t.id AS team_id, t.path
		FROM teams t
		JOIN team_members m ON m.team_id = t.id
		WHERE m.user_id = $1`, userID)
	if err != nil {
		return nil, apperr.Store(err)
	}
	return memberships, nil
}

const attachedPolicyQuery = `
	SELECT a.policy_id, p.name, p.version, p.org_id, p.statements, a.variables
	FROM policy_attachments a
	JOIN policies p ON p.id = a.policy_id`

func (s *store) UserAttachments(ctx context.Context, userID string) ([]AttachedPolicy, error) {
	var atts []AttachedPolicy
	err := s.q(ctx).SelectContext(ctx, &atts, attachedPolicyQuery+`
		WHERE a.entity_kind = 'user' AND a.entity_id = $1`, userID)
	if err != nil {
		return nil, apperr.Store(err)
	}
	return atts, nil
}

func (s *store) TeamAttachments(ctx context.Context, teamIDs []string) ([]AttachedPolicy, error) {
	if len(teamIDs) == 0 {
		return nil, nil
	}
	var atts []AttachedPolicy
	err := s.q(ctx).SelectContext(ctx, &atts, attachedPolicyQuery+`
		WHERE a.entity_kind = 'team' AND a.entity_id = ANY($1)`, pq.Array(teamIDs))
	if err != nil {
		return nil, apperr.Store(err)
	}
	return atts, nil
}

func (s *store) OrganizationAttachments(ctx context.Context, orgID string) ([]AttachedPolicy, error) {
	var atts []AttachedPolicy
	err := s.q(ctx).SelectContext(ctx, &atts, attachedPolicyQuery+`
		WHERE a.entity_kind = 'organization' AND a.entity_id = $1`, orgID)
	if err != nil {
		return nil, apperr.Store(err)
	}
	return atts, nil
}
