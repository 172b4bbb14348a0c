package directory

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/dhawalhost/authgate/pkg/apperr"
	"github.com/dhawalhost/authgate/pkg/database"
)

// Store defines directory storage operations. Every method runs on the
// transaction carried by ctx when there is one.
type Store interface {
	CreateOrganization(ctx context.Context, org *Organization) error
	GetOrganization(ctx context.Context, id string) (Organization, error)
	ListOrganizations(ctx context.Context) ([]Organization, error)
	UpdateOrganization(ctx context.Context, org *Organization) error
	DeleteOrganization(ctx context.Context, id string) error
	// DeleteOrganizationData removes everything owned by the
	// organization: attachments on it and on its teams and users, its
	// policies, team memberships, teams and users. The organization row
	// itself is left to DeleteOrganization.
	DeleteOrganizationData(ctx context.Context, id string) error

	CreateTeam(ctx context.Context, team *Team) error
	GetTeam(ctx context.Context, orgID, id string) (Team, error)
	ListTeams(ctx context.Context, orgID string) ([]Team, error)
	UpdateTeam(ctx context.Context, team *Team) error
	DeleteTeam(ctx context.Context, orgID, id string) error
	// HasChildTeams reports whether any team has id as its parent.
	HasChildTeams(ctx context.Context, orgID, id string) (bool, error)
	// RewritePaths repoints the moved team and every descendant: rows
	// whose path starts with oldPath get that prefix replaced by newPath.
	RewritePaths(ctx context.Context, orgID string, oldPath, newPath []string) error
	SetTeamParent(ctx context.Context, orgID, id string, parentID *string, path []string) error

	AddTeamMember(ctx context.Context, orgID, teamID, userID string) error
	RemoveTeamMember(ctx context.Context, orgID, teamID, userID string) (bool, error)
	ListTeamMembers(ctx context.Context, orgID, teamID string) ([]User, error)
	ListUserTeams(ctx context.Context, orgID, userID string) ([]Team, error)

	CreateUser(ctx context.Context, user *User) error
	GetUser(ctx context.Context, orgID, id string) (User, error)
	ListUsers(ctx context.Context, orgID string) ([]User, error)
	UpdateUser(ctx context.Context, user *User) error
	DeleteUser(ctx context.Context, orgID, id string) error
	// DeleteEntityAttachments removes policy attachments held by one
	// team or user being deleted.
	DeleteEntityAttachments(ctx context.Context, kind, id string) error
}

type store struct {
	db *sqlx.DB
}

// NewStore creates a new directory store.
func NewStore(db *sqlx.DB) Store {
	return &store{db: db}
}

func (s *store) q(ctx context.Context) database.Querier {
	return database.Q(ctx, s.db)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func (s *store) CreateOrganization(ctx context.Context, org *Organization) error {
	err := s.q(ctx).GetContext(ctx, org, `
		INSERT INTO organizations (id, name, description)
		VALUES ($1, $2, $3)
		RETURNING id, name, description, created_at, updated_at`,
		org.ID, org.Name, org.Description)
	if isUniqueViolation(err) {
		return apperr.Conflict("organization %s already exists", org.ID)
	}
	if err != nil {
		return apperr.Store(err)
	}
	return nil
}

func (s *store) GetOrganization(ctx context.Context, id string) (Organization, error) {
	var org Organization
	err := s.q(ctx).GetContext(ctx, &org, `SELECT * FROM organizations WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Organization{}, apperr.NotFound("organization %s not found", id)
	}
	if err != nil {
		return Organization{}, apperr.Store(err)
	}
	return org, nil
}

func (s *store) ListOrganizations(ctx context.Context) ([]Organization, error) {
	var orgs []Organization
	err := s.q(ctx).SelectContext(ctx, &orgs,
		`SELECT * FROM organizations ORDER BY UPPER(name)`)
	if err != nil {
		return nil, apperr.Store(err)
	}
	return orgs, nil
}

func (s *store) UpdateOrganization(ctx context.Context, org *Organization) error {
	res, err := s.q(ctx).ExecContext(ctx, `
		UPDATE organizations SET name = $1, description = $2, updated_at = NOW()
		WHERE id = $3`,
		org.Name, org.Description, org.ID)
	if err != nil {
		return apperr.Store(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("organization %s not found", org.ID)
	}
	return nil
}

func (s *store) DeleteOrganization(ctx context.Context, id string) error {
	res, err := s.q(ctx).ExecContext(ctx, `DELETE FROM organizations WHERE id = $1`, id)
	if err != nil {
		return apperr.Store(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("organization %s not found", id)
	}
	return nil
}

func (s *store) DeleteOrganizationData(ctx context.Context, id string) error {
	statements := []string{
		`DELETE FROM policy_attachments
		 WHERE (entity_kind = 'organization' AND entity_id = $1)
		    OR (entity_kind = 'team' AND entity_id IN (SELECT id FROM teams WHERE org_id = $1))
		    OR (entity_kind = 'user' AND entity_id IN (SELECT id FROM users WHERE org_id = $1))`,
		`DELETE FROM policy_attachments
		 WHERE policy_id IN (SELECT id FROM policies WHERE org_id = $1)`,
		`DELETE FROM policies WHERE org_id = $1`,
		`DELETE FROM team_members
		 WHERE team_id IN (SELECT id FROM teams WHERE org_id = $1)`,
		`DELETE FROM teams WHERE org_id = $1`,
		`DELETE FROM users WHERE org_id = $1`,
	}
	for _, stmt := range statements {
		if _, err := s.q(ctx).ExecContext(ctx, stmt, id); err != nil {
			return apperr.Store(err)
		}
	}
	return nil
}

func (s *store) CreateTeam(ctx context.Context, team *Team) error {
	err := s.q(ctx).GetContext(ctx, team, `
		INSERT INTO teams (id, org_id, name, description, parent_id, path)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, org_id, name, description, parent_id, path, created_at, updated_at`,
		team.ID, team.OrgID, team.Name, team.Description, team.ParentID, team.Path)
	if isUniqueViolation(err) {
		return apperr.Conflict("team %s already exists", team.ID)
	}
	if err != nil {
		return apperr.Store(err)
	}
	return nil
}

func (s *store) GetTeam(ctx context.Context, orgID, id string) (Team, error) {
	var team Team
	err := s.q(ctx).GetContext(ctx, &team,
		`SELECT * FROM teams WHERE id = $1 AND org_id = $2`, id, orgID)
	if errors.Is(err, sql.ErrNoRows) {
		return Team{}, apperr.NotFound("team %s not found", id)
	}
	if err != nil {
		return Team{}, apperr.Store(err)
	}
	return team, nil
}

func (s *store) ListTeams(ctx context.Context, orgID string) ([]Team, error) {
	var teams []Team
	err := s.q(ctx).SelectContext(ctx, &teams,
		`SELECT * FROM teams WHERE org_id = $1 ORDER BY UPPER(name)`, orgID)
	if err != nil {
		return nil, apperr.Store(err)
	}
	return teams, nil
}

func (s *store) UpdateTeam(ctx context.Context, team *Team) error {
	res, err := s.q(ctx).ExecContext(ctx, `
		UPDATE teams SET name = $1, description = $2, updated_at = NOW()
		WHERE id = $3 AND org_id = $4`,
		team.Name, team.Description, team.ID, team.OrgID)
	if err != nil {
		return apperr.Store(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("team %s not found", team.ID)
	}
	return nil
}

func (s *store) DeleteTeam(ctx context.Context, orgID, id string) error {
	res, err := s.q(ctx).ExecContext(ctx,
		`DELETE FROM teams WHERE id = $1 AND org_id = $2`, id, orgID)
	if err != nil {
		return apperr.Store(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("team %s not found", id)
	}
	return nil
}

func (s *store) HasChildTeams(ctx context.Context, orgID, id string) (bool, error) {
	var exists bool
	err := s.q(ctx).GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM teams WHERE parent_id = $1 AND org_id = $2)`, id, orgID)
	if err != nil {
		return false, apperr.Store(err)
	}
	return exists, nil
}

func (s *store) RewritePaths(ctx context.Context, orgID string, oldPath, newPath []string) error {
	_, err := s.q(ctx).ExecContext(ctx, `
		UPDATE teams
		SET path = $1::text[] || path[$2+1:cardinality(path)], updated_at = NOW()
		WHERE org_id = $3 AND path[1:$2] = $4::text[]`,
		pq.Array(newPath), len(oldPath), orgID, pq.Array(oldPath))
	if err != nil {
		return apperr.Store(err)
	}
	return nil
}

func (s *store) SetTeamParent(ctx context.Context, orgID, id string, parentID *string, path []string) error {
	res, err := s.q(ctx).ExecContext(ctx, `
		UPDATE teams SET parent_id = $1, path = $2, updated_at = NOW()
		WHERE id = $3 AND org_id = $4`,
		parentID, pq.Array(path), id, orgID)
	if err != nil {
		return apperr.Store(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("team %s not found", id)
	}
	return nil
}

// AddTeamMember is idempotent: adding an existing member is a no-op.
func (s *store) AddTeamMember(ctx context.Context, orgID, teamID, userID string) error {
	_, err := s.q(ctx).ExecContext(ctx, `
		INSERT INTO team_members (team_id, user_id)
		SELECT $1, $2
		WHERE EXISTS (SELECT 1 FROM teams WHERE id = $1 AND org_id = $3)
		  AND EXISTS (SELECT 1 FROM users WHERE id = $2 AND org_id = $3)
		ON CONFLICT (team_id, user_id) DO NOTHING`,
		teamID, userID, orgID)
	if err != nil {
		return apperr.Store(err)
	}
	return nil
}

func (s *store) RemoveTeamMember(ctx context.Context, orgID, teamID, userID string) (bool, error) {
	res, err := s.q(ctx).ExecContext(ctx, `
		DELETE FROM team_members
		WHERE team_id = $1 AND user_id = $2
		  AND EXISTS (SELECT 1 FROM teams WHERE id = $1 AND org_id = $3)`,
		teamID, userID, orgID)
	if err != nil {
		return false, apperr.Store(err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *store) ListTeamMembers(ctx context.Context, orgID, teamID string) ([]User, error) {
	var users []User
	err := s.q(ctx).SelectContext(ctx, &users, `
		SELECT u.* FROM users u
		JOIN team_members m ON m.user_id = u.id
		JOIN teams t ON t.id = m.team_id
		WHERE m.team_id = $1 AND t.org_id = $2
		ORDER BY UPPER(u.name)`,
		teamID, orgID)
	if err != nil {
		return nil, apperr.Store(err)
	}
	return users, nil
}

func (s *store) ListUserTeams(ctx context.Context, orgID, userID string) ([]Team, error) {
	var teams []Team
	err := s.q(ctx).SelectContext(ctx, &teams, `
		SELECT t.* FROM teams t
		JOIN team_members m ON m.team_id = t.id
		WHERE m.user_id = $1 AND t.org_id = $2
		ORDER BY UPPER(t.name)`,
		userID, orgID)
	if err != nil {
		return nil, apperr.Store(err)
	}
	return teams, nil
}

func (s *store) CreateUser(ctx context.Context, user *User) error {
	err := s.q(ctx).GetContext(ctx, user, `
		INSERT INTO users (id, org_id, name)
		VALUES ($1, $2, $3)
		RETURNING id, org_id, name, created_at, updated_at`,
		user.ID, user.OrgID, user.Name)
	if isUniqueViolation(err) {
		return apperr.Conflict("user %s already exists", user.ID)
	}
	if err != nil {
		return apperr.Store(err)
	}
	return nil
}

func (s *store) GetUser(ctx context.Context, orgID, id string) (User, error) {
	var user User
	err := s.q(ctx).GetContext(ctx, &user,
		`SELECT * FROM users WHERE id = $1 AND org_id = $2`, id, orgID)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, apperr.NotFound("user %s not found", id)
	}
	if err != nil {
		return User{}, apperr.Store(err)
	}
	return user, nil
}

func (s *store) ListUsers(ctx context.Context, orgID string) ([]User, error) {
	var users []User
	err := s.q(ctx).SelectContext(ctx, &users,
		`SELECT * FROM users WHERE org_id = $1 ORDER BY UPPER(name)`, orgID)
	if err != nil {
		return nil, apperr.Store(err)
	}
	return users, nil
}

func (s *store) UpdateUser(ctx context.Context, user *User) error {
	res, err := s.q(ctx).ExecContext(ctx, `
		UPDATE users SET name = $1, updated_at = NOW()
		WHERE id = $2 AND org_id = $3`,
		user.Name, user.ID, user.OrgID)
	if err != nil {
		return apperr.Store(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("user %s not found", user.ID)
	}
	return nil
}

func (s *store) DeleteUser(ctx context.Context, orgID, id string) error {
	res, err := s.q(ctx).ExecContext(ctx,
		`DELETE FROM users WHERE id = $1 AND org_id = $2`, id, orgID)
	if err != nil {
		return apperr.Store(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("user %s not found", id)
	}
	return nil
}

func (s *store) DeleteEntityAttachments(ctx context.Context, kind, id string) error {
	_, err := s.q(ctx).ExecContext(ctx,
		`DELETE FROM policy_attachments WHERE entity_kind = $1 AND entity_id = $2`,
		kind, id)
	if err != nil {
		return apperr.Store(err)
	}
	return nil
}
