package policy

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/dhawalhost/authgate/internal/pbac"
	"github.com/dhawalhost/authgate/pkg/apperr"
	"github.com/dhawalhost/authgate/pkg/database"
)

// Store defines policy and attachment storage operations. Every method
// runs on the transaction carried by ctx when there is one.
type Store interface {
	CreatePolicy(ctx context.Context, p *Policy) error
	GetPolicy(ctx context.Context, id string) (Policy, error)
	ListByOrganization(ctx context.Context, orgID string) ([]Policy, error)
	ListShared(ctx context.Context) ([]Policy, error)
	UpdatePolicy(ctx context.Context, p *Policy) error
	DeletePolicy(ctx context.Context, id string, orgID *string) error
	DeleteAttachmentsByPolicy(ctx context.Context, policyID string) error

	EntityOrganization(ctx context.Context, entity EntityRef) (string, error)
	InsertAttachment(ctx context.Context, att *Attachment) error
	InsertOrganizationAttachment(ctx context.Context, att *Attachment) (Attachment, error)
	GetAttachment(ctx context.Context, entity EntityRef, instance string) (Attachment, error)
	UpdateAttachmentVariables(ctx context.Context, entity EntityRef, instance string, vars pbac.Variables) (Attachment, error)
	DeleteAttachments(ctx context.Context, entity EntityRef, policyID, instance string) (int64, error)
	DeleteAllAttachments(ctx context.Context, entity EntityRef) error
	ListAttachments(ctx context.Context, entity EntityRef) ([]Attachment, error)
}

type store struct {
	db *sqlx.DB
}

// NewStore creates a new policy store.
func NewStore(db *sqlx.DB) Store {
	return &store{db: db}
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func (s *store) q(ctx context.Context) database.Querier {
	return database.Q(ctx, s.db)
}

func (s *store) CreatePolicy(ctx context.Context, p *Policy) error {
	err := s.q(ctx).GetContext(ctx, p, `
		INSERT INTO policies (id, version, name, org_id, statements)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, version, name, org_id, statements, created_at, updated_at`,
		p.ID, p.Version, p.Name, p.OrgID, p.Statements)
	if isUniqueViolation(err) {
		return apperr.Conflict("policy %s already exists", p.ID)
	}
	if err != nil {
		return apperr.Store(err)
	}
	return nil
}

func (s *store) GetPolicy(ctx context.Context, id string) (Policy, error) {
	var p Policy
	err := s.q(ctx).GetContext(ctx, &p, `SELECT * FROM policies WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Policy{}, apperr.NotFound("policy %s not found", id)
	}
	if err != nil {
		return Policy{}, apperr.Store(err)
	}
	return p, nil
}

func (s *store) ListByOrganization(ctx context.Context, orgID string) ([]Policy, error) {
	var policies []Policy
	err := s.q(ctx).SelectContext(ctx, &policies,
		`SELECT * FROM policies WHERE org_id = $1 ORDER BY UPPER(name)`, orgID)
	if err != nil {
		return nil, apperr.Store(err)
	}
	return policies, nil
}

func (s *store) ListShared(ctx context.Context) ([]Policy, error) {
	var policies []Policy
	err := s.q(ctx).SelectContext(ctx, &policies,
		`SELECT * FROM policies WHERE org_id IS NULL ORDER BY UPPER(name)`)
	if err != nil {
		return nil, apperr.Store(err)
	}
	return policies, nil
}

func (s *store) UpdatePolicy(ctx context.Context, p *Policy) error {
	res, err := s.q(ctx).ExecContext(ctx, `
		UPDATE policies SET version = $1, name = $2, statements = $3, updated_at = NOW()
		WHERE id = $4`,
		p.Version, p.Name, p.Statements, p.ID)
	if err != nil {
		return apperr.Store(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("policy %s not found", p.ID)
	}
	return nil
}

func (s *store) DeletePolicy(ctx context.Context, id string, orgID *string) error {
	var (
		res sql.Result
		err error
	)
	if orgID == nil {
		res, err = s.q(ctx).ExecContext(ctx,
			`DELETE FROM policies WHERE id = $1 AND org_id IS NULL`, id)
	} else {
		res, err = s.q(ctx).ExecContext(ctx,
			`DELETE FROM policies WHERE id = $1 AND org_id = $2`, id, *orgID)
	}
	if err != nil {
		return apperr.Store(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("policy %s not found", id)
	}
	return nil
}

func (s *store) DeleteAttachmentsByPolicy(ctx context.Context, policyID string) error {
	_, err := s.q(ctx).ExecContext(ctx,
		`DELETE FROM policy_attachments WHERE policy_id = $1`, policyID)
	if err != nil {
		return apperr.Store(err)
	}
	return nil
}

func (s *store) EntityOrganization(ctx context.Context, entity EntityRef) (string, error) {
	var (
		orgID string
		err   error
	)
	switch entity.Kind {
	case EntityOrganization:
		err = s.q(ctx).GetContext(ctx, &orgID,
			`SELECT id FROM organizations WHERE id = $1`, entity.ID)
	case EntityTeam:
		err = s.q(ctx).GetContext(ctx, &orgID,
			`SELECT org_id FROM teams WHERE id = $1`, entity.ID)
	case EntityUser:
		err = s.q(ctx).GetContext(ctx, &orgID,
			`SELECT org_id FROM users WHERE id = $1`, entity.ID)
	default:
		return "", apperr.Validation("unknown entity kind %q", entity.Kind)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return "", apperr.NotFound("%s %s not found", entity.Kind, entity.ID)
	}
	if err != nil {
		return "", apperr.Store(err)
	}
	return orgID, nil
}

func (s *store) InsertAttachment(ctx context.Context, att *Attachment) error {
	err := s.q(ctx).GetContext(ctx, att, `
		INSERT INTO policy_attachments (instance, entity_kind, entity_id, policy_id, variables)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING instance, entity_kind, entity_id, policy_id, variables, created_at`,
		att.Instance, att.EntityKind, att.EntityID, att.PolicyID, att.Variables)
	if isUniqueViolation(err) {
		return apperr.Conflict("policy %s with identical variables is already attached to %s %s",
			att.PolicyID, att.EntityKind, att.EntityID)
	}
	if err != nil {
		return apperr.Store(err)
	}
	return nil
}

// InsertOrganizationAttachment attaches a policy to an organization at
// most once regardless of variables. A duplicate attach is a no-op that
// returns the existing instance.
func (s *store) InsertOrganizationAttachment(ctx context.Context, att *Attachment) (Attachment, error) {
	var out Attachment
	err := s.q(ctx).GetContext(ctx, &out, `
		INSERT INTO policy_attachments (instance, entity_kind, entity_id, policy_id, variables)
		VALUES ($1, 'organization', $2, $3, $4)
		ON CONFLICT (entity_id, policy_id) WHERE entity_kind = 'organization' DO NOTHING
		RETURNING instance, entity_kind, entity_id, policy_id, variables, created_at`,
		att.Instance, att.EntityID, att.PolicyID, att.Variables)
	if errors.Is(err, sql.ErrNoRows) {
		// conflict path: fetch the surviving instance
		err = s.q(ctx).GetContext(ctx, &out, `
			SELECT instance, entity_kind, entity_id, policy_id, variables, created_at
			FROM policy_attachments
			WHERE entity_kind = 'organization' AND entity_id = $1 AND policy_id = $2`,
			att.EntityID, att.PolicyID)
	}
	if err != nil {
		return Attachment{}, apperr.Store(err)
	}
	return out, nil
}

func (s *store) GetAttachment(ctx context.Context, entity EntityRef, instance string) (Attachment, error) {
	var att Attachment
	err := s.q(ctx).GetContext(ctx, &att, `
		SELECT instance, entity_kind, entity_id, policy_id, variables, created_at
		FROM policy_attachments
		WHERE entity_kind = $1 AND entity_id = $2 AND instance = $3`,
		entity.Kind, entity.ID, instance)
	if errors.Is(err, sql.ErrNoRows) {
		return Attachment{}, apperr.NotFound("attachment %s not found on %s %s", instance, entity.Kind, entity.ID)
	}
	if err != nil {
		return Attachment{}, apperr.Store(err)
	}
	return att, nil
}

func (s *store) UpdateAttachmentVariables(ctx context.Context, entity EntityRef, instance string, vars pbac.Variables) (Attachment, error) {
	var att Attachment
	err := s.q(ctx).GetContext(ctx, &att, `
		UPDATE policy_attachments SET variables = $1
		WHERE entity_kind = $2 AND entity_id = $3 AND instance = $4
		RETURNING instance, entity_kind, entity_id, policy_id, variables, created_at`,
		vars, entity.Kind, entity.ID, instance)
	if isUniqueViolation(err) {
		return Attachment{}, apperr.Conflict("amendment of instance %s duplicates another attachment", instance)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return Attachment{}, apperr.NotFound("attachment %s not found on %s %s", instance, entity.Kind, entity.ID)
	}
	if err != nil {
		return Attachment{}, apperr.Store(err)
	}
	return att, nil
}

func (s *store) DeleteAttachments(ctx context.Context, entity EntityRef, policyID, instance string) (int64, error) {
	query := `DELETE FROM policy_attachments WHERE entity_kind = $1 AND entity_id = $2 AND policy_id = $3`
	args := []any{entity.Kind, entity.ID, policyID}
	if instance != "" {
		query += fmt.Sprintf(" AND instance = $%d", len(args)+1)
		args = append(args, instance)
	}
	res, err := s.q(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		return 0, apperr.Store(err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (s *store) DeleteAllAttachments(ctx context.Context, entity EntityRef) error {
	_, err := s.q(ctx).ExecContext(ctx,
		`DELETE FROM policy_attachments WHERE entity_kind = $1 AND entity_id = $2`,
		entity.Kind, entity.ID)
	if err != nil {
		return apperr.Store(err)
	}
	return nil
}

func (s *store) ListAttachments(ctx context.Context, entity EntityRef) ([]Attachment, error) {
	var atts []Attachment
	err := s.q(ctx).SelectContext(ctx, &atts, `
		SELECT a.instance, a.entity_kind, a.entity_id, a.policy_id, a.variables, a.created_at,
		       p.name AS policy_name, p.version AS policy_version
		FROM policy_attachments a
		JOIN policies p ON p.id = a.policy_id
		WHERE a.entity_kind = $1 AND a.entity_id = $2
		ORDER BY UPPER(p.name), a.created_at`,
		entity.Kind, entity.ID)
	if err != nil {
		return nil, apperr.Store(err)
	}
	return atts, nil
}
