package policy

import (
	"context"

	"github.com/google/uuid"

	"github.com/dhawalhost/authgate/internal/pbac"
	"github.com/dhawalhost/authgate/pkg/apperr"
	"github.com/dhawalhost/authgate/pkg/database"
)

// Service defines policy management and attachment operations. Every
// mutating attachment operation runs in a single transaction: it either
// applies completely or leaves no trace.
type Service interface {
	CreatePolicy(ctx context.Context, orgID string, in PolicyInput) (Policy, error)
	CreateSharedPolicy(ctx context.Context, in PolicyInput) (Policy, error)
	GetPolicy(ctx context.Context, orgID, id string) (Policy, error)
	ListPolicies(ctx context.Context, orgID string) ([]Policy, error)
	ListSharedPolicies(ctx context.Context) ([]Policy, error)
	UpdatePolicy(ctx context.Context, orgID, id string, in PolicyInput) (Policy, error)
	DeletePolicy(ctx context.Context, orgID, id string) error
	DeleteSharedPolicy(ctx context.Context, id string) error

	Attach(ctx context.Context, entity EntityRef, req AttachmentRequest) (Attachment, error)
	Replace(ctx context.Context, entity EntityRef, reqs []AttachmentRequest) ([]Attachment, error)
	Amend(ctx context.Context, entity EntityRef, amendments []Amendment) ([]Attachment, error)
	Detach(ctx context.Context, entity EntityRef, policyID, instance string) error
	DetachAll(ctx context.Context, entity EntityRef) error
	ListAttachments(ctx context.Context, entity EntityRef) ([]Attachment, error)
}

// PolicyInput is the caller-facing shape for create/update.
type PolicyInput struct {
	ID         string           `json:"id"`
	Version    string           `json:"version" validate:"required"`
	Name       string           `json:"name" validate:"required"`
	Statements []pbac.Statement `json:"statements" validate:"required,min=1"`
}

type service struct {
	store Store
	tx    database.Transactor
}

// NewService creates a new policy service.
func NewService(store Store, tx database.Transactor) Service {
	return &service{store: store, tx: tx}
}

func (in PolicyInput) validate() error {
	if in.Version == "" {
		return apperr.Validation("policy version is required")
	}
	if in.Name == "" {
		return apperr.Validation("policy name is required")
	}
	if len(in.Statements) == 0 {
		return apperr.Validation("policy requires at least one statement")
	}
	for _, st := range in.Statements {
		if err := st.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (s *service) createPolicy(ctx context.Context, orgID *string, in PolicyInput) (Policy, error) {
	if err := in.validate(); err != nil {
		return Policy{}, err
	}
	p := Policy{
		ID:         in.ID,
		Version:    in.Version,
		Name:       in.Name,
		OrgID:      orgID,
		Statements: in.Statements,
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if err := s.store.CreatePolicy(ctx, &p); err != nil {
		return Policy{}, err
	}
	return p, nil
}

func (s *service) CreatePolicy(ctx context.Context, orgID string, in PolicyInput) (Policy, error) {
	if orgID == "" {
		return Policy{}, apperr.Validation("organization id is required")
	}
	return s.createPolicy(ctx, &orgID, in)
}

func (s *service) CreateSharedPolicy(ctx context.Context, in PolicyInput) (Policy, error) {
	return s.createPolicy(ctx, nil, in)
}

func (s *service) GetPolicy(ctx context.Context, orgID, id string) (Policy, error) {
	p, err := s.store.GetPolicy(ctx, id)
	if err != nil {
		return Policy{}, err
	}
	// shared policies are visible to every tenant
	if !p.Shared() && *p.OrgID != orgID {
		return Policy{}, apperr.NotFound("policy %s not found", id)
	}
	return p, nil
}

func (s *service) ListPolicies(ctx context.Context, orgID string) ([]Policy, error) {
	return s.store.ListByOrganization(ctx, orgID)
}

func (s *service) ListSharedPolicies(ctx context.Context) ([]Policy, error) {
	return s.store.ListShared(ctx)
}

// UpdatePolicy changes name/version/statements in place. Decisions are
// always computed live, so the new statements take effect on the next
// request; nothing historical is rewritten.
func (s *service) UpdatePolicy(ctx context.Context, orgID, id string, in PolicyInput) (Policy, error) {
	if err := in.validate(); err != nil {
		return Policy{}, err
	}
	p, err := s.GetPolicy(ctx, orgID, id)
	if err != nil {
		return Policy{}, err
	}
	p.Version = in.Version
	p.Name = in.Name
	p.Statements = in.Statements
	if err := s.store.UpdatePolicy(ctx, &p); err != nil {
		return Policy{}, err
	}
	return p, nil
}

func (s *service) DeletePolicy(ctx context.Context, orgID, id string) error {
	return s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		if err := s.store.DeleteAttachmentsByPolicy(ctx, id); err != nil {
			return err
		}
		return s.store.DeletePolicy(ctx, id, &orgID)
	})
}

func (s *service) DeleteSharedPolicy(ctx context.Context, id string) error {
	return s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		if err := s.store.DeleteAttachmentsByPolicy(ctx, id); err != nil {
			return err
		}
		return s.store.DeletePolicy(ctx, id, nil)
	})
}

// Attach creates a new attachment instance. Organization-level attaches
// are idempotent per policy; team and user attaches conflict when an
// instance with the same variable map already exists. The tenant check
// rejects attaching another organization's policy unless it is shared.
func (s *service) Attach(ctx context.Context, entity EntityRef, req AttachmentRequest) (Attachment, error) {
	var out Attachment
	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		att, err := s.attach(ctx, entity, req)
		if err != nil {
			return err
		}
		out = att
		return nil
	})
	return out, err
}

func (s *service) attach(ctx context.Context, entity EntityRef, req AttachmentRequest) (Attachment, error) {
	if err := entity.Validate(); err != nil {
		return Attachment{}, err
	}
	if req.PolicyID == "" {
		return Attachment{}, apperr.Validation("policy id is required")
	}

	entityOrg, err := s.store.EntityOrganization(ctx, entity)
	if err != nil {
		return Attachment{}, err
	}
	p, err := s.store.GetPolicy(ctx, req.PolicyID)
	if err != nil {
		return Attachment{}, err
	}
	if !p.Shared() && *p.OrgID != entityOrg {
		return Attachment{}, apperr.CrossTenant("policy %s belongs to organization %s, not %s",
			p.ID, *p.OrgID, entityOrg)
	}

	att := Attachment{
		Instance:   uuid.NewString(),
		EntityKind: entity.Kind,
		EntityID:   entity.ID,
		PolicyID:   p.ID,
		Variables:  req.Variables,
	}
	if entity.Kind == EntityOrganization {
		out, err := s.store.InsertOrganizationAttachment(ctx, &att)
		if err != nil {
			return Attachment{}, err
		}
		out.PolicyName = p.Name
		out.PolicyVersion = p.Version
		return out, nil
	}
	if err := s.store.InsertAttachment(ctx, &att); err != nil {
		return Attachment{}, err
	}
	att.PolicyName = p.Name
	att.PolicyVersion = p.Version
	return att, nil
}

// Replace clears every attachment on the entity and attaches the given
// policies in order. Any individual conflict rolls the whole call back.
func (s *service) Replace(ctx context.Context, entity EntityRef, reqs []AttachmentRequest) ([]Attachment, error) {
	if err := entity.Validate(); err != nil {
		return nil, err
	}
	var out []Attachment
	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		if err := s.store.DeleteAllAttachments(ctx, entity); err != nil {
			return err
		}
		out = make([]Attachment, 0, len(reqs))
		for _, req := range reqs {
			att, err := s.attach(ctx, entity, req)
			if err != nil {
				return err
			}
			out = append(out, att)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Amend rewrites the variable maps of existing instances. Either every
// amendment applies or none does; producing a duplicate variable set for
// the same policy on the entity is a conflict.
func (s *service) Amend(ctx context.Context, entity EntityRef, amendments []Amendment) ([]Attachment, error) {
	if err := entity.Validate(); err != nil {
		return nil, err
	}
	if len(amendments) == 0 {
		return nil, apperr.Validation("at least one amendment is required")
	}
	var out []Attachment
	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		out = make([]Attachment, 0, len(amendments))
		for _, a := range amendments {
			if a.Instance == "" {
				return apperr.Validation("amendment instance id is required")
			}
			att, err := s.store.UpdateAttachmentVariables(ctx, entity, a.Instance, a.Variables)
			if err != nil {
				return err
			}
			out = append(out, att)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Detach removes one instance when instance is given, otherwise every
// instance of the policy on the entity.
func (s *service) Detach(ctx context.Context, entity EntityRef, policyID, instance string) error {
	if err := entity.Validate(); err != nil {
		return err
	}
	if policyID == "" {
		return apperr.Validation("policy id is required")
	}
	return s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		n, err := s.store.DeleteAttachments(ctx, entity, policyID, instance)
		if err != nil {
			return err
		}
		if instance != "" && n == 0 {
			return apperr.NotFound("attachment %s not found on %s %s", instance, entity.Kind, entity.ID)
		}
		return nil
	})
}

func (s *service) DetachAll(ctx context.Context, entity EntityRef) error {
	if err := entity.Validate(); err != nil {
		return err
	}
	return s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		return s.store.DeleteAllAttachments(ctx, entity)
	})
}

func (s *service) ListAttachments(ctx context.Context, entity EntityRef) ([]Attachment, error) {
	if err := entity.Validate(); err != nil {
		return nil, err
	}
	return s.store.ListAttachments(ctx, entity)
}
