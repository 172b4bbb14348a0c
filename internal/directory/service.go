package directory

import (
	"context"
	"slices"

	"github.com/google/uuid"

	"github.com/dhawalhost/authgate/pkg/apperr"
	"github.com/dhawalhost/authgate/pkg/database"
)

// Service defines directory management operations. Team moves and every
// delete that touches dependent rows run in a single transaction.
type Service interface {
	CreateOrganization(ctx context.Context, in OrganizationInput) (Organization, error)
	GetOrganization(ctx context.Context, id string) (Organization, error)
	ListOrganizations(ctx context.Context) ([]Organization, error)
	UpdateOrganization(ctx context.Context, id string, in OrganizationInput) (Organization, error)
	DeleteOrganization(ctx context.Context, id string) error

	CreateTeam(ctx context.Context, orgID string, in TeamInput) (Team, error)
	GetTeam(ctx context.Context, orgID, id string) (Team, error)
	ListTeams(ctx context.Context, orgID string) ([]Team, error)
	UpdateTeam(ctx context.Context, orgID, id string, in TeamInput) (Team, error)
	DeleteTeam(ctx context.Context, orgID, id string) error
	// MoveTeam reparents a team. The whole subtree's paths are rewritten
	// in the same transaction; a nil newParentID moves the team to the
	// top level.
	MoveTeam(ctx context.Context, orgID, id string, newParentID *string) (Team, error)

	AddTeamMember(ctx context.Context, orgID, teamID, userID string) error
	RemoveTeamMember(ctx context.Context, orgID, teamID, userID string) error
	ListTeamMembers(ctx context.Context, orgID, teamID string) ([]User, error)
	ListUserTeams(ctx context.Context, orgID, userID string) ([]Team, error)

	CreateUser(ctx context.Context, orgID string, in UserInput) (User, error)
	GetUser(ctx context.Context, orgID, id string) (User, error)
	ListUsers(ctx context.Context, orgID string) ([]User, error)
	UpdateUser(ctx context.Context, orgID, id string, in UserInput) (User, error)
	DeleteUser(ctx context.Context, orgID, id string) error
}

// OrganizationInput is the caller-facing shape for create/update. An
// empty ID on create gets a generated one.
type OrganizationInput struct {
	ID          string `json:"id"`
	Name        string `json:"name" validate:"required"`
	Description string `json:"description"`
}

// TeamInput is the caller-facing shape for create/update.
type TeamInput struct {
	ID          string  `json:"id"`
	Name        string  `json:"name" validate:"required"`
	Description string  `json:"description"`
	ParentID    *string `json:"parent_id"`
}

// UserInput is the caller-facing shape for create/update.
type UserInput struct {
	ID   string `json:"id"`
	Name string `json:"name" validate:"required"`
}

type service struct {
	store Store
	tx    database.Transactor
}

// NewService creates a new directory service.
func NewService(store Store, tx database.Transactor) Service {
	return &service{store: store, tx: tx}
}

func (s *service) CreateOrganization(ctx context.Context, in OrganizationInput) (Organization, error) {
	if in.Name == "" {
		return Organization{}, apperr.Validation("organization name is required")
	}
	org := Organization{ID: in.ID, Name: in.Name, Description: in.Description}
	if org.ID == "" {
		org.ID = uuid.NewString()
	}
	if err := s.store.CreateOrganization(ctx, &org); err != nil {
		return Organization{}, err
	}
	return org, nil
}

func (s *service) GetOrganization(ctx context.Context, id string) (Organization, error) {
	return s.store.GetOrganization(ctx, id)
}

func (s *service) ListOrganizations(ctx context.Context) ([]Organization, error) {
	return s.store.ListOrganizations(ctx)
}

func (s *service) UpdateOrganization(ctx context.Context, id string, in OrganizationInput) (Organization, error) {
	if in.Name == "" {
		return Organization{}, apperr.Validation("organization name is required")
	}
	org, err := s.store.GetOrganization(ctx, id)
	if err != nil {
		return Organization{}, err
	}
	org.Name = in.Name
	org.Description = in.Description
	if err := s.store.UpdateOrganization(ctx, &org); err != nil {
		return Organization{}, err
	}
	return org, nil
}

// DeleteOrganization removes the tenant with everything it owns: teams,
// users, memberships, its policies and every attachment on any of them.
func (s *service) DeleteOrganization(ctx context.Context, id string) error {
	return s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		if err := s.store.DeleteOrganizationData(ctx, id); err != nil {
			return err
		}
		return s.store.DeleteOrganization(ctx, id)
	})
}

func (s *service) CreateTeam(ctx context.Context, orgID string, in TeamInput) (Team, error) {
	if in.Name == "" {
		return Team{}, apperr.Validation("team name is required")
	}
	team := Team{
		ID:          in.ID,
		OrgID:       orgID,
		Name:        in.Name,
		Description: in.Description,
		ParentID:    in.ParentID,
	}
	if team.ID == "" {
		team.ID = uuid.NewString()
	}

	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		if _, err := s.store.GetOrganization(ctx, orgID); err != nil {
			return err
		}
		team.Path = []string{team.ID}
		if in.ParentID != nil {
			parent, err := s.store.GetTeam(ctx, orgID, *in.ParentID)
			if err != nil {
				return err
			}
			team.Path = append(append([]string{}, parent.Path...), team.ID)
		}
		return s.store.CreateTeam(ctx, &team)
	})
	if err != nil {
		return Team{}, err
	}
	return team, nil
}

func (s *service) GetTeam(ctx context.Context, orgID, id string) (Team, error) {
	return s.store.GetTeam(ctx, orgID, id)
}

func (s *service) ListTeams(ctx context.Context, orgID string) ([]Team, error) {
	return s.store.ListTeams(ctx, orgID)
}

func (s *service) UpdateTeam(ctx context.Context, orgID, id string, in TeamInput) (Team, error) {
	if in.Name == "" {
		return Team{}, apperr.Validation("team name is required")
	}
	team, err := s.store.GetTeam(ctx, orgID, id)
	if err != nil {
		return Team{}, err
	}
	team.Name = in.Name
	team.Description = in.Description
	if err := s.store.UpdateTeam(ctx, &team); err != nil {
		return Team{}, err
	}
	return team, nil
}

// DeleteTeam removes a leaf team together with its memberships and
// attachments. Teams with children cannot be deleted; move or delete the
// children first.
func (s *service) DeleteTeam(ctx context.Context, orgID, id string) error {
	return s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		if _, err := s.store.GetTeam(ctx, orgID, id); err != nil {
			return err
		}
		hasChildren, err := s.store.HasChildTeams(ctx, orgID, id)
		if err != nil {
			return err
		}
		if hasChildren {
			return apperr.Conflict("team %s has child teams", id)
		}
		if err := s.store.DeleteEntityAttachments(ctx, "team", id); err != nil {
			return err
		}
		return s.store.DeleteTeam(ctx, orgID, id)
	})
}

func (s *service) MoveTeam(ctx context.Context, orgID, id string, newParentID *string) (Team, error) {
	var moved Team
	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		team, err := s.store.GetTeam(ctx, orgID, id)
		if err != nil {
			return err
		}

		newPath := []string{team.ID}
		if newParentID != nil {
			if *newParentID == id {
				return apperr.Validation("team cannot be its own parent")
			}
			parent, err := s.store.GetTeam(ctx, orgID, *newParentID)
			if err != nil {
				return err
			}
			// a parent whose path contains the team would create a cycle
			if slices.Contains(parent.Path, id) {
				return apperr.Validation("cannot move team %s under its own descendant %s", id, parent.ID)
			}
			newPath = append(append([]string{}, parent.Path...), team.ID)
		}

		if err := s.store.SetTeamParent(ctx, orgID, id, newParentID, newPath); err != nil {
			return err
		}
		// descendants keep their suffix below the team, reanchored at the
		// new path; the subtree is unbounded, so this runs as one UPDATE
		if err := s.store.RewritePaths(ctx, orgID, team.Path, newPath); err != nil {
			return err
		}

		moved, err = s.store.GetTeam(ctx, orgID, id)
		return err
	})
	if err != nil {
		return Team{}, err
	}
	return moved, nil
}

func (s *service) AddTeamMember(ctx context.Context, orgID, teamID, userID string) error {
	return s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		if _, err := s.store.GetTeam(ctx, orgID, teamID); err != nil {
			return err
		}
		if _, err := s.store.GetUser(ctx, orgID, userID); err != nil {
			return err
		}
		return s.store.AddTeamMember(ctx, orgID, teamID, userID)
	})
}

func (s *service) RemoveTeamMember(ctx context.Context, orgID, teamID, userID string) error {
	removed, err := s.store.RemoveTeamMember(ctx, orgID, teamID, userID)
	if err != nil {
		return err
	}
	if !removed {
		return apperr.NotFound("user %s is not a member of team %s", userID, teamID)
	}
	return nil
}

func (s *service) ListTeamMembers(ctx context.Context, orgID, teamID string) ([]User, error) {
	if _, err := s.store.GetTeam(ctx, orgID, teamID); err != nil {
		return nil, err
	}
	return s.store.ListTeamMembers(ctx, orgID, teamID)
}

func (s *service) ListUserTeams(ctx context.Context, orgID, userID string) ([]Team, error) {
	if _, err := s.store.GetUser(ctx, orgID, userID); err != nil {
		return nil, err
	}
	return s.store.ListUserTeams(ctx, orgID, userID)
}

func (s *service) CreateUser(ctx context.Context, orgID string, in UserInput) (User, error) {
	if in.Name == "" {
		return User{}, apperr.Validation("user name is required")
	}
	user := User{ID: in.ID, OrgID: orgID, Name: in.Name}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		if _, err := s.store.GetOrganization(ctx, orgID); err != nil {
			return err
		}
		return s.store.CreateUser(ctx, &user)
	})
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *service) GetUser(ctx context.Context, orgID, id string) (User, error) {
	return s.store.GetUser(ctx, orgID, id)
}

func (s *service) ListUsers(ctx context.Context, orgID string) ([]User, error) {
	return s.store.ListUsers(ctx, orgID)
}

func (s *service) UpdateUser(ctx context.Context, orgID, id string, in UserInput) (User, error) {
	if in.Name == "" {
		return User{}, apperr.Validation("user name is required")
	}
	user, err := s.store.GetUser(ctx, orgID, id)
	if err != nil {
		return User{}, err
	}
	user.Name = in.Name
	if err := s.store.UpdateUser(ctx, &user); err != nil {
		return User{}, err
	}
	return user, nil
}

// DeleteUser removes the user together with memberships and attachments.
// Memberships go with the user via the store's cascading foreign key.
func (s *service) DeleteUser(ctx context.Context, orgID, id string) error {
	return s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		if err := s.store.DeleteEntityAttachments(ctx, "user", id); err != nil {
			return err
		}
		return s.store.DeleteUser(ctx, orgID, id)
	})
}
