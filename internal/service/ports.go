package service

import (
	"context"

	"github.com/teamforge/collab-roles/internal/domain"
)

type ApplicationRepository interface {
	// Create stores app and returns it with its assigned id. A second PENDING
	// application for the same applicant and role fails with domain.ErrPendingApplication.
	Create(ctx context.Context, app domain.Application) (domain.Application, error)
	FindByID(ctx context.Context, id string) (domain.Application, error)
	ExistsWithStatus(ctx context.Context, userID, roleID string, status domain.ApplicationStatus) (bool, error)
	// SaveTransition persists next only while the stored status still equals from;
	// otherwise it fails with domain.ErrConcurrentModification.
	SaveTransition(ctx context.Context, next domain.Application, from domain.ApplicationStatus) error
	ListByProject(ctx context.Context, projectID string) ([]domain.Application, error)
	ListByRole(ctx context.Context, roleID string) ([]domain.Application, error)
	ListByOwner(ctx context.Context, ownerID string) ([]domain.Application, error)
	ListByApplicant(ctx context.Context, userID string) ([]domain.Application, error)
}

type RoleRepository interface {
	FindByID(ctx context.Context, id string) (domain.Role, error)
	// MarkFilled flips is_filled from false to true and fails with
	// domain.ErrRoleAlreadyFilled when the role was filled already.
	MarkFilled(ctx context.Context, id string) error
}

type ProjectRepository interface {
	FindByID(ctx context.Context, id string) (domain.Project, error)
}

type ProfileRepository interface {
	FindByID(ctx context.Context, userID string) (domain.Profile, error)
}

type Repositories struct {
	Applications ApplicationRepository
	Roles        RoleRepository
	Projects     ProjectRepository
	Profiles     ProfileRepository
}

// Store hands out repositories. Inside RunInTx the repositories share one
// transaction and application and role reads lock their rows until commit.
type Store interface {
	Repos() Repositories
	RunInTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
}

// EventSink receives lifecycle events. Delivery is best effort.
type EventSink interface {
	Publish(ctx context.Context, event domain.Event) error
}
