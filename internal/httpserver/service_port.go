package httpserver

import (
	"context"

	"github.com/teamforge/collab-roles/internal/domain"
	"github.com/teamforge/collab-roles/internal/service"
)

type Service interface {
	Apply(ctx context.Context, in service.ApplyInput) (domain.Application, error)
	Accept(ctx context.Context, applicationID, actingUserID string) (domain.Application, error)
	Reject(ctx context.Context, applicationID, actingUserID, reason string) (domain.Application, error)
	Cancel(ctx context.Context, applicationID, actingUserID string) error

	GetApplication(ctx context.Context, applicationID string) (domain.Application, error)
	ListProjectApplications(ctx context.Context, projectID, actingUserID string) ([]domain.Application, error)
	ListOwnerApplications(ctx context.Context, ownerID string) ([]domain.Application, error)
	ListApplicantApplications(ctx context.Context, userID string) ([]domain.Application, error)
	ApprovedContributors(ctx context.Context, projectID string) ([]service.Contributor, error)
}
