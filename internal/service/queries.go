package service

import (
	"context"
	"sort"
	"time"

	"github.com/teamforge/collab-roles/internal/domain"
)

const opQuery = "query"

type ContributorRole struct {
	RoleID     string
	RoleTitle  string
	AcceptedAt time.Time
}

// Contributor is an applicant with at least one accepted application on a project.
type Contributor struct {
	Profile domain.Profile
	Roles   []ContributorRole
}

func (c Contributor) RoleCount() int {
	return len(c.Roles)
}

func (s *Service) GetApplication(ctx context.Context, applicationID string) (domain.Application, error) {
	app, err := s.store.Repos().Applications.FindByID(ctx, applicationID)
	if err != nil {
		return domain.Application{}, s.translate(opQuery, domain.ErrLoadApplications, err)
	}
	return app, nil
}

// ListProjectApplications returns every application of a project. Only the
// project owner may list them.
func (s *Service) ListProjectApplications(ctx context.Context, projectID, actingUserID string) ([]domain.Application, error) {
	repos := s.store.Repos()

	project, err := repos.Projects.FindByID(ctx, projectID)
	if err != nil {
		return nil, s.translate(opQuery, domain.ErrLoadApplications, err)
	}
	if !project.HasOwnerID(actingUserID) {
		return nil, domain.ErrNotProjectOwner
	}

	apps, err := repos.Applications.ListByProject(ctx, projectID)
	if err != nil {
		return nil, s.translate(opQuery, domain.ErrLoadApplications, err)
	}
	return apps, nil
}

// ListOwnerApplications returns the applications across all projects owned by ownerID.
func (s *Service) ListOwnerApplications(ctx context.Context, ownerID string) ([]domain.Application, error) {
	apps, err := s.store.Repos().Applications.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, s.translate(opQuery, domain.ErrLoadApplications, err)
	}
	return apps, nil
}

func (s *Service) ListApplicantApplications(ctx context.Context, userID string) ([]domain.Application, error) {
	apps, err := s.store.Repos().Applications.ListByApplicant(ctx, userID)
	if err != nil {
		return nil, s.translate(opQuery, domain.ErrLoadApplications, err)
	}
	return apps, nil
}

// ApprovedContributors groups the accepted applications of a project by
// applicant. The result is ordered by number of roles won, then by name.
func (s *Service) ApprovedContributors(ctx context.Context, projectID string) ([]Contributor, error) {
	repos := s.store.Repos()

	if _, err := repos.Projects.FindByID(ctx, projectID); err != nil {
		return nil, s.translate(opQuery, domain.ErrLoadApplications, err)
	}
	apps, err := repos.Applications.ListByProject(ctx, projectID)
	if err != nil {
		return nil, s.translate(opQuery, domain.ErrLoadApplications, err)
	}

	byApplicant := make(map[string]*Contributor)
	var order []string
	for _, app := range apps {
		if !app.IsApproved() {
			continue
		}
		c, ok := byApplicant[app.ApplicantID()]
		if !ok {
			c = &Contributor{Profile: app.Applicant()}
			byApplicant[app.ApplicantID()] = c
			order = append(order, app.ApplicantID())
		}
		acceptedAt, _ := app.DecidedAt()
		c.Roles = append(c.Roles, ContributorRole{
			RoleID:     app.ProjectRoleID(),
			RoleTitle:  app.ProjectRoleTitle(),
			AcceptedAt: acceptedAt,
		})
	}

	contributors := make([]Contributor, 0, len(order))
	for _, id := range order {
		contributors = append(contributors, *byApplicant[id])
	}
	sort.SliceStable(contributors, func(i, j int) bool {
		a, b := contributors[i], contributors[j]
		if a.RoleCount() != b.RoleCount() {
			return a.RoleCount() > b.RoleCount()
		}
		if a.Profile.DisplayName != b.Profile.DisplayName {
			return a.Profile.DisplayName < b.Profile.DisplayName
		}
		return a.Profile.ID < b.Profile.ID
	})
	return contributors, nil
}
