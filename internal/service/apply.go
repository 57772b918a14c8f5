package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/teamforge/collab-roles/internal/domain"
)

type ApplyInput struct {
	ApplicantID            string
	ProjectRoleID          string
	SelectedKeyFeatureIDs  []string
	SelectedProjectGoalIDs []string
	MotivationLetter       string
}

// Apply creates a PENDING application of in.ApplicantID for in.ProjectRoleID.
func (s *Service) Apply(ctx context.Context, in ApplyInput) (app domain.Application, err error) {
	ctx, finish := s.begin(ctx, opApply)
	defer func() { finish(err) }()

	in.ApplicantID = strings.TrimSpace(in.ApplicantID)
	in.ProjectRoleID = strings.TrimSpace(in.ProjectRoleID)
	if in.ApplicantID == "" {
		return domain.Application{}, &domain.ValidationError{Fields: map[string]string{"applicant.id": "is required"}}
	}
	if in.ProjectRoleID == "" {
		return domain.Application{}, &domain.ValidationError{Fields: map[string]string{"projectRoleId": "is required"}}
	}

	repos := s.store.Repos()

	role, err := repos.Roles.FindByID(ctx, in.ProjectRoleID)
	if err != nil {
		return domain.Application{}, s.translate(opApply, domain.ErrCreateApplication, err)
	}
	if !role.CanAcceptApplications() {
		return domain.Application{}, domain.ErrRoleAlreadyFilled
	}

	project, err := repos.Projects.FindByID(ctx, role.ProjectID)
	if err != nil {
		return domain.Application{}, s.translate(opApply, domain.ErrCreateApplication, err)
	}

	features := make([]domain.KeyFeature, 0, len(in.SelectedKeyFeatureIDs))
	for _, id := range in.SelectedKeyFeatureIDs {
		feature, ok := project.KeyFeature(id)
		if !ok {
			return domain.Application{}, domain.ErrForeignFeatures
		}
		features = append(features, feature)
	}
	goals := make([]domain.ProjectGoal, 0, len(in.SelectedProjectGoalIDs))
	for _, id := range in.SelectedProjectGoalIDs {
		goal, ok := project.ProjectGoal(id)
		if !ok {
			return domain.Application{}, domain.ErrForeignGoals
		}
		goals = append(goals, goal)
	}

	if err := s.checkExistingApplications(ctx, repos.Applications, in.ApplicantID, role.ID); err != nil {
		return domain.Application{}, err
	}

	if project.HasOwnerID(in.ApplicantID) {
		return domain.Application{}, domain.ErrSelfApplication
	}

	applicant, owner, err := s.resolveProfiles(ctx, repos.Profiles, in.ApplicantID, project.OwnerID)
	if err != nil {
		return domain.Application{}, err
	}

	app, err = domain.NewApplication(domain.ApplicationProps{
		ProjectID:            project.ID,
		ProjectTitle:         project.Title,
		ProjectDescription:   project.Description,
		ProjectRoleID:        role.ID,
		ProjectRoleTitle:     role.Title,
		MotivationLetter:     strings.TrimSpace(in.MotivationLetter),
		SelectedKeyFeatures:  features,
		SelectedProjectGoals: goals,
		Applicant:            applicant,
	}, project, s.now())
	if err != nil {
		return domain.Application{}, err
	}

	created, err := repos.Applications.Create(ctx, app)
	if err != nil {
		if errors.Is(err, domain.ErrPendingApplication) {
			return domain.Application{}, domain.ErrPendingApplication
		}
		s.logger.Error(domain.ErrCreateApplication.Message, zap.String("operation", opApply), zap.Error(err))
		return domain.Application{}, domain.WithCause(domain.ErrCreateApplication, err)
	}

	event := s.event(domain.EventApplicationCreated, created)
	event.Payload.OwnerID = owner.ID
	event.Payload.OwnerName = owner.DisplayName
	event.Payload.SelectedKeyFeatures = created.SelectedKeyFeatures()
	event.Payload.SelectedProjectGoals = created.SelectedProjectGoals()
	event.Payload.Message = fmt.Sprintf("%s applied for the role %q in project %q",
		displayName(applicant), role.Title, project.Title)
	s.emit(ctx, event)

	return created, nil
}

func (s *Service) checkExistingApplications(ctx context.Context, apps ApplicationRepository, userID, roleID string) error {
	pending, err := apps.ExistsWithStatus(ctx, userID, roleID, domain.ApplicationStatusPending)
	if err != nil {
		return s.translate(opApply, domain.ErrCreateApplication, err)
	}
	if pending {
		return domain.ErrPendingApplication
	}

	if s.policy.Reapply == ReapplyAllowedAfterRejection {
		return nil
	}
	rejected, err := apps.ExistsWithStatus(ctx, userID, roleID, domain.ApplicationStatusRejected)
	if err != nil {
		return s.translate(opApply, domain.ErrCreateApplication, err)
	}
	if rejected {
		return domain.ErrRejectedApplication
	}
	return nil
}

// resolveProfiles loads the applicant and owner snapshots concurrently. Users
// without a profile row are represented by their id alone.
func (s *Service) resolveProfiles(ctx context.Context, profiles ProfileRepository, applicantID, ownerID string) (domain.Profile, domain.Profile, error) {
	var applicant, owner domain.Profile

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := lookupProfile(gctx, profiles, applicantID)
		applicant = p
		return err
	})
	g.Go(func() error {
		p, err := lookupProfile(gctx, profiles, ownerID)
		owner = p
		return err
	})
	if err := g.Wait(); err != nil {
		return domain.Profile{}, domain.Profile{}, s.translate(opApply, domain.ErrCreateApplication, err)
	}
	return applicant, owner, nil
}

func lookupProfile(ctx context.Context, profiles ProfileRepository, userID string) (domain.Profile, error) {
	p, err := profiles.FindByID(ctx, userID)
	if errors.Is(err, domain.ErrProfileNotFound) {
		return domain.Profile{ID: userID}, nil
	}
	if err != nil {
		return domain.Profile{}, err
	}
	return p, nil
}

func displayName(p domain.Profile) string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return p.ID
}
