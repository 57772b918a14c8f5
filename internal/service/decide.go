package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/teamforge/collab-roles/internal/domain"
)

// RoleFilledReason is recorded on competing applications rejected by an accept.
const RoleFilledReason = "This role has been filled"

// Accept approves an application on behalf of the project owner and marks its
// role filled. Both writes, and the rejection of competing applications when
// the policy asks for it, commit in one transaction. A role filled by a
// concurrent accept fails with domain.ErrRoleAlreadyFilled.
func (s *Service) Accept(ctx context.Context, applicationID, actingUserID string) (app domain.Application, err error) {
	ctx, finish := s.begin(ctx, opAccept)
	defer func() { finish(err) }()

	current, project, err := s.loadForDecision(ctx, opAccept, applicationID, actingUserID)
	if err != nil {
		return domain.Application{}, err
	}

	var (
		accepted    domain.Application
		competitors []domain.Application
	)
	err = s.store.RunInTx(ctx, func(ctx context.Context, tx Repositories) error {
		// Role first: every accept for this role queues on the same row lock.
		role, err := tx.Roles.FindByID(ctx, current.ProjectRoleID())
		if err != nil {
			return s.translate(opAccept, domain.ErrUpdateRole, err)
		}
		if _, err := role.MarkAsFilled(); err != nil {
			return err
		}

		locked, err := tx.Applications.FindByID(ctx, applicationID)
		if err != nil {
			return s.translate(opAccept, domain.ErrUpdateApplication, err)
		}
		next, _, err := locked.Approve(actingUserID, s.now())
		if err != nil {
			return err
		}

		if err := tx.Applications.SaveTransition(ctx, next, locked.Status()); err != nil {
			return s.translate(opAccept, domain.ErrUpdateApplication, err)
		}
		if err := tx.Roles.MarkFilled(ctx, role.ID); err != nil {
			return s.translate(opAccept, domain.ErrUpdateRole, err)
		}
		accepted = next

		if s.policy.Competing == CompetingRejectOnAccept {
			competitors, err = s.rejectCompeting(ctx, tx, next, actingUserID)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return domain.Application{}, err
	}

	event := s.event(domain.EventApplicationAccepted, accepted)
	event.Payload.OwnerID = project.OwnerID
	event.Payload.Message = fmt.Sprintf("Your application for the role %q in project %q has been accepted",
		accepted.ProjectRoleTitle(), accepted.ProjectTitle())
	s.emit(ctx, event)

	for _, other := range competitors {
		s.emit(ctx, s.rejectionEvent(other, project))
	}

	return accepted, nil
}

// rejectCompeting rejects the remaining PENDING applications for winner's role.
// Applications that left PENDING concurrently are skipped.
func (s *Service) rejectCompeting(ctx context.Context, tx Repositories, winner domain.Application, decidedBy string) ([]domain.Application, error) {
	all, err := tx.Applications.ListByRole(ctx, winner.ProjectRoleID())
	if err != nil {
		return nil, s.translate(opAccept, domain.ErrUpdateApplication, err)
	}

	var rejected []domain.Application
	for _, other := range all {
		if other.ID() == winner.ID() || !other.IsPending() {
			continue
		}
		next, _, err := other.Reject(decidedBy, RoleFilledReason, s.now())
		if err != nil {
			return nil, err
		}
		if err := tx.Applications.SaveTransition(ctx, next, other.Status()); err != nil {
			if errors.Is(err, domain.ErrConcurrentModification) {
				continue
			}
			return nil, s.translate(opAccept, domain.ErrUpdateApplication, err)
		}
		rejected = append(rejected, next)
	}
	return rejected, nil
}

// Reject declines an application on behalf of the project owner. The role is left untouched.
func (s *Service) Reject(ctx context.Context, applicationID, actingUserID, reason string) (app domain.Application, err error) {
	ctx, finish := s.begin(ctx, opReject)
	defer func() { finish(err) }()

	_, project, err := s.loadForDecision(ctx, opReject, applicationID, actingUserID)
	if err != nil {
		return domain.Application{}, err
	}

	var rejected domain.Application
	err = s.store.RunInTx(ctx, func(ctx context.Context, tx Repositories) error {
		locked, err := tx.Applications.FindByID(ctx, applicationID)
		if err != nil {
			return s.translate(opReject, domain.ErrUpdateApplication, err)
		}
		next, _, err := locked.Reject(actingUserID, reason, s.now())
		if err != nil {
			return err
		}
		if err := tx.Applications.SaveTransition(ctx, next, locked.Status()); err != nil {
			return s.translate(opReject, domain.ErrUpdateApplication, err)
		}
		rejected = next
		return nil
	})
	if err != nil {
		return domain.Application{}, err
	}

	s.emit(ctx, s.rejectionEvent(rejected, project))
	return rejected, nil
}

// loadForDecision loads the application and its project, verifies that
// actingUserID owns the project and that the stored selections still belong
// to it. Nothing is mutated.
func (s *Service) loadForDecision(ctx context.Context, op, applicationID, actingUserID string) (domain.Application, domain.Project, error) {
	repos := s.store.Repos()

	app, err := repos.Applications.FindByID(ctx, applicationID)
	if err != nil {
		return domain.Application{}, domain.Project{}, s.translate(op, domain.ErrUpdateApplication, err)
	}
	project, err := repos.Projects.FindByID(ctx, app.ProjectID())
	if err != nil {
		return domain.Application{}, domain.Project{}, s.translate(op, domain.ErrUpdateApplication, err)
	}
	if !project.HasOwnerID(actingUserID) {
		return domain.Application{}, domain.Project{}, domain.ErrNotProjectOwner
	}
	if err := s.checkSelection(op, app, project); err != nil {
		return domain.Application{}, domain.Project{}, err
	}
	return app, project, nil
}

func (s *Service) checkSelection(op string, app domain.Application, project domain.Project) error {
	if err := app.ValidateSelection(project); err != nil {
		s.logger.Warn("stored application selection outside its project",
			zap.String("operation", op),
			zap.String("application_id", app.ID()),
			zap.String("project_id", project.ID),
			zap.Error(err),
		)
		return err
	}
	return nil
}

func (s *Service) rejectionEvent(app domain.Application, project domain.Project) domain.Event {
	event := s.event(domain.EventApplicationRejected, app)
	event.Payload.OwnerID = project.OwnerID
	event.Payload.Message = fmt.Sprintf("Your application for the role %q in project %q has been rejected",
		app.ProjectRoleTitle(), app.ProjectTitle())
	if app.RejectionReason() != "" {
		event.Payload.Message += ": " + app.RejectionReason()
	}
	return event
}
