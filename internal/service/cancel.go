package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/teamforge/collab-roles/internal/domain"
)

// Cancel withdraws a PENDING application. Only its applicant may do so.
func (s *Service) Cancel(ctx context.Context, applicationID, actingUserID string) (err error) {
	ctx, finish := s.begin(ctx, opCancel)
	defer func() { finish(err) }()

	repos := s.store.Repos()
	app, err := repos.Applications.FindByID(ctx, applicationID)
	if err != nil {
		return s.translate(opCancel, domain.ErrCancelApplication, err)
	}
	if !app.CanUserModify(actingUserID) {
		return domain.ErrCannotCancel
	}
	project, err := repos.Projects.FindByID(ctx, app.ProjectID())
	if err != nil {
		return s.translate(opCancel, domain.ErrCancelApplication, err)
	}
	if err := s.checkSelection(opCancel, app, project); err != nil {
		return err
	}

	var cancelled domain.Application
	err = s.store.RunInTx(ctx, func(ctx context.Context, tx Repositories) error {
		locked, err := tx.Applications.FindByID(ctx, applicationID)
		if err != nil {
			return s.translate(opCancel, domain.ErrCancelApplication, err)
		}
		if !locked.CanUserModify(actingUserID) {
			return domain.ErrCannotCancel
		}
		next, _, err := locked.Cancel(s.now())
		if err != nil {
			return err
		}
		if err := tx.Applications.SaveTransition(ctx, next, locked.Status()); err != nil {
			if errors.Is(err, domain.ErrConcurrentModification) {
				return domain.ErrConcurrentModification
			}
			s.logger.Error(domain.ErrCancelApplication.Message, zap.String("operation", opCancel), zap.Error(err))
			return domain.WithCause(domain.ErrCancelApplication, err)
		}
		cancelled = next
		return nil
	})
	if err != nil {
		return err
	}

	event := s.event(domain.EventApplicationCancelled, cancelled)
	event.Payload.Message = fmt.Sprintf("%s withdrew the application for the role %q",
		displayName(cancelled.Applicant()), cancelled.ProjectRoleTitle())
	s.emit(ctx, event)
	return nil
}
