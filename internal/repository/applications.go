package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/teamforge/collab-roles/internal/domain"
)

const applicationColumns = `
	a.id, a.project_id, a.project_title, a.project_description,
	a.project_role_id, a.project_role_title, a.status, a.motivation_letter,
	a.selected_key_features, a.selected_project_goals, a.rejection_reason,
	a.applied_at, a.decided_at, a.decided_by,
	a.applicant_id, a.applicant_name, a.applicant_avatar_url`

type applicationStore struct {
	q    querier
	lock bool
}

func (s *applicationStore) Create(ctx context.Context, app domain.Application) (domain.Application, error) {
	p := app.Props()
	p.ID = uuid.NewString()

	features, err := json.Marshal(p.SelectedKeyFeatures)
	if err != nil {
		return domain.Application{}, fmt.Errorf("encode key features: %w", err)
	}
	goals, err := json.Marshal(p.SelectedProjectGoals)
	if err != nil {
		return domain.Application{}, fmt.Errorf("encode project goals: %w", err)
	}

	if _, err := s.q.Exec(ctx, `
		INSERT INTO project_applications (
			id, project_id, project_title, project_description,
			project_role_id, project_role_title, status, motivation_letter,
			selected_key_features, selected_project_goals, rejection_reason,
			applied_at, applicant_id, applicant_name, applicant_avatar_url
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`,
		p.ID, p.ProjectID, p.ProjectTitle, p.ProjectDescription,
		p.ProjectRoleID, p.ProjectRoleTitle, string(p.Status), p.MotivationLetter,
		features, goals, p.RejectionReason,
		p.AppliedAt, p.Applicant.ID, p.Applicant.DisplayName, p.Applicant.AvatarURL,
	); err != nil {
		if isUniqueViolation(err, pendingApplicationIndex) {
			return domain.Application{}, domain.ErrPendingApplication
		}
		return domain.Application{}, fmt.Errorf("insert application: %w", err)
	}

	return app.WithID(p.ID), nil
}

func (s *applicationStore) FindByID(ctx context.Context, id string) (domain.Application, error) {
	row := s.q.QueryRow(ctx, `
		SELECT `+applicationColumns+`
		FROM project_applications a
		WHERE a.id = $1`+lockClause(s.lock), id)

	app, err := scanApplication(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Application{}, domain.ErrApplicationNotFound
	}
	if err != nil {
		return domain.Application{}, fmt.Errorf("select application: %w", err)
	}
	return app, nil
}

func (s *applicationStore) ExistsWithStatus(ctx context.Context, userID, roleID string, status domain.ApplicationStatus) (bool, error) {
	var exists bool
	if err := s.q.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM project_applications
			WHERE applicant_id = $1 AND project_role_id = $2 AND status = $3
		)
	`, userID, roleID, string(status)).Scan(&exists); err != nil {
		return false, fmt.Errorf("select application existence: %w", err)
	}
	return exists, nil
}

func (s *applicationStore) SaveTransition(ctx context.Context, next domain.Application, from domain.ApplicationStatus) error {
	p := next.Props()

	var decidedBy sql.NullString
	if p.DecidedBy != "" {
		decidedBy = sql.NullString{String: p.DecidedBy, Valid: true}
	}

	tag, err := s.q.Exec(ctx, `
		UPDATE project_applications
		SET status = $2,
		    decided_at = $3,
		    decided_by = $4,
		    rejection_reason = $5,
		    updated_at = NOW()
		WHERE id = $1 AND status = $6
	`, p.ID, string(p.Status), p.DecidedAt, decidedBy, p.RejectionReason, string(from))
	if err != nil {
		if isUniqueViolation(err, approvedApplicationIndex) {
			return domain.ErrRoleAlreadyFilled
		}
		return fmt.Errorf("update application status: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := s.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM project_applications WHERE id = $1)`, p.ID).Scan(&exists); err != nil {
		return fmt.Errorf("select application existence: %w", err)
	}
	if !exists {
		return domain.ErrApplicationNotFound
	}
	return domain.ErrConcurrentModification
}

func (s *applicationStore) ListByProject(ctx context.Context, projectID string) ([]domain.Application, error) {
	return s.list(ctx, `
		SELECT `+applicationColumns+`
		FROM project_applications a
		WHERE a.project_id = $1
		ORDER BY a.applied_at DESC, a.id`, projectID)
}

func (s *applicationStore) ListByRole(ctx context.Context, roleID string) ([]domain.Application, error) {
	return s.list(ctx, `
		SELECT `+applicationColumns+`
		FROM project_applications a
		WHERE a.project_role_id = $1
		ORDER BY a.applied_at DESC, a.id`+lockClause(s.lock), roleID)
}

func (s *applicationStore) ListByOwner(ctx context.Context, ownerID string) ([]domain.Application, error) {
	return s.list(ctx, `
		SELECT `+applicationColumns+`
		FROM project_applications a
		JOIN projects p ON p.id = a.project_id
		WHERE p.owner_id = $1
		ORDER BY a.applied_at DESC, a.id`, ownerID)
}

func (s *applicationStore) ListByApplicant(ctx context.Context, userID string) ([]domain.Application, error) {
	return s.list(ctx, `
		SELECT `+applicationColumns+`
		FROM project_applications a
		WHERE a.applicant_id = $1
		ORDER BY a.applied_at DESC, a.id`, userID)
}

func (s *applicationStore) list(ctx context.Context, query string, args ...any) ([]domain.Application, error) {
	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select applications: %w", err)
	}
	defer rows.Close()

	var result []domain.Application
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, fmt.Errorf("scan application: %w", err)
		}
		result = append(result, app)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate applications: %w", err)
	}

	return result, nil
}

func scanApplication(row pgx.Row) (domain.Application, error) {
	var (
		p         domain.ApplicationProps
		status    string
		features  []byte
		goals     []byte
		decidedAt sql.NullTime
		decidedBy sql.NullString
	)
	if err := row.Scan(
		&p.ID, &p.ProjectID, &p.ProjectTitle, &p.ProjectDescription,
		&p.ProjectRoleID, &p.ProjectRoleTitle, &status, &p.MotivationLetter,
		&features, &goals, &p.RejectionReason,
		&p.AppliedAt, &decidedAt, &decidedBy,
		&p.Applicant.ID, &p.Applicant.DisplayName, &p.Applicant.AvatarURL,
	); err != nil {
		return domain.Application{}, err
	}

	p.Status = domain.ApplicationStatus(status)
	if decidedAt.Valid {
		t := decidedAt.Time
		p.DecidedAt = &t
	}
	if decidedBy.Valid {
		p.DecidedBy = decidedBy.String
	}
	if err := json.Unmarshal(features, &p.SelectedKeyFeatures); err != nil {
		return domain.Application{}, fmt.Errorf("decode key features of %s: %w", p.ID, err)
	}
	if err := json.Unmarshal(goals, &p.SelectedProjectGoals); err != nil {
		return domain.Application{}, fmt.Errorf("decode project goals of %s: %w", p.ID, err)
	}

	app, err := domain.ReconstituteApplication(p)
	if err != nil {
		// keep stored-data problems out of the caller-facing validation path
		return domain.Application{}, fmt.Errorf("reconstitute application %s: %v", p.ID, err)
	}
	return app, nil
}
