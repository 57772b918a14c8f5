package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/teamforge/collab-roles/internal/domain"
)

type roleStore struct {
	q    querier
	lock bool
}

func (s *roleStore) FindByID(ctx context.Context, id string) (domain.Role, error) {
	var role domain.Role
	err := s.q.QueryRow(ctx, `
		SELECT id, project_id, title, description, is_filled, tech_stack
		FROM project_roles
		WHERE id = $1`+lockClause(s.lock), id).
		Scan(&role.ID, &role.ProjectID, &role.Title, &role.Description, &role.IsFilled, &role.TechStack)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Role{}, domain.ErrRoleNotFound
	}
	if err != nil {
		return domain.Role{}, fmt.Errorf("select project role: %w", err)
	}
	return role, nil
}

func (s *roleStore) MarkFilled(ctx context.Context, id string) error {
	tag, err := s.q.Exec(ctx, `
		UPDATE project_roles
		SET is_filled = TRUE,
		    updated_at = NOW()
		WHERE id = $1 AND is_filled = FALSE
	`, id)
	if err != nil {
		return fmt.Errorf("update project role: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := s.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM project_roles WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("select project role existence: %w", err)
	}
	if !exists {
		return domain.ErrRoleNotFound
	}
	return domain.ErrRoleAlreadyFilled
}

type projectStore struct {
	q querier
}

func (s *projectStore) FindByID(ctx context.Context, id string) (domain.Project, error) {
	var project domain.Project
	err := s.q.QueryRow(ctx, `
		SELECT id, owner_id, title, description
		FROM projects
		WHERE id = $1
	`, id).Scan(&project.ID, &project.OwnerID, &project.Title, &project.Description)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Project{}, domain.ErrProjectNotFound
	}
	if err != nil {
		return domain.Project{}, fmt.Errorf("select project: %w", err)
	}

	features, err := s.listKeyFeatures(ctx, id)
	if err != nil {
		return domain.Project{}, err
	}
	project.KeyFeatures = features

	goals, err := s.listGoals(ctx, id)
	if err != nil {
		return domain.Project{}, err
	}
	project.Goals = goals

	return project, nil
}

func (s *projectStore) listKeyFeatures(ctx context.Context, projectID string) ([]domain.KeyFeature, error) {
	rows, err := s.q.Query(ctx, `
		SELECT id, feature
		FROM project_key_features
		WHERE project_id = $1
		ORDER BY position, id
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("select key features: %w", err)
	}
	defer rows.Close()

	var features []domain.KeyFeature
	for rows.Next() {
		var f domain.KeyFeature
		if err := rows.Scan(&f.ID, &f.Feature); err != nil {
			return nil, fmt.Errorf("scan key feature: %w", err)
		}
		features = append(features, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate key features: %w", err)
	}

	return features, nil
}

func (s *projectStore) listGoals(ctx context.Context, projectID string) ([]domain.ProjectGoal, error) {
	rows, err := s.q.Query(ctx, `
		SELECT id, goal
		FROM project_goals
		WHERE project_id = $1
		ORDER BY position, id
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("select project goals: %w", err)
	}
	defer rows.Close()

	var goals []domain.ProjectGoal
	for rows.Next() {
		var g domain.ProjectGoal
		if err := rows.Scan(&g.ID, &g.Goal); err != nil {
			return nil, fmt.Errorf("scan project goal: %w", err)
		}
		goals = append(goals, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate project goals: %w", err)
	}

	return goals, nil
}

type profileStore struct {
	q querier
}

func (s *profileStore) FindByID(ctx context.Context, userID string) (domain.Profile, error) {
	var profile domain.Profile
	err := s.q.QueryRow(ctx, `
		SELECT id, display_name, avatar_url
		FROM profiles
		WHERE id = $1
	`, userID).Scan(&profile.ID, &profile.DisplayName, &profile.AvatarURL)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Profile{}, domain.ErrProfileNotFound
	}
	if err != nil {
		return domain.Profile{}, fmt.Errorf("select profile: %w", err)
	}
	return profile, nil
}
