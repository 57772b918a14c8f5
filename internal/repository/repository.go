package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/teamforge/collab-roles/internal/domain"
	"github.com/teamforge/collab-roles/internal/service"
)

const (
	pendingApplicationIndex  = "ux_project_applications_pending"
	approvedApplicationIndex = "ux_project_applications_role_approved"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Repos() service.Repositories {
	return bind(r.pool, false)
}

// RunInTx runs fn inside one transaction. Repositories handed to fn lock the
// application and role rows they read.
func (r *Repository) RunInTx(ctx context.Context, fn func(context.Context, service.Repositories) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(ctx, bind(tx, true)); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("rollback tx: %v (original err: %w)", rbErr, err)
		}
		if isSerializationFailure(err) {
			return domain.WithCause(domain.ErrConcurrentModification, err)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		if isSerializationFailure(err) {
			return domain.WithCause(domain.ErrConcurrentModification, err)
		}
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

func bind(q querier, lock bool) service.Repositories {
	return service.Repositories{
		Applications: &applicationStore{q: q, lock: lock},
		Roles:        &roleStore{q: q, lock: lock},
		Projects:     &projectStore{q: q},
		Profiles:     &profileStore{q: q},
	}
}

func lockClause(lock bool) string {
	if lock {
		return " FOR UPDATE"
	}
	return ""
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" && (constraint == "" || pgErr.ConstraintName == constraint)
	}
	return false
}

// isSerializationFailure matches serialization_failure and deadlock_detected.
func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}
