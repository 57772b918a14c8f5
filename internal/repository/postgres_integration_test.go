//go:build integration

package repository_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"go.uber.org/zap"

	"github.com/teamforge/collab-roles/internal/domain"
	"github.com/teamforge/collab-roles/internal/migrations"
	"github.com/teamforge/collab-roles/internal/repository"
	"github.com/teamforge/collab-roles/internal/service"
	"github.com/teamforge/collab-roles/internal/storage/postgres"
)

type PostgresRepositorySuite struct {
	suite.Suite
	container *tcpostgres.PostgresContainer
	pool      *pgxpool.Pool
	repo      *repository.Repository
}

func TestPostgresRepositorySuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresRepositorySuite))
}

func (s *PostgresRepositorySuite) SetupSuite() {
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("collab"),
		tcpostgres.WithUsername("collab"),
		tcpostgres.WithPassword("collab"),
		tcpostgres.BasicWaitStrategies(),
	)
	s.Require().NoError(err)
	s.container = container

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	s.Require().NoError(err)

	s.Require().NoError(migrations.Up(ctx, dsn, zap.NewNop()))

	s.pool, err = postgres.Open(ctx, dsn, 8, zap.NewNop())
	s.Require().NoError(err)
	s.repo = repository.New(s.pool)
}

func (s *PostgresRepositorySuite) TearDownSuite() {
	if s.pool != nil {
		s.pool.Close()
	}
	if s.container != nil {
		s.NoError(testcontainers.TerminateContainer(s.container))
	}
}

func (s *PostgresRepositorySuite) SetupTest() {
	ctx := context.Background()
	_, err := s.pool.Exec(ctx, `TRUNCATE project_applications, project_roles, project_goals, project_key_features, projects, profiles`)
	s.Require().NoError(err)

	_, err = s.pool.Exec(ctx, `
		INSERT INTO profiles (id, display_name) VALUES ('u1', 'Ada'), ('u2', 'Grace');
		INSERT INTO projects (id, owner_id, title, description) VALUES ('p1', 'u2', 'Open Atlas', 'Mapping');
		INSERT INTO project_key_features (id, project_id, feature, position) VALUES ('f1', 'p1', 'Offline tiles', 1), ('f2', 'p1', 'Sync', 2);
		INSERT INTO project_goals (id, project_id, goal, position) VALUES ('g1', 'p1', 'Ship v1', 1);
		INSERT INTO project_roles (id, project_id, title, tech_stack) VALUES ('r1', 'p1', 'Backend engineer', '{go,postgres}');
	`)
	s.Require().NoError(err)
}

func (s *PostgresRepositorySuite) newApplication(applicantID string) domain.Application {
	project, err := s.repo.Repos().Projects.FindByID(context.Background(), "p1")
	s.Require().NoError(err)

	app, err := domain.NewApplication(domain.ApplicationProps{
		ProjectID:            "p1",
		ProjectRoleID:        "r1",
		ProjectRoleTitle:     "Backend engineer",
		SelectedKeyFeatures:  []domain.KeyFeature{{ID: "f2"}},
		SelectedProjectGoals: []domain.ProjectGoal{{ID: "g1"}},
		Applicant:            domain.Profile{ID: applicantID},
	}, project, time.Now().Truncate(time.Microsecond))
	s.Require().NoError(err)
	return app
}

func (s *PostgresRepositorySuite) TestLookups() {
	ctx := context.Background()
	repos := s.repo.Repos()

	project, err := repos.Projects.FindByID(ctx, "p1")
	s.Require().NoError(err)
	s.Equal("u2", project.OwnerID)
	s.Equal([]domain.KeyFeature{{ID: "f1", Feature: "Offline tiles"}, {ID: "f2", Feature: "Sync"}}, project.KeyFeatures)
	s.Equal([]domain.ProjectGoal{{ID: "g1", Goal: "Ship v1"}}, project.Goals)

	role, err := repos.Roles.FindByID(ctx, "r1")
	s.Require().NoError(err)
	s.Equal([]string{"go", "postgres"}, role.TechStack)
	s.False(role.IsFilled)

	profile, err := repos.Profiles.FindByID(ctx, "u1")
	s.Require().NoError(err)
	s.Equal("Ada", profile.DisplayName)

	_, err = repos.Projects.FindByID(ctx, "nope")
	s.ErrorIs(err, domain.ErrProjectNotFound)
	_, err = repos.Roles.FindByID(ctx, "nope")
	s.ErrorIs(err, domain.ErrRoleNotFound)
	_, err = repos.Profiles.FindByID(ctx, "nope")
	s.ErrorIs(err, domain.ErrProfileNotFound)
	_, err = repos.Applications.FindByID(ctx, "nope")
	s.ErrorIs(err, domain.ErrApplicationNotFound)
}

func (s *PostgresRepositorySuite) TestCreateRoundTrip() {
	ctx := context.Background()
	apps := s.repo.Repos().Applications

	created, err := apps.Create(ctx, s.newApplication("u1"))
	s.Require().NoError(err)
	s.NotEmpty(created.ID())

	loaded, err := apps.FindByID(ctx, created.ID())
	s.Require().NoError(err)
	s.Equal(created.ID(), loaded.ID())
	s.Equal(created.SelectedKeyFeatures(), loaded.SelectedKeyFeatures())
	s.Equal(created.SelectedProjectGoals(), loaded.SelectedProjectGoals())
	s.True(created.AppliedAt().Equal(loaded.AppliedAt()))
	s.True(loaded.IsPending())

	_, err = apps.Create(ctx, s.newApplication("u1"))
	s.ErrorIs(err, domain.ErrPendingApplication)

	exists, err := apps.ExistsWithStatus(ctx, "u1", "r1", domain.ApplicationStatusPending)
	s.Require().NoError(err)
	s.True(exists)
}

func (s *PostgresRepositorySuite) TestServiceTimestampsRoundTrip() {
	ctx := context.Background()
	svc := service.New(service.Deps{Store: s.repo}, service.DefaultPolicy())

	app, err := svc.Apply(ctx, service.ApplyInput{
		ApplicantID:            "u1",
		ProjectRoleID:          "r1",
		SelectedKeyFeatureIDs:  []string{"f1"},
		SelectedProjectGoalIDs: []string{"g1"},
	})
	s.Require().NoError(err)

	loaded, err := s.repo.Repos().Applications.FindByID(ctx, app.ID())
	s.Require().NoError(err)
	s.True(app.AppliedAt().Equal(loaded.AppliedAt()), "%s != %s", app.AppliedAt(), loaded.AppliedAt())

	accepted, err := svc.Accept(ctx, app.ID(), "u2")
	s.Require().NoError(err)
	loaded, err = s.repo.Repos().Applications.FindByID(ctx, app.ID())
	s.Require().NoError(err)

	want, _ := accepted.DecidedAt()
	got, ok := loaded.DecidedAt()
	s.Require().True(ok)
	s.True(want.Equal(got), "%s != %s", want, got)
}

func (s *PostgresRepositorySuite) TestSaveTransition() {
	ctx := context.Background()
	apps := s.repo.Repos().Applications

	created, err := apps.Create(ctx, s.newApplication("u1"))
	s.Require().NoError(err)

	rejected, _, err := created.Reject("u2", "not a fit", time.Now())
	s.Require().NoError(err)
	s.Require().NoError(apps.SaveTransition(ctx, rejected, domain.ApplicationStatusPending))

	loaded, err := apps.FindByID(ctx, created.ID())
	s.Require().NoError(err)
	s.Equal("not a fit", loaded.RejectionReason())
	s.Equal("u2", loaded.DecidedBy())

	approved, _, err := created.Approve("u2", time.Now())
	s.Require().NoError(err)
	s.ErrorIs(apps.SaveTransition(ctx, approved, domain.ApplicationStatusPending), domain.ErrConcurrentModification)
	s.ErrorIs(apps.SaveTransition(ctx, approved.WithID("nope"), domain.ApplicationStatusPending), domain.ErrApplicationNotFound)
}

func (s *PostgresRepositorySuite) TestListings() {
	ctx := context.Background()
	apps := s.repo.Repos().Applications

	_, err := apps.Create(ctx, s.newApplication("u1"))
	s.Require().NoError(err)
	_, err = apps.Create(ctx, s.newApplication("u3"))
	s.Require().NoError(err)

	byProject, err := apps.ListByProject(ctx, "p1")
	s.Require().NoError(err)
	s.Len(byProject, 2)

	byOwner, err := apps.ListByOwner(ctx, "u2")
	s.Require().NoError(err)
	s.Len(byOwner, 2)

	byApplicant, err := apps.ListByApplicant(ctx, "u3")
	s.Require().NoError(err)
	s.Len(byApplicant, 1)
}

func (s *PostgresRepositorySuite) TestRunInTxRollsBack() {
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.repo.RunInTx(ctx, func(ctx context.Context, tx service.Repositories) error {
		if err := tx.Roles.MarkFilled(ctx, "r1"); err != nil {
			return err
		}
		return boom
	})
	s.ErrorIs(err, boom)

	role, err := s.repo.Repos().Roles.FindByID(ctx, "r1")
	s.Require().NoError(err)
	s.False(role.IsFilled)
}

func (s *PostgresRepositorySuite) TestConcurrentAcceptSingleWinner() {
	ctx := context.Background()

	var ids []string
	for _, user := range []string{"u1", "u3", "u4", "u5"} {
		created, err := s.repo.Repos().Applications.Create(ctx, s.newApplication(user))
		s.Require().NoError(err)
		ids = append(ids, created.ID())
	}

	svc := service.New(service.Deps{Store: s.repo}, service.DefaultPolicy())

	var (
		wg        sync.WaitGroup
		winners   atomic.Int32
		conflicts atomic.Int32
	)
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := svc.Accept(ctx, id, "u2")
			switch {
			case err == nil:
				winners.Add(1)
			case domain.IsCode(err, domain.CodeConflict):
				conflicts.Add(1)
			default:
				s.T().Errorf("unexpected accept error: %v", err)
			}
		}(id)
	}
	wg.Wait()

	s.Equal(int32(1), winners.Load())
	s.Equal(int32(len(ids)-1), conflicts.Load())

	var approved int
	s.Require().NoError(s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM project_applications WHERE project_role_id = 'r1' AND status = 'APPROVAL'`).Scan(&approved))
	s.Equal(1, approved)

	role, err := s.repo.Repos().Roles.FindByID(ctx, "r1")
	s.Require().NoError(err)
	s.True(role.IsFilled)
}
