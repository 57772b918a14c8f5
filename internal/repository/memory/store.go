// Package memory keeps projects, roles, profiles and applications in process
// memory. It enforces the same uniqueness rules as the Postgres schema.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/teamforge/collab-roles/internal/domain"
	"github.com/teamforge/collab-roles/internal/service"
)

type Store struct {
	mu    sync.Mutex
	st    state
	newID func() string
}

type state struct {
	applications map[string]domain.Application
	order        []string
	roles        map[string]domain.Role
	projects     map[string]domain.Project
	profiles     map[string]domain.Profile
}

func (st state) clone() state {
	out := state{
		applications: make(map[string]domain.Application, len(st.applications)),
		order:        append([]string(nil), st.order...),
		roles:        make(map[string]domain.Role, len(st.roles)),
		projects:     make(map[string]domain.Project, len(st.projects)),
		profiles:     make(map[string]domain.Profile, len(st.profiles)),
	}
	for k, v := range st.applications {
		out.applications[k] = v
	}
	for k, v := range st.roles {
		out.roles[k] = v
	}
	for k, v := range st.projects {
		out.projects[k] = v
	}
	for k, v := range st.profiles {
		out.profiles[k] = v
	}
	return out
}

func New() *Store {
	return &Store{
		st: state{
			applications: make(map[string]domain.Application),
			roles:        make(map[string]domain.Role),
			projects:     make(map[string]domain.Project),
			profiles:     make(map[string]domain.Profile),
		},
		newID: uuid.NewString,
	}
}

func (s *Store) PutProject(p domain.Project) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.projects[p.ID] = p
}

func (s *Store) PutRole(r domain.Role) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.roles[r.ID] = r
}

func (s *Store) PutProfile(p domain.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.profiles[p.ID] = p
}

func (s *Store) Repos() service.Repositories {
	return s.repos(false)
}

// RunInTx runs fn with exclusive access to the store. When fn fails every
// change it made is discarded.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, repos service.Repositories) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	backup := s.st.clone()
	if err := fn(ctx, s.repos(true)); err != nil {
		s.st = backup
		return err
	}
	return nil
}

func (s *Store) repos(inTx bool) service.Repositories {
	v := view{store: s, inTx: inTx}
	return service.Repositories{
		Applications: applications{v},
		Roles:        roles{v},
		Projects:     projects{v},
		Profiles:     profiles{v},
	}
}

// view runs callbacks against the state, locking unless the caller already
// holds the lock inside RunInTx.
type view struct {
	store *Store
	inTx  bool
}

func (v view) with(fn func(st *state)) {
	if !v.inTx {
		v.store.mu.Lock()
		defer v.store.mu.Unlock()
	}
	fn(&v.store.st)
}

type applications struct{ view }

func (r applications) Create(ctx context.Context, app domain.Application) (domain.Application, error) {
	if err := ctx.Err(); err != nil {
		return domain.Application{}, err
	}

	var (
		created domain.Application
		err     error
	)
	r.with(func(st *state) {
		for _, existing := range st.applications {
			if existing.IsPending() && app.IsPending() &&
				existing.ApplicantID() == app.ApplicantID() &&
				existing.ProjectRoleID() == app.ProjectRoleID() {
				err = domain.ErrPendingApplication
				return
			}
		}
		created = app.WithID(r.store.newID())
		st.applications[created.ID()] = created
		st.order = append(st.order, created.ID())
	})
	return created, err
}

func (r applications) FindByID(ctx context.Context, id string) (domain.Application, error) {
	if err := ctx.Err(); err != nil {
		return domain.Application{}, err
	}

	var (
		app domain.Application
		ok  bool
	)
	r.with(func(st *state) {
		app, ok = st.applications[id]
	})
	if !ok {
		return domain.Application{}, domain.ErrApplicationNotFound
	}
	return app, nil
}

func (r applications) ExistsWithStatus(ctx context.Context, userID, roleID string, status domain.ApplicationStatus) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	found := false
	r.with(func(st *state) {
		for _, app := range st.applications {
			if app.ApplicantID() == userID && app.ProjectRoleID() == roleID && app.Status() == status {
				found = true
				return
			}
		}
	})
	return found, nil
}

func (r applications) SaveTransition(ctx context.Context, next domain.Application, from domain.ApplicationStatus) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var err error
	r.with(func(st *state) {
		stored, ok := st.applications[next.ID()]
		if !ok {
			err = domain.ErrApplicationNotFound
			return
		}
		if stored.Status() != from {
			err = domain.ErrConcurrentModification
			return
		}
		if next.IsApproved() {
			for id, other := range st.applications {
				if id != next.ID() && other.IsApproved() && other.ProjectRoleID() == next.ProjectRoleID() {
					err = domain.ErrRoleAlreadyFilled
					return
				}
			}
		}
		st.applications[next.ID()] = next
	})
	return err
}

func (r applications) ListByProject(ctx context.Context, projectID string) ([]domain.Application, error) {
	return r.list(ctx, func(st *state, app domain.Application) bool {
		return app.ProjectID() == projectID
	})
}

func (r applications) ListByRole(ctx context.Context, roleID string) ([]domain.Application, error) {
	return r.list(ctx, func(st *state, app domain.Application) bool {
		return app.ProjectRoleID() == roleID
	})
}

func (r applications) ListByOwner(ctx context.Context, ownerID string) ([]domain.Application, error) {
	return r.list(ctx, func(st *state, app domain.Application) bool {
		project, ok := st.projects[app.ProjectID()]
		return ok && project.OwnerID == ownerID
	})
}

func (r applications) ListByApplicant(ctx context.Context, userID string) ([]domain.Application, error) {
	return r.list(ctx, func(st *state, app domain.Application) bool {
		return app.ApplicantID() == userID
	})
}

// list returns matching applications, most recent first.
func (r applications) list(ctx context.Context, match func(st *state, app domain.Application) bool) ([]domain.Application, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var result []domain.Application
	r.with(func(st *state) {
		for _, id := range st.order {
			app := st.applications[id]
			if match(st, app) {
				result = append(result, app)
			}
		}
	})
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].AppliedAt().After(result[j].AppliedAt())
	})
	return result, nil
}

type roles struct{ view }

func (r roles) FindByID(ctx context.Context, id string) (domain.Role, error) {
	if err := ctx.Err(); err != nil {
		return domain.Role{}, err
	}

	var (
		role domain.Role
		ok   bool
	)
	r.with(func(st *state) {
		role, ok = st.roles[id]
	})
	if !ok {
		return domain.Role{}, domain.ErrRoleNotFound
	}
	return role, nil
}

func (r roles) MarkFilled(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var err error
	r.with(func(st *state) {
		role, ok := st.roles[id]
		if !ok {
			err = domain.ErrRoleNotFound
			return
		}
		filled, markErr := role.MarkAsFilled()
		if markErr != nil {
			err = markErr
			return
		}
		st.roles[id] = filled
	})
	return err
}

type projects struct{ view }

func (r projects) FindByID(ctx context.Context, id string) (domain.Project, error) {
	if err := ctx.Err(); err != nil {
		return domain.Project{}, err
	}

	var (
		project domain.Project
		ok      bool
	)
	r.with(func(st *state) {
		project, ok = st.projects[id]
	})
	if !ok {
		return domain.Project{}, domain.ErrProjectNotFound
	}
	return project, nil
}

type profiles struct{ view }

func (r profiles) FindByID(ctx context.Context, userID string) (domain.Profile, error) {
	if err := ctx.Err(); err != nil {
		return domain.Profile{}, err
	}

	var (
		profile domain.Profile
		ok      bool
	)
	r.with(func(st *state) {
		profile, ok = st.profiles[userID]
	})
	if !ok {
		return domain.Profile{}, domain.ErrProfileNotFound
	}
	return profile, nil
}
