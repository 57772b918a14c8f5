package domain

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

type ApplicationStatus string

const (
	ApplicationStatusPending   ApplicationStatus = "PENDING"
	ApplicationStatusApproved  ApplicationStatus = "APPROVAL"
	ApplicationStatusRejected  ApplicationStatus = "REJECTED"
	ApplicationStatusCancelled ApplicationStatus = "CANCELLED"
)

const (
	MaxMotivationLetterLength = 1000
	MaxRejectionReasonLength  = 500
)

func (s ApplicationStatus) Valid() bool {
	switch s {
	case ApplicationStatusPending, ApplicationStatusApproved, ApplicationStatusRejected, ApplicationStatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal statuses never transition again.
func (s ApplicationStatus) Terminal() bool {
	return s.Valid() && s != ApplicationStatusPending
}

func ParseApplicationStatus(raw string) (ApplicationStatus, error) {
	status := ApplicationStatus(strings.ToUpper(strings.TrimSpace(raw)))
	if !status.Valid() {
		return "", &ValidationError{Fields: map[string]string{"status": statusEnumMessage}}
	}
	return status, nil
}

const statusEnumMessage = "must be one of PENDING, APPROVAL, REJECTED, CANCELLED"

// ApplicationProps is the primitive form of an Application. It is what gets
// persisted and what the constructors accept.
type ApplicationProps struct {
	ID                   string            `json:"id,omitempty"`
	ProjectID            string            `json:"projectId"`
	ProjectTitle         string            `json:"projectTitle"`
	ProjectDescription   string            `json:"projectDescription"`
	ProjectRoleID        string            `json:"projectRoleId"`
	ProjectRoleTitle     string            `json:"projectRoleTitle"`
	Status               ApplicationStatus `json:"status"`
	MotivationLetter     string            `json:"motivationLetter,omitempty"`
	SelectedKeyFeatures  []KeyFeature      `json:"selectedKeyFeatures"`
	SelectedProjectGoals []ProjectGoal     `json:"selectedProjectGoals"`
	RejectionReason      string            `json:"rejectionReason,omitempty"`
	AppliedAt            time.Time         `json:"appliedAt"`
	DecidedAt            *time.Time        `json:"decidedAt,omitempty"`
	DecidedBy            string            `json:"decidedBy,omitempty"`
	Applicant            Profile           `json:"applicant"`
}

func (p ApplicationProps) clone() ApplicationProps {
	out := p
	out.SelectedKeyFeatures = append([]KeyFeature(nil), p.SelectedKeyFeatures...)
	out.SelectedProjectGoals = append([]ProjectGoal(nil), p.SelectedProjectGoals...)
	if p.DecidedAt != nil {
		at := *p.DecidedAt
		out.DecidedAt = &at
	}
	return out
}

// Application is one contributor's candidacy for a project role. Values are
// immutable: transitions return a new Application and leave the receiver as is.
type Application struct {
	props ApplicationProps
}

// Transition describes a single status change produced by Approve, Reject or Cancel.
type Transition struct {
	From ApplicationStatus
	To   ApplicationStatus
	At   time.Time
	By   string
}

// NewApplication validates props against project and returns a PENDING
// application. Selected features and goals are rebuilt from the project's own
// definitions; any status, decision data or rejection reason in props is dropped.
func NewApplication(props ApplicationProps, project Project, now time.Time) (Application, error) {
	errs := validateProps(props, true)
	if props.ProjectID != "" && props.ProjectID != project.ID {
		errs.add("projectId", "must match the project owning the role")
	}
	if err := errs.err(); err != nil {
		return Application{}, err
	}

	p := props.clone()
	for i, f := range p.SelectedKeyFeatures {
		known, ok := project.KeyFeature(f.ID)
		if !ok {
			errs.add("selectedKeyFeatures", ErrForeignFeatures.Message)
			break
		}
		p.SelectedKeyFeatures[i] = known
	}
	for i, g := range p.SelectedProjectGoals {
		known, ok := project.ProjectGoal(g.ID)
		if !ok {
			errs.add("selectedProjectGoals", ErrForeignGoals.Message)
			break
		}
		p.SelectedProjectGoals[i] = known
	}
	if err := errs.err(); err != nil {
		return Application{}, err
	}

	if p.ProjectTitle == "" {
		p.ProjectTitle = project.Title
	}
	if p.ProjectDescription == "" {
		p.ProjectDescription = project.Description
	}
	p.Status = ApplicationStatusPending
	p.RejectionReason = ""
	p.DecidedAt = nil
	p.DecidedBy = ""
	if p.AppliedAt.IsZero() {
		p.AppliedAt = now.UTC()
	}

	return Application{props: p}, nil
}

// ReconstituteApplication rebuilds a previously persisted application. The
// stored status is kept.
func ReconstituteApplication(props ApplicationProps) (Application, error) {
	errs := validateProps(props, false)

	if props.AppliedAt.IsZero() {
		errs.add("appliedAt", "is required")
	}
	if props.RejectionReason != "" && props.Status != ApplicationStatusRejected {
		errs.add("rejectionReason", "must be empty unless status is REJECTED")
	}
	if props.Status == ApplicationStatusPending && (props.DecidedAt != nil || props.DecidedBy != "") {
		errs.add("decidedAt", "must be empty while PENDING")
	}

	if err := errs.err(); err != nil {
		return Application{}, err
	}
	return Application{props: props.clone()}, nil
}

func validateProps(p ApplicationProps, creating bool) fieldErrors {
	errs := fieldErrors{}

	if strings.TrimSpace(p.ProjectID) == "" {
		errs.add("projectId", "is required")
	}
	if strings.TrimSpace(p.ProjectRoleID) == "" {
		errs.add("projectRoleId", "is required")
	}
	if strings.TrimSpace(p.Applicant.ID) == "" {
		errs.add("applicant.id", "is required")
	}

	if len(p.SelectedKeyFeatures) == 0 {
		errs.add("selectedKeyFeatures", "at least one key feature must be selected")
	} else {
		ids := make([]string, 0, len(p.SelectedKeyFeatures))
		for _, f := range p.SelectedKeyFeatures {
			ids = append(ids, f.ID)
		}
		if msg := checkIDs(ids, "key feature"); msg != "" {
			errs.add("selectedKeyFeatures", msg)
		}
	}

	if len(p.SelectedProjectGoals) == 0 {
		errs.add("selectedProjectGoals", "at least one project goal must be selected")
	} else {
		ids := make([]string, 0, len(p.SelectedProjectGoals))
		for _, g := range p.SelectedProjectGoals {
			ids = append(ids, g.ID)
		}
		if msg := checkIDs(ids, "project goal"); msg != "" {
			errs.add("selectedProjectGoals", msg)
		}
	}

	if utf8.RuneCountInString(p.MotivationLetter) > MaxMotivationLetterLength {
		errs.add("motivationLetter", fmt.Sprintf("must be at most %d characters", MaxMotivationLetterLength))
	}
	if utf8.RuneCountInString(p.RejectionReason) > MaxRejectionReasonLength {
		errs.add("rejectionReason", fmt.Sprintf("must be at most %d characters", MaxRejectionReasonLength))
	}

	switch {
	case p.Status == "" && !creating:
		errs.add("status", "is required")
	case p.Status != "" && !p.Status.Valid():
		errs.add("status", statusEnumMessage)
	}

	return errs
}

func checkIDs(ids []string, kind string) string {
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if strings.TrimSpace(id) == "" {
			return fmt.Sprintf("every %s must have an id", kind)
		}
		if _, dup := seen[id]; dup {
			return fmt.Sprintf("contains duplicate %s ids", kind)
		}
		seen[id] = struct{}{}
	}
	return ""
}

// ValidateSelection reports whether every selected feature and goal belongs to project.
func (a Application) ValidateSelection(project Project) error {
	if a.props.ProjectID != project.ID {
		return &ValidationError{Fields: map[string]string{"projectId": "must match the project owning the role"}}
	}
	for _, f := range a.props.SelectedKeyFeatures {
		if !project.HasKeyFeature(f.ID) {
			return ErrForeignFeatures
		}
	}
	for _, g := range a.props.SelectedProjectGoals {
		if !project.HasProjectGoal(g.ID) {
			return ErrForeignGoals
		}
	}
	return nil
}

func (a Application) Approve(decidedBy string, now time.Time) (Application, Transition, error) {
	if !a.IsPending() {
		return a, Transition{}, ErrNotPendingForApproval
	}
	if strings.TrimSpace(decidedBy) == "" {
		return a, Transition{}, &ValidationError{Fields: map[string]string{"decidedBy": "is required"}}
	}
	return a.transition(ApplicationStatusApproved, decidedBy, "", now)
}

func (a Application) Reject(decidedBy, reason string, now time.Time) (Application, Transition, error) {
	if !a.IsPending() {
		return a, Transition{}, ErrNotPendingForRejection
	}
	reason = strings.TrimSpace(reason)
	errs := fieldErrors{}
	if strings.TrimSpace(decidedBy) == "" {
		errs.add("decidedBy", "is required")
	}
	if utf8.RuneCountInString(reason) > MaxRejectionReasonLength {
		errs.add("rejectionReason", fmt.Sprintf("must be at most %d characters", MaxRejectionReasonLength))
	}
	if err := errs.err(); err != nil {
		return a, Transition{}, err
	}
	return a.transition(ApplicationStatusRejected, decidedBy, reason, now)
}

// Cancel withdraws a pending application on behalf of its applicant.
func (a Application) Cancel(now time.Time) (Application, Transition, error) {
	if !a.IsPending() {
		return a, Transition{}, ErrNotPendingForCancel
	}
	return a.transition(ApplicationStatusCancelled, a.props.Applicant.ID, "", now)
}

func (a Application) transition(to ApplicationStatus, by, reason string, now time.Time) (Application, Transition, error) {
	at := now.UTC()
	next := a.props.clone()
	next.Status = to
	next.DecidedAt = &at
	next.DecidedBy = by
	next.RejectionReason = reason

	return Application{props: next}, Transition{From: a.props.Status, To: to, At: at, By: by}, nil
}

// CanUserModify reports whether userID may still withdraw the application.
func (a Application) CanUserModify(userID string) bool {
	return userID != "" && a.props.Applicant.ID == userID && a.IsPending()
}

func (a Application) IsPending() bool   { return a.props.Status == ApplicationStatusPending }
func (a Application) IsApproved() bool  { return a.props.Status == ApplicationStatusApproved }
func (a Application) IsRejected() bool  { return a.props.Status == ApplicationStatusRejected }
func (a Application) IsCancelled() bool { return a.props.Status == ApplicationStatusCancelled }

// Props returns a copy of the primitive form.
func (a Application) Props() ApplicationProps { return a.props.clone() }

// WithID returns a copy carrying the identity assigned by storage.
func (a Application) WithID(id string) Application {
	next := a.props.clone()
	next.ID = id
	return Application{props: next}
}

func (a Application) ID() string                 { return a.props.ID }
func (a Application) ProjectID() string          { return a.props.ProjectID }
func (a Application) ProjectTitle() string       { return a.props.ProjectTitle }
func (a Application) ProjectDescription() string { return a.props.ProjectDescription }
func (a Application) ProjectRoleID() string      { return a.props.ProjectRoleID }
func (a Application) ProjectRoleTitle() string   { return a.props.ProjectRoleTitle }
func (a Application) Status() ApplicationStatus  { return a.props.Status }
func (a Application) MotivationLetter() string   { return a.props.MotivationLetter }
func (a Application) RejectionReason() string    { return a.props.RejectionReason }
func (a Application) AppliedAt() time.Time       { return a.props.AppliedAt }
func (a Application) DecidedBy() string          { return a.props.DecidedBy }
func (a Application) Applicant() Profile         { return a.props.Applicant }
func (a Application) ApplicantID() string        { return a.props.Applicant.ID }

func (a Application) DecidedAt() (time.Time, bool) {
	if a.props.DecidedAt == nil {
		return time.Time{}, false
	}
	return *a.props.DecidedAt, true
}

func (a Application) SelectedKeyFeatures() []KeyFeature {
	return append([]KeyFeature(nil), a.props.SelectedKeyFeatures...)
}

func (a Application) SelectedProjectGoals() []ProjectGoal {
	return append([]ProjectGoal(nil), a.props.SelectedProjectGoals...)
}
