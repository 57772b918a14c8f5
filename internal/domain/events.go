package domain

import "time"

type EventName string

const (
	EventApplicationCreated   EventName = "application.created"
	EventApplicationAccepted  EventName = "application.accepted"
	EventApplicationRejected  EventName = "application.rejected"
	EventApplicationCancelled EventName = "application.cancelled"
)

// Event is a lifecycle notification emitted after the transition it describes
// has been committed.
type Event struct {
	ID         string                  `json:"id"`
	Name       EventName               `json:"name"`
	OccurredAt time.Time               `json:"occurredAt"`
	Payload    ApplicationEventPayload `json:"payload"`
}

type ApplicationEventPayload struct {
	ApplicationID        string        `json:"applicationId"`
	ProjectID            string        `json:"projectId"`
	ProjectTitle         string        `json:"projectTitle"`
	ProjectRoleID        string        `json:"projectRoleId"`
	ProjectRoleTitle     string        `json:"projectRoleTitle"`
	Status               string        `json:"status"`
	ApplicantID          string        `json:"applicantId"`
	ApplicantName        string        `json:"applicantName,omitempty"`
	OwnerID              string        `json:"ownerId,omitempty"`
	OwnerName            string        `json:"ownerName,omitempty"`
	SelectedKeyFeatures  []KeyFeature  `json:"selectedKeyFeatures,omitempty"`
	SelectedProjectGoals []ProjectGoal `json:"selectedProjectGoals,omitempty"`
	RejectionReason      string        `json:"rejectionReason,omitempty"`
	Message              string        `json:"message,omitempty"`
}

// NewApplicationEvent fills the payload fields that derive from app.
func NewApplicationEvent(id string, name EventName, app Application, at time.Time) Event {
	return Event{
		ID:         id,
		Name:       name,
		OccurredAt: at.UTC(),
		Payload: ApplicationEventPayload{
			ApplicationID:    app.ID(),
			ProjectID:        app.ProjectID(),
			ProjectTitle:     app.ProjectTitle(),
			ProjectRoleID:    app.ProjectRoleID(),
			ProjectRoleTitle: app.ProjectRoleTitle(),
			Status:           string(app.Status()),
			ApplicantID:      app.ApplicantID(),
			ApplicantName:    app.Applicant().DisplayName,
			RejectionReason:  app.RejectionReason(),
		},
	}
}
