package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/teamforge/collab-roles/internal/domain"
	"github.com/teamforge/collab-roles/internal/service"
)

type handler struct {
	svc    Service
	logger *zap.Logger
}

func (h *handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *handler) handleApply(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProjectRoleID          string   `json:"projectRoleId"`
		SelectedKeyFeatureIDs  []string `json:"selectedKeyFeatureIds"`
		SelectedProjectGoalIDs []string `json:"selectedProjectGoalIds"`
		MotivationLetter       string   `json:"motivationLetter"`
	}
	if err := decodeJSON(r.Context(), r.Body, &req); err != nil {
		writeValidationError(w, err)
		return
	}
	if strings.TrimSpace(req.ProjectRoleID) == "" {
		writeValidationError(w, errors.New("projectRoleId is required"))
		return
	}

	app, err := h.svc.Apply(r.Context(), service.ApplyInput{
		ApplicantID:            userFromContext(r.Context()),
		ProjectRoleID:          req.ProjectRoleID,
		SelectedKeyFeatureIDs:  req.SelectedKeyFeatureIDs,
		SelectedProjectGoalIDs: req.SelectedProjectGoalIDs,
		MotivationLetter:       req.MotivationLetter,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"application": mapApplication(app),
	})
}

func (h *handler) handleApplicationGet(w http.ResponseWriter, r *http.Request) {
	app, err := h.svc.GetApplication(r.Context(), chi.URLParam(r, "applicationID"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"application": mapApplication(app),
	})
}

func (h *handler) handleAccept(w http.ResponseWriter, r *http.Request) {
	app, err := h.svc.Accept(r.Context(), chi.URLParam(r, "applicationID"), userFromContext(r.Context()))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"application": mapApplication(app),
	})
}

func (h *handler) handleReject(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason string `json:"reason"`
	}
	if err := decodeOptionalJSON(r.Context(), r.Body, &req); err != nil {
		writeValidationError(w, err)
		return
	}

	app, err := h.svc.Reject(r.Context(), chi.URLParam(r, "applicationID"), userFromContext(r.Context()), req.Reason)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"application": mapApplication(app),
	})
}

func (h *handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Cancel(r.Context(), chi.URLParam(r, "applicationID"), userFromContext(r.Context())); err != nil {
		h.writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) handleProjectApplications(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")

	apps, err := h.svc.ListProjectApplications(r.Context(), projectID, userFromContext(r.Context()))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"projectId":    projectID,
		"applications": mapApplications(apps),
	})
}

func (h *handler) handleProjectContributors(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")

	contributors, err := h.svc.ApprovedContributors(r.Context(), projectID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	result := make([]map[string]any, 0, len(contributors))
	for _, c := range contributors {
		roles := make([]map[string]any, 0, len(c.Roles))
		for _, role := range c.Roles {
			roles = append(roles, map[string]any{
				"projectRoleId":    role.RoleID,
				"projectRoleTitle": role.RoleTitle,
				"acceptedAt":       formatTime(role.AcceptedAt),
			})
		}
		result = append(result, map[string]any{
			"userId":      c.Profile.ID,
			"displayName": c.Profile.DisplayName,
			"avatarUrl":   c.Profile.AvatarURL,
			"roleCount":   c.RoleCount(),
			"roles":       roles,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"projectId":    projectID,
		"contributors": result,
	})
}

func (h *handler) handleMyApplications(w http.ResponseWriter, r *http.Request) {
	userID := userFromContext(r.Context())

	apps, err := h.svc.ListApplicantApplications(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"userId":       userID,
		"applications": mapApplications(apps),
	})
}

func (h *handler) handleOwnedProjectApplications(w http.ResponseWriter, r *http.Request) {
	userID := userFromContext(r.Context())

	apps, err := h.svc.ListOwnerApplications(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ownerId":      userID,
		"applications": mapApplications(apps),
	})
}

func (h *handler) writeServiceError(w http.ResponseWriter, err error) {
	status, code := mapServiceError(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("service error", zap.Error(err))
	}

	var vErr *domain.ValidationError
	if errors.As(err, &vErr) {
		writeJSON(w, status, map[string]any{
			"error": map[string]any{
				"code":    code,
				"message": vErr.Error(),
				"fields":  vErr.Fields,
			},
		})
		return
	}

	message := err.Error()
	if status >= http.StatusInternalServerError && domain.CodeOf(err) == "" {
		message = "internal error"
	}
	writeError(w, status, code, message)
}

func mapServiceError(err error) (int, string) {
	switch domain.CodeOf(err) {
	case domain.CodeValidation:
		return http.StatusBadRequest, "VALIDATION"
	case domain.CodeForbidden:
		return http.StatusForbidden, "FORBIDDEN"
	case domain.CodeNotFound:
		return http.StatusNotFound, "NOT_FOUND"
	case domain.CodeConflict:
		return http.StatusConflict, "CONFLICT"
	case domain.CodeInvariant:
		return http.StatusConflict, "INVARIANT_VIOLATION"
	default:
		return http.StatusInternalServerError, "INTERNAL"
	}
}

type namedItem struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func mapApplication(app domain.Application) map[string]any {
	features := make([]namedItem, 0, len(app.SelectedKeyFeatures()))
	for _, f := range app.SelectedKeyFeatures() {
		features = append(features, namedItem{ID: f.ID, Name: f.Feature})
	}
	goals := make([]namedItem, 0, len(app.SelectedProjectGoals()))
	for _, g := range app.SelectedProjectGoals() {
		goals = append(goals, namedItem{ID: g.ID, Name: g.Goal})
	}

	applicant := app.Applicant()
	resp := map[string]any{
		"id":                   app.ID(),
		"projectId":            app.ProjectID(),
		"projectTitle":         app.ProjectTitle(),
		"projectDescription":   app.ProjectDescription(),
		"projectRoleId":        app.ProjectRoleID(),
		"projectRoleTitle":     app.ProjectRoleTitle(),
		"status":               string(app.Status()),
		"motivationLetter":     app.MotivationLetter(),
		"selectedKeyFeatures":  features,
		"selectedProjectGoals": goals,
		"appliedAt":            formatTime(app.AppliedAt()),
		"applicant": map[string]any{
			"id":          applicant.ID,
			"displayName": applicant.DisplayName,
			"avatarUrl":   applicant.AvatarURL,
		},
	}
	if app.RejectionReason() != "" {
		resp["rejectionReason"] = app.RejectionReason()
	}
	if decidedAt, ok := app.DecidedAt(); ok {
		resp["decidedAt"] = formatTime(decidedAt)
		resp["decidedBy"] = app.DecidedBy()
	}
	return resp
}

func mapApplications(apps []domain.Application) []map[string]any {
	result := make([]map[string]any, 0, len(apps))
	for _, app := range apps {
		result = append(result, mapApplication(app))
	}
	return result
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func decodeJSON(ctx context.Context, body io.ReadCloser, dst any) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return errors.New("unexpected extra JSON input")
		}
		return err
	}
	return nil
}

// decodeOptionalJSON is decodeJSON that accepts an empty body.
func decodeOptionalJSON(ctx context.Context, body io.ReadCloser, dst any) error {
	err := decodeJSON(ctx, body, dst)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	})
}

func writeValidationError(w http.ResponseWriter, err error) {
	writeError(w, http.StatusBadRequest, "VALIDATION", err.Error())
}
