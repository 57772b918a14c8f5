package httpserver

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"

	"github.com/teamforge/collab-roles/internal/domain"
	"github.com/teamforge/collab-roles/internal/metrics"
	"github.com/teamforge/collab-roles/internal/repository/memory"
	"github.com/teamforge/collab-roles/internal/service"
)

type HandlersSuite struct {
	suite.Suite
	router http.Handler
}

func TestHandlersSuite(t *testing.T) {
	suite.Run(t, new(HandlersSuite))
}

func (s *HandlersSuite) SetupTest() {
	store := memory.New()
	store.PutProject(domain.Project{
		ID:          "p1",
		OwnerID:     "u2",
		Title:       "Open Atlas",
		KeyFeatures: []domain.KeyFeature{{ID: "f1", Feature: "Offline tiles"}},
		Goals:       []domain.ProjectGoal{{ID: "g1", Goal: "Ship v1"}},
	})
	store.PutRole(domain.Role{ID: "r1", ProjectID: "p1", Title: "Backend engineer"})
	store.PutProfile(domain.Profile{ID: "u1", DisplayName: "Ada"})

	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	s.Require().NoError(err)

	svc := service.New(service.Deps{Store: store, Metrics: m, Logger: zap.NewNop()}, service.DefaultPolicy())
	s.router = NewRouter(zap.NewNop(), svc, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
}

type errorBody struct {
	Error struct {
		Code    string            `json:"code"`
		Message string            `json:"message"`
		Fields  map[string]string `json:"fields"`
	} `json:"error"`
}

type applicationBody struct {
	Application struct {
		ID               string `json:"id"`
		Status           string `json:"status"`
		RejectionReason  string `json:"rejectionReason"`
		DecidedBy        string `json:"decidedBy"`
		ProjectRoleTitle string `json:"projectRoleTitle"`
		Applicant        struct {
			DisplayName string `json:"displayName"`
		} `json:"applicant"`
	} `json:"application"`
}

func (s *HandlersSuite) do(method, path, userID string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		s.Require().NoError(json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set(userIDHeader, userID)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *HandlersSuite) decode(rec *httptest.ResponseRecorder, dst any) {
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), dst), rec.Body.String())
}

func (s *HandlersSuite) apply(userID string) string {
	rec := s.do(http.MethodPost, "/applications", userID, map[string]any{
		"projectRoleId":          "r1",
		"selectedKeyFeatureIds":  []string{"f1"},
		"selectedProjectGoalIds": []string{"g1"},
		"motivationLetter":       "hello",
	})
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())

	var body applicationBody
	s.decode(rec, &body)
	return body.Application.ID
}

func (s *HandlersSuite) TestHealthAndMetrics() {
	rec := s.do(http.MethodGet, "/health", "", nil)
	s.Equal(http.StatusOK, rec.Code)

	s.apply("u1")
	rec = s.do(http.MethodGet, "/metrics", "", nil)
	s.Equal(http.StatusOK, rec.Code)
	s.Contains(rec.Body.String(), "collab_application_transitions_total")
}

func (s *HandlersSuite) TestMissingUserHeader() {
	rec := s.do(http.MethodGet, "/me/applications", "", nil)
	s.Equal(http.StatusUnauthorized, rec.Code)
}

func (s *HandlersSuite) TestApplyAndAccept() {
	id := s.apply("u1")

	rec := s.do(http.MethodGet, "/applications/"+id, "u1", nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	var got applicationBody
	s.decode(rec, &got)
	s.Equal("PENDING", got.Application.Status)
	s.Equal("Ada", got.Application.Applicant.DisplayName)
	s.Equal("Backend engineer", got.Application.ProjectRoleTitle)

	rec = s.do(http.MethodPost, "/applications/"+id+"/accept", "u2", nil)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	var accepted applicationBody
	s.decode(rec, &accepted)
	s.Equal("APPROVAL", accepted.Application.Status)
	s.Equal("u2", accepted.Application.DecidedBy)

	rec = s.do(http.MethodGet, "/projects/p1/contributors", "u3", nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	var contributors struct {
		Contributors []struct {
			UserID    string `json:"userId"`
			RoleCount int    `json:"roleCount"`
		} `json:"contributors"`
	}
	s.decode(rec, &contributors)
	s.Require().Len(contributors.Contributors, 1)
	s.Equal("u1", contributors.Contributors[0].UserID)
	s.Equal(1, contributors.Contributors[0].RoleCount)
}

func (s *HandlersSuite) TestRejectWithReason() {
	id := s.apply("u1")

	rec := s.do(http.MethodPost, "/applications/"+id+"/reject", "u2", map[string]string{"reason": "not a fit"})
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())

	var body applicationBody
	s.decode(rec, &body)
	s.Equal("REJECTED", body.Application.Status)
	s.Equal("not a fit", body.Application.RejectionReason)
}

func (s *HandlersSuite) TestRejectWithoutBody() {
	id := s.apply("u1")

	rec := s.do(http.MethodPost, "/applications/"+id+"/reject", "u2", nil)
	s.Equal(http.StatusOK, rec.Code, rec.Body.String())
}

func (s *HandlersSuite) TestCancel() {
	id := s.apply("u1")

	rec := s.do(http.MethodPost, "/applications/"+id+"/cancel", "u4", nil)
	s.Equal(http.StatusForbidden, rec.Code)

	rec = s.do(http.MethodPost, "/applications/"+id+"/cancel", "u1", nil)
	s.Equal(http.StatusNoContent, rec.Code)
}

func (s *HandlersSuite) TestErrorMapping() {
	id := s.apply("u1")

	cases := []struct {
		name    string
		method  string
		path    string
		user    string
		body    any
		status  int
		code    string
		message string
	}{
		{
			name: "non owner accept", method: http.MethodPost, path: "/applications/" + id + "/accept", user: "u3",
			status: http.StatusForbidden, code: "FORBIDDEN", message: "User is not the owner of the project",
		},
		{
			name: "unknown application", method: http.MethodGet, path: "/applications/nope", user: "u1",
			status: http.StatusNotFound, code: "NOT_FOUND", message: "Application not found",
		},
		{
			name: "duplicate pending", method: http.MethodPost, path: "/applications", user: "u1",
			body: map[string]any{
				"projectRoleId": "r1", "selectedKeyFeatureIds": []string{"f1"}, "selectedProjectGoalIds": []string{"g1"},
			},
			status: http.StatusConflict, code: "CONFLICT", message: "you already have a pending application for this role",
		},
		{
			name: "self application", method: http.MethodPost, path: "/applications", user: "u2",
			body: map[string]any{
				"projectRoleId": "r1", "selectedKeyFeatureIds": []string{"f1"}, "selectedProjectGoalIds": []string{"g1"},
			},
			status: http.StatusForbidden, code: "FORBIDDEN", message: "You cannot apply to your own project",
		},
		{
			name: "unknown field", method: http.MethodPost, path: "/applications", user: "u1",
			body:   map[string]any{"projectRoleId": "r1", "extra": true},
			status: http.StatusBadRequest, code: "VALIDATION",
		},
		{
			name: "project list by non owner", method: http.MethodGet, path: "/projects/p1/applications", user: "u1",
			status: http.StatusForbidden, code: "FORBIDDEN",
		},
	}

	for _, tc := range cases {
		s.Run(tc.name, func() {
			rec := s.do(tc.method, tc.path, tc.user, tc.body)
			s.Equal(tc.status, rec.Code, rec.Body.String())

			var body errorBody
			s.decode(rec, &body)
			s.Equal(tc.code, body.Error.Code)
			if tc.message != "" {
				s.Equal(tc.message, body.Error.Message)
			}
		})
	}
}

func (s *HandlersSuite) TestValidationFields() {
	rec := s.do(http.MethodPost, "/applications", "u3", map[string]any{
		"projectRoleId":          "r1",
		"selectedProjectGoalIds": []string{"g1"},
	})
	s.Require().Equal(http.StatusBadRequest, rec.Code, rec.Body.String())

	var body errorBody
	s.decode(rec, &body)
	s.Equal("VALIDATION", body.Error.Code)
	s.Contains(body.Error.Fields, "selectedKeyFeatures")
}

func (s *HandlersSuite) TestDashboards() {
	s.apply("u1")

	rec := s.do(http.MethodGet, "/me/applications", "u1", nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	var mine struct {
		Applications []json.RawMessage `json:"applications"`
	}
	s.decode(rec, &mine)
	s.Len(mine.Applications, 1)

	rec = s.do(http.MethodGet, "/me/projects/applications", "u2", nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	var owned struct {
		Applications []json.RawMessage `json:"applications"`
	}
	s.decode(rec, &owned)
	s.Len(owned.Applications, 1)

	rec = s.do(http.MethodGet, "/projects/p1/applications", "u2", nil)
	s.Require().Equal(http.StatusOK, rec.Code)
}
