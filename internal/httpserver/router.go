package httpserver

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

const userIDHeader = "X-User-ID"

type ctxKey struct{}

// NewRouter wires the application routes. Everything except /health and
// /metrics requires the X-User-ID header.
func NewRouter(logger *zap.Logger, svc Service, metrics http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &handler{
		svc:    svc,
		logger: logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(zapRequestLogger(logger))

	r.Get("/health", h.handleHealth)
	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}

	r.Group(func(r chi.Router) {
		r.Use(requireUser)

		r.Route("/applications", func(r chi.Router) {
			r.Post("/", h.handleApply)
			r.Route("/{applicationID}", func(r chi.Router) {
				r.Get("/", h.handleApplicationGet)
				r.Post("/accept", h.handleAccept)
				r.Post("/reject", h.handleReject)
				r.Post("/cancel", h.handleCancel)
			})
		})

		r.Route("/projects/{projectID}", func(r chi.Router) {
			r.Get("/applications", h.handleProjectApplications)
			r.Get("/contributors", h.handleProjectContributors)
		})

		r.Route("/me", func(r chi.Router) {
			r.Get("/applications", h.handleMyApplications)
			r.Get("/projects/applications", h.handleOwnedProjectApplications)
		})
	})

	return r
}

func requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := strings.TrimSpace(r.Header.Get(userIDHeader))
		if userID == "" {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", userIDHeader+" header is required")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, userID)))
	})
}

func userFromContext(ctx context.Context) string {
	userID, _ := ctx.Value(ctxKey{}).(string)
	return userID
}

func zapRequestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.Info(
				"http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}
