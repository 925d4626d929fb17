// Package httpapi is the thin REST surface (glue, not a core module): it
// inserts Agent/Task rows and starts/signals the durable workflows that own
// them, translating apperr.Kind to HTTP status at a single middleware
// boundary per spec.md §7. Grounded in jordigilh-kubernaut's chi-based
// handler style (one file per resource, validator-checked request structs)
// generalized from Kubernetes-object handlers to this domain's Agent/Task
// rows.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"

	"github.com/agentware/agentctl/engine"
	"github.com/agentware/agentctl/internal/apperr"
	"github.com/agentware/agentctl/telemetry"
)

// Server bundles the collaborators every handler needs.
type Server struct {
	Agents    AgentStore
	Tasks     TaskStore
	Engine    engine.Engine
	Logger    telemetry.Logger
	Validator *validator.Validate

	// DefaultTaskQueue is the task queue Build Workflow start requests
	// target; it is also recorded as a new Agent row's workflow_queue_name,
	// which Task Workflow start requests use.
	DefaultTaskQueue string
	// Namespace is the Kubernetes namespace Build/Task workflows operate
	// resources in.
	Namespace string

	// TaskTimeout/ExecutionTimeout default new workflow starts, per spec.md
	// §5's stated defaults (10s task timeout, 24h execution timeout).
	TaskTimeout      time.Duration
	ExecutionTimeout time.Duration
}

// NewRouter builds the chi router: CORS, request-id/logging middleware per
// the teacher's ambient stack, the error-translation middleware, and every
// resource route spec.md §11/SPEC_FULL.md §11 names.
func NewRouter(s *Server) http.Handler {
	if s.Validator == nil {
		s.Validator = validator.New()
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE"},
		AllowedHeaders: []string{"Content-Type"},
	}))

	r.Route("/agents", func(r chi.Router) {
		r.Post("/", wrap(s.createAgent))
		r.Delete("/{id}", wrap(s.deleteAgent))
	})
	r.Route("/tasks", func(r chi.Router) {
		r.Post("/", wrap(s.createTask))
		r.Get("/{id}", wrap(s.getTask))
		r.Post("/{id}/approve", wrap(s.approveTask))
		r.Post("/{id}/instruct", wrap(s.instructTask))
		r.Post("/{id}/cancel", wrap(s.cancelTask))
	})
	return r
}

// handlerFunc is an http.HandlerFunc that may fail; wrap is the single
// place apperr.Kind is translated to an HTTP status, per spec.md §7's "one
// error-translation boundary" requirement.
type handlerFunc func(w http.ResponseWriter, r *http.Request) error

func wrap(fn handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := fn(w, r); err != nil {
			writeJSONError(w, apperr.KindOf(err), err.Error())
		}
	}
}

func writeJSONError(w http.ResponseWriter, kind apperr.Kind, msg string) {
	status := statusForKind(kind)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + jsonEscape(msg) + `"}`))
}

func statusForKind(kind apperr.Kind) int {
	switch kind {
	case apperr.ClientError:
		return http.StatusBadRequest
	case apperr.DuplicateItem:
		return http.StatusConflict
	case apperr.NotFound:
		return http.StatusNotFound
	case apperr.WorkflowFailure:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func jsonEscape(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '"' || c == '\\' {
			out = append(out, '\\')
		}
		out = append(out, c)
	}
	return string(out)
}
