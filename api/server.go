/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. CORS:           Cross-origin requests for the frontend
  2. RequestLogger:  httplog, ECS schema, through the injected slog logger
  3. CleanPath:      Collapses double slashes
  4. Recoverer:      Panic recovery (500 instead of crash)
  5. Heartbeat:      GET /health for load balancers

AUTHENTICATION:
  With a TokenAuth, every /api route requires an HS256 bearer token and the
  token's user_id claim becomes the acting user. Without one all routes are
  open and decisions may name actor_id in the body.

ROUTE GROUPS:
  /api/time-entries/*   Time entries, clock events, overtime filing
  /api/employees/*      Daily time records
  /api/overtime/*       Overtime adjudication
  /api/shift-changes/*  Shift-change adjudication
  /api/leaves/*         Leave records and breakdown
  /api/requests/*       Audit trail
  /api/scenarios/*      Demo scenarios, only with EnableScenarios

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httplog/v3"
	"github.com/go-chi/jwtauth/v5"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// RouterOptions configures NewRouter.
type RouterOptions struct {
	// TokenAuth enables bearer-token auth when set.
	TokenAuth      *jwtauth.JWTAuth
	AllowedOrigins []string
	Logger         *slog.Logger
	// EnableScenarios mounts /api/scenarios. Loading a scenario resets the
	// store, so production leaves it off.
	EnableScenarios bool
}

// NewTokenAuth returns the HS256 verifier for secret.
func NewTokenAuth(secret string) *jwtauth.JWTAuth {
	return jwtauth.New("HS256", []byte(secret), nil, jwt.WithAcceptableSkew(30*time.Second))
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	logger := opts.Logger
	if logger == nil {
		logger = h.Logger
	}
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173", "http://localhost:8080"}
	}

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(httplog.RequestLogger(logger, &httplog.Options{
		Level:  slog.LevelInfo,
		Schema: httplog.SchemaECS,
	}))
	r.Use(middleware.CleanPath)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/health"))

	h.AuthEnabled = opts.TokenAuth != nil

	r.Route("/api", func(r chi.Router) {
		if opts.TokenAuth != nil {
			r.Use(jwtauth.Verifier(opts.TokenAuth))
			r.Use(authRequired)
		}

		r.Route("/time-entries", func(r chi.Router) {
			r.Post("/", h.CreateTimeEntry)
			r.Get("/{id}", h.GetTimeEntry)
			r.Post("/{id}/clock", h.RecordClock)
			r.Post("/{id}/overtime", h.FileOvertime)
		})

		r.Get("/employees/{id}/time-entries", h.ListEmployeeTimeEntries)

		r.Route("/overtime", func(r chi.Router) {
			r.Get("/", h.ListOvertime)
			r.Get("/{id}", h.GetOvertime)
			r.Post("/{id}/decisions", h.DecideOvertime)
		})

		r.Route("/shift-changes", func(r chi.Router) {
			r.Post("/", h.FileShiftChange)
			r.Get("/", h.ListShiftChanges)
			r.Get("/{id}", h.GetShiftChange)
			r.Post("/{id}/decisions", h.DecideShiftChange)
		})

		r.Route("/leaves", func(r chi.Router) {
			r.Post("/", h.RecordLeave)
			r.Post("/{id}/cancel", h.CancelLeave)
			r.Get("/breakdown", h.LeaveBreakdown)
			r.Get("/export.xlsx", h.ExportLeaves)
		})

		r.Get("/requests/{id}/transitions", h.ListTransitions)
		r.Get("/shifts", h.ListShifts)

		if opts.EnableScenarios {
			r.Route("/scenarios", func(r chi.Router) {
				r.Get("/", h.ListScenarios)
				r.Get("/current", h.GetCurrentScenario)
				r.Post("/load", h.LoadScenario)
			})
		}
	})

	return r
}

// authRequired rejects requests without a verified token carrying user_id.
func authRequired(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, claims, err := jwtauth.FromContext(r.Context())
		if err != nil || token == nil {
			writeError(w, http.StatusUnauthorized, "unauthorized", err)
			return
		}
		if id, ok := claims["user_id"].(string); !ok || id == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}
