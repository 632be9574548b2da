package http

import (
	"context"
	"net/http"
	"strings"
)

// HealthChecker reports whether a backing dependency is reachable.
type HealthChecker func(ctx context.Context) error

type RouterConfig struct {
	Appointments *AppointmentHandler
	Harassments  *HarassmentHandler
	Presence     *PresenceHandler
	Leaderboard  *LeaderboardHandler
	Health       HealthChecker
	Metrics      http.Handler
	// Auth guards every API route; /healthz and /metrics stay open.
	Auth       func(http.Handler) http.Handler
	Middleware []func(http.Handler) http.Handler
}

func NewRouter(cfg RouterConfig) http.Handler {
	api := http.NewServeMux()

	if cfg.Appointments != nil {
		api.HandleFunc("/appointments", func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet:
				cfg.Appointments.List(w, r)
			case http.MethodPost:
				cfg.Appointments.Create(w, r)
			default:
				methodNotAllowed(w, http.MethodGet, http.MethodPost)
			}
		})
		api.HandleFunc("/appointments/", func(w http.ResponseWriter, r *http.Request) {
			id, action, _ := strings.Cut(strings.TrimPrefix(r.URL.Path, "/appointments/"), "/")
			if id == "" {
				http.NotFound(w, r)
				return
			}
			r = r.WithContext(ContextWithResourceID(r.Context(), id))

			if action == "" {
				if r.Method != http.MethodGet {
					methodNotAllowed(w, http.MethodGet)
					return
				}
				cfg.Appointments.Get(w, r)
				return
			}

			var handle http.HandlerFunc
			switch action {
			case "join":
				handle = cfg.Appointments.Join
			case "leave":
				handle = cfg.Appointments.Leave
			case "cancel":
				handle = cfg.Appointments.Cancel
			default:
				http.NotFound(w, r)
				return
			}
			if r.Method != http.MethodPost {
				methodNotAllowed(w, http.MethodPost)
				return
			}
			handle(w, r)
		})
	}

	if cfg.Harassments != nil {
		api.HandleFunc("/harassments", func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet:
				cfg.Harassments.List(w, r)
			case http.MethodPost:
				cfg.Harassments.Start(w, r)
			default:
				methodNotAllowed(w, http.MethodGet, http.MethodPost)
			}
		})
		api.HandleFunc("/harassments/", func(w http.ResponseWriter, r *http.Request) {
			target, action, _ := strings.Cut(strings.TrimPrefix(r.URL.Path, "/harassments/"), "/")
			if target == "" || action != "give-up" {
				http.NotFound(w, r)
				return
			}
			if r.Method != http.MethodPost {
				methodNotAllowed(w, http.MethodPost)
				return
			}
			cfg.Harassments.GiveUp(w, r.WithContext(ContextWithResourceID(r.Context(), target)))
		})
	}

	if cfg.Presence != nil {
		api.HandleFunc("/presence/arrivals", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				methodNotAllowed(w, http.MethodPost)
				return
			}
			cfg.Presence.Arrive(w, r)
		})
		api.HandleFunc("/presence/departures", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				methodNotAllowed(w, http.MethodPost)
				return
			}
			cfg.Presence.Depart(w, r)
		})
	}

	if cfg.Leaderboard != nil {
		api.HandleFunc("/leaderboard", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				methodNotAllowed(w, http.MethodGet)
				return
			}
			cfg.Leaderboard.Get(w, r)
		})
	}

	var guarded http.Handler = api
	if cfg.Auth != nil {
		guarded = cfg.Auth(api)
	}

	mux := http.NewServeMux()
	mux.Handle("/", guarded)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			methodNotAllowed(w, http.MethodGet)
			return
		}
		healthz(w, r, cfg.Health)
	})
	if cfg.Metrics != nil {
		mux.Handle("/metrics", cfg.Metrics)
	}

	var handler http.Handler = mux
	if len(cfg.Middleware) > 0 {
		for i := len(cfg.Middleware) - 1; i >= 0; i-- {
			if cfg.Middleware[i] != nil {
				handler = cfg.Middleware[i](handler)
			}
		}
	}

	return handler
}

func healthz(w http.ResponseWriter, r *http.Request, check HealthChecker) {
	responder := newResponder(nil)
	if check != nil {
		if err := check(r.Context()); err != nil {
			responder.loggerFor(r.Context()).WarnContext(r.Context(), "health check failed", "error", err)
			responder.writeJSON(r.Context(), w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable"})
			return
		}
	}
	responder.writeJSON(r.Context(), w, http.StatusOK, healthResponse{Status: "ok"})
}

type healthResponse struct {
	Status string `json:"status"`
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	if len(allowed) > 0 {
		w.Header().Set("Allow", strings.Join(allowed, ", "))
	}
	http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
}
