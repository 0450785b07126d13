// Package api exposes the services over HTTP and WebSocket.
package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"taskcal/internal/apperr"
	"taskcal/internal/ready"
	"taskcal/internal/realtime"
	"taskcal/internal/service"
)

// Deps are the collaborators the API is built from.
type Deps struct {
	Auth     *service.AuthService
	Tasks    *service.TaskService
	Events   *service.EventService
	Profiles *service.ProfileService
	Hub      *realtime.Hub
	// Ready gates /healthz.
	Ready *ready.Signal
	// AllowedOrigins defaults to any origin.
	AllowedOrigins []string
}

// Server holds the HTTP handlers.
type Server struct {
	auth     *service.AuthService
	tasks    *service.TaskService
	events   *service.EventService
	profiles *service.ProfileService
	hub      *realtime.Hub
	ready    *ready.Signal
}

// NewHandler builds the routed, CORS-wrapped handler.
func NewHandler(deps Deps) http.Handler {
	s := &Server{
		auth:     deps.Auth,
		tasks:    deps.Tasks,
		events:   deps.Events,
		profiles: deps.Profiles,
		hub:      deps.Hub,
		ready:    deps.Ready,
	}

	r := mux.NewRouter()
	r.Use(logRequests)

	// Auth routes
	r.HandleFunc("/api/auth/signup", s.signUp).Methods(http.MethodPost)
	r.HandleFunc("/api/auth/login", s.signIn).Methods(http.MethodPost)
	r.HandleFunc("/api/auth/verify", s.requireAuth(s.verify, service.PurposeSession, service.PurposeRecovery)).Methods(http.MethodGet)
	r.HandleFunc("/api/auth/recover", s.requestRecovery).Methods(http.MethodPost)
	r.HandleFunc("/api/auth/recover/verify", s.verifyRecovery).Methods(http.MethodPost)
	r.HandleFunc("/api/auth/password", s.requireAuth(s.updatePassword, service.PurposeSession, service.PurposeRecovery)).Methods(http.MethodPost)
	r.HandleFunc("/api/auth/magic-link", s.sendMagicLink).Methods(http.MethodPost)
	r.HandleFunc("/api/auth/magic-link", s.consumeMagicLink).Methods(http.MethodGet)

	// Data routes (protected)
	r.HandleFunc("/api/tasks", s.requireAuth(s.listTasks)).Methods(http.MethodGet)
	r.HandleFunc("/api/tasks", s.requireAuth(s.createTask)).Methods(http.MethodPost)
	r.HandleFunc("/api/tasks/{id}", s.requireAuth(s.updateTask)).Methods(http.MethodPatch)
	r.HandleFunc("/api/tasks/{id}", s.requireAuth(s.deleteTask)).Methods(http.MethodDelete)
	r.HandleFunc("/api/tasks/{id}/toggle", s.requireAuth(s.toggleTask)).Methods(http.MethodPost)

	r.HandleFunc("/api/events", s.requireAuth(s.listEvents)).Methods(http.MethodGet)
	r.HandleFunc("/api/events", s.requireAuth(s.createEvent)).Methods(http.MethodPost)
	r.HandleFunc("/api/events/{id}", s.requireAuth(s.updateEvent)).Methods(http.MethodPatch)
	r.HandleFunc("/api/events/{id}", s.requireAuth(s.deleteEvent)).Methods(http.MethodDelete)

	r.HandleFunc("/api/profile", s.requireAuth(s.getProfile)).Methods(http.MethodGet)
	r.HandleFunc("/api/profile", s.requireAuth(s.updateProfile)).Methods(http.MethodPut)
	r.HandleFunc("/api/profile/telegram", s.requireAuth(s.createTelegramLink)).Methods(http.MethodPost)

	// WebSocket route for real-time updates
	r.HandleFunc("/api/realtime", s.requireAuth(s.realtime)).Methods(http.MethodGet)

	r.HandleFunc("/healthz", s.health).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, apperr.New(apperr.NotFound, "no such endpoint"))
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, apperr.Envelope{Error: apperr.Payload{
			Code:    apperr.Validation.Code(),
			Message: "method not allowed",
		}})
	})

	origins := deps.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		ExposedHeaders: []string{"Retry-After"},
	})
	return c.Handler(r)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if s.ready == nil || !s.ready.Fired() {
		writeError(w, r, apperr.New(apperr.Unavailable, "starting"))
		return
	}
	if err := s.ready.Err(); err != nil {
		writeError(w, r, apperr.Wrap(apperr.Unavailable, err, "startup failed"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) realtime(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		writeError(w, r, apperr.New(apperr.Unavailable, "realtime disabled"))
		return
	}
	s.hub.ServeWS(w, r, claimsFrom(r.Context()).UserID)
}
