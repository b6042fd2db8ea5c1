// Package server exposes the assistant over HTTP: the message endpoint, the
// capability catalog and the health, readiness and metrics probes.
package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"workshop-assistant/internal/assistant/action"
	"workshop-assistant/internal/assistant/engine"
	"workshop-assistant/internal/common/auth"
	"workshop-assistant/internal/common/errors"
	"workshop-assistant/internal/common/logger"
	"workshop-assistant/internal/common/validation"
)

const maxBodyBytes = 64 << 10

var messageSchema = validation.MustCompile(`{
	"type": "object",
	"properties": {
		"message":    {"type": "string", "minLength": 1, "maxLength": 2000},
		"sessionId":  {"type": "string", "maxLength": 128},
		"workshopId": {"type": "string", "maxLength": 128}
	},
	"required": ["message"]
}`)

// MessageRequest is the body of POST /v1/messages.
type MessageRequest struct {
	Message    string `json:"message"`
	SessionID  string `json:"sessionId,omitempty"`
	WorkshopID string `json:"workshopId,omitempty"`
}

type MessageProcessor interface {
	ProcessMessage(ctx context.Context, text string, base *action.RequestContext) *engine.Result
}

type CapabilityFinder interface {
	FindByKeywords(keywords []string) []action.Match
	List() []action.Definition
}

// TokenValidator is satisfied by *auth.KeycloakClient.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*auth.TokenInfo, error)
}

// Check reports whether one dependency is reachable.
type Check func(ctx context.Context) error

type Config struct {
	Addr           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	RequestTimeout time.Duration
}

type Dependencies struct {
	Engine       MessageProcessor
	Capabilities CapabilityFinder
	// Tokens may be nil, in which case every request is anonymous.
	Tokens TokenValidator
	Checks map[string]Check
}

type Server struct {
	config *Config
	deps   Dependencies
	logger logger.Logger
	http   *http.Server
}

func New(cfg *Config, deps Dependencies, log logger.Logger) *Server {
	s := &Server{
		config: cfg,
		deps:   deps,
		logger: logger.ForComponent(log, "http"),
	}
	s.http = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// Handler returns the routed mux, also used directly by tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/messages", s.handleMessage)
	mux.HandleFunc("GET /v1/capabilities", s.handleCapabilities)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ready", s.handleReady)
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

// Start blocks serving until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("http server listening", map[string]interface{}{"addr": s.config.Addr})
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.NewInvalidRequestError("unreadable body"))
		return
	}

	result, err := messageSchema.ValidateBytes(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.NewInvalidRequestError("body is not valid JSON"))
		return
	}
	if !result.Valid {
		writeError(w, http.StatusBadRequest, errors.NewInvalidRequestError(result.Error()))
		return
	}

	var req MessageRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, errors.NewInvalidRequestError(err.Error()))
		return
	}

	ctx := r.Context()
	if s.config.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.RequestTimeout)
		defer cancel()
	}

	user, tokenWorkshop, authErr := s.authenticate(ctx, r)
	if authErr != nil {
		writeError(w, http.StatusUnauthorized, authErr)
		return
	}

	workshopID := req.WorkshopID
	if workshopID == "" {
		workshopID = tokenWorkshop
	}
	rc := action.NewRequestContext(req.SessionID, workshopID, user)

	res := s.deps.Engine.ProcessMessage(ctx, req.Message, rc)
	writeJSON(w, http.StatusOK, res.Public())
}

// authenticate resolves the bearer token, if any. No header means an
// anonymous request; capabilities that need a user will refuse it.
func (s *Server) authenticate(ctx context.Context, r *http.Request) (*action.User, string, *errors.StandardError) {
	header := r.Header.Get("Authorization")
	if header == "" || s.deps.Tokens == nil {
		return nil, "", nil
	}
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		return nil, "", errors.NewAuthenticationError("expected a bearer token")
	}

	info, err := s.deps.Tokens.ValidateToken(ctx, strings.TrimSpace(token))
	if err != nil {
		s.logger.Warn("token rejected", map[string]interface{}{"error": err.Error()})
		return nil, "", errors.Normalize(err)
	}

	name := info.Name
	if name == "" {
		name = info.Username
	}
	return &action.User{ID: info.Sub, Name: name, Permissions: info.Permissions()}, info.WorkshopID, nil
}

func (s *Server) handleCapabilities(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("keywords")
	if strings.TrimSpace(raw) == "" {
		writeJSON(w, http.StatusOK, map[string]interface{}{"capabilities": s.deps.Capabilities.List()})
		return
	}
	matches := s.deps.Capabilities.FindByKeywords(strings.Split(raw, ","))
	if matches == nil {
		matches = []action.Match{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"matches": matches})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	failures := map[string]string{}
	for name, check := range s.deps.Checks {
		if err := check(ctx); err != nil {
			failures[name] = err.Error()
		}
	}

	if len(failures) > 0 {
		s.logger.Warn("readiness check failed", map[string]interface{}{"failures": failures})
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":   "not_ready",
			"failures": failures,
			"time":     time.Now().Format(time.RFC3339),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
		"time":   time.Now().Format(time.RFC3339),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err *errors.StandardError) {
	writeJSON(w, status, map[string]interface{}{"error": err})
}
