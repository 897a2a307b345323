package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pathwaylabs/pathway/internal/auth"
	"github.com/pathwaylabs/pathway/internal/config"
	"github.com/pathwaylabs/pathway/internal/content"
	"github.com/pathwaylabs/pathway/internal/domain"
	"github.com/pathwaylabs/pathway/internal/events"
	"github.com/pathwaylabs/pathway/internal/flow"
	"github.com/pathwaylabs/pathway/internal/hint"
	"github.com/pathwaylabs/pathway/internal/runner"
	"github.com/pathwaylabs/pathway/internal/session"
	"github.com/pathwaylabs/pathway/internal/timer"
	"github.com/pathwaylabs/pathway/internal/tutor"
)

// Deps collects the services the server routes to.
type Deps struct {
	Auth      *auth.Service
	Sessions  *session.Service
	Content   content.Repository
	Runs      domain.RunStore
	Chats     domain.ChatStore
	Hints     domain.HintStore
	Gateway   tutor.Gateway
	Timers    *timer.Service
	Runner    *runner.Client
	Publisher events.Publisher
	Logger    *slog.Logger
}

// stateKey identifies one learner's engine state.
type stateKey struct {
	userID uuid.UUID
	module int
}

// learnerState holds the live engines for one (user, module). Engines carry
// in-memory state (the hint ladder, stream serialization), so they live
// across requests.
type learnerState struct {
	sess     *session.Session
	units    []domain.ContentUnit
	engine   *flow.Engine
	hints    *hint.Engine
	tracker  *timer.Tracker
	lastUsed time.Time
}

// defaultMaxStates bounds the live-state cache; least recently used entries
// are evicted past it.
const defaultMaxStates = 1024

// Server is the pathway HTTP server.
type Server struct {
	cfg    *config.Config
	server *http.Server
	router *http.ServeMux

	auth      *auth.Service
	sessions  *session.Service
	content   content.Repository
	runs      domain.RunStore
	chats     domain.ChatStore
	hints     domain.HintStore
	gateway   tutor.Gateway
	timers    *timer.Service
	runner    *runner.Client
	publisher events.Publisher
	logger    *slog.Logger

	mu        sync.Mutex
	states    map[stateKey]*learnerState
	maxStates int
}

// NewServer creates the HTTP server with its middleware chain.
func NewServer(cfg *config.Config, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	publisher := deps.Publisher
	if publisher == nil {
		publisher = events.NopPublisher{}
	}

	s := &Server{
		cfg:       cfg,
		router:    http.NewServeMux(),
		auth:      deps.Auth,
		sessions:  deps.Sessions,
		content:   deps.Content,
		runs:      deps.Runs,
		chats:     deps.Chats,
		hints:     deps.Hints,
		gateway:   deps.Gateway,
		timers:    deps.Timers,
		runner:    deps.Runner,
		publisher: publisher,
		logger:    logger,
		states:    make(map[stateKey]*learnerState),
		maxStates: defaultMaxStates,
	}

	s.setupRoutes()

	handler := recoveryMiddleware(correlationIDMiddleware(loggingMiddleware(s.router)))
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second, // Long for SSE
		IdleTimeout:  120 * time.Second,
	}

	return s
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	s.router.HandleFunc("GET /healthz", s.handleHealth)

	authed := http.NewServeMux()
	authed.HandleFunc("POST /api/session/init", s.handleSessionInit)
	authed.HandleFunc("POST /api/session/restart", s.handleSessionRestart)
	authed.HandleFunc("POST /api/ai", s.handleAI)
	authed.HandleFunc("POST /api/hint", s.handleHint)
	authed.HandleFunc("POST /api/track/start-subproblem", s.handleTrackStartSubproblem)
	authed.HandleFunc("POST /api/track/end-subproblem", s.handleTrackEnd)
	authed.HandleFunc("POST /api/track/start-hint", s.handleTrackStartHint)
	authed.HandleFunc("POST /api/track/end-hint", s.handleTrackEnd)
	authed.HandleFunc("POST /api/execute", s.handleExecute)
	authed.HandleFunc("GET /api/content/{module}", s.handleContent)

	s.router.Handle("/api/", s.authMiddleware(authed))
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("starting pathway server", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server...")
	return s.server.Shutdown(ctx)
}

// Handler returns the full middleware-wrapped handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// getState returns the learner's live engine state, building it on first use.
func (s *Server) getState(ctx context.Context, userID uuid.UUID, module int) (*learnerState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := stateKey{userID: userID, module: module}
	if st, ok := s.states[key]; ok {
		// A completed run never resumes. Dropping the cached entry and
		// going back through the session service keeps the warm path
		// identical to a cold start: a fresh run.
		if !st.engine.State().Complete {
			st.lastUsed = time.Now()
			return st, nil
		}
		delete(s.states, key)
	}

	sess, err := s.sessions.Initialize(ctx, userID, module)
	if err != nil {
		return nil, err
	}

	st, err := s.buildState(ctx, sess, module)
	if err != nil {
		return nil, err
	}
	s.states[key] = st
	s.evictLocked()
	return st, nil
}

// evictLocked drops least recently used states until the cache fits the
// bound. Caller holds s.mu.
func (s *Server) evictLocked() {
	for len(s.states) > s.maxStates {
		var oldestKey stateKey
		var oldest time.Time
		first := true
		for key, st := range s.states {
			if first || st.lastUsed.Before(oldest) {
				oldestKey, oldest = key, st.lastUsed
				first = false
			}
		}
		delete(s.states, oldestKey)
	}
}

// restartState replaces the learner's state with a fresh run.
func (s *Server) restartState(ctx context.Context, userID uuid.UUID, module int) (*learnerState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.sessions.Restart(ctx, userID, module)
	if err != nil {
		return nil, err
	}

	st, err := s.buildState(ctx, sess, module)
	if err != nil {
		return nil, err
	}
	s.states[stateKey{userID: userID, module: module}] = st
	s.evictLocked()
	return st, nil
}

func (s *Server) buildState(ctx context.Context, sess *session.Session, module int) (*learnerState, error) {
	units, err := s.content.Units(ctx, module)
	if err != nil {
		return nil, err
	}

	run := sess.Run
	hintEngine := hint.NewEngine(
		sess.UserID, module, sess.RunID, units,
		s.hints, s.gateway, s.timers, s.publisher, s.logger,
		run.CurrentProblem, run.CurrentSubproblem,
	)
	if err := hintEngine.LoadExisting(ctx); err != nil {
		s.logger.Warn("failed to load hint usage", "run_id", sess.RunID, "error", err)
	}

	return &learnerState{
		sess:     sess,
		units:    units,
		engine:   flow.NewEngine(sess, units, s.runs, s.chats, s.gateway, s.publisher, s.logger),
		hints:    hintEngine,
		tracker:  timer.NewTracker(s.timers),
		lastUsed: time.Now(),
	}, nil
}

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func (s *Server) jsonError(w http.ResponseWriter, status int, message string, err error) {
	response := map[string]any{
		"error":  message,
		"status": status,
	}
	if err != nil {
		response["details"] = err.Error()
	}
	s.jsonResponse(w, status, response)
}
