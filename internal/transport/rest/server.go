// Package rest is a thin HTTP surface for triggering diagram executions
// and querying their state, grounded on the teacher's
// internal/infrastructure/api/rest/server.go (route-per-concern, a
// logging ServeHTTP wrapper) but rebuilt on go-chi/chi/v5 per the
// dependency it carries alongside net/http in the rest of the corpus
// (2389-research-mammoth's spec/web handlers, kadirpekel-hector's
// pkg/transport middleware), since the teacher's bare 1.22
// http.ServeMux has no path-parameter support this surface needs for
// "/executions/{execution_id}".
package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dipeo/dipeo/internal/compiler"
	"github.com/dipeo/dipeo/internal/diagramio"
	"github.com/dipeo/dipeo/internal/domain"
	"github.com/dipeo/dipeo/internal/domainerr"
	"github.com/dipeo/dipeo/internal/engine"
	"github.com/dipeo/dipeo/internal/transport/ws"
)

// Server exposes the execution engine over HTTP: submit a Diagram Light
// document, poll its progress, fetch its final state.
type Server struct {
	router *chi.Mux
	eng    *engine.Engine
	ws     *ws.Handler
	log    zerolog.Logger

	mu         sync.RWMutex
	executions map[string]*executionRecord
}

type executionRecord struct {
	status string // "running", "completed", "failed"
	state  *domain.ExecutionState
	err    string
}

// NewServer builds the router and binds every route to eng. wsHandler
// serves the live event stream for a single execution; nil disables it
// (the /ws route responds 404).
func NewServer(eng *engine.Engine, wsHandler *ws.Handler, log zerolog.Logger) *Server {
	s := &Server{
		router:     chi.NewRouter(),
		eng:        eng,
		ws:         wsHandler,
		log:        log,
		executions: map[string]*executionRecord{},
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(s.requestLogger)
	s.router.Route("/api/v1", func(r chi.Router) {
		r.Post("/executions", s.handleTriggerExecution)
		r.Get("/executions/{execution_id}", s.handleGetExecution)
	})
	if s.ws != nil {
		s.router.Get("/ws/executions/{execution_id}", func(w http.ResponseWriter, r *http.Request) {
			s.ws.ServeHTTP(w, r, chi.URLParam(r, "execution_id"))
		})
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.log.Info().Str("method", r.Method).Str("path", r.URL.Path).Msg("request received")
		next.ServeHTTP(w, r)
	})
}

// triggerRequest is the body accepted by POST /api/v1/executions: a
// Diagram Light document plus optional seed variables.
type triggerRequest struct {
	DiagramID string         `json:"diagram_id"`
	Diagram   string         `json:"diagram"`
	Variables map[string]any `json:"variables"`
}

type triggerResponse struct {
	ExecutionID string `json:"execution_id"`
	Status      string `json:"status"`
}

// handleTriggerExecution parses a Diagram Light body, compiles it, and
// runs it to completion in the background, in the teacher's
// handleExecuteWorkflow "respond Accepted immediately" style, except
// this one actually starts the run rather than stubbing it.
func (s *Server) handleTriggerExecution(w http.ResponseWriter, r *http.Request) {
	var req triggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.DiagramID == "" {
		writeError(w, http.StatusBadRequest, "diagram_id is required")
		return
	}

	diagram, err := diagramio.LoadLight(req.DiagramID, []byte(req.Diagram))
	if err != nil {
		s.log.Warn().Err(err).Str("diagram_id", req.DiagramID).Msg("failed to parse diagram")
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	compiled, errs := compiler.Compile(diagram, compiler.Options{})
	if len(errs) > 0 {
		writeCompileErrors(w, errs)
		return
	}

	executionID := s.startExecution(compiled, req.Variables)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(triggerResponse{ExecutionID: executionID, Status: "running"})
}

// startExecution assigns the execution its id up front, records it as
// running, and kicks the actual run off in the background so the HTTP
// handler can respond without waiting on the diagram to finish.
func (s *Server) startExecution(compiled *domain.CompiledDiagram, vars map[string]any) string {
	executionID := domain.ExecutionID(uuid.New().String())
	rec := &executionRecord{status: "running"}

	s.mu.Lock()
	s.executions[string(executionID)] = rec
	s.mu.Unlock()

	go func() {
		state, err := s.eng.RunWithID(context.Background(), executionID, compiled, vars)
		s.mu.Lock()
		defer s.mu.Unlock()
		if err != nil {
			rec.status = "failed"
			rec.err = err.Error()
		} else {
			rec.status = "completed"
		}
		rec.state = state
	}()

	return string(executionID)
}

// handleGetExecution returns the last known ExecutionState for an id,
// whether the run is still in flight or finished.
func (s *Server) handleGetExecution(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "execution_id")

	s.mu.RLock()
	rec, ok := s.executions[id]
	s.mu.RUnlock()
	if !ok {
		writeError(w, http.StatusNotFound, domainerr.NewNotFoundError("execution", id).Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(struct {
		Status string                `json:"status"`
		Error  string                `json:"error,omitempty"`
		State  *domain.ExecutionState `json:"state,omitempty"`
	}{Status: rec.status, Error: rec.err, State: rec.state})
}

func writeCompileErrors(w http.ResponseWriter, errs []error) {
	messages := make([]string, 0, len(errs))
	for _, e := range errs {
		messages = append(messages, e.Error())
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnprocessableEntity)
	_ = json.NewEncoder(w).Encode(struct {
		Errors []string `json:"errors"`
	}{Errors: messages})
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(struct {
		Error string `json:"error"`
	}{Error: message})
}
