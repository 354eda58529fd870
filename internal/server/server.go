// Package server exposes the runtime over HTTP: a streaming chat endpoint
// that relays turn lifecycle events as SSE, plus an async turn API for
// poll-based clients.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/pitwall-ai/pitwall"
	"github.com/pitwall-ai/pitwall/internal/eventbus"
)

// Server wraps a Pitwall runtime with HTTP transport.
type Server struct {
	runtime  *pitwall.Pitwall
	sessions *sessionStore
	router   chi.Router
}

// New builds the HTTP server around a runtime.
func New(runtime *pitwall.Pitwall) *Server {
	s := &Server{
		runtime:  runtime,
		sessions: newSessionStore(),
	}
	s.router = s.buildRouter()
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.handleHealth)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/chat", s.handleChat)
		r.Post("/turns", s.handleStartTurn)
		r.Get("/turns/{turnID}", s.handleTurnStatus)
		r.Get("/turns/{turnID}/result", s.handleTurnResult)
		r.Delete("/turns/{turnID}", s.handleCancelTurn)
	})

	return r
}

type chatRequest struct {
	Question  string `json:"question"`
	SessionID string `json:"session_id"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"tools":  len(s.runtime.ListTools()),
	})
}

// handleChat answers one question, streaming lifecycle events and the
// final answer as server-sent events.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeChatRequest(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	conv := s.sessions.conversation(req.SessionID)
	turnID, err := s.runtime.AnswerAsync(r.Context(), req.Question, conv)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	events, unsubscribe, err := s.subscribeTurn(turnID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	writeSSE(w, "turn", map[string]interface{}{"turn_id": turnID})
	flusher.Flush()

	deadline := time.NewTimer(s.runtime.Config().TurnDeadline + 10*time.Second)
	defer deadline.Stop()

	// The turn may have finished between AnswerAsync and the subscription;
	// poll status so such turns still terminate the stream.
	statusTick := time.NewTicker(250 * time.Millisecond)
	defer statusTick.Stop()

	for {
		select {
		case <-statusTick.C:
			if status, err := s.runtime.GetAsyncStatus(turnID); err == nil && (status.IsComplete || status.HasError) {
				s.finishChat(w, flusher, turnID, req)
				return
			}
		case <-r.Context().Done():
			s.runtime.CancelAsyncTurn(turnID)
			return
		case <-deadline.C:
			writeSSE(w, "error", map[string]interface{}{"error": "turn timed out"})
			flusher.Flush()
			return
		case ev := <-events:
			writeSSE(w, string(ev.Type()), sseBody(ev))
			flusher.Flush()
			if isTerminal(ev.Type()) {
				s.finishChat(w, flusher, turnID, req)
				return
			}
		}
	}
}

// finishChat emits the final answer (or error) after the terminal
// lifecycle event and records the exchange in the session history.
func (s *Server) finishChat(w http.ResponseWriter, flusher http.Flusher, turnID string, req chatRequest) {
	answer, err := s.runtime.GetAsyncResult(turnID)
	if err != nil {
		writeSSE(w, "error", map[string]interface{}{"error": err.Error()})
		flusher.Flush()
		return
	}
	writeSSE(w, "answer", answer)
	flusher.Flush()

	s.sessions.append(req.SessionID, req.Question, answer.Text)
}

// subscribeTurn registers a bus handler forwarding this turn's events into
// a channel the SSE loop can drain.
func (s *Server) subscribeTurn(turnID string) (<-chan eventbus.Event, func(), error) {
	bus := s.runtime.EventBus()
	if bus == nil {
		return nil, nil, fmt.Errorf("event bus disabled")
	}

	events := make(chan eventbus.Event, 64)
	subID, err := bus.SubscribeAll(func(ctx context.Context, ev eventbus.Event) error {
		if eventbus.TurnID(ev) != turnID {
			return nil
		}
		select {
		case events <- ev:
		default:
			// Slow client: drop progress events rather than block the bus.
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	unsubscribe := func() {
		if err := bus.Unsubscribe(subID); err != nil {
			log.Printf("unsubscribe failed (turn_id: %s): %v", turnID, err)
		}
	}
	return events, unsubscribe, nil
}

func isTerminal(t eventbus.EventType) bool {
	switch t {
	case eventbus.EventTurnCompleted, eventbus.EventTurnFailed, eventbus.EventTurnCancelled:
		return true
	}
	return false
}

// handleStartTurn starts an async turn and returns its id immediately.
func (s *Server) handleStartTurn(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeChatRequest(w, r)
	if !ok {
		return
	}

	turnID, err := s.runtime.AnswerAsync(r.Context(), req.Question, s.sessions.conversation(req.SessionID))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]interface{}{"turn_id": turnID})
}

func (s *Server) handleTurnStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.runtime.GetAsyncStatus(chi.URLParam(r, "turnID"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleTurnResult(w http.ResponseWriter, r *http.Request) {
	turnID := chi.URLParam(r, "turnID")
	answer, err := s.runtime.GetAsyncResult(turnID)
	if err != nil {
		status, statusErr := s.runtime.GetAsyncStatus(turnID)
		if statusErr != nil {
			writeError(w, http.StatusNotFound, statusErr.Error())
			return
		}
		if !status.IsComplete && !status.HasError {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

func (s *Server) handleCancelTurn(w http.ResponseWriter, r *http.Request) {
	cancelled, err := s.runtime.CancelAsyncTurn(chi.URLParam(r, "turnID"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"cancelled": cancelled})
}

func decodeChatRequest(w http.ResponseWriter, r *http.Request) (chatRequest, bool) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return req, false
	}
	if req.Question == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return req, false
	}
	if req.SessionID == "" {
		req.SessionID = "anonymous"
	}
	return req, true
}

// sseBody keeps event payloads wire-friendly; non-serializable payloads
// degrade to their string form.
func sseBody(ev eventbus.Event) interface{} {
	payload := ev.Payload()
	if _, err := json.Marshal(payload); err != nil {
		return map[string]interface{}{"payload": fmt.Sprintf("%v", payload)}
	}
	return payload
}

func writeSSE(w http.ResponseWriter, event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		data = []byte(`{}`)
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]interface{}{"error": message})
}
