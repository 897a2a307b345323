package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/pathwaylabs/pathway/internal/domain"
	"github.com/pathwaylabs/pathway/internal/flow"
	"github.com/pathwaylabs/pathway/internal/tutor"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// stateJSON is the wire form of a run position.
type stateJSON struct {
	CurrentProblemIndex    int  `json:"currentProblemIndex"`
	CurrentSubproblemIndex int  `json:"currentSubproblemIndex"`
	IsComplete             bool `json:"isComplete"`
}

func toStateJSON(st domain.ProblemState) stateJSON {
	return stateJSON{
		CurrentProblemIndex:    st.ProblemIndex,
		CurrentSubproblemIndex: st.SubproblemIndex,
		IsComplete:             st.Complete,
	}
}

// chatEntryJSON is the wire form of a transcript entry.
type chatEntryJSON struct {
	ID              string    `json:"id"`
	Role            string    `json:"role"`
	Message         string    `json:"message"`
	ProblemIndex    int       `json:"problemIndex"`
	SubproblemIndex int       `json:"subproblemIndex"`
	SentAt          time.Time `json:"sentAt"`
}

func toChatJSON(entries []*domain.ChatEntry) []chatEntryJSON {
	out := make([]chatEntryJSON, 0, len(entries))
	for _, e := range entries {
		out = append(out, chatEntryJSON{
			ID:              e.ID.String(),
			Role:            string(e.Role),
			Message:         e.Message,
			ProblemIndex:    e.ProblemIndex,
			SubproblemIndex: e.SubproblemIndex,
			SentAt:          e.SentAt,
		})
	}
	return out
}

func (s *Server) handleSessionInit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Module int `json:"module"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	st, err := s.getState(r.Context(), GetUserID(r.Context()), req.Module)
	if err != nil {
		if errors.Is(err, domain.ErrContentNotFound) {
			s.jsonError(w, http.StatusNotFound, "module not found", err)
			return
		}
		s.jsonError(w, http.StatusInternalServerError, "failed to initialize session", err)
		return
	}

	s.jsonResponse(w, http.StatusOK, map[string]any{
		"runId":        st.sess.RunID.String(),
		"currentState": toStateJSON(st.engine.State()),
		"chatHistory":  toChatJSON(st.engine.History()),
		"hintLevel":    st.hints.Level(),
		"hintLabel":    st.hints.ButtonLabel(),
	})
}

func (s *Server) handleSessionRestart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Module int `json:"module"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	st, err := s.restartState(r.Context(), GetUserID(r.Context()), req.Module)
	if err != nil {
		if errors.Is(err, domain.ErrContentNotFound) {
			s.jsonError(w, http.StatusNotFound, "module not found", err)
			return
		}
		s.jsonError(w, http.StatusInternalServerError, "failed to restart session", err)
		return
	}

	s.jsonResponse(w, http.StatusOK, map[string]any{
		"runId":        st.sess.RunID.String(),
		"currentState": toStateJSON(st.engine.State()),
		"chatHistory":  []chatEntryJSON{},
		"hintLevel":    0,
		"hintLabel":    st.hints.ButtonLabel(),
	})
}

// sseSink re-emits engine updates as SSE data frames, verdict first.
type sseSink struct {
	w http.ResponseWriter
	f http.Flusher
}

func (s *sseSink) Verdict(correct bool) {
	fmt.Fprintf(s.w, "data: {\"isCorrect\": %t}\n\n", correct)
	s.f.Flush()
}

func (s *sseSink) Chunk(id, text string) {
	payload, err := json.Marshal(map[string]string{"chunk": text})
	if err != nil {
		return
	}
	fmt.Fprintf(s.w, "data: %s\n\n", payload)
	s.f.Flush()
}

func (s *Server) handleAI(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Module   int    `json:"module"`
		Action   string `json:"action"`
		Message  string `json:"message"`
		UserCode string `json:"userCode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	switch req.Action {
	case tutor.ActionInitialize.String(), tutor.ActionValidate.String(), tutor.ActionNext.String():
	default:
		s.jsonError(w, http.StatusBadRequest, "unknown action", nil)
		return
	}

	st, err := s.getState(r.Context(), GetUserID(r.Context()), req.Module)
	if err != nil {
		s.jsonError(w, http.StatusInternalServerError, "failed to load session", err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.jsonError(w, http.StatusInternalServerError, "streaming not supported", nil)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	sink := &sseSink{w: w, f: flusher}

	switch req.Action {
	case tutor.ActionValidate.String():
		result, err := st.engine.Submit(r.Context(), req.Message, req.UserCode, sink)
		if err != nil {
			s.logger.Error("submit failed", "error", err)
			fmt.Fprintf(w, "event: error\ndata: %s\n\n", err.Error())
			flusher.Flush()
			return
		}
		if result.Correct {
			// The hint ladder is keyed per subproblem; re-key it to the new
			// position after an advance.
			st.hints.Reset(r.Context(), result.State.ProblemIndex, result.State.SubproblemIndex)
		}
	default:
		// initialize and next both open the conversation when the transcript
		// is empty; advances stream their own next-intro server-side.
		if _, err := st.engine.Init(r.Context(), sink); err != nil {
			s.logger.Error("init failed", "error", err)
			fmt.Fprintf(w, "event: error\ndata: %s\n\n", err.Error())
			flusher.Flush()
			return
		}
	}
}

func (s *Server) handleHint(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Module   int    `json:"module"`
		Level    int    `json:"hintLevel"`
		UserCode string `json:"userCode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	st, err := s.getState(r.Context(), GetUserID(r.Context()), req.Module)
	if err != nil {
		s.jsonError(w, http.StatusInternalServerError, "failed to load session", err)
		return
	}

	history := st.engine.History()

	var text string
	if req.Level == 0 {
		text, _, err = st.hints.Open(r.Context(), history, req.UserCode)
	} else {
		text, err = st.hints.RequestLevel(r.Context(), req.Level, history, req.UserCode)
	}
	if err != nil {
		if errors.Is(err, domain.ErrHintSequence) {
			s.jsonError(w, http.StatusBadRequest, "hint level out of sequence", err)
			return
		}
		s.jsonError(w, http.StatusInternalServerError, "failed to fetch hint", err)
		return
	}

	s.jsonResponse(w, http.StatusOK, map[string]any{
		"hint":  text,
		"level": st.hints.Level(),
		"label": st.hints.ButtonLabel(),
	})
}

func (s *Server) handleTrackStartSubproblem(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Module          int `json:"module"`
		ProblemIndex    int `json:"problemIndex"`
		SubproblemIndex int `json:"subproblemIndex"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	userID := GetUserID(r.Context())
	st, err := s.getState(r.Context(), userID, req.Module)
	if err != nil {
		s.jsonError(w, http.StatusInternalServerError, "failed to load session", err)
		return
	}

	id, err := st.tracker.Start(r.Context(), domain.TimerSubproblem, domain.TimerKey{
		UserID:          userID,
		Module:          req.Module,
		RunID:           st.sess.RunID,
		ProblemIndex:    req.ProblemIndex,
		SubproblemIndex: req.SubproblemIndex,
	})
	if err != nil {
		s.jsonError(w, http.StatusInternalServerError, "failed to start timer", err)
		return
	}

	s.jsonResponse(w, http.StatusOK, map[string]any{"session_id": id.String()})
}

func (s *Server) handleTrackStartHint(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Module          int `json:"module"`
		ProblemIndex    int `json:"problemIndex"`
		SubproblemIndex int `json:"subproblemIndex"`
		HintLevel       int `json:"hintLevel"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	userID := GetUserID(r.Context())
	st, err := s.getState(r.Context(), userID, req.Module)
	if err != nil {
		s.jsonError(w, http.StatusInternalServerError, "failed to load session", err)
		return
	}

	id, err := st.tracker.Start(r.Context(), domain.TimerHintRead, domain.TimerKey{
		UserID:          userID,
		Module:          req.Module,
		RunID:           st.sess.RunID,
		ProblemIndex:    req.ProblemIndex,
		SubproblemIndex: req.SubproblemIndex,
		HintLevel:       req.HintLevel,
	})
	if err != nil {
		s.jsonError(w, http.StatusInternalServerError, "failed to start timer", err)
		return
	}

	s.jsonResponse(w, http.StatusOK, map[string]any{"session_id": id.String()})
}

// handleTrackEnd serves both end-subproblem and end-hint. It is the
// fire-and-forget teardown beacon: the response is 200 whether the session
// was open, already ended by a racing normal end, or unknown.
func (s *Server) handleTrackEnd(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string `json:"session_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	id, err := uuid.Parse(req.SessionID)
	if err != nil {
		s.jsonError(w, http.StatusBadRequest, "invalid session_id", err)
		return
	}

	if err := s.timers.End(r.Context(), id); err != nil {
		s.logger.Warn("timer end beacon", "session_id", id, "error", err)
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	if s.runner == nil {
		s.jsonError(w, http.StatusServiceUnavailable, "code execution not configured", nil)
		return
	}

	var req struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	result, err := s.runner.Execute(r.Context(), req.Code)
	if err != nil {
		s.jsonError(w, http.StatusBadGateway, "execution failed", err)
		return
	}
	s.jsonResponse(w, http.StatusOK, result)
}

// handleContent serves problem statements. Solutions never leave the server.
func (s *Server) handleContent(w http.ResponseWriter, r *http.Request) {
	module, err := strconv.Atoi(r.PathValue("module"))
	if err != nil {
		s.jsonError(w, http.StatusBadRequest, "invalid module", err)
		return
	}

	units, err := s.content.Units(r.Context(), module)
	if err != nil {
		if errors.Is(err, domain.ErrContentNotFound) {
			s.jsonError(w, http.StatusNotFound, "module not found", err)
			return
		}
		s.jsonError(w, http.StatusInternalServerError, "failed to load content", err)
		return
	}

	type unitJSON struct {
		ProblemIndex    int    `json:"problemIndex"`
		SubproblemIndex int    `json:"subproblemIndex"`
		ProblemText     string `json:"problemText"`
		SubproblemText  string `json:"subproblemText"`
	}
	out := make([]unitJSON, 0, len(units))
	for _, u := range units {
		out = append(out, unitJSON{
			ProblemIndex:    u.ProblemIndex,
			SubproblemIndex: u.SubproblemIndex,
			ProblemText:     u.ProblemText,
			SubproblemText:  u.SubproblemText,
		})
	}

	s.jsonResponse(w, http.StatusOK, map[string]any{
		"module": module,
		"units":  out,
	})
}

var _ flow.Sink = (*sseSink)(nil)
