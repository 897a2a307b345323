package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/pathwaylabs/pathway/internal/auth"
	"github.com/pathwaylabs/pathway/internal/config"
	"github.com/pathwaylabs/pathway/internal/domain"
	"github.com/pathwaylabs/pathway/internal/session"
	"github.com/pathwaylabs/pathway/internal/timer"
	"github.com/pathwaylabs/pathway/internal/tutor"
)

const testToken = "test-token"

// --- in-memory stores ---

type memRunStore struct {
	mu   sync.Mutex
	runs map[uuid.UUID]*domain.Run
}

func newMemRunStore() *memRunStore {
	return &memRunStore{runs: make(map[uuid.UUID]*domain.Run)}
}

func (s *memRunStore) Create(ctx context.Context, run *domain.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *run
	s.runs[run.ID] = &cp
	return nil
}

func (s *memRunStore) Get(ctx context.Context, id uuid.UUID) (*domain.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return nil, domain.ErrRunNotFound
	}
	cp := *run
	return &cp, nil
}

func (s *memRunStore) FindIncomplete(ctx context.Context, userID uuid.UUID, module int) (*domain.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var candidates []*domain.Run
	for _, run := range s.runs {
		if run.UserID == userID && run.Module == module && !run.Complete {
			candidates = append(candidates, run)
		}
	}
	if len(candidates) == 0 {
		return nil, domain.ErrRunNotFound
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].UpdatedAt.After(candidates[j].UpdatedAt)
	})
	cp := *candidates[0]
	return &cp, nil
}

func (s *memRunStore) SavePosition(ctx context.Context, run *domain.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.runs[run.ID]
	if !ok {
		return domain.ErrRunNotFound
	}
	stored.CurrentProblem = run.CurrentProblem
	stored.CurrentSubproblem = run.CurrentSubproblem
	stored.Complete = run.Complete
	stored.UpdatedAt = run.UpdatedAt
	return nil
}

type memChatStore struct {
	mu      sync.Mutex
	entries []*domain.ChatEntry
}

func (s *memChatStore) Append(ctx context.Context, entry *domain.ChatEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *entry
	s.entries = append(s.entries, &cp)
	return nil
}

func (s *memChatStore) ListByRun(ctx context.Context, userID uuid.UUID, module int, runID uuid.UUID) ([]*domain.ChatEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.ChatEntry
	for _, e := range s.entries {
		if e.UserID == userID && e.Module == module && e.RunID == runID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

type memHintStore struct {
	mu   sync.Mutex
	rows []*domain.HintUsage
}

func (s *memHintStore) Append(ctx context.Context, usage *domain.HintUsage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *usage
	s.rows = append(s.rows, &cp)
	return nil
}

func (s *memHintStore) ListByKey(ctx context.Context, runID uuid.UUID, problem, subproblem int) ([]*domain.HintUsage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.HintUsage
	for _, row := range s.rows {
		if row.RunID == runID && row.ProblemIndex == problem && row.SubproblemIndex == subproblem {
			cp := *row
			out = append(out, &cp)
		}
	}
	return out, nil
}

type memTimerStore struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*domain.TimedSession
}

func newMemTimerStore() *memTimerStore {
	return &memTimerStore{sessions: make(map[uuid.UUID]*domain.TimedSession)}
}

func (s *memTimerStore) Create(ctx context.Context, sess *domain.TimedSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *sess
	s.sessions[sess.ID] = &cp
	return nil
}

func (s *memTimerStore) Get(ctx context.Context, id uuid.UUID) (*domain.TimedSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, domain.ErrTimerNotFound
	}
	cp := *sess
	return &cp, nil
}

func (s *memTimerStore) Close(ctx context.Context, id uuid.UUID, endedAt time.Time, durationSeconds int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return domain.ErrTimerNotFound
	}
	if sess.EndedAt != nil {
		return nil
	}
	at := endedAt
	sess.EndedAt = &at
	sess.DurationSeconds = durationSeconds
	return nil
}

type memTokenStore struct {
	tokens map[string]uuid.UUID
}

func (s *memTokenStore) UserIDByToken(ctx context.Context, token string) (uuid.UUID, error) {
	id, ok := s.tokens[token]
	if !ok {
		return uuid.Nil, domain.ErrUnauthenticated
	}
	return id, nil
}

// --- fakes ---

type stubContent struct {
	units []domain.ContentUnit
}

func (s *stubContent) Units(ctx context.Context, module int) ([]domain.ContentUnit, error) {
	if len(s.units) == 0 || s.units[0].Module != module {
		return nil, domain.ErrContentNotFound
	}
	return s.units, nil
}

// fakeGateway validates with a scripted verdict and answers every action with
// a single fixed chunk.
type fakeGateway struct {
	mu      sync.Mutex
	verdict bool
	hints   int
}

func (g *fakeGateway) Stream(ctx context.Context, req *tutor.StreamRequest) (*tutor.Stream, error) {
	ch := make(chan tutor.Chunk, 2)
	stream := &tutor.Stream{Chunks: ch}

	switch req.Action {
	case tutor.ActionValidate:
		g.mu.Lock()
		v := g.verdict
		g.mu.Unlock()
		stream.Correct = &v
		if v {
			ch <- tutor.Chunk{Text: "Correct!"}
		} else {
			ch <- tutor.Chunk{Text: "Not quite."}
		}
	case tutor.ActionNext:
		ch <- tutor.Chunk{Text: "On to the next one."}
	default:
		ch <- tutor.Chunk{Text: "Welcome."}
	}
	close(ch)
	return stream, nil
}

func (g *fakeGateway) Hint(ctx context.Context, req *tutor.HintRequest) (string, error) {
	g.mu.Lock()
	g.hints++
	g.mu.Unlock()
	return fmt.Sprintf("hint level %d", req.Level), nil
}

// --- harness ---

type testEnv struct {
	srv     *httptest.Server
	server  *Server
	gateway *fakeGateway
	userID  uuid.UUID
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	userID := uuid.New()
	gateway := &fakeGateway{}
	timerSvc := timer.NewService(newMemTimerStore(), nil, nil)

	units := []domain.ContentUnit{
		{Module: 1, ProblemIndex: 1, SubproblemIndex: 1, ProblemText: "P1", SubproblemText: "P1a", SolutionText: "secret"},
		{Module: 1, ProblemIndex: 1, SubproblemIndex: 2, ProblemText: "P1", SubproblemText: "P1b", SolutionText: "secret"},
	}

	runs := newMemRunStore()
	chats := &memChatStore{}
	server := NewServer(&config.Config{Port: 0}, Deps{
		Auth:     auth.NewService(&memTokenStore{tokens: map[string]uuid.UUID{testToken: userID}}),
		Sessions: session.NewService(runs, chats, nil, nil),
		Content:  &stubContent{units: units},
		Runs:     runs,
		Chats:    chats,
		Hints:    &memHintStore{},
		Gateway:  gateway,
		Timers:   timerSvc,
	})

	srv := httptest.NewServer(server.Handler())
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv, server: server, gateway: gateway, userID: userID}
}

func (e *testEnv) post(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req, err := http.NewRequest("POST", e.srv.URL+path, bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+testToken)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

// --- tests ---

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d; want 200", resp.StatusCode)
	}
	body := decodeJSON(t, resp)
	if body["status"] != "healthy" {
		t.Errorf("status = %v; want healthy", body["status"])
	}
}

func TestAuthRequired(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Post(env.srv.URL+"/api/session/init", "application/json", strings.NewReader(`{"module":1}`))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d; want 401", resp.StatusCode)
	}
}

func TestSessionInit_FreshRun(t *testing.T) {
	env := newTestEnv(t)

	resp := env.post(t, "/api/session/init", map[string]any{"module": 1})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d; want 200", resp.StatusCode)
	}
	body := decodeJSON(t, resp)

	state := body["currentState"].(map[string]any)
	if state["currentProblemIndex"].(float64) != 1 || state["currentSubproblemIndex"].(float64) != 1 {
		t.Errorf("currentState = %v; want (1,1)", state)
	}
	if state["isComplete"].(bool) {
		t.Error("fresh run should not be complete")
	}
	if body["hintLevel"].(float64) != 0 {
		t.Errorf("hintLevel = %v; want 0", body["hintLevel"])
	}
	if body["hintLabel"] != "Need A Hint?" {
		t.Errorf("hintLabel = %v", body["hintLabel"])
	}
	if _, err := uuid.Parse(body["runId"].(string)); err != nil {
		t.Errorf("runId = %v: %v", body["runId"], err)
	}
}

func TestSessionInit_UnknownModule(t *testing.T) {
	env := newTestEnv(t)

	resp := env.post(t, "/api/session/init", map[string]any{"module": 99})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d; want 404", resp.StatusCode)
	}
}

func TestAI_InitializeStreams(t *testing.T) {
	env := newTestEnv(t)
	env.post(t, "/api/session/init", map[string]any{"module": 1}).Body.Close()

	resp := env.post(t, "/api/ai", map[string]any{"module": 1, "action": "initialize"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d; want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q; want text/event-stream", ct)
	}

	var buf bytes.Buffer
	buf.ReadFrom(resp.Body)
	if !strings.Contains(buf.String(), `"chunk":"Welcome."`) {
		t.Errorf("stream missing welcome chunk: %q", buf.String())
	}
}

func TestAI_UnknownAction(t *testing.T) {
	env := newTestEnv(t)

	resp := env.post(t, "/api/ai", map[string]any{"module": 1, "action": "bogus"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d; want 400", resp.StatusCode)
	}
}

func TestAI_ValidateCorrectAdvances(t *testing.T) {
	env := newTestEnv(t)
	env.post(t, "/api/session/init", map[string]any{"module": 1}).Body.Close()

	env.gateway.verdict = true
	resp := env.post(t, "/api/ai", map[string]any{
		"module": 1, "action": "validate", "message": "done", "userCode": "x=1",
	})
	var buf bytes.Buffer
	buf.ReadFrom(resp.Body)
	resp.Body.Close()

	stream := buf.String()
	verdictAt := strings.Index(stream, `{"isCorrect": true}`)
	if verdictAt < 0 {
		t.Fatalf("stream missing verdict frame: %q", stream)
	}
	chunkAt := strings.Index(stream, `"chunk"`)
	if chunkAt >= 0 && chunkAt < verdictAt {
		t.Error("verdict frame must precede chunks")
	}

	// The advance landed: a fresh init sees (1,2).
	initResp := env.post(t, "/api/session/init", map[string]any{"module": 1})
	body := decodeJSON(t, initResp)
	state := body["currentState"].(map[string]any)
	if state["currentSubproblemIndex"].(float64) != 2 {
		t.Errorf("currentSubproblemIndex = %v; want 2", state["currentSubproblemIndex"])
	}
}

func TestAI_ValidateIncorrectHolds(t *testing.T) {
	env := newTestEnv(t)
	env.post(t, "/api/session/init", map[string]any{"module": 1}).Body.Close()

	env.gateway.verdict = false
	resp := env.post(t, "/api/ai", map[string]any{
		"module": 1, "action": "validate", "message": "wrong", "userCode": "",
	})
	var buf bytes.Buffer
	buf.ReadFrom(resp.Body)
	resp.Body.Close()
	if !strings.Contains(buf.String(), `{"isCorrect": false}`) {
		t.Fatalf("stream missing verdict frame: %q", buf.String())
	}

	initResp := env.post(t, "/api/session/init", map[string]any{"module": 1})
	body := decodeJSON(t, initResp)
	state := body["currentState"].(map[string]any)
	if state["currentSubproblemIndex"].(float64) != 1 {
		t.Errorf("currentSubproblemIndex = %v; want 1", state["currentSubproblemIndex"])
	}
}

func TestSessionRestart_FreshRun(t *testing.T) {
	env := newTestEnv(t)

	first := decodeJSON(t, env.post(t, "/api/session/init", map[string]any{"module": 1}))
	env.gateway.verdict = true
	resp := env.post(t, "/api/ai", map[string]any{"module": 1, "action": "validate", "message": "done"})
	var drain bytes.Buffer
	drain.ReadFrom(resp.Body)
	resp.Body.Close()

	restarted := decodeJSON(t, env.post(t, "/api/session/restart", map[string]any{"module": 1}))
	if restarted["runId"] == first["runId"] {
		t.Error("restart should create a new run")
	}
	state := restarted["currentState"].(map[string]any)
	if state["currentProblemIndex"].(float64) != 1 || state["currentSubproblemIndex"].(float64) != 1 {
		t.Errorf("currentState = %v; want (1,1)", state)
	}
}

func TestSessionInit_AfterCompletionStartsFresh(t *testing.T) {
	env := newTestEnv(t)

	first := decodeJSON(t, env.post(t, "/api/session/init", map[string]any{"module": 1}))

	// Two correct validations run the two-unit module to completion.
	env.gateway.verdict = true
	for i := 0; i < 2; i++ {
		resp := env.post(t, "/api/ai", map[string]any{"module": 1, "action": "validate", "message": "done"})
		var drain bytes.Buffer
		drain.ReadFrom(resp.Body)
		resp.Body.Close()
	}

	// A completed run never resumes: init starts over, exactly as it would
	// after a process restart against the same stores.
	body := decodeJSON(t, env.post(t, "/api/session/init", map[string]any{"module": 1}))
	if body["runId"] == first["runId"] {
		t.Error("init after completion should create a new run")
	}
	state := body["currentState"].(map[string]any)
	if state["isComplete"].(bool) {
		t.Error("isComplete = true; want a fresh incomplete run")
	}
	if state["currentProblemIndex"].(float64) != 1 || state["currentSubproblemIndex"].(float64) != 1 {
		t.Errorf("currentState = %v; want (1,1)", state)
	}
}

func TestStateCache_EvictsLeastRecentlyUsed(t *testing.T) {
	env := newTestEnv(t)
	env.server.maxStates = 2
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := env.server.getState(ctx, uuid.New(), 1); err != nil {
			t.Fatalf("getState() error = %v", err)
		}
	}

	env.server.mu.Lock()
	n := len(env.server.states)
	env.server.mu.Unlock()
	if n > 2 {
		t.Errorf("cached states = %d; want at most 2", n)
	}
}

func TestHint_LadderOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	env.post(t, "/api/session/init", map[string]any{"module": 1}).Body.Close()

	// First open delivers level 1.
	body := decodeJSON(t, env.post(t, "/api/hint", map[string]any{"module": 1, "hintLevel": 0}))
	if body["hint"] != "hint level 1" || body["level"].(float64) != 1 {
		t.Errorf("open = %v", body)
	}
	if body["label"] != "Need More Help?" {
		t.Errorf("label = %v", body["label"])
	}

	// Skipping to 3 is rejected.
	resp := env.post(t, "/api/hint", map[string]any{"module": 1, "hintLevel": 3})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("skip status = %d; want 400", resp.StatusCode)
	}
	resp.Body.Close()

	// 2 then 3 in order.
	body = decodeJSON(t, env.post(t, "/api/hint", map[string]any{"module": 1, "hintLevel": 2}))
	if body["hint"] != "hint level 2" {
		t.Errorf("level 2 = %v", body)
	}
	body = decodeJSON(t, env.post(t, "/api/hint", map[string]any{"module": 1, "hintLevel": 3}))
	if body["label"] != "Solution Provided" {
		t.Errorf("label = %v; want Solution Provided", body["label"])
	}
}

func TestTrack_StartAndEnd(t *testing.T) {
	env := newTestEnv(t)
	env.post(t, "/api/session/init", map[string]any{"module": 1}).Body.Close()

	body := decodeJSON(t, env.post(t, "/api/track/start-subproblem", map[string]any{
		"module": 1, "problemIndex": 1, "subproblemIndex": 1,
	}))
	sessionID := body["session_id"].(string)
	if _, err := uuid.Parse(sessionID); err != nil {
		t.Fatalf("session_id = %q: %v", sessionID, err)
	}

	end := env.post(t, "/api/track/end-subproblem", map[string]any{"session_id": sessionID})
	if end.StatusCode != http.StatusOK {
		t.Errorf("end status = %d; want 200", end.StatusCode)
	}
	end.Body.Close()

	// The teardown beacon can re-end; still 200.
	again := env.post(t, "/api/track/end-subproblem", map[string]any{"session_id": sessionID})
	if again.StatusCode != http.StatusOK {
		t.Errorf("repeat end status = %d; want 200", again.StatusCode)
	}
	again.Body.Close()
}

func TestExecute_NotConfigured(t *testing.T) {
	env := newTestEnv(t)

	resp := env.post(t, "/api/execute", map[string]any{"code": "print(1)"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d; want 503", resp.StatusCode)
	}
}

func TestContent_SolutionsStayServerSide(t *testing.T) {
	env := newTestEnv(t)

	req, _ := http.NewRequest("GET", env.srv.URL+"/api/content/1", nil)
	req.Header.Set("Authorization", "Bearer "+testToken)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET content: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d; want 200", resp.StatusCode)
	}

	var buf bytes.Buffer
	buf.ReadFrom(resp.Body)
	if strings.Contains(buf.String(), "secret") {
		t.Error("content response leaked solution text")
	}
	if !strings.Contains(buf.String(), "P1a") {
		t.Errorf("content response missing statements: %q", buf.String())
	}
}
