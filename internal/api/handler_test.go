package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/besides-508-potenday/na-T-na-AI/internal/coach"
	"github.com/besides-508-potenday/na-T-na-AI/internal/domain"
	"github.com/besides-508-potenday/na-T-na-AI/internal/llm"
	"github.com/besides-508-potenday/na-T-na-AI/internal/speech"
	"github.com/besides-508-potenday/na-T-na-AI/internal/store"
	"github.com/go-chi/chi/v5"
)

func TestJSON(t *testing.T) {
	w := httptest.NewRecorder()
	data := map[string]string{"foo": "bar"}

	JSON(w, http.StatusOK, data)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	var got map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if got["foo"] != "bar" {
		t.Errorf("Expected foo=bar, got %v", got["foo"])
	}
}

// fakeCoordinator records inputs and returns canned results or err.
type fakeCoordinator struct {
	err      error
	turn     coach.TurnInput
	feedback coach.FeedbackInput
}

func fakeSession() *domain.Session {
	now := time.Now()
	s := domain.NewSession("s1", domain.NewSessionKey("Alice", "Toduck", ""), now)
	_ = s.Seed("생일", []string{"p0", "p1", "p2", "p3", "p4"}, 5, now)
	return s
}

func (f *fakeCoordinator) Start(_ context.Context, in coach.StartInput) (*domain.Session, error) {
	if f.err != nil {
		return nil, f.err
	}
	return fakeSession(), nil
}

func (f *fakeCoordinator) Turn(_ context.Context, in coach.TurnInput) (*coach.TurnResult, error) {
	f.turn = in
	if f.err != nil {
		return nil, f.err
	}
	return &coach.TurnResult{
		Session:        fakeSession(),
		Reaction:       "고마워",
		Score:          1,
		Reason:         "empathetic",
		ImprovedPrompt: "그런데 p1",
		Verification:   true,
		Distance:       4,
	}, nil
}

func (f *fakeCoordinator) Feedback(_ context.Context, in coach.FeedbackInput) (*coach.FeedbackResult, error) {
	f.feedback = in
	if f.err != nil {
		return nil, f.err
	}
	return &coach.FeedbackResult{
		Session: fakeSession(),
		Letter:  domain.Letter{Opening: "안녕 Alice!", Body: "고마웠어", Closing: "우정을 염원하며,"},
		Audio:   speech.Audio{Base64: "bXAz"},
	}, nil
}

func newCoachRouter(c Coordinator) http.Handler {
	r := chi.NewRouter()
	NewCoachHandler(NewHandler(), c).RegisterRoutes(r)
	return r
}

func post(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &m); err != nil {
		t.Fatalf("Failed to decode response %q: %v", rec.Body.String(), err)
	}
	return m
}

func TestSituation(t *testing.T) {
	rec := post(t, newCoachRouter(&fakeCoordinator{}), "/situation", `{"userNickname":"Alice","chatbotName":"Toduck"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	got := decodeBody(t, rec)
	if quiz, _ := got["quizList"].([]any); len(quiz) != 5 {
		t.Errorf("Expected 5 quizzes, got %v", got["quizList"])
	}
	if got["sessionId"] != "s1" {
		t.Errorf("Expected sessionId s1, got %v", got["sessionId"])
	}
}

func TestSituation_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing nickname", `{"chatbotName":"Toduck"}`},
		{"malformed json", `{"userNickname":`},
		{"nickname too long", `{"userNickname":"` + strings.Repeat("a", 51) + `","chatbotName":"Toduck"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := post(t, newCoachRouter(&fakeCoordinator{}), "/situation", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("Expected status 400, got %d", rec.Code)
			}
			if decodeBody(t, rec)["error"] == "" {
				t.Error("Expected error message")
			}
		})
	}
}

func TestConversation(t *testing.T) {
	fc := &fakeCoordinator{}
	body := `{"userNickname":"Alice","chatbotName":"Toduck","conversation":["p0","힘들었겠다"],"quizList":["p0","p1","p2","p3","p4"],"currentDistance":5}`
	rec := post(t, newCoachRouter(fc), "/conversation", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	got := decodeBody(t, rec)
	if got["react"] != "고마워" || got["improvedQuiz"] != "그런데 p1" || got["verification"] != true {
		t.Errorf("Unexpected response %v", got)
	}
	if got["score"] != float64(1) || got["currentDistance"] != float64(4) {
		t.Errorf("Expected score 1 and distance 4, got %v and %v", got["score"], got["currentDistance"])
	}
	if len(fc.turn.Conversation) != 2 || fc.turn.CurrentDistance == nil || *fc.turn.CurrentDistance != 5 {
		t.Errorf("Expected transcript and distance passed through, got %+v", fc.turn)
	}
	if fc.turn.Nickname != "Alice" || fc.turn.Persona != "Toduck" {
		t.Errorf("Expected identity passed through, got %+v", fc.turn.Identity)
	}
}

func TestConversation_ShortTranscript(t *testing.T) {
	rec := post(t, newCoachRouter(&fakeCoordinator{}), "/conversation", `{"userNickname":"Alice","chatbotName":"Toduck","conversation":["p0"]}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", rec.Code)
	}
}

func TestFeedback(t *testing.T) {
	rec := post(t, newCoachRouter(&fakeCoordinator{}), "/feedback", `{"userNickname":"Alice","chatbotName":"Toduck","conversation":[]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	got := decodeBody(t, rec)
	if got["feedback"] != "고마웠어" || got["lastGreeting"] != "우정을 염원하며," || got["firstGreeting"] != "안녕 Alice!" {
		t.Errorf("Unexpected letter fields %v", got)
	}
	if got["audioBase64"] != "bXAz" {
		t.Errorf("Expected inline audio, got %v", got["audioBase64"])
	}
	if _, ok := got["audioUrl"]; ok {
		t.Error("Expected audioUrl omitted")
	}
	if letter, _ := got["letter"].(string); !strings.HasSuffix(letter, "Toduck가") {
		t.Errorf("Expected signed letter, got %q", letter)
	}
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{coach.ErrInvalidTranscript, http.StatusBadRequest},
		{coach.ErrSessionNotFound, http.StatusNotFound},
		{coach.ErrBusy, http.StatusConflict},
		{domain.ErrTurnOutOfOrder, http.StatusConflict},
		{domain.ErrSessionComplete, http.StatusConflict},
		{domain.ErrNotFinished, http.StatusConflict},
		{&llm.Failure{Kind: llm.KindTimeout, Err: errors.New("secret upstream detail")}, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			body := `{"userNickname":"Alice","chatbotName":"Toduck","conversation":["a","b"]}`
			rec := post(t, newCoachRouter(&fakeCoordinator{err: tt.err}), "/conversation", body)
			if rec.Code != tt.code {
				t.Errorf("Expected status %d, got %d", tt.code, rec.Code)
			}
			if strings.Contains(rec.Body.String(), "secret") {
				t.Errorf("Expected no internal detail, got %s", rec.Body.String())
			}
		})
	}
}

func newSessionRouter(t *testing.T) (http.Handler, *store.Registry) {
	t.Helper()
	backend, err := store.NewFileBackend(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileBackend failed: %v", err)
	}
	reg, err := store.NewRegistry(context.Background(), backend, nil)
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}
	r := chi.NewRouter()
	NewSessionHandler(NewHandler(), reg).RegisterRoutes(r)
	return r, reg
}

func TestSessionRoutes(t *testing.T) {
	h, reg := newSessionRouter(t)
	ctx := context.Background()
	seed := store.Seed{Situation: "생일", Prompts: []string{"a", "b"}, InitialDistance: 2}
	s, _ := reg.Create(ctx, domain.NewSessionKey("Alice", "Toduck", ""), seed)
	_, _ = reg.Create(ctx, domain.NewSessionKey("Bob", "Toduck", ""), seed)

	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	rec := get("/conversations/" + s.ID)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}
	if got := decodeBody(t, rec); got["session_id"] != s.ID || got["user_nickname"] != "Alice" {
		t.Errorf("Expected Alice's session document, got %v", got)
	}

	if rec := get("/conversations/missing"); rec.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", rec.Code)
	}

	if got := decodeBody(t, get("/conversations/")); got["count"] != float64(2) {
		t.Errorf("Expected 2 sessions, got %v", got["count"])
	}
	if got := decodeBody(t, get("/conversations/user/Bob")); got["count"] != float64(1) {
		t.Errorf("Expected 1 session for Bob, got %v", got["count"])
	}
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

func TestHealth(t *testing.T) {
	stats := func() llm.Stats { return llm.Stats{Calls: 3} }
	failures := func() int64 { return 1 }

	tests := []struct {
		name   string
		pinger fakePinger
		code   int
		status string
	}{
		{"healthy", fakePinger{}, http.StatusOK, "ok"},
		{"store down", fakePinger{err: errors.New("disk gone")}, http.StatusServiceUnavailable, "degraded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(tt.pinger, stats, failures, "test")
			rec := httptest.NewRecorder()
			h.Health(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

			if rec.Code != tt.code {
				t.Errorf("Expected status %d, got %d", tt.code, rec.Code)
			}
			got := decodeBody(t, rec)
			if got["status"] != tt.status || got["persist_failures"] != float64(1) {
				t.Errorf("Unexpected body %v", got)
			}
			if llmStats, _ := got["llm"].(map[string]any); llmStats["calls"] != float64(3) {
				t.Errorf("Expected llm stats, got %v", got["llm"])
			}
		})
	}
}
