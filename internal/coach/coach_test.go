package coach

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/besides-508-potenday/na-T-na-AI/internal/config"
	"github.com/besides-508-potenday/na-T-na-AI/internal/domain"
	"github.com/besides-508-potenday/na-T-na-AI/internal/llm"
	"github.com/besides-508-potenday/na-T-na-AI/internal/speech"
	"github.com/besides-508-potenday/na-T-na-AI/internal/store"
)

// scriptedGen answers each generation call by call site.
type scriptedGen struct {
	mu      sync.Mutex
	calls   map[string]int
	respond func(kind string, req llm.Request) (string, error)
}

func newScriptedGen(respond func(kind string, req llm.Request) (string, error)) *scriptedGen {
	return &scriptedGen{calls: make(map[string]int), respond: respond}
}

func (g *scriptedGen) Generate(_ context.Context, req llm.Request) (*llm.Completion, error) {
	kind := kindOf(req)
	g.mu.Lock()
	g.calls[kind]++
	g.mu.Unlock()
	text, err := g.respond(kind, req)
	if err != nil {
		return nil, err
	}
	return &llm.Completion{Text: text}, nil
}

func (g *scriptedGen) count(kind string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[kind]
}

func kindOf(req llm.Request) string {
	switch req.Profile.Name {
	case "situation":
		return "situation"
	case "scoring":
		return "verdict"
	case "feedback":
		return "letter"
	case "default":
		return "abbreviate"
	}
	if strings.Contains(req.System, "<improved_sentence>") {
		return "improve"
	}
	return "react"
}

const situationJSON = `{"situation": "친구 생일 파티 준비", "sentences": [
	"1. 내 말 좀 들어줄래...? 친구 생일 파티를 준비 중인데 걱정돼...",
	"2. 친구가 부담스러워하면 어떡하지?",
	"",
	"3. 선물도 아직 못 골랐어...",
	"4. 다른 친구들이랑 연락하는 것도 힘들어.",
	"5. 잘 될 수 있을까?"
]}`

// defaultResponder scores replies by keyword: "fuck" is rejected, "here for
// you" is empathetic, anything else is dismissive.
func defaultResponder(kind string, req llm.Request) (string, error) {
	switch kind {
	case "situation":
		return situationJSON, nil
	case "verdict":
		switch {
		case strings.Contains(req.User, "fuck"):
			return `{"verification": false, "score": 1, "reason_score": "profanity"}`, nil
		case strings.Contains(req.User, "here for you"):
			return `{"verification": true, "score": 1, "reason_score": "empathetic"}`, nil
		default:
			return `Result: {"verification": "True", "score": "0", "reason_score": "dismissive"}`, nil
		}
	case "react":
		return "Toduck: 고마워 정말 😢", nil
	case "improve":
		return "그런데 다음 이야기야", nil
	case "letter":
		return `{"first_greeting": "안녕 Alice!", "text": "오늘 이야기 들어줘서 고마워.", "last_greeting": "빛나는 우리의 우정을 염원하며,"}`, nil
	case "abbreviate":
		return "짧은 문장", nil
	}
	return "", fmt.Errorf("unexpected call %s", kind)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *recordingNotifier) Notify(eventType string, _ *domain.Session) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, eventType)
}

type fakeVoice struct {
	calls  int
	inline bool
}

func (v *fakeVoice) Render(_ context.Context, sessionID, text string) speech.Audio {
	v.calls++
	if v.inline {
		return speech.Audio{Base64: "bXAz"}
	}
	return speech.Audio{URL: "https://cdn.example/" + sessionID + ".mp3"}
}

func testSettings() config.CoachConfig {
	return config.CoachConfig{
		QuizNum:           5,
		InitialDistance:   5,
		MaxReactLength:    60,
		MaxFeedbackLength: 300,
		AttemptLimit:      5,
		SituationAttempts: 3,
	}
}

func newTestCoach(t *testing.T, gen llm.Generator) (*Coach, *recordingNotifier) {
	t.Helper()
	backend, err := store.NewFileBackend(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileBackend failed: %v", err)
	}
	reg, err := store.NewRegistry(context.Background(), backend, nil)
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}
	n := &recordingNotifier{}
	c := New(Deps{
		Generator: gen,
		Store:     reg,
		Profiles:  config.DefaultProfiles(),
		Settings:  testSettings(),
		Notifier:  n,
	})
	return c, n
}

var alice = Identity{Nickname: "Alice", Persona: "Toduck"}

// transcript rebuilds the client's conversation from the session and appends reply.
func transcript(s *domain.Session, reply string) []string {
	var out []string
	for _, t := range s.Turns {
		out = append(out, t.BotMessage, t.UserMessage)
	}
	return append(out, s.Prompts[len(s.Turns)], reply)
}

func startSession(t *testing.T, c *Coach) *domain.Session {
	t.Helper()
	s, err := c.Start(context.Background(), StartInput{Identity: alice})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	return s
}

func TestStart_ReturnsCleanPrompts(t *testing.T) {
	c, n := newTestCoach(t, newScriptedGen(defaultResponder))
	s := startSession(t, c)

	if len(s.Prompts) != 5 {
		t.Fatalf("Expected 5 prompts, got %d", len(s.Prompts))
	}
	if s.Prompts[0] != "친구 생일 파티를 준비 중인데 걱정돼..." {
		t.Errorf("Expected filler and numbering stripped, got %q", s.Prompts[0])
	}
	if llm.Length(s.Prompts[0]) > maxOpeningLength {
		t.Errorf("Expected first prompt within %d characters, got %d", maxOpeningLength, llm.Length(s.Prompts[0]))
	}
	for i, p := range s.Prompts {
		if p == "" || strings.HasPrefix(p, fmt.Sprintf("%d.", i+1)) {
			t.Errorf("Expected cleaned prompt %d, got %q", i, p)
		}
	}
	if s.Distance != 5 || s.State() != domain.StateInProgress {
		t.Errorf("Expected in-progress session at distance 5, got %s at %d", s.State(), s.Distance)
	}
	if len(n.events) != 1 || n.events[0] != EventSituation {
		t.Errorf("Expected situation event, got %v", n.events)
	}
}

func TestStart_AbbreviatesLongOpening(t *testing.T) {
	long := strings.Repeat("가", 80)
	gen := newScriptedGen(func(kind string, req llm.Request) (string, error) {
		if kind == "situation" {
			return fmt.Sprintf(`{"situation": "s", "sentences": ["%s", "b", "c", "d", "e"]}`, long), nil
		}
		return defaultResponder(kind, req)
	})
	c, _ := newTestCoach(t, gen)
	s := startSession(t, c)

	if s.Prompts[0] != "짧은 문장" {
		t.Errorf("Expected abbreviated opening, got %q", s.Prompts[0])
	}
	if gen.count("abbreviate") != 1 {
		t.Errorf("Expected 1 abbreviation call, got %d", gen.count("abbreviate"))
	}
}

func TestStart_FallsBackAfterBudget(t *testing.T) {
	gen := newScriptedGen(func(kind string, req llm.Request) (string, error) {
		if kind == "situation" {
			return `{"situation": "s", "sentences": ["only one"]}`, nil
		}
		return defaultResponder(kind, req)
	})
	c, _ := newTestCoach(t, gen)
	s := startSession(t, c)

	if gen.count("situation") != 3 {
		t.Errorf("Expected 3 situation attempts, got %d", gen.count("situation"))
	}
	if s.Situation != fallbackSituation {
		t.Errorf("Expected fallback situation, got %q", s.Situation)
	}
	if len(s.Prompts) != 5 || s.Prompts[0] != fallbackPrompts[0] {
		t.Errorf("Expected fallback prompts, got %v", s.Prompts)
	}
}

func TestStart_TransportFailureFallsBack(t *testing.T) {
	gen := newScriptedGen(func(kind string, req llm.Request) (string, error) {
		return "", &llm.Failure{Kind: llm.KindTransport, Err: errors.New("connection refused")}
	})
	c, _ := newTestCoach(t, gen)
	s := startSession(t, c)
	if s.Situation != fallbackSituation {
		t.Errorf("Expected fallback situation, got %q", s.Situation)
	}
}

func TestTurn_DismissiveReplyScoresZero(t *testing.T) {
	c, _ := newTestCoach(t, newScriptedGen(defaultResponder))
	s := startSession(t, c)

	res, err := c.Turn(context.Background(), TurnInput{
		Identity:     alice,
		Conversation: transcript(s, "I don't know, why do you care?"),
	})
	if err != nil {
		t.Fatalf("Turn failed: %v", err)
	}
	if !res.Verification || res.Score != 0 {
		t.Errorf("Expected verification true, score 0, got %v, %d", res.Verification, res.Score)
	}
	if res.Distance != 5 {
		t.Errorf("Expected distance 5, got %d", res.Distance)
	}
	if res.Reaction != "고마워 정말 😢" {
		t.Errorf("Expected speaker prefix stripped, got %q", res.Reaction)
	}
}

func TestTurn_EmpatheticReplyClosesDistance(t *testing.T) {
	c, n := newTestCoach(t, newScriptedGen(defaultResponder))
	s := startSession(t, c)

	res, err := c.Turn(context.Background(), TurnInput{
		Identity:     alice,
		Conversation: transcript(s, "That sounds really hard, I'm here for you"),
	})
	if err != nil {
		t.Fatalf("Turn failed: %v", err)
	}
	if !res.Verification || res.Score != 1 {
		t.Errorf("Expected verification true, score 1, got %v, %d", res.Verification, res.Score)
	}
	if res.Distance != 4 {
		t.Errorf("Expected distance 4, got %d", res.Distance)
	}
	if res.ImprovedPrompt != "그런데 다음 이야기야" {
		t.Errorf("Expected improved prompt, got %q", res.ImprovedPrompt)
	}
	if res.Session.Prompts[1] != res.ImprovedPrompt {
		t.Errorf("Expected next prompt rewritten, got %q", res.Session.Prompts[1])
	}
	if len(res.Session.Prompts) != 5 {
		t.Errorf("Expected prompt count unchanged, got %d", len(res.Session.Prompts))
	}
	if n.events[len(n.events)-1] != EventTurn {
		t.Errorf("Expected turn event, got %v", n.events)
	}
}

func TestTurn_ProfanityIsRejected(t *testing.T) {
	c, n := newTestCoach(t, newScriptedGen(defaultResponder))
	s := startSession(t, c)

	res, err := c.Turn(context.Background(), TurnInput{
		Identity:     alice,
		Conversation: transcript(s, "what the fuck"),
	})
	if err != nil {
		t.Fatalf("Turn failed: %v", err)
	}
	if res.Verification || res.Score != 0 {
		t.Errorf("Expected verification false, score 0, got %v, %d", res.Verification, res.Score)
	}
	if len(res.Session.Turns) != 0 || res.Session.Distance != 5 {
		t.Errorf("Expected state unchanged, got %d turns at distance %d", len(res.Session.Turns), res.Session.Distance)
	}
	if len(res.Session.Rejections) != 1 {
		t.Errorf("Expected rejection recorded, got %d", len(res.Session.Rejections))
	}
	if n.events[len(n.events)-1] != EventRejected {
		t.Errorf("Expected rejected event, got %v", n.events)
	}

	// The same prompt can be answered again.
	if _, err := c.Turn(context.Background(), TurnInput{Identity: alice, Conversation: transcript(s, "I'm here for you")}); err != nil {
		t.Errorf("Expected retry after rejection to succeed, got %v", err)
	}
}

func TestTurn_Errors(t *testing.T) {
	c, _ := newTestCoach(t, newScriptedGen(defaultResponder))
	s := startSession(t, c)
	ctx := context.Background()

	if _, err := c.Turn(ctx, TurnInput{Identity: alice, Conversation: []string{"only bot"}}); !errors.Is(err, ErrInvalidTranscript) {
		t.Errorf("Expected ErrInvalidTranscript, got %v", err)
	}

	ahead := append(transcript(s, "a"), "bot", "b")
	if _, err := c.Turn(ctx, TurnInput{Identity: alice, Conversation: ahead}); !errors.Is(err, domain.ErrTurnOutOfOrder) {
		t.Errorf("Expected ErrTurnOutOfOrder, got %v", err)
	}

	bob := Identity{Nickname: "Bob", Persona: "Toduck"}
	if _, err := c.Turn(ctx, TurnInput{Identity: bob, Conversation: []string{"hi", "hello"}}); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound, got %v", err)
	}

	unlock, err := c.lock(s.Key())
	if err != nil {
		t.Fatalf("lock failed: %v", err)
	}
	if _, err := c.Turn(ctx, TurnInput{Identity: alice, Conversation: transcript(s, "a")}); !errors.Is(err, ErrBusy) {
		t.Errorf("Expected ErrBusy, got %v", err)
	}
	unlock()
}

func TestTurn_VerificationTransportFailure(t *testing.T) {
	gen := newScriptedGen(func(kind string, req llm.Request) (string, error) {
		if kind == "verdict" {
			return "", &llm.Failure{Kind: llm.KindStatus, Status: 503}
		}
		return defaultResponder(kind, req)
	})
	c, _ := newTestCoach(t, gen)
	s := startSession(t, c)

	_, err := c.Turn(context.Background(), TurnInput{Identity: alice, Conversation: transcript(s, "hi")})
	var f *llm.Failure
	if !errors.As(err, &f) {
		t.Fatalf("Expected *llm.Failure, got %v", err)
	}
	got, _ := c.store.Get(context.Background(), s.ID)
	if len(got.Turns) != 0 {
		t.Errorf("Expected no turn recorded, got %d", len(got.Turns))
	}
}

func TestTurn_UnreadableVerdictDefaults(t *testing.T) {
	gen := newScriptedGen(func(kind string, req llm.Request) (string, error) {
		if kind == "verdict" {
			return "I think this is fine.", nil
		}
		return defaultResponder(kind, req)
	})
	c, _ := newTestCoach(t, gen)
	s := startSession(t, c)

	res, err := c.Turn(context.Background(), TurnInput{Identity: alice, Conversation: transcript(s, "I'm here for you")})
	if err != nil {
		t.Fatalf("Turn failed: %v", err)
	}
	if !res.Verification || res.Score != 0 || res.Reason != neutralReason {
		t.Errorf("Expected neutral default verdict, got %+v", res)
	}
	if gen.count("verdict") != verdictAttempts {
		t.Errorf("Expected %d verdict attempts, got %d", verdictAttempts, gen.count("verdict"))
	}
}

func TestTurn_ConcatenatedRewriteFallsBack(t *testing.T) {
	gen := newScriptedGen(func(kind string, req llm.Request) (string, error) {
		if kind == "improve" {
			return "고마워 정말 😢 친구가 부담스러워하면 어떡하지?", nil
		}
		return defaultResponder(kind, req)
	})
	c, _ := newTestCoach(t, gen)
	s := startSession(t, c)

	res, err := c.Turn(context.Background(), TurnInput{Identity: alice, Conversation: transcript(s, "I'm here for you")})
	if err != nil {
		t.Fatalf("Turn failed: %v", err)
	}
	if res.ImprovedPrompt != "친구가 부담스러워하면 어떡하지?" {
		t.Errorf("Expected original next prompt, got %q", res.ImprovedPrompt)
	}
}

func TestTurn_DistanceTracksAcceptedScores(t *testing.T) {
	c, _ := newTestCoach(t, newScriptedGen(defaultResponder))
	s := startSession(t, c)
	ctx := context.Background()

	replies := []string{"I'm here for you", "fuck", "whatever", "I'm here for you", "fuck off", "I'm here for you", "so?"}
	sum := 0
	for _, reply := range replies {
		res, err := c.Turn(ctx, TurnInput{Identity: alice, Conversation: transcript(s, reply)})
		if err != nil {
			t.Fatalf("Turn(%q) failed: %v", reply, err)
		}
		if res.Verification {
			sum += res.Score
		}
		s = res.Session
		if want := max(5-sum, 0); s.Distance != want {
			t.Errorf("Expected distance %d after %q, got %d", want, reply, s.Distance)
		}
	}
	if len(s.Turns) != 5 || len(s.Rejections) != 2 {
		t.Errorf("Expected 5 accepted turns and 2 rejections, got %d and %d", len(s.Turns), len(s.Rejections))
	}
}

func TestFeedback_FinishesOnce(t *testing.T) {
	gen := newScriptedGen(defaultResponder)
	c, n := newTestCoach(t, gen)
	voice := &fakeVoice{}
	c.voice = voice
	s := startSession(t, c)
	ctx := context.Background()

	if _, err := c.Feedback(ctx, FeedbackInput{Identity: alice}); !errors.Is(err, domain.ErrNotFinished) {
		t.Errorf("Expected ErrNotFinished before the last turn, got %v", err)
	}

	for i := 0; i < 5; i++ {
		res, err := c.Turn(ctx, TurnInput{Identity: alice, Conversation: transcript(s, "I'm here for you")})
		if err != nil {
			t.Fatalf("Turn %d failed: %v", i, err)
		}
		s = res.Session
		if want := i == 4; res.Finished != want {
			t.Errorf("Expected finished=%v after turn %d, got %v", want, i, res.Finished)
		}
		if i == 4 && res.ImprovedPrompt != "" {
			t.Errorf("Expected no improved prompt after the last turn, got %q", res.ImprovedPrompt)
		}
	}
	extra := make([]string, 12)
	if _, err := c.Turn(ctx, TurnInput{Identity: alice, Conversation: extra}); !errors.Is(err, domain.ErrSessionComplete) {
		t.Errorf("Expected ErrSessionComplete after the last turn, got %v", err)
	}

	res, err := c.Feedback(ctx, FeedbackInput{Identity: alice})
	if err != nil {
		t.Fatalf("Feedback failed: %v", err)
	}
	if res.Letter.Body == "" || llm.Length(res.Letter.Body) > 300 {
		t.Errorf("Expected non-empty body within 300 characters, got %q", res.Letter.Body)
	}
	if res.Letter.Closing != "빛나는 우리의 우정을 염원하며," {
		t.Errorf("Expected closing greeting, got %q", res.Letter.Closing)
	}
	if res.Session.State() != domain.StateFinished {
		t.Errorf("Expected finished session, got %s", res.Session.State())
	}
	if res.Audio.URL == "" || res.Letter.AudioURL != res.Audio.URL {
		t.Errorf("Expected audio URL stored on the letter, got %+v", res.Audio)
	}

	again, err := c.Feedback(ctx, FeedbackInput{Identity: alice})
	if err != nil {
		t.Fatalf("repeat Feedback failed: %v", err)
	}
	if again.Letter.Body != res.Letter.Body {
		t.Errorf("Expected stored letter, got %q", again.Letter.Body)
	}
	if gen.count("letter") != 1 || voice.calls != 1 {
		t.Errorf("Expected one letter generation and one render, got %d and %d", gen.count("letter"), voice.calls)
	}

	feedbackEvents := 0
	for _, e := range n.events {
		if e == EventFeedback {
			feedbackEvents++
		}
	}
	if feedbackEvents != 1 {
		t.Errorf("Expected exactly one feedback event, got %d", feedbackEvents)
	}
}

func TestFeedback_FallbackLetter(t *testing.T) {
	gen := newScriptedGen(func(kind string, req llm.Request) (string, error) {
		if kind == "letter" {
			return "not a letter", nil
		}
		return defaultResponder(kind, req)
	})
	c, _ := newTestCoach(t, gen)
	s := startSession(t, c)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		res, err := c.Turn(ctx, TurnInput{Identity: alice, Conversation: transcript(s, "whatever")})
		if err != nil {
			t.Fatalf("Turn %d failed: %v", i, err)
		}
		s = res.Session
	}

	res, err := c.Feedback(ctx, FeedbackInput{Identity: alice})
	if err != nil {
		t.Fatalf("Feedback failed: %v", err)
	}
	if res.Letter.Body != fallbackBody || res.Letter.Closing != fallbackClosing {
		t.Errorf("Expected fallback letter, got %+v", res.Letter)
	}
	if gen.count("letter") != 5 {
		t.Errorf("Expected 5 letter attempts, got %d", gen.count("letter"))
	}
}

// finishTurns answers every prompt of s empathetically.
func finishTurns(t *testing.T, c *Coach, id Identity, s *domain.Session) *domain.Session {
	t.Helper()
	for i := len(s.Turns); i < len(s.Prompts); i++ {
		res, err := c.Turn(context.Background(), TurnInput{Identity: id, Conversation: transcript(s, "I'm here for you")})
		if err != nil {
			t.Fatalf("Turn %d failed: %v", i, err)
		}
		s = res.Session
	}
	return s
}

func TestFeedback_RepeatRendersInlineAudio(t *testing.T) {
	c, _ := newTestCoach(t, newScriptedGen(defaultResponder))
	voice := &fakeVoice{inline: true}
	c.voice = voice
	ctx := context.Background()
	finishTurns(t, c, alice, startSession(t, c))

	first, err := c.Feedback(ctx, FeedbackInput{Identity: alice})
	if err != nil {
		t.Fatalf("Feedback failed: %v", err)
	}
	again, err := c.Feedback(ctx, FeedbackInput{Identity: alice})
	if err != nil {
		t.Fatalf("repeat Feedback failed: %v", err)
	}
	if first.Audio.Base64 == "" || again.Audio.Base64 != first.Audio.Base64 {
		t.Errorf("Expected inline audio on both requests, got %q and %q", first.Audio.Base64, again.Audio.Base64)
	}
	if again.Letter.AudioURL != "" {
		t.Errorf("Expected no stored audio URL, got %q", again.Letter.AudioURL)
	}
	if voice.calls != 2 {
		t.Errorf("Expected 2 renders, got %d", voice.calls)
	}
}

func TestSessionID_BelongsToParticipant(t *testing.T) {
	c, _ := newTestCoach(t, newScriptedGen(defaultResponder))
	ctx := context.Background()
	s := startSession(t, c)

	tests := []struct {
		name string
		id   Identity
	}{
		{"other user", Identity{Nickname: "Bob", Persona: "Someone", SessionID: s.ID}},
		{"other persona", Identity{Nickname: "Alice", Persona: "Someone", SessionID: s.ID}},
		{"other room", Identity{Nickname: "Alice", Persona: "Toduck", Room: "room-9", SessionID: s.ID}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Turn(ctx, TurnInput{Identity: tt.id, Conversation: transcript(s, "I'm here for you")})
			if !errors.Is(err, ErrSessionNotFound) {
				t.Errorf("Expected ErrSessionNotFound, got %v", err)
			}
			if _, err := c.Feedback(ctx, FeedbackInput{Identity: tt.id}); !errors.Is(err, ErrSessionNotFound) {
				t.Errorf("Expected ErrSessionNotFound from Feedback, got %v", err)
			}
		})
	}

	got, err := c.store.Get(ctx, s.ID)
	if err != nil || got == nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(got.Turns) != 0 || got.Distance != s.Distance {
		t.Errorf("Expected untouched session, got %d turns and distance %d", len(got.Turns), got.Distance)
	}

	owner := alice
	owner.SessionID = s.ID
	if _, err := c.Turn(ctx, TurnInput{Identity: owner, Conversation: transcript(s, "I'm here for you")}); err != nil {
		t.Errorf("Expected owner turn to succeed, got %v", err)
	}
}

func TestLock_ReleasedKeysAreDropped(t *testing.T) {
	c, _ := newTestCoach(t, newScriptedGen(defaultResponder))
	s := startSession(t, c)
	finishTurns(t, c, alice, s)
	for _, nick := range []string{"Bob", "Carol", "Dave"} {
		if _, err := c.Start(context.Background(), StartInput{Identity: Identity{Nickname: nick, Persona: "Toduck"}}); err != nil {
			t.Fatalf("Start failed: %v", err)
		}
	}

	if got := c.held(); got != 0 {
		t.Errorf("Expected no held keys after requests finish, got %d", got)
	}

	unlock, err := c.lock(s.Key())
	if err != nil {
		t.Fatalf("lock failed: %v", err)
	}
	if _, err := c.lock(s.Key()); !errors.Is(err, ErrBusy) {
		t.Errorf("Expected ErrBusy on a held key, got %v", err)
	}
	unlock()
	if got := c.held(); got != 0 {
		t.Errorf("Expected key dropped on unlock, got %d held", got)
	}
}
