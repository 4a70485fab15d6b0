// Package coach drives a coaching session from situation to closing letter.
package coach

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/besides-508-potenday/na-T-na-AI/internal/config"
	"github.com/besides-508-potenday/na-T-na-AI/internal/domain"
	"github.com/besides-508-potenday/na-T-na-AI/internal/llm"
	"github.com/besides-508-potenday/na-T-na-AI/internal/prompt"
	"github.com/besides-508-potenday/na-T-na-AI/internal/speech"
	"github.com/besides-508-potenday/na-T-na-AI/internal/store"
)

var (
	// ErrSessionNotFound is returned when no session matches the request.
	ErrSessionNotFound = errors.New("session not found")
	// ErrBusy is returned while another request for the same session is running.
	ErrBusy = errors.New("session is busy")
	// ErrInvalidTranscript is returned for a conversation that is not
	// alternating bot and user lines ending with the user's reply.
	ErrInvalidTranscript = errors.New("conversation must alternate bot and user messages and end with the user's reply")
)

// Event types published on session transitions.
const (
	EventSituation = "situation"
	EventTurn      = "turn"
	EventRejected  = "rejected"
	EventFeedback  = "feedback"
)

// Notifier receives a snapshot after every session transition.
type Notifier interface {
	Notify(eventType string, s *domain.Session)
}

// Voice renders the closing letter as audio.
type Voice interface {
	Render(ctx context.Context, sessionID, text string) speech.Audio
}

// Deps are the collaborators of a Coach.
type Deps struct {
	Generator llm.Generator
	Store     store.SessionStore
	Prompts   *prompt.Builder
	Profiles  config.Profiles
	Settings  config.CoachConfig
	Voice     Voice
	Notifier  Notifier
	Logger    *slog.Logger
}

// Coach runs the session state machine. Requests for one session key are
// serialized; a second concurrent request gets ErrBusy.
type Coach struct {
	gen      llm.Generator
	store    store.SessionStore
	prompts  *prompt.Builder
	profiles config.Profiles
	settings config.CoachConfig
	voice    Voice
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time

	mu   sync.Mutex
	busy map[string]struct{}
}

// New creates a Coach.
func New(d Deps) *Coach {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	prompts := d.Prompts
	if prompts == nil {
		prompts = prompt.NewBuilder(d.Settings.QuizNum)
	}
	return &Coach{
		gen:      d.Generator,
		store:    d.Store,
		prompts:  prompts,
		profiles: d.Profiles,
		settings: d.Settings,
		voice:    d.Voice,
		notifier: d.Notifier,
		logger:   logger,
		now:      time.Now,
		busy:     make(map[string]struct{}),
	}
}

// Identity names the participant and room a request belongs to.
type Identity struct {
	Nickname  string
	Persona   string
	Room      string
	SessionID string
}

func (id Identity) key() domain.SessionKey {
	return domain.NewSessionKey(id.Nickname, id.Persona, id.Room)
}

// StartInput asks for a fresh situation.
type StartInput struct {
	Identity
}

// TurnInput carries the transcript ending with the user's reply. QuizList and
// CurrentDistance are the client's view and only checked against the session.
type TurnInput struct {
	Identity
	Conversation    []string
	QuizList        []string
	CurrentDistance *int
}

// TurnResult is the outcome of one reply.
type TurnResult struct {
	Session        *domain.Session
	Reaction       string
	Score          int
	Reason         string
	ImprovedPrompt string
	Verification   bool
	Distance       int
	Finished       bool
}

// FeedbackInput asks for the closing letter.
type FeedbackInput struct {
	Identity
	Conversation    []string
	CurrentDistance *int
}

// FeedbackResult is the closing letter with its audio.
type FeedbackResult struct {
	Session *domain.Session
	Letter  domain.Letter
	Audio   speech.Audio
}

// Start generates a situation and its prompts and seeds the session.
func (c *Coach) Start(ctx context.Context, in StartInput) (*domain.Session, error) {
	key := in.key()
	unlock, err := c.lock(key)
	if err != nil {
		return nil, err
	}
	defer unlock()

	situation, prompts := c.situation(ctx)

	s, err := c.store.Create(ctx, key, store.Seed{
		Situation:       situation,
		Prompts:         prompts,
		InitialDistance: c.settings.InitialDistance,
	})
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	c.logger.Info("Session started",
		"session_id", s.ID,
		"user_nickname", s.UserNickname,
		"chatbot_name", s.PersonaName,
	)
	c.notify(EventSituation, s)
	return s, nil
}

// Turn verifies, scores and answers the user's latest reply.
func (c *Coach) Turn(ctx context.Context, in TurnInput) (*TurnResult, error) {
	n := len(in.Conversation)
	if n < 2 || n%2 != 0 {
		return nil, ErrInvalidTranscript
	}

	s, unlock, err := c.acquire(ctx, in.Identity)
	if err != nil {
		return nil, err
	}
	defer unlock()

	switch s.State() {
	case domain.StateAwaitingFeedback, domain.StateFinished:
		return nil, domain.ErrSessionComplete
	case domain.StateAwaitingStart:
		return nil, domain.ErrNotSeeded
	}

	index := n/2 - 1
	if index != s.TurnIndex() {
		c.logger.Warn("Turn out of order",
			"session_id", s.ID,
			"expected", s.TurnIndex(),
			"got", index,
		)
		return nil, domain.ErrTurnOutOfOrder
	}
	c.checkClientView(s, in.QuizList, in.CurrentDistance)

	botMessage, userMessage := in.Conversation[n-2], in.Conversation[n-1]
	verdict, err := c.verify(ctx, prompt.ScoringContext{
		Persona:     s.PersonaName,
		User:        s.UserNickname,
		BotMessage:  botMessage,
		UserMessage: userMessage,
	})
	if err != nil {
		return nil, fmt.Errorf("verify turn: %w", err)
	}

	if !verdict.Verification {
		if err := c.store.RecordRejection(ctx, s.ID, domain.Rejection{
			BotMessage:  botMessage,
			UserMessage: userMessage,
			Reason:      verdict.Reason,
			Timestamp:   c.now(),
		}); err != nil {
			return nil, c.storeErr(err)
		}
		c.logger.Info("Turn rejected", "session_id", s.ID, "turn", index)
		if updated, _ := c.store.Get(ctx, s.ID); updated != nil {
			s = updated
		}
		c.notify(EventRejected, s)
		return &TurnResult{
			Session:      s,
			Reason:       verdict.Reason,
			Verification: false,
			Distance:     s.Distance,
		}, nil
	}

	reaction := c.react(ctx, s, in.Conversation, verdict.Score == 1)

	improved := ""
	if next := index + 1; next < len(s.Prompts) {
		improved = c.improve(ctx, s.PersonaName, reaction, s.Prompts[next])
	}

	distance := domain.NextDistance(s.Distance, verdict.Score)
	updated, err := c.store.AppendTurn(ctx, s.ID, domain.Turn{
		Index:          index,
		BotMessage:     botMessage,
		UserMessage:    userMessage,
		Reaction:       reaction,
		ImprovedPrompt: improved,
		Score:          verdict.Score,
		Reason:         verdict.Reason,
		Verification:   true,
		Distance:       distance,
		Timestamp:      c.now(),
	}, improved)
	if err != nil {
		return nil, c.storeErr(err)
	}

	finished := updated.State() == domain.StateAwaitingFeedback
	c.logger.Info("Turn recorded",
		"session_id", updated.ID,
		"turn", index,
		"score", verdict.Score,
		"current_distance", updated.Distance,
		"finished", finished,
	)
	c.notify(EventTurn, updated)

	return &TurnResult{
		Session:        updated,
		Reaction:       reaction,
		Score:          verdict.Score,
		Reason:         verdict.Reason,
		ImprovedPrompt: improved,
		Verification:   true,
		Distance:       updated.Distance,
		Finished:       finished,
	}, nil
}

// Feedback writes the closing letter once the last prompt is answered. A
// finished session returns its stored letter.
func (c *Coach) Feedback(ctx context.Context, in FeedbackInput) (*FeedbackResult, error) {
	s, unlock, err := c.acquire(ctx, in.Identity)
	if err != nil {
		return nil, err
	}
	defer unlock()

	switch s.State() {
	case domain.StateFinished:
		c.logger.Info("Returning stored letter", "session_id", s.ID)
		audio := speech.Audio{URL: s.Feedback.AudioURL}
		if audio.URL == "" && c.voice != nil {
			// Inline audio is not stored; render it again.
			audio = c.voice.Render(ctx, s.ID, s.Feedback.Text(s.PersonaName))
		}
		return &FeedbackResult{Session: s, Letter: *s.Feedback, Audio: audio}, nil
	case domain.StateAwaitingFeedback:
	default:
		return nil, domain.ErrNotFinished
	}
	c.checkClientView(s, nil, in.CurrentDistance)

	letter := c.letter(ctx, s)
	audio := speech.Audio{}
	if c.voice != nil {
		audio = c.voice.Render(ctx, s.ID, letter.Text(s.PersonaName))
	}
	letter.AudioURL = audio.URL

	updated, err := c.store.Finalize(ctx, s.ID, letter)
	if err != nil {
		return nil, c.storeErr(err)
	}

	c.logger.Info("Session finished",
		"session_id", updated.ID,
		"current_distance", updated.Distance,
		"score", updated.Score(),
	)
	c.notify(EventFeedback, updated)
	return &FeedbackResult{Session: updated, Letter: *updated.Feedback, Audio: audio}, nil
}

// acquire resolves the session for id and locks its key. The session is
// re-read under the lock so the caller sees the latest committed state.
func (c *Coach) acquire(ctx context.Context, id Identity) (*domain.Session, func(), error) {
	s, err := c.resolve(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	unlock, err := c.lock(s.Key())
	if err != nil {
		return nil, nil, err
	}
	s, err = c.store.Get(ctx, s.ID)
	if err != nil || s == nil {
		unlock()
		if err == nil {
			err = ErrSessionNotFound
		}
		return nil, nil, err
	}
	return s, unlock, nil
}

func (c *Coach) resolve(ctx context.Context, id Identity) (*domain.Session, error) {
	var (
		s   *domain.Session
		err error
	)
	if id.SessionID != "" {
		s, err = c.store.Get(ctx, id.SessionID)
	} else {
		s, err = c.store.Current(ctx, id.key())
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if s == nil || !owns(s, id) {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// owns reports whether id names the participant of s. The room is compared
// only when the request carries one.
func owns(s *domain.Session, id Identity) bool {
	want, have := id.key(), s.Key()
	if want.Nickname != have.Nickname || want.Persona != have.Persona {
		return false
	}
	return id.Room == "" || want.Room == have.Room
}

// lock marks key busy until the returned func is called. Keys are dropped on
// unlock so idle participants hold no memory.
func (c *Coach) lock(key domain.SessionKey) (func(), error) {
	k := key.String()
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, held := c.busy[k]; held {
		return nil, ErrBusy
	}
	c.busy[k] = struct{}{}
	return func() {
		c.mu.Lock()
		delete(c.busy, k)
		c.mu.Unlock()
	}, nil
}

func (c *Coach) held() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.busy)
}

// checkClientView logs where the client's copy of the session disagrees with
// the stored one. The stored session always wins.
func (c *Coach) checkClientView(s *domain.Session, quizList []string, distance *int) {
	if distance != nil && *distance != s.Distance {
		c.logger.Warn("Client distance differs from session",
			"session_id", s.ID,
			"client", *distance,
			"session", s.Distance,
		)
	}
	if len(quizList) > 0 && len(quizList) != len(s.Prompts) {
		c.logger.Warn("Client quiz list differs from session",
			"session_id", s.ID,
			"client", len(quizList),
			"session", len(s.Prompts),
		)
	}
}

func (c *Coach) storeErr(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrSessionNotFound
	}
	return err
}

func (c *Coach) notify(eventType string, s *domain.Session) {
	if c.notifier != nil {
		c.notifier.Notify(eventType, s)
	}
}
