// Package domain contains core domain types for the coaching service.
package domain

import (
	"errors"
	"slices"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// DefaultRoom is the chat room used when a client does not name one.
const DefaultRoom = "default"

// Session state machine errors.
var (
	ErrNotSeeded        = errors.New("session has no prompt sequence")
	ErrAlreadyStarted   = errors.New("session already has turns")
	ErrTurnOutOfOrder   = errors.New("turn does not follow the last recorded turn")
	ErrSessionComplete  = errors.New("all prompts have been answered")
	ErrNotFinished      = errors.New("session has unanswered prompts")
	ErrAlreadyFinalized = errors.New("session already has final feedback")
)

// State is the position of a session in the coaching flow.
type State string

const (
	StateAwaitingStart    State = "awaiting_start"
	StateInProgress       State = "in_progress"
	StateAwaitingFeedback State = "awaiting_feedback"
	StateFinished         State = "finished"
)

// SessionKey identifies the current session of a (user, persona, room) tuple.
type SessionKey struct {
	Nickname string
	Persona  string
	Room     string
}

// NewSessionKey trims and NFC-normalizes the parts so that visually identical
// names collide.
func NewSessionKey(nickname, persona, room string) SessionKey {
	room = normalizeName(room)
	if room == "" {
		room = DefaultRoom
	}
	return SessionKey{
		Nickname: normalizeName(nickname),
		Persona:  normalizeName(persona),
		Room:     room,
	}
}

func normalizeName(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

// String returns the key in nickname_persona_room form.
func (k SessionKey) String() string {
	return k.Nickname + "_" + k.Persona + "_" + k.Room
}

// Turn is one accepted (bot prompt, user reply) exchange.
type Turn struct {
	Index          int       `json:"index"`
	BotMessage     string    `json:"bot_message"`
	UserMessage    string    `json:"user_message"`
	Reaction       string    `json:"react"`
	ImprovedPrompt string    `json:"improved_quiz,omitempty"`
	Score          int       `json:"score"`
	Reason         string    `json:"reason_score"`
	Verification   bool      `json:"verification"`
	Distance       int       `json:"current_distance"`
	Timestamp      time.Time `json:"timestamp"`
}

// Rejection records a reply that failed verification. It never counts as a turn.
type Rejection struct {
	BotMessage  string    `json:"bot_message"`
	UserMessage string    `json:"user_message"`
	Reason      string    `json:"reason,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Letter is the closing feedback letter written by the persona.
type Letter struct {
	Opening   string    `json:"first_greeting"`
	Body      string    `json:"feedback"`
	Closing   string    `json:"last_greeting"`
	AudioURL  string    `json:"audio_url,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Text renders the full letter signed by the persona.
func (l Letter) Text(persona string) string {
	return l.Opening + "\n\n" + l.Body + "\n\n" + l.Closing + "\n\n" + persona + "가"
}

// Session is one coaching conversation.
type Session struct {
	ID              string      `json:"session_id"`
	UserNickname    string      `json:"user_nickname"`
	PersonaName     string      `json:"chatbot_name"`
	ChatroomID      string      `json:"chatroom_id"`
	Situation       string      `json:"situation"`
	Prompts         []string    `json:"quiz_list"`
	InitialDistance int         `json:"initial_distance"`
	Distance        int         `json:"current_distance"`
	Turns           []Turn      `json:"conversation_log"`
	Rejections      []Rejection `json:"rejections,omitempty"`
	Feedback        *Letter     `json:"final_feedback,omitempty"`
	CreatedAt       time.Time   `json:"start_time"`
	UpdatedAt       time.Time   `json:"updated_at"`
	EndTime         *time.Time  `json:"end_time,omitempty"`
}

// NewSession creates an unseeded session for key.
func NewSession(id string, key SessionKey, now time.Time) *Session {
	return &Session{
		ID:           id,
		UserNickname: key.Nickname,
		PersonaName:  key.Persona,
		ChatroomID:   key.Room,
		Turns:        []Turn{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Key returns the identity tuple of the session.
func (s *Session) Key() SessionKey {
	return SessionKey{Nickname: s.UserNickname, Persona: s.PersonaName, Room: s.ChatroomID}
}

// State derives the flow position from the recorded data.
func (s *Session) State() State {
	switch {
	case len(s.Prompts) == 0:
		return StateAwaitingStart
	case s.Feedback != nil:
		return StateFinished
	case len(s.Turns) >= len(s.Prompts):
		return StateAwaitingFeedback
	default:
		return StateInProgress
	}
}

// TurnIndex is the index of the prompt the user is expected to answer next.
func (s *Session) TurnIndex() int {
	return len(s.Turns)
}

// Score is the number of empathetic turns expressed against the prompt count.
func (s *Session) Score() int {
	score := len(s.Prompts) - s.Distance
	if score < 0 {
		return 0
	}
	return score
}

// Seed sets the situation and prompt sequence. It is only allowed before the
// first turn.
func (s *Session) Seed(situation string, prompts []string, initialDistance int, now time.Time) error {
	if len(s.Turns) > 0 || s.Feedback != nil {
		return ErrAlreadyStarted
	}
	s.Situation = situation
	s.Prompts = slices.Clone(prompts)
	s.InitialDistance = max(initialDistance, 0)
	s.Distance = s.InitialDistance
	s.UpdatedAt = now
	return nil
}

// ApplyTurn appends an accepted turn, moves the distance, and rewrites the next
// unsent prompt when rewrite is non-empty. All changes happen together or not at all.
func (s *Session) ApplyTurn(t Turn, rewrite string) error {
	if len(s.Prompts) == 0 {
		return ErrNotSeeded
	}
	if len(s.Turns) >= len(s.Prompts) {
		return ErrSessionComplete
	}
	if t.Index != len(s.Turns) {
		return ErrTurnOutOfOrder
	}
	t.Distance = max(t.Distance, 0)
	s.Turns = append(s.Turns, t)
	s.Distance = t.Distance
	if next := t.Index + 1; rewrite != "" && next < len(s.Prompts) {
		s.Prompts[next] = rewrite
	}
	s.UpdatedAt = t.Timestamp
	return nil
}

// Reject records a reply that failed verification.
func (s *Session) Reject(r Rejection) {
	s.Rejections = append(s.Rejections, r)
	s.UpdatedAt = r.Timestamp
}

// Finalize attaches the letter and closes the session.
func (s *Session) Finalize(l Letter) error {
	switch s.State() {
	case StateFinished:
		return ErrAlreadyFinalized
	case StateAwaitingFeedback:
	case StateAwaitingStart:
		return ErrNotSeeded
	default:
		return ErrNotFinished
	}
	letter := l
	s.Feedback = &letter
	end := l.Timestamp
	s.EndTime = &end
	s.UpdatedAt = end
	return nil
}

// Clone returns a deep copy so callers never share slices with the store.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.Prompts = slices.Clone(s.Prompts)
	c.Turns = slices.Clone(s.Turns)
	if c.Turns == nil {
		c.Turns = []Turn{}
	}
	c.Rejections = slices.Clone(s.Rejections)
	if s.Feedback != nil {
		l := *s.Feedback
		c.Feedback = &l
	}
	if s.EndTime != nil {
		e := *s.EndTime
		c.EndTime = &e
	}
	return &c
}

// NextDistance applies an empathy score to a distance, floored at zero.
func NextDistance(current, score int) int {
	return max(current-score, 0)
}

// Summary is the list view of a session.
type Summary struct {
	ID           string    `json:"session_id"`
	UserNickname string    `json:"user_nickname"`
	PersonaName  string    `json:"chatbot_name"`
	ChatroomID   string    `json:"chatroom_id"`
	State        State     `json:"state"`
	Turns        int       `json:"turns"`
	Distance     int       `json:"current_distance"`
	CreatedAt    time.Time `json:"start_time"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Summarize builds the list view.
func (s *Session) Summarize() Summary {
	return Summary{
		ID:           s.ID,
		UserNickname: s.UserNickname,
		PersonaName:  s.PersonaName,
		ChatroomID:   s.ChatroomID,
		State:        s.State(),
		Turns:        len(s.Turns),
		Distance:     s.Distance,
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
	}
}
