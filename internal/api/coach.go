package api

import (
	"context"
	"net/http"

	"github.com/besides-508-potenday/na-T-na-AI/internal/coach"
	"github.com/besides-508-potenday/na-T-na-AI/internal/domain"
	"github.com/go-chi/chi/v5"
)

// Coordinator runs session transitions.
type Coordinator interface {
	Start(ctx context.Context, in coach.StartInput) (*domain.Session, error)
	Turn(ctx context.Context, in coach.TurnInput) (*coach.TurnResult, error)
	Feedback(ctx context.Context, in coach.FeedbackInput) (*coach.FeedbackResult, error)
}

// CoachHandler handles the conversation endpoints.
type CoachHandler struct {
	*Handler
	coach Coordinator
}

// NewCoachHandler creates a new coach handler.
func NewCoachHandler(base *Handler, c Coordinator) *CoachHandler {
	return &CoachHandler{Handler: base, coach: c}
}

// RegisterRoutes registers conversation routes.
func (h *CoachHandler) RegisterRoutes(r chi.Router) {
	r.Post("/situation", h.Situation)
	r.Post("/conversation", h.Conversation)
	r.Post("/feedback", h.Feedback)
}

type participant struct {
	UserNickname string `json:"userNickname" validate:"required,max=50"`
	ChatbotName  string `json:"chatbotName" validate:"required,max=50"`
	ChatroomID   string `json:"chatroomId,omitempty" validate:"omitempty,max=128"`
	SessionID    string `json:"sessionId,omitempty" validate:"omitempty,max=128"`
}

func (p participant) identity() coach.Identity {
	return coach.Identity{
		Nickname:  p.UserNickname,
		Persona:   p.ChatbotName,
		Room:      p.ChatroomID,
		SessionID: p.SessionID,
	}
}

type situationRequest struct {
	participant
}

type situationResponse struct {
	QuizList  []string `json:"quizList"`
	SessionID string   `json:"sessionId"`
	Situation string   `json:"situation"`
}

type conversationRequest struct {
	participant
	Conversation    []string `json:"conversation" validate:"required,min=2,max=40,dive,max=2000"`
	QuizList        []string `json:"quizList"`
	CurrentDistance *int     `json:"currentDistance" validate:"omitempty,min=0"`
}

type conversationResponse struct {
	React           string `json:"react"`
	Score           int    `json:"score"`
	ImprovedQuiz    string `json:"improvedQuiz"`
	Verification    bool   `json:"verification"`
	Reason          string `json:"reason"`
	CurrentDistance int    `json:"currentDistance"`
	Finished        bool   `json:"finished"`
	SessionID       string `json:"sessionId"`
}

type feedbackRequest struct {
	participant
	Conversation    []string `json:"conversation"`
	CurrentDistance *int     `json:"currentDistance" validate:"omitempty,min=0"`
}

type feedbackResponse struct {
	Feedback      string `json:"feedback"`
	LastGreeting  string `json:"lastGreeting"`
	FirstGreeting string `json:"firstGreeting"`
	Letter        string `json:"letter"`
	AudioURL      string `json:"audioUrl,omitempty"`
	AudioBase64   string `json:"audioBase64,omitempty"`
	SessionID     string `json:"sessionId"`
}

// Situation starts a session and returns its prompts.
func (h *CoachHandler) Situation(w http.ResponseWriter, r *http.Request) {
	var req situationRequest
	if !h.decode(w, r, &req) {
		return
	}

	s, err := h.coach.Start(r.Context(), coach.StartInput{Identity: req.identity()})
	if err != nil {
		fail(w, r, err)
		return
	}

	JSON(w, http.StatusOK, situationResponse{
		QuizList:  s.Prompts,
		SessionID: s.ID,
		Situation: s.Situation,
	})
}

// Conversation scores the user's latest reply.
func (h *CoachHandler) Conversation(w http.ResponseWriter, r *http.Request) {
	var req conversationRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.coach.Turn(r.Context(), coach.TurnInput{
		Identity:        req.identity(),
		Conversation:    req.Conversation,
		QuizList:        req.QuizList,
		CurrentDistance: req.CurrentDistance,
	})
	if err != nil {
		fail(w, r, err)
		return
	}

	JSON(w, http.StatusOK, conversationResponse{
		React:           res.Reaction,
		Score:           res.Score,
		ImprovedQuiz:    res.ImprovedPrompt,
		Verification:    res.Verification,
		Reason:          res.Reason,
		CurrentDistance: res.Distance,
		Finished:        res.Finished,
		SessionID:       res.Session.ID,
	})
}

// Feedback returns the closing letter.
func (h *CoachHandler) Feedback(w http.ResponseWriter, r *http.Request) {
	var req feedbackRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.coach.Feedback(r.Context(), coach.FeedbackInput{
		Identity:        req.identity(),
		Conversation:    req.Conversation,
		CurrentDistance: req.CurrentDistance,
	})
	if err != nil {
		fail(w, r, err)
		return
	}

	JSON(w, http.StatusOK, feedbackResponse{
		Feedback:      res.Letter.Body,
		LastGreeting:  res.Letter.Closing,
		FirstGreeting: res.Letter.Opening,
		Letter:        res.Letter.Text(res.Session.PersonaName),
		AudioURL:      res.Audio.URL,
		AudioBase64:   res.Audio.Base64,
		SessionID:     res.Session.ID,
	})
}
