package coach

import (
	"context"
	"strings"

	"github.com/besides-508-potenday/na-T-na-AI/internal/domain"
	"github.com/besides-508-potenday/na-T-na-AI/internal/llm"
	"github.com/besides-508-potenday/na-T-na-AI/internal/prompt"
)

const (
	fallbackBody    = "오늘 내 이야기 끝까지 들어줘서 고마워. 너랑 이야기하면서 마음이 조금 가벼워졌어."
	fallbackClosing = "힘들었던 하루 끝에,"
)

type letterSchema struct {
	FirstGreeting string `json:"first_greeting" jsonschema:"required"`
	Text          string `json:"text" jsonschema:"required"`
	LastGreeting  string `json:"last_greeting" jsonschema:"required"`
}

var letterFormat = llm.SchemaFor[letterSchema]("letter", "Closing letter from the persona to the user")

// ToneFor picks the letter tone from the final emotional distance.
func ToneFor(distance int) prompt.Tone {
	switch {
	case distance <= 0:
		return prompt.ToneJoyful
	case distance == 1:
		return prompt.ToneExcited
	case distance == 2:
		return prompt.ToneResentful
	default:
		return prompt.ToneSad
	}
}

// letter writes the closing letter with its body bounded to
// MaxFeedbackLength characters. It never fails.
func (c *Coach) letter(ctx context.Context, s *domain.Session) domain.Letter {
	exchanges := make([]prompt.Exchange, 0, len(s.Turns))
	for _, t := range s.Turns {
		exchanges = append(exchanges, prompt.Exchange{Bot: t.BotMessage, User: t.UserMessage})
	}
	quizNum := len(s.Prompts)
	instruction := c.prompts.Letter(prompt.LetterContext{
		Persona:   s.PersonaName,
		User:      s.UserNickname,
		Exchanges: exchanges,
		Score:     max(quizNum-s.Distance, 0),
		QuizNum:   quizNum,
		Tone:      ToneFor(s.Distance),
	})

	var last letterSchema
	b := llm.GenerateBounded(ctx, llm.LengthPolicy{
		Limit:    c.settings.MaxFeedbackLength,
		Attempts: c.settings.AttemptLimit,
		Fallback: llm.KeepLastCandidate,
		Field:    "text",
	}, func(ctx context.Context, directive string) (string, error) {
		comp, err := c.gen.Generate(ctx, llm.Request{
			System:  prompt.WithDirective(instruction, directive),
			Profile: c.profiles.Feedback,
			Schema:  letterFormat,
		})
		if err != nil {
			return "", err
		}
		var out letterSchema
		if err := llm.DecodeObject(comp.Text, &out, "text"); err != nil {
			return "", err
		}
		out.Text = strings.TrimSpace(out.Text)
		if out.Text == "" {
			return "", llm.ErrNoJSON
		}
		last = out
		return out.Text, nil
	})

	if b.Text == "" {
		c.logger.Warn("Using fallback letter", "session_id", s.ID, "attempts", b.Attempts)
		return domain.Letter{
			Opening:   "안녕 " + s.UserNickname + "!",
			Body:      fallbackBody,
			Closing:   fallbackClosing,
			Timestamp: c.now(),
		}
	}
	if b.SoftFailure {
		c.logger.Warn("Letter body over length", "session_id", s.ID, "length", llm.Length(b.Text))
	}

	closing := strings.TrimSpace(last.LastGreeting)
	if closing == "" {
		closing = fallbackClosing
	}
	return domain.Letter{
		Opening:   strings.TrimSpace(last.FirstGreeting),
		Body:      b.Text,
		Closing:   closing,
		Timestamp: c.now(),
	}
}
