package coach

import (
	"context"
	"strconv"
	"strings"

	"github.com/besides-508-potenday/na-T-na-AI/internal/llm"
	"github.com/besides-508-potenday/na-T-na-AI/internal/prompt"
)

// neutralReason is reported when the verdict could not be read.
const neutralReason = "응답을 평가하지 못해 0점으로 처리했어."

// verdictAttempts bounds regeneration of an unreadable verdict.
const verdictAttempts = 2

// Verdict is the combined safety check and empathy score of one reply. Score
// is always 0 when Verification is false.
type Verdict struct {
	Verification bool
	Score        int
	Reason       string
}

type verdictSchema struct {
	Verification bool   `json:"verification" jsonschema:"required"`
	Score        int    `json:"score" jsonschema:"required,enum=0,enum=1"`
	Reason       string `json:"reason_score" jsonschema:"required"`
}

var verdictFormat = llm.SchemaFor[verdictSchema]("turn_verdict", "Safety check and empathy score of the user's reply")

// verify asks for the verdict on one exchange. A backend failure is returned
// as an error. Output that cannot be read is regenerated once and then
// replaced by an accepted, zero-score verdict.
func (c *Coach) verify(ctx context.Context, sc prompt.ScoringContext) (Verdict, error) {
	req := llm.Request{
		System:  c.prompts.Verification(sc),
		User:    sc.UserMessage,
		Profile: c.profiles.Scoring,
		Schema:  verdictFormat,
	}

	for attempt := 1; attempt <= verdictAttempts; attempt++ {
		comp, err := c.gen.Generate(ctx, req)
		if err != nil {
			return Verdict{}, err
		}
		if v, ok := parseVerdict(comp.Text); ok {
			return v, nil
		}
		c.logger.Warn("Unreadable verdict", "attempt", attempt, "output_len", len(comp.Text))
	}
	return Verdict{Verification: true, Score: 0, Reason: neutralReason}, nil
}

// parseVerdict reads a verdict from model output. Booleans and scores may
// arrive as strings or numbers; any non-zero score counts as 1.
func parseVerdict(text string) (Verdict, bool) {
	var raw map[string]any
	if err := llm.DecodeObject(text, &raw, "verification", "score"); err != nil {
		return Verdict{}, false
	}

	verified, ok := lenientBool(raw["verification"])
	if !ok {
		return Verdict{}, false
	}
	score, ok := lenientScore(raw["score"])
	if !ok {
		return Verdict{}, false
	}

	v := Verdict{Verification: verified}
	if verified {
		v.Score = score
	}
	if reason, ok := raw["reason_score"].(string); ok {
		v.Reason = strings.TrimSpace(reason)
	}
	return v, true
}

func lenientBool(v any) (bool, bool) {
	switch t := v.(type) {
	case bool:
		return t, true
	case float64:
		return t != 0, true
	case string:
		b, err := strconv.ParseBool(strings.ToLower(strings.TrimSpace(t)))
		return b, err == nil
	}
	return false, false
}

// lenientScore maps any non-zero value to 1. A missing score reads as 0.
func lenientScore(v any) (int, bool) {
	switch t := v.(type) {
	case nil:
		return 0, true
	case float64:
		return nonZero(t), true
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		return nonZero(f), true
	}
	return 0, false
}

func nonZero(f float64) int {
	if f != 0 {
		return 1
	}
	return 0
}
