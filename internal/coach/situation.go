package coach

import (
	"context"
	"math/rand/v2"
	"regexp"
	"strings"

	"github.com/besides-508-potenday/na-T-na-AI/internal/llm"
	"github.com/besides-508-potenday/na-T-na-AI/internal/prompt"
)

// maxOpeningLength caps the first prompt, which doubles as the situation line.
const maxOpeningLength = 60

var (
	fallbackSituation = "깜짝 생일파티 준비 중인데, 친구가 좋아해줄까 걱정될 때"
	fallbackPrompts   = []string{
		"친구가 다음 주에 생일이라 깜짝 파티 준비하려는데, 정말 마음이 무거워...",
		"요즘 일이 너무 바빠서 시간 내기가 쉽지 않아... 그래서 더 초조해지고 있어.",
		"친구 몰래 다른 애들이랑 연락하면서 계획을 세워야 하니까 부담스럽기도 하고...",
		"선물도 골라야 하는데 도대체 어디서부터 시작해야 할지 감이 안 와...",
		"마음속으로는 이미 모든 게 완벽한 것 같은데, 현실은 왜 이렇게 복잡한지 모르겠어.",
	}
)

var listNumber = regexp.MustCompile(`^\d+\.\s*`)

type situationSchema struct {
	Situation string   `json:"situation" jsonschema:"required"`
	Sentences []string `json:"sentences" jsonschema:"required"`
}

var situationFormat = llm.SchemaFor[situationSchema]("situation", "A situation and the sentences that open the conversation")

// situation generates a situation and exactly QuizNum prompts. After
// SituationAttempts structural failures it returns the canned set, so it
// always yields a usable start.
func (c *Coach) situation(ctx context.Context) (string, []string) {
	quizNum := c.settings.QuizNum
	attempts := max(c.settings.SituationAttempts, 1)

	for attempt := 1; attempt <= attempts; attempt++ {
		example := prompt.Examples[rand.IntN(len(prompt.Examples))]
		comp, err := c.gen.Generate(ctx, llm.Request{
			System:  c.prompts.Situation(example),
			Profile: c.profiles.Situation,
			Schema:  situationFormat,
		})
		if err != nil {
			c.logger.Warn("Situation generation failed", "attempt", attempt, "error", err)
			if ctx.Err() != nil {
				break
			}
			continue
		}

		var out situationSchema
		if err := llm.DecodeObject(comp.Text, &out, "situation", "sentences"); err != nil {
			c.logger.Warn("Unreadable situation", "attempt", attempt, "error", err)
			continue
		}

		prompts := cleanSentences(out.Sentences, quizNum)
		if len(prompts) != quizNum {
			c.logger.Warn("Situation has wrong sentence count", "attempt", attempt, "want", quizNum, "got", len(prompts))
			continue
		}
		if llm.Length(prompts[0]) > maxOpeningLength {
			prompts[0] = c.abbreviate(ctx, prompts[0])
		}
		if prompts[0] == "" {
			continue
		}

		situation := strings.TrimSpace(out.Situation)
		if situation == "" {
			situation = prompts[0]
		}
		return situation, prompts
	}

	c.logger.Warn("Using fallback situation", "attempts", attempts)
	return fallbackSituation, fallbackQuizzes(quizNum)
}

// abbreviate shortens the opening prompt to maxOpeningLength characters.
func (c *Coach) abbreviate(ctx context.Context, sentence string) string {
	b := llm.GenerateBounded(ctx, llm.LengthPolicy{
		Limit:    maxOpeningLength,
		Attempts: c.settings.AttemptLimit,
		Fallback: llm.KeepLastCandidate,
		Default:  sentence,
	}, func(ctx context.Context, directive string) (string, error) {
		comp, err := c.gen.Generate(ctx, llm.Request{
			System:  prompt.WithDirective(c.prompts.Abbreviate(sentence, maxOpeningLength), directive),
			Profile: c.profiles.Default,
		})
		if err != nil {
			return "", err
		}
		return cleanLine(comp.Text), nil
	})
	if b.SoftFailure {
		c.logger.Warn("Opening prompt still too long", "attempts", b.Attempts, "length", llm.Length(b.Text))
	}
	return b.Text
}

// cleanSentences strips list numbering and blank lines, keeps the first n
// sentences and removes a filler opening from the first.
func cleanSentences(sentences []string, n int) []string {
	out := make([]string, 0, n)
	for _, s := range sentences {
		s = strings.TrimSpace(listNumber.ReplaceAllString(strings.TrimSpace(s), ""))
		if s == "" {
			continue
		}
		out = append(out, s)
		if len(out) == n {
			break
		}
	}
	if len(out) > 0 {
		out[0] = stripFiller(out[0])
	}
	return out
}

// stripFiller drops everything up to and including a known filler phrase.
func stripFiller(s string) string {
	for _, f := range prompt.Fillers {
		if i := strings.Index(s, f); i >= 0 {
			return strings.TrimSpace(s[i+len(f):])
		}
	}
	return s
}

// fallbackQuizzes returns n canned prompts, repeating the last when n is
// larger than the canned set.
func fallbackQuizzes(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fallbackPrompts[min(i, len(fallbackPrompts)-1)]
	}
	return out
}

// cleanLine trims whitespace and wrapping quotes from a one-line answer.
func cleanLine(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "\"'“”")
	return strings.TrimSpace(s)
}
