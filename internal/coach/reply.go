package coach

import (
	"context"
	"strings"

	"github.com/besides-508-potenday/na-T-na-AI/internal/domain"
	"github.com/besides-508-potenday/na-T-na-AI/internal/llm"
	"github.com/besides-508-potenday/na-T-na-AI/internal/prompt"
)

// defaultReaction is sent when no reaction could be generated.
const defaultReaction = "..."

// collisionMargin is how close the rewrite length may come to the reaction
// and original prompt combined before it is treated as a plain concatenation.
const collisionMargin = 5

// react generates the persona's short reaction to the last reply.
func (c *Coach) react(ctx context.Context, s *domain.Session, conversation []string, empathetic bool) string {
	system, user := c.prompts.Reaction(prompt.ReactionContext{
		Persona:    s.PersonaName,
		User:       s.UserNickname,
		Situation:  s.Situation,
		Exchanges:  prompt.Exchanges(conversation),
		Empathetic: empathetic,
	})

	b := llm.GenerateBounded(ctx, llm.LengthPolicy{
		Limit:    c.settings.MaxReactLength,
		Attempts: c.settings.AttemptLimit,
		Fallback: llm.KeepLastCandidate,
		Default:  defaultReaction,
	}, func(ctx context.Context, directive string) (string, error) {
		comp, err := c.gen.Generate(ctx, llm.Request{
			System:  prompt.WithDirective(system, directive),
			User:    user,
			Profile: c.profiles.Reaction,
		})
		if err != nil {
			return "", err
		}
		return stripSpeaker(comp.Text, s.PersonaName), nil
	})
	if b.SoftFailure {
		c.logger.Warn("Reaction over length", "session_id", s.ID, "attempts", b.Attempts)
	}
	if b.Text == "" {
		return defaultReaction
	}
	return b.Text
}

// improve rewrites next so it follows reaction naturally. It returns next
// unchanged when the rewrite fails or just glues the two together.
func (c *Coach) improve(ctx context.Context, persona, reaction, next string) string {
	b := llm.GenerateBounded(ctx, llm.LengthPolicy{
		Limit:    c.settings.MaxReactLength,
		Attempts: c.settings.AttemptLimit,
		Fallback: llm.UseDefault,
		Default:  next,
	}, func(ctx context.Context, directive string) (string, error) {
		comp, err := c.gen.Generate(ctx, llm.Request{
			System: prompt.WithDirective(c.prompts.ImprovePrompt(prompt.RewriteContext{
				Persona:    persona,
				Reaction:   reaction,
				NextPrompt: next,
			}), directive),
			Profile: c.profiles.Reaction,
		})
		if err != nil {
			return "", err
		}
		return stripSpeaker(comp.Text, persona), nil
	})

	if b.Text == "" || collides(b.Text, reaction, next) {
		return next
	}
	return b.Text
}

// collides reports whether rewrite looks like reaction and next concatenated.
func collides(rewrite, reaction, next string) bool {
	if rewrite == next {
		return false
	}
	if reaction != "" && reaction != defaultReaction && strings.Contains(rewrite, reaction) {
		return true
	}
	diff := llm.Length(rewrite) - (llm.Length(reaction) + llm.Length(next))
	return diff > -collisionMargin && diff < collisionMargin
}

// stripSpeaker removes a leading "name:" the backend sometimes echoes.
func stripSpeaker(text, persona string) string {
	s := cleanLine(text)
	if persona == "" {
		return s
	}
	for _, sep := range []string{":", " :"} {
		if rest, ok := strings.CutPrefix(s, persona+sep); ok {
			return cleanLine(rest)
		}
	}
	return s
}
