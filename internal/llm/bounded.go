package llm

import (
	"context"
	"fmt"
	"unicode/utf8"
)

// Fallback selects what a bounded generation returns once its attempts are spent.
type Fallback int

const (
	// KeepLastCandidate returns the most recent candidate, or Default if none was produced.
	KeepLastCandidate Fallback = iota
	// UseDefault always returns Default.
	UseDefault
)

// LengthPolicy bounds the length of generated text.
type LengthPolicy struct {
	Limit    int
	Attempts int
	Fallback Fallback
	Default  string
	// Field names the output field the limit applies to, if the output is structured.
	Field string
}

// Candidate produces one candidate text. directive is empty on the first
// attempt and holds a length instruction to append to the prompt afterwards.
type Candidate func(ctx context.Context, directive string) (string, error)

// Bounded is the outcome of a length-constrained generation.
type Bounded struct {
	Text     string
	Attempts int
	// SoftFailure is set when the budget ran out and a fallback was returned.
	SoftFailure bool
}

// GenerateBounded calls produce until it yields text within policy.Limit
// characters or the attempt budget is spent. A produce error counts as a
// violation. It always returns within policy.Attempts calls.
func GenerateBounded(ctx context.Context, policy LengthPolicy, produce Candidate) Bounded {
	attempts := max(policy.Attempts, 1)

	var last string
	haveLast := false
	made := 0
	for made < attempts {
		directive := ""
		if made > 0 {
			directive = LengthDirective(policy.Field, policy.Limit)
		}
		made++

		text, err := produce(ctx, directive)
		if err == nil {
			last, haveLast = text, true
			if Length(text) <= policy.Limit {
				return Bounded{Text: text, Attempts: made}
			}
		}
		if ctx.Err() != nil {
			break
		}
	}

	out := policy.Default
	if policy.Fallback == KeepLastCandidate && haveLast {
		out = last
	}
	return Bounded{Text: out, Attempts: made, SoftFailure: true}
}

// LengthDirective asks for output under 70% of limit to leave margin.
func LengthDirective(field string, limit int) string {
	target := limit * 7 / 10
	if field != "" {
		return fmt.Sprintf("Generate '%s' with %d characters or less.", field, target)
	}
	return fmt.Sprintf("Generate the output with %d characters or less.", target)
}

// Length counts characters, not bytes.
func Length(s string) int {
	return utf8.RuneCountInString(s)
}
