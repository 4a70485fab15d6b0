// Package prompt builds the instruction text sent to the generation backend.
// Every builder is a pure function of its input.
package prompt

import (
	"fmt"
	"strings"
	"text/template"
)

// BannedTopics are never used as conversation material.
var BannedTopics = []string{
	"death", "suicide", "abuse", "serious illness", "depression",
	"trauma", "domestic violence", "unemployment", "love",
}

// Fillers are greeting fragments some generations prepend to the first sentence.
var Fillers = []string{"내 말 좀 들어줄래...?", "내 말 좀 들어줄래..."}

// Examples are the seed situations shown to the backend.
var Examples = []string{
	"깜짝 생일 파티를 준비 중인데, 친구가 좋아해줄까 걱정돼.\n친구가 부담스러워하거나, 별로 안 좋아하면 어떡하지? 불안해...\n친구가 조용한 걸 좋아하는 편이라 더 고민돼.",
	"친하다고 생각했던 친구가 내 생일을 완전히 잊어버려서 너무 속상해.\n그냥 아무렇지 않게 넘어가려고 했는데 다른 친구들은 다 챙기더라고..\n내가 너무 기대를 많이 했나? 나만 의미를 부여했나 복잡해.",
	"단체 사진에서 나만 눈을 감았더라..\n아무도 그 이야기를 해주지 않았고, 그 사진은 계속 대표 사진으로 쓰이고 있어.\n그냥 웃어넘기려고 했는데 다들 나를 신경 안 쓴 것 같아 서운해.",
}

// Tone is the emotional register of the closing letter.
type Tone int

const (
	ToneJoyful Tone = iota
	ToneExcited
	ToneResentful
	ToneSad
)

func (t Tone) String() string {
	switch t {
	case ToneJoyful:
		return "Write the letter with a sense of happiness and being moved."
	case ToneExcited:
		return "Write the letter with a sense of excitement and being moved."
	case ToneResentful:
		return "Write the letter with a sense of disappointment and resentment."
	default:
		return "Write the letter with a sense of disappointment and sadness."
	}
}

// Exchange is one bot line and the user's reply to it.
type Exchange struct {
	Bot  string
	User string
}

// Exchanges pairs a flat transcript [bot, user, bot, user, ...]. A trailing
// unpaired bot line is dropped.
func Exchanges(conversation []string) []Exchange {
	out := make([]Exchange, 0, len(conversation)/2)
	for i := 0; i+1 < len(conversation); i += 2 {
		out = append(out, Exchange{Bot: conversation[i], User: conversation[i+1]})
	}
	return out
}

type voice struct {
	Persona   string
	User      string
	Lingering bool
}

// ScoringContext is the last exchange to verify and score.
type ScoringContext struct {
	Persona     string
	User        string
	BotMessage  string
	UserMessage string
}

// ReactionContext is the input for the persona's reaction to the last reply.
type ReactionContext struct {
	Persona    string
	User       string
	Situation  string
	Exchanges  []Exchange
	Empathetic bool
}

// RewriteContext is the input for fusing a reaction with the next prompt.
type RewriteContext struct {
	Persona    string
	Reaction   string
	NextPrompt string
}

// LetterContext is the input for the closing letter.
type LetterContext struct {
	Persona   string
	User      string
	Exchanges []Exchange
	Score     int
	QuizNum   int
	Tone      Tone
}

// Builder renders instruction text.
type Builder struct {
	quizNum int
	tmpl    *template.Template
}

// NewBuilder parses the templates. It panics on a malformed template.
func NewBuilder(quizNum int) *Builder {
	t := template.New("prompts").Funcs(template.FuncMap{"join": strings.Join})
	template.Must(t.New("persona").Parse(personaBlock))
	template.Must(t.New("intro").Parse(coachIntro))
	template.Must(t.New("situation").Parse(situationTemplate))
	template.Must(t.New("abbreviate").Parse(abbreviateTemplate))
	template.Must(t.New("verification").Parse(verificationTemplate))
	template.Must(t.New("reaction").Parse(reactionTemplate))
	template.Must(t.New("improve").Parse(improveTemplate))
	template.Must(t.New("letter").Parse(letterTemplate))
	return &Builder{quizNum: quizNum, tmpl: t}
}

// Situation asks for one situation and quizNum prompt sentences as JSON.
func (b *Builder) Situation(example string) string {
	return b.render("situation", struct {
		voice
		QuizNum      int
		Example      string
		BannedTopics []string
		Fillers      []string
	}{voice{Lingering: true}, b.quizNum, example, BannedTopics, Fillers})
}

// Abbreviate asks for sentence shortened below limit characters.
func (b *Builder) Abbreviate(sentence string, limit int) string {
	return b.render("abbreviate", struct {
		Sentence string
		Limit    int
	}{sentence, limit})
}

// Verification asks for the safety verdict and empathy score of one exchange.
func (b *Builder) Verification(c ScoringContext) string {
	return b.render("verification", struct {
		voice
		BotMessage  string
		UserMessage string
	}{voice{Persona: c.Persona, User: c.User}, c.BotMessage, c.UserMessage})
}

// Reaction returns the system instruction and the user message for the
// persona's reaction to the last reply.
func (b *Builder) Reaction(c ReactionContext) (system, user string) {
	system = b.render("reaction", struct {
		voice
		Situation  string
		Exchanges  []Exchange
		Empathetic bool
	}{voice{Persona: c.Persona, User: c.User}, c.Situation, c.Exchanges, c.Empathetic})
	if n := len(c.Exchanges); n > 0 {
		user = c.Exchanges[n-1].User
	}
	return system, user
}

// ImprovePrompt asks to fuse the reaction and the next prompt into one line.
func (b *Builder) ImprovePrompt(c RewriteContext) string {
	return b.render("improve", struct {
		voice
		Reaction   string
		NextPrompt string
	}{voice{Persona: c.Persona}, c.Reaction, c.NextPrompt})
}

// Letter asks for the closing letter as JSON.
func (b *Builder) Letter(c LetterContext) string {
	quizNum := c.QuizNum
	if quizNum == 0 {
		quizNum = b.quizNum
	}
	return b.render("letter", struct {
		voice
		Exchanges []Exchange
		Score     int
		QuizNum   int
		Tone      string
	}{voice{Persona: c.Persona, User: c.User, Lingering: true}, c.Exchanges, c.Score, quizNum, c.Tone.String()})
}

// WithDirective appends a follow-up instruction such as a length limit.
func WithDirective(instruction, directive string) string {
	if directive == "" {
		return instruction
	}
	return instruction + "\n" + directive + "\n"
}

func (b *Builder) render(name string, data any) string {
	var sb strings.Builder
	if err := b.tmpl.ExecuteTemplate(&sb, name, data); err != nil {
		panic(fmt.Errorf("render %s prompt: %w", name, err))
	}
	return sb.String()
}
