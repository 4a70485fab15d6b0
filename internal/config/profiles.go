package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Profile is a named set of sampling parameters for one kind of generation call.
type Profile struct {
	Name             string  `yaml:"-"`
	Temperature      float64 `yaml:"temperature" validate:"min=0,max=2"`
	TopP             float64 `yaml:"top_p" validate:"min=0,max=1"`
	MaxTokens        int     `yaml:"max_tokens" validate:"required,min=1,max=8192"`
	FrequencyPenalty float64 `yaml:"frequency_penalty" validate:"min=-2,max=2"`
	PresencePenalty  float64 `yaml:"presence_penalty" validate:"min=-2,max=2"`
	Seed             *int64  `yaml:"seed,omitempty"`
}

// Profiles holds one profile per call site.
type Profiles struct {
	Default   Profile `yaml:"default"`
	Situation Profile `yaml:"situation"`
	Reaction  Profile `yaml:"reaction"`
	Scoring   Profile `yaml:"scoring"`
	Feedback  Profile `yaml:"feedback"`
}

// DefaultProfiles returns the built-in parameter profiles.
func DefaultProfiles() Profiles {
	base := Profile{Temperature: 0.7, TopP: 0.8, MaxTokens: 1024, FrequencyPenalty: 0.1}

	p := Profiles{Default: base, Situation: base, Reaction: base, Scoring: base, Feedback: base}
	p.Situation.Temperature = 0.8
	p.Reaction.MaxTokens = 256
	p.Scoring.Temperature = 0.3
	p.Scoring.MaxTokens = 512
	p.name()
	return p
}

// LoadProfiles reads profiles from a YAML file. Profiles missing from the file
// keep their built-in values; a missing file yields the defaults.
func LoadProfiles(path string) (Profiles, error) {
	p := DefaultProfiles()
	if path == "" {
		return p, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return p, nil
	}
	if err != nil {
		return Profiles{}, fmt.Errorf("read profiles: %w", err)
	}

	if err := yaml.Unmarshal(data, &p); err != nil {
		return Profiles{}, fmt.Errorf("parse profiles: %w", err)
	}
	if err := validator.New().Struct(p); err != nil {
		return Profiles{}, fmt.Errorf("validate profiles: %w", err)
	}
	p.name()
	return p, nil
}

func (p *Profiles) name() {
	p.Default.Name = "default"
	p.Situation.Name = "situation"
	p.Reaction.Name = "reaction"
	p.Scoring.Name = "scoring"
	p.Feedback.Name = "feedback"
}
