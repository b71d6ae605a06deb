package meeting

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"llm-meeting/config"
	"llm-meeting/internal/llm"
)

// ErrInvalidSettings is returned for settings a meeting cannot run with.
var ErrInvalidSettings = errors.New("invalid meeting settings")

// Settings describe one meeting.
type Settings struct {
	Participants []llm.ModelConfig `json:"participant_models" yaml:"participants"`
	Moderator    llm.ModelConfig   `json:"moderator_model" yaml:"moderator"`
	Rounds       int               `json:"rounds_per_ai" yaml:"rounds"`
	Topic        string            `json:"user_query" yaml:"topic"`
	// Document is an optional file path or URL of reference material.
	Document string `json:"document_path,omitempty" yaml:"document"`
}

// ApplyDefaults fills unset fields from cfg.
func (s *Settings) ApplyDefaults(cfg *config.Config) {
	if s.Rounds == 0 {
		s.Rounds = cfg.DefaultRounds
	}
}

// Validate checks participant count, rounds, topic and model names.
func (s Settings) Validate() error {
	var errs []error
	switch n := len(s.Participants); {
	case n == 0:
		errs = append(errs, errors.New("at least one participant is required"))
	case n > config.MaxParticipants:
		errs = append(errs, fmt.Errorf("at most %d participants are allowed, got %d", config.MaxParticipants, n))
	}
	for i, p := range s.Participants {
		if strings.TrimSpace(p.Name) == "" {
			errs = append(errs, fmt.Errorf("participant %d has no model name", i+1))
		}
	}
	if strings.TrimSpace(s.Moderator.Name) == "" {
		errs = append(errs, errors.New("moderator has no model name"))
	}
	if s.Rounds < config.MinRounds || s.Rounds > config.MaxRounds {
		errs = append(errs, fmt.Errorf("rounds must be between %d and %d, got %d", config.MinRounds, config.MaxRounds, s.Rounds))
	}
	if strings.TrimSpace(s.Topic) == "" {
		errs = append(errs, errors.New("topic is empty"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSettings, err)
	}
	return nil
}

// clone returns a deep copy so results do not alias caller slices.
func (s Settings) clone() Settings {
	c := s
	c.Participants = append([]llm.ModelConfig(nil), s.Participants...)
	return c
}

// LoadSettingsFile reads meeting settings from a YAML file. Unknown keys
// are rejected.
func LoadSettingsFile(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read settings file: %w", err)
	}

	var s Settings
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return Settings{}, fmt.Errorf("%w: %s: %w", ErrInvalidSettings, path, err)
	}
	return s, nil
}
