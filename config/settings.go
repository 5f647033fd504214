package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// CompletionAck selects the optimistic acknowledgement applied after a
// task completion is sent. Neither mode waits for the server.
type CompletionAck string

const (
	// AckRemove removes the completed task from the view after a short delay.
	AckRemove CompletionAck = "remove"
	// AckReload reloads the whole view after a short delay.
	AckReload CompletionAck = "reload"
)

// Features is the per-conversation feature set. The hosting mode picks
// the defaults; the settings file can override them.
type Features struct {
	ToolNotices      bool `yaml:"tool_notices"`
	SuggestedActions bool `yaml:"suggested_actions"`
	SingleTurn       bool `yaml:"single_turn"`
}

// Settings is the flowchat configuration file (settings.yaml).
type Settings struct {
	// Host is the Flowstate server, host[:port] without a scheme.
	Host string `yaml:"host"`
	// Secure selects wss:// over ws://.
	Secure bool `yaml:"secure"`

	CompletionAck CompletionAck `yaml:"completion_ack"`

	// Transcript enables the local SQLite conversation transcript.
	Transcript bool `yaml:"transcript"`

	// Placeholders rotate through the empty input field.
	Placeholders []string `yaml:"placeholders,omitempty"`

	// Overrides replaces a mode's built-in feature set when present.
	Overrides map[string]Features `yaml:"features,omitempty"`
}

// DefaultSettings returns the configuration used when no settings file
// exists yet.
func DefaultSettings() *Settings {
	return &Settings{
		Host:          "localhost:8000",
		Secure:        false,
		CompletionAck: AckRemove,
		Transcript:    true,
		Placeholders: []string{
			"Email Bob about potluck Sunday.",
			"What's on my plate today?",
			"Remind me to water the plants on Friday.",
			"Plan my week.",
			"Move the design review to Thursday.",
		},
	}
}

// FeaturesFor returns the feature set for a conversation mode. The
// learn-more page is the only context with tool notices, suggested
// actions, and the single-visible-turn policy.
func (s *Settings) FeaturesFor(mode string) Features {
	if f, ok := s.Overrides[mode]; ok {
		return f
	}
	switch mode {
	case "learn-more":
		return Features{ToolNotices: true, SuggestedActions: true, SingleTurn: true}
	default:
		return Features{}
	}
}

// LoadSettings loads settings.yaml, falling back to defaults when the
// file does not exist.
func LoadSettings() (*Settings, error) {
	path, err := GetSettingsFile()
	if err != nil {
		return nil, err
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return DefaultSettings(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}

	settings := DefaultSettings()
	if err := yaml.Unmarshal(data, settings); err != nil {
		return nil, fmt.Errorf("failed to parse settings: %w", err)
	}

	return settings, nil
}

// SaveSettings writes the settings file.
func SaveSettings(settings *Settings) error {
	path, err := GetSettingsFile()
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}

	return nil
}

// EnsureSettingsExist writes the default settings file on first run so
// users have something to edit.
func EnsureSettingsExist() error {
	path, err := GetSettingsFile()
	if err != nil {
		return err
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return SaveSettings(DefaultSettings())
	}

	return nil
}
