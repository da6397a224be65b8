package config

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"

	"github.com/koscakluka/astrape-core/core/llms"
)

const (
	// DefaultRole is used when no role keyword matches an utterance.
	DefaultRole  = "conversation"
	DefaultVoice = "en-IE-EmilyNeural"
)

// Registry answers questions about the configured models, their phrases and
// roles. It reads from an immutable Config.
type Registry struct {
	cfg    *Config
	logger *slog.Logger
}

type RegistryOption func(*Registry)

func WithLogger(logger *slog.Logger) RegistryOption {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func NewRegistry(cfg *Config, opts ...RegistryOption) *Registry {
	r := &Registry{cfg: cfg, logger: logger}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) Config() *Config { return r.cfg }

// EnabledModels returns the keys of enabled models in sorted order.
func (r *Registry) EnabledModels() []string {
	var keys []string
	for _, key := range slices.Sorted(maps.Keys(r.cfg.Models)) {
		if r.cfg.Models[key].Enabled {
			keys = append(keys, key)
		}
	}
	return keys
}

func (r *Registry) WakePhrases() ([]string, error) {
	return r.phrases("wake_phrases", func(m ModelSettings) Phrases { return m.WakePhrases }), nil
}

func (r *Registry) SleepPhrases() ([]string, error) {
	return r.phrases("sleep_phrases", func(m ModelSettings) Phrases { return m.SleepPhrases }), nil
}

func (r *Registry) EmergencyPhrases() ([]string, error) {
	return r.phrases("emergency_phrases", func(m ModelSettings) Phrases { return m.EmergencyPhrases }), nil
}

// ShutdownPhrases are system wide rather than per model.
func (r *Registry) ShutdownPhrases() ([]string, error) {
	return slices.Clone(r.cfg.System.ImmediateHaltPhrases), nil
}

func (r *Registry) phrases(kind string, get func(ModelSettings) Phrases) []string {
	var phrases []string
	for _, key := range r.EnabledModels() {
		phrases = append(phrases, get(r.cfg.Models[key])...)
	}
	r.logger.Debug("loaded phrases", "kind", kind, "count", len(phrases))
	return phrases
}

// AvailableRoles returns the roles served by at least one enabled model.
func (r *Registry) AvailableRoles() []string {
	roles := map[string]struct{}{}
	for _, key := range r.EnabledModels() {
		for role := range r.cfg.Models[key].Roles {
			roles[role] = struct{}{}
		}
	}
	return slices.Sorted(maps.Keys(roles))
}

// ClassifyIntent returns the first available role with a keyword contained
// in text, or DefaultRole.
func (r *Registry) ClassifyIntent(text string) string {
	text = strings.ToLower(text)
	for _, role := range r.AvailableRoles() {
		for _, keyword := range r.cfg.Roles[role].Keywords {
			keyword = strings.ToLower(strings.TrimSpace(keyword))
			if keyword != "" && strings.Contains(text, keyword) {
				return role
			}
		}
	}
	return DefaultRole
}

// ModelForRole returns the enabled model with the highest score for role.
// Ties go to the first key in sorted order; without any positive score the
// default model is used.
func (r *Registry) ModelForRole(role string) string {
	best, bestScore := r.cfg.System.DefaultModel, 0.0
	for _, key := range r.EnabledModels() {
		if score := r.cfg.Models[key].Roles[role]; score > bestScore {
			best, bestScore = key, score
		}
	}
	return best
}

// Model resolves the model stored under key.
func (r *Registry) Model(key string) (llms.ModelConfig, error) {
	settings, ok := r.cfg.Models[key]
	if !ok {
		return llms.ModelConfig{}, fmt.Errorf("%w: unknown model %q", ErrConfiguration, key)
	}

	model := llms.ModelConfig{
		Key:          key,
		Name:         settings.Name,
		Endpoint:     settings.Node,
		APIKey:       settings.APIKey,
		Model:        settings.Model,
		Temperature:  settings.Temperature,
		MaxTokens:    settings.MaxTokens,
		StreamOutput: settings.StreamOutput,
		Voice:        settings.Voice,
		Timeout:      settings.Timeout.Std(),
		SystemPrompt: settings.SystemPrompt,
	}.WithDefaults()
	if model.Voice == "" {
		model.Voice = DefaultVoice
	}
	if model.SystemPrompt == "" && model.Name != "" {
		model.SystemPrompt = SystemPrompt(model.Name)
	}
	return model, nil
}

func (r *Registry) DefaultModel() (llms.ModelConfig, error) {
	return r.Model(r.cfg.System.DefaultModel)
}

// SelectModel picks the model for an utterance. Without role routing this is
// always the default model.
func (r *Registry) SelectModel(text string) (llms.ModelConfig, error) {
	if !r.cfg.System.RouteByRole {
		return r.DefaultModel()
	}
	role := r.ClassifyIntent(text)
	key := r.ModelForRole(role)
	r.logger.Debug("routed utterance", "role", role, "model", key)
	return r.Model(key)
}

func SystemPrompt(name string) string {
	return fmt.Sprintf("You are %s, a specialized AI agent.", name)
}
