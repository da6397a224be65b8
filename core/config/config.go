// Package config loads the assistant configuration: YAML defaults embedded
// in the binary, overridden by a user file, with ${VAR} references expanded
// from the environment.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"

	"github.com/joho/godotenv"
	"github.com/koscakluka/astrape-core/core/invocation"
	"gopkg.in/yaml.v3"
)

// ErrConfiguration marks a configuration that cannot be used.
var ErrConfiguration = errors.New("configuration error")

//go:embed defaults.yaml
var defaults []byte

type Config struct {
	System       SystemSettings           `yaml:"system"`
	SpeechToText ServiceSettings          `yaml:"speech_to_text"`
	TextToSpeech ServiceSettings          `yaml:"text_to_speech"`
	Audio        AudioSettings            `yaml:"audio"`
	Models       map[string]ModelSettings `yaml:"models"`
	Roles        map[string]RoleSettings  `yaml:"roles"`
}

type SystemSettings struct {
	Debug                  bool     `yaml:"debug"`
	DefaultModel           string   `yaml:"default_model"`
	MicIngestTimeout       Duration `yaml:"mic_ingest_timeout"`
	PhraseTimeout          Duration `yaml:"phrase_timeout"`
	AssistantRetryAttempts int      `yaml:"assistant_retry_attempts" jsonschema:"description=Streaming attempts per reply; 0 retries until the stream succeeds"`
	AssistantRetryDelay    Duration `yaml:"assistant_retry_delay"`
	ImmediateHaltPhrases   Phrases  `yaml:"immediate_halt_phrases"`
	TempAudioDir           string   `yaml:"temp_audio_dir"`
	TempAudioMaxAge        Duration `yaml:"temp_audio_max_age"`
	RouteByRole            bool     `yaml:"route_by_role"`
	RunOnce                bool     `yaml:"run_once"`
}

// ServiceSettings configures a speech service and the strategy used to call
// its providers.
type ServiceSettings struct {
	Mode      invocation.Policy `yaml:"mode"`
	Providers []ProviderSpec    `yaml:"providers"`
	// PrimaryService and SecondaryService are the older two-slot form of
	// Providers and are only read when Providers is empty.
	PrimaryService   string   `yaml:"primary_service,omitempty"`
	SecondaryService string   `yaml:"secondary_service,omitempty"`
	RetryAttempts    int      `yaml:"retry_attempts"`
	RetryDelay       Duration `yaml:"retry_delay"`
	Timeout          Duration `yaml:"timeout"`
	APIKey           string   `yaml:"api_key"`
	Model            string   `yaml:"model"`
}

type AudioSettings struct {
	Backend          string   `yaml:"backend" jsonschema:"enum=miniaudio,enum=portaudio"`
	SampleRate       int      `yaml:"sample_rate"`
	SilenceThreshold float64  `yaml:"silence_threshold"`
	SilenceDuration  Duration `yaml:"silence_duration"`
}

type ModelSettings struct {
	Enabled          bool               `yaml:"enabled"`
	Name             string             `yaml:"name"`
	Node             string             `yaml:"node"`
	APIKey           string             `yaml:"api_key"`
	Model            string             `yaml:"model"`
	Temperature      float64            `yaml:"temperature"`
	MaxTokens        int                `yaml:"max_tokens"`
	StreamOutput     bool               `yaml:"stream_output"`
	Voice            string             `yaml:"voice"`
	Timeout          Duration           `yaml:"timeout"`
	SystemPrompt     string             `yaml:"system_prompt"`
	WakePhrases      Phrases            `yaml:"wake_phrases"`
	SleepPhrases     Phrases            `yaml:"sleep_phrases"`
	EmergencyPhrases Phrases            `yaml:"emergency_phrases"`
	Roles            map[string]float64 `yaml:"roles"`
}

type RoleSettings struct {
	Keywords []string `yaml:"key_words"`
}

// Phrases accepts a single string or a list of strings.
type Phrases []string

func (p *Phrases) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		if value.Tag == "!!null" {
			*p = nil
			return nil
		}
		*p = Phrases{value.Value}
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := value.Decode(&list); err != nil {
			return err
		}
		*p = list
		return nil
	default:
		return fmt.Errorf("%w: line %d: phrases must be a string or a list", ErrConfiguration, value.Line)
	}
}

type loadOptions struct {
	envFiles []string
	lookup   func(string) (string, bool)
}

type LoadOption func(*loadOptions)

// WithEnvFiles loads the given dotenv files before expanding references.
// Missing files are ignored.
func WithEnvFiles(paths ...string) LoadOption {
	return func(o *loadOptions) {
		o.envFiles = append(o.envFiles, paths...)
	}
}

// WithLookup replaces os.LookupEnv for ${VAR} expansion.
func WithLookup(lookup func(string) (string, bool)) LoadOption {
	return func(o *loadOptions) {
		o.lookup = lookup
	}
}

// Load reads the user configuration at path over the embedded defaults. A
// missing user file is not an error; the defaults are used on their own.
func Load(path string, opts ...LoadOption) (*Config, error) {
	var user []byte
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			logger.Warn("no user config found, using defaults", "path", path)
		case err != nil:
			return nil, fmt.Errorf("failed to read config: %w", err)
		default:
			user = data
			logger.Debug("loaded user config", "path", path)
		}
	}
	return Parse(user, opts...)
}

// Parse merges user over the embedded defaults.
func Parse(user []byte, opts ...LoadOption) (*Config, error) {
	options := loadOptions{lookup: os.LookupEnv}
	for _, opt := range opts {
		opt(&options)
	}
	for _, envFile := range options.envFiles {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load env file %s: %w", envFile, err)
		}
	}

	var cfg Config
	if err := yaml.Unmarshal(expand(defaults, options.lookup), &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode default config: %w", err)
	}
	if len(user) > 0 {
		// User models replace the sample model entirely. Other maps are
		// merged key by key, scalars and lists are replaced.
		defaultModels := cfg.Models
		cfg.Models = nil
		if err := yaml.Unmarshal(expand(user, options.lookup), &cfg); err != nil {
			return nil, fmt.Errorf("failed to decode config: %w", err)
		}
		if cfg.Models == nil {
			cfg.Models = defaultModels
		}
	}

	cfg.applyLegacyProviders()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger.Info("configuration loaded", "models", len(cfg.Models), "stt_mode", cfg.SpeechToText.Mode.String(), "tts_mode", cfg.TextToSpeech.Mode.String())
	return &cfg, nil
}

var envReference = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

func expand(data []byte, lookup func(string) (string, bool)) []byte {
	return envReference.ReplaceAllFunc(data, func(match []byte) []byte {
		name := envReference.FindSubmatch(match)[1]
		value, _ := lookup(string(name))
		return []byte(value)
	})
}

func (c *Config) applyLegacyProviders() {
	for _, service := range []*ServiceSettings{&c.SpeechToText, &c.TextToSpeech} {
		if len(service.Providers) > 0 {
			continue
		}
		for _, name := range []string{service.PrimaryService, service.SecondaryService} {
			if name == "" {
				continue
			}
			spec, err := ParseProvider(name)
			if err != nil {
				logger.Warn("ignoring unknown legacy provider", "provider", name, "error", err)
				continue
			}
			service.Providers = append(service.Providers, spec)
		}
	}
}

// Validate reports the first setting that cannot be used.
func (c *Config) Validate() error {
	if !c.SpeechToText.Mode.IsValid() {
		return fmt.Errorf("%w: speech_to_text.mode is not set", ErrConfiguration)
	}
	if !c.TextToSpeech.Mode.IsValid() {
		return fmt.Errorf("%w: text_to_speech.mode is not set", ErrConfiguration)
	}
	if c.System.AssistantRetryAttempts < 0 {
		return fmt.Errorf("%w: system.assistant_retry_attempts must not be negative", ErrConfiguration)
	}
	if len(c.Models) > 0 {
		if _, ok := c.Models[c.System.DefaultModel]; !ok {
			return fmt.Errorf("%w: default model %q is not configured", ErrConfiguration, c.System.DefaultModel)
		}
	}
	switch c.Audio.Backend {
	case "", "miniaudio", "portaudio":
	default:
		return fmt.Errorf("%w: unknown audio backend %q", ErrConfiguration, c.Audio.Backend)
	}
	return nil
}
