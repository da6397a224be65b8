package llms

import "time"

// ModelConfig describes how to reach one language model. It is treated as a
// read-only value.
type ModelConfig struct {
	// Key is the configuration key the model was registered under and the
	// key of its session memory.
	Key string
	// Name is the assistant persona backed by this model.
	Name         string
	Endpoint     string
	APIKey       string
	Model        string
	Temperature  float64
	MaxTokens    int
	StreamOutput bool
	Voice        string
	Timeout      time.Duration
	SystemPrompt string
}

const (
	DefaultModel       = "gpt-3.5-turbo"
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 150
)

// WithDefaults fills unset fields with the defaults used by the reference
// deployment.
func (m ModelConfig) WithDefaults() ModelConfig {
	if m.Model == "" {
		m.Model = DefaultModel
	}
	if m.Temperature == 0 {
		m.Temperature = DefaultTemperature
	}
	if m.MaxTokens == 0 {
		m.MaxTokens = DefaultMaxTokens
	}
	return m
}
