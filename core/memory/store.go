// Package memory keeps per-model conversation histories for the lifetime of
// the process.
package memory

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/jinzhu/copier"
	"github.com/koscakluka/astrape-core/core/llms"
)

// ErrMalformedTurn is returned when a turn is rejected instead of being
// recorded.
var ErrMalformedTurn = errors.New("malformed turn")

// errorPayloadPrefix marks provider error payloads that were stringified
// into content and must never reach a history.
const errorPayloadPrefix = "{'error':"

type Store struct {
	mu       sync.Mutex
	sessions map[string][]llms.Turn
	logger   *slog.Logger
}

type StoreOption func(*Store)

func WithLogger(logger *slog.Logger) StoreOption {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewStore creates an empty history for every model key.
func NewStore(models []string, opts ...StoreOption) *Store {
	s := &Store{sessions: make(map[string][]llms.Turn, len(models)), logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	for _, model := range models {
		s.sessions[model] = []llms.Turn{}
	}
	return s
}

// Append records a turn for model. Non-string content is stored in its
// string form. Content carrying a provider error payload and unknown roles
// are rejected and the turn is dropped.
func (s *Store) Append(model string, role llms.Role, content any) error {
	text, ok := content.(string)
	if !ok {
		text = fmt.Sprint(content)
		s.logger.Warn("coerced non-string turn content", "model", model, "role", string(role), "type", fmt.Sprintf("%T", content))
	}

	if !role.IsValid() {
		s.logger.Warn("rejected turn with unknown role", "model", model, "role", string(role))
		return fmt.Errorf("%w: unknown role %q", ErrMalformedTurn, role)
	}
	if strings.HasPrefix(strings.TrimSpace(text), errorPayloadPrefix) {
		s.logger.Warn("rejected turn carrying an error payload", "model", model, "role", string(role))
		return fmt.Errorf("%w: error payload in content", ErrMalformedTurn)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[model] = append(s.sessions[model], llms.Turn{Role: role, Content: text})
	return nil
}

func (s *Store) AppendTurn(model string, turn llms.Turn) error {
	return s.Append(model, turn.Role, turn.Content)
}

// History returns a copy of model's turns. Unknown models yield an empty
// history without being registered.
func (s *Store) History(model string) []llms.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()

	turns, ok := s.sessions[model]
	if !ok {
		return []llms.Turn{}
	}

	history := make([]llms.Turn, 0, len(turns))
	if err := copier.CopyWithOption(&history, &turns, copier.Option{DeepCopy: true}); err != nil {
		s.logger.Warn("failed to copy history, falling back to shallow copy", "model", model, "error", err)
		return slices.Clone(turns)
	}
	return history
}

// Clear empties the history of a single model.
func (s *Store) Clear(model string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[model] = []llms.Turn{}
}

// ClearAll empties every history while keeping the known model keys.
func (s *Store) ClearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for model := range s.sessions {
		s.sessions[model] = []llms.Turn{}
	}
}

// Models returns the known model keys in sorted order.
func (s *Store) Models() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	models := make([]string, 0, len(s.sessions))
	for model := range s.sessions {
		models = append(models, model)
	}
	slices.Sort(models)
	return models
}

func (s *Store) Len(model string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions[model])
}
