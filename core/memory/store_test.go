package memory

import (
	"errors"
	"io"
	"log/slog"
	"slices"
	"testing"

	"github.com/koscakluka/astrape-core/core/llms"
)

func newTestStore(models ...string) *Store {
	return NewStore(models, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
}

func TestNewStoreCreatesEmptyHistories(t *testing.T) {
	store := newTestStore("model_1", "model_2")
	if !slices.Equal(store.Models(), []string{"model_1", "model_2"}) {
		t.Fatalf("unexpected models %v", store.Models())
	}
	for _, model := range store.Models() {
		if store.Len(model) != 0 {
			t.Fatalf("expected empty history for %s", model)
		}
	}
}

func TestAppendKeepsCallOrder(t *testing.T) {
	store := newTestStore("model_1")
	_ = store.Append("model_1", llms.RoleUser, "hello")
	_ = store.Append("model_1", llms.RoleAssistant, "hi there")

	want := []llms.Turn{llms.UserTurn("hello"), llms.AssistantTurn("hi there")}
	if got := store.History("model_1"); !slices.Equal(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestAppendCoercesNonStringContent(t *testing.T) {
	store := newTestStore("model_1")

	if err := store.Append("model_1", llms.RoleTool, 42); err != nil {
		t.Fatalf("expected coercion, got %v", err)
	}
	if err := store.Append("model_1", llms.RoleTool, map[string]int{"a": 1}); err != nil {
		t.Fatalf("expected coercion, got %v", err)
	}

	history := store.History("model_1")
	if history[0].Content != "42" || history[1].Content != "map[a:1]" {
		t.Fatalf("unexpected coerced content %v", history)
	}
}

func TestAppendRejectsMalformedTurns(t *testing.T) {
	store := newTestStore("model_1")

	err := store.Append("model_1", llms.RoleAssistant, "{'error': {'message': 'rate limited'}}")
	if !errors.Is(err, ErrMalformedTurn) {
		t.Fatalf("expected ErrMalformedTurn, got %v", err)
	}
	err = store.Append("model_1", llms.Role("narrator"), "once upon a time")
	if !errors.Is(err, ErrMalformedTurn) {
		t.Fatalf("expected ErrMalformedTurn for unknown role, got %v", err)
	}
	if store.Len("model_1") != 0 {
		t.Fatalf("expected rejected turns to be dropped")
	}
}

func TestAppendToUnseenModelCreatesIt(t *testing.T) {
	store := newTestStore("model_1")
	_ = store.Append("model_9", llms.RoleUser, "hello")

	if store.Len("model_9") != 1 {
		t.Fatalf("expected lazily created history")
	}
}

func TestHistoryIsACopy(t *testing.T) {
	store := newTestStore("model_1")
	_ = store.Append("model_1", llms.RoleUser, "hello")

	history := store.History("model_1")
	history[0].Content = "mutated"

	if got := store.History("model_1"); len(got) != 1 || got[0].Content != "hello" {
		t.Fatalf("expected store to be unaffected by caller mutations, got %v", got)
	}
	if got := store.History("unknown"); len(got) != 0 {
		t.Fatalf("expected empty history for unknown model")
	}
	if slices.Contains(store.Models(), "unknown") {
		t.Fatalf("reading history must not register a model")
	}
}

func TestClearOnlyAffectsOneModel(t *testing.T) {
	store := newTestStore("model_1", "model_2")
	_ = store.Append("model_1", llms.RoleUser, "one")
	_ = store.Append("model_2", llms.RoleUser, "two")

	store.Clear("model_1")
	if store.Len("model_1") != 0 {
		t.Fatalf("expected model_1 to be cleared")
	}
	if store.Len("model_2") != 1 {
		t.Fatalf("expected model_2 to be untouched")
	}

	store.ClearAll()
	if store.Len("model_2") != 0 {
		t.Fatalf("expected every model to be cleared")
	}
	if len(store.Models()) != 2 {
		t.Fatalf("expected model keys to survive ClearAll")
	}
}
