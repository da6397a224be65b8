package invocation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
)

// Provider is anything that can be invoked by a Strategy. The name is used for
// logging and error reporting only.
type Provider interface {
	Name() string
}

// Operation performs the actual call against a single provider.
type Operation[P Provider, T any] func(ctx context.Context, provider P) (T, error)

// Outcome is the explicit result of one provider call.
type Outcome[T any] struct {
	Payload T
	Err     error
}

func Success[T any](payload T) Outcome[T] { return Outcome[T]{Payload: payload} }

func Failure[T any](err error) Outcome[T] { return Outcome[T]{Err: err} }

func (o Outcome[T]) OK() bool { return o.Err == nil }

// Result is a successful strategy execution.
type Result[T any] struct {
	Payload  T
	Provider string
	Attempts []Attempt
}

// Strategy bundles the policy with the settings shared by every call made
// through it.
type Strategy struct {
	policy  Policy
	timeout time.Duration
	name    string
	logger  *slog.Logger
}

type StrategyOption func(*Strategy)

func WithTimeout(timeout time.Duration) StrategyOption {
	return func(s *Strategy) {
		s.timeout = timeout
	}
}

func WithLogger(logger *slog.Logger) StrategyOption {
	return func(s *Strategy) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithOperationName labels logs and spans, e.g. "speech-to-text".
func WithOperationName(name string) StrategyOption {
	return func(s *Strategy) {
		s.name = name
	}
}

func NewStrategy(policy Policy, opts ...StrategyOption) Strategy {
	s := Strategy{policy: policy, name: "invocation", logger: logger}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

func (s Strategy) Policy() Policy         { return s.policy }
func (s Strategy) Timeout() time.Duration { return s.timeout }

type callOptions[T any] struct {
	validate func(T) error
	discard  func(T)
}

type CallOption[T any] func(*callOptions[T])

// WithValidator replaces the default validator, which rejects zero values and
// blank strings.
func WithValidator[T any](validate func(T) error) CallOption[T] {
	return func(o *callOptions[T]) {
		o.validate = validate
	}
}

// WithDiscard is called with every valid payload that was not selected, for
// example a Zero-Trust racer that finished after the winner.
func WithDiscard[T any](discard func(T)) CallOption[T] {
	return func(o *callOptions[T]) {
		o.discard = discard
	}
}

var attemptCounter = newAttemptCounter()

func newAttemptCounter() metric.Int64Counter {
	counter, err := meter.Int64Counter("astrape.invocation.attempts",
		metric.WithDescription("Provider calls made by invocation strategies"))
	if err != nil {
		return noop.Int64Counter{}
	}
	return counter
}

// Invoke runs op against providers following the strategy's policy.
func Invoke[P Provider, T any](ctx context.Context, s Strategy, providers []P, op Operation[P, T], opts ...CallOption[T]) (Result[T], error) {
	c := call[P, T]{strategy: s, op: op, options: callOptions[T]{validate: defaultValidator[T]}}
	for _, opt := range opts {
		opt(&c.options)
	}

	ctx, span := tracer.Start(ctx, "invoke "+s.name, trace.WithAttributes(
		attribute.String("invocation.policy", s.policy.String()),
		attribute.Int("invocation.providers", len(providers)),
	))
	defer span.End()

	var (
		result Result[T]
		err    error
	)
	switch {
	case len(providers) == 0:
		err = ErrNoProviders
	case s.policy == PolicyTrusted:
		result, err = c.trusted(ctx, providers[0])
	case s.policy == PolicyReliable:
		result, err = c.reliable(ctx, providers)
	case s.policy == PolicyZeroTrust:
		result, err = c.zeroTrust(ctx, providers)
	default:
		err = fmt.Errorf("unsupported invocation policy %s", s.policy)
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if OnlyInvalidPayloads(err) {
			s.logger.InfoContext(ctx, "invocation produced no valid payload", "operation", s.name, "policy", s.policy.String(), "error", err)
		} else {
			s.logger.ErrorContext(ctx, "invocation failed", "operation", s.name, "policy", s.policy.String(), "error", err)
		}
		return result, err
	}
	span.SetAttributes(attribute.String("invocation.provider", result.Provider))
	return result, nil
}

type call[P Provider, T any] struct {
	strategy Strategy
	op       Operation[P, T]
	options  callOptions[T]
}

func (c *call[P, T]) trusted(ctx context.Context, provider P) (Result[T], error) {
	outcome, elapsed := c.run(ctx, provider)
	outcome = c.check(provider.Name(), outcome)
	attempt := c.record(ctx, provider.Name(), 1, elapsed, outcome.Err)
	if !outcome.OK() {
		return Result[T]{Attempts: []Attempt{attempt}}, outcome.Err
	}
	return Result[T]{Payload: outcome.Payload, Provider: provider.Name(), Attempts: []Attempt{attempt}}, nil
}

func (c *call[P, T]) reliable(ctx context.Context, providers []P) (Result[T], error) {
	attempts := make([]Attempt, 0, len(providers))
	for i, provider := range providers {
		if err := ctx.Err(); err != nil {
			return Result[T]{Attempts: attempts}, err
		}

		outcome, elapsed := c.run(ctx, provider)
		outcome = c.check(provider.Name(), outcome)
		attempts = append(attempts, c.record(ctx, provider.Name(), i+1, elapsed, outcome.Err))
		if outcome.OK() {
			return Result[T]{Payload: outcome.Payload, Provider: provider.Name(), Attempts: attempts}, nil
		}
	}
	return Result[T]{Attempts: attempts}, &ExhaustedError{Policy: PolicyReliable, Attempts: attempts}
}

type arrival[T any] struct {
	index   int
	outcome Outcome[T]
	elapsed time.Duration
}

func (c *call[P, T]) zeroTrust(ctx context.Context, providers []P) (Result[T], error) {
	raceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Buffered so racers never block once the race has been decided.
	arrivals := make(chan arrival[T], len(providers))
	for i, provider := range providers {
		go func() {
			outcome, elapsed := c.run(raceCtx, provider)
			arrivals <- arrival[T]{index: i, outcome: outcome, elapsed: elapsed}
		}()
	}

	attempts := make([]Attempt, 0, len(providers))
	pending := len(providers)
	for pending > 0 {
		var batch []arrival[T]
		select {
		case a := <-arrivals:
			batch = append(batch, a)
		case <-ctx.Done():
			go c.discardRemaining(arrivals, pending)
			return Result[T]{Attempts: attempts}, ctx.Err()
		}
	drain:
		for {
			select {
			case a := <-arrivals:
				batch = append(batch, a)
			default:
				break drain
			}
		}
		pending -= len(batch)
		slices.SortFunc(batch, func(a, b arrival[T]) int { return a.index - b.index })

		for i, a := range batch {
			name := providers[a.index].Name()
			outcome := c.check(name, a.outcome)
			attempts = append(attempts, c.record(ctx, name, a.index+1, a.elapsed, outcome.Err))
			if !outcome.OK() {
				continue
			}

			cancel()
			for _, late := range batch[i+1:] {
				attempts = append(attempts, Attempt{Provider: providers[late.index].Name(), Number: late.index + 1, Elapsed: late.elapsed, Discarded: true})
				c.discardOutcome(providers[late.index].Name(), late.outcome)
			}
			if pending > 0 {
				go c.discardRemaining(arrivals, pending)
			}
			return Result[T]{Payload: outcome.Payload, Provider: name, Attempts: attempts}, nil
		}
	}

	return Result[T]{Attempts: attempts}, &ExhaustedError{Policy: PolicyZeroTrust, Attempts: attempts}
}

// run executes a single attempt under the strategy timeout. A provider that
// ignores its context is abandoned when the deadline passes and its eventual
// result is discarded.
func (c *call[P, T]) run(ctx context.Context, provider P) (Outcome[T], time.Duration) {
	if c.strategy.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.strategy.timeout)
		defer cancel()
	}

	start := time.Now()
	done := make(chan Outcome[T], 1)
	go func() {
		done <- c.safeOp(ctx, provider)
	}()

	select {
	case outcome := <-done:
		return outcome, time.Since(start)
	case <-ctx.Done():
		go func() {
			c.discardOutcome(provider.Name(), <-done)
		}()
		return Failure[T](fmt.Errorf("attempt abandoned: %w", ctx.Err())), time.Since(start)
	}
}

func (c *call[P, T]) safeOp(ctx context.Context, provider P) (outcome Outcome[T]) {
	defer func() {
		if recovered := recover(); recovered != nil {
			outcome = Failure[T](fmt.Errorf("provider panicked: %v", recovered))
		}
	}()

	payload, err := c.op(ctx, provider)
	if err != nil {
		return Failure[T](err)
	}
	return Success(payload)
}

// check classifies a raw outcome into the error taxonomy and validates the
// payload.
func (c *call[P, T]) check(name string, outcome Outcome[T]) Outcome[T] {
	if outcome.Err != nil {
		if errors.Is(outcome.Err, ErrInvalidPayload) {
			return Failure[T](&InvocationError{Provider: name, Cause: outcome.Err})
		}
		return Failure[T](&InvocationError{Provider: name, Cause: fmt.Errorf("%w: %w", ErrTransientProviderFailure, outcome.Err)})
	}
	if err := c.options.validate(outcome.Payload); err != nil {
		if !errors.Is(err, ErrInvalidPayload) {
			err = fmt.Errorf("%w: %w", ErrInvalidPayload, err)
		}
		c.discardOutcome(name, outcome)
		return Failure[T](&InvocationError{Provider: name, Cause: err})
	}
	return outcome
}

func (c *call[P, T]) record(ctx context.Context, provider string, number int, elapsed time.Duration, err error) Attempt {
	attempt := Attempt{Provider: provider, Number: number, Elapsed: elapsed, Err: err}

	outcome := "success"
	if err != nil {
		outcome = "failure"
		c.strategy.logger.WarnContext(ctx, "provider attempt failed",
			"operation", c.strategy.name,
			"policy", c.strategy.policy.String(),
			"provider", provider,
			"attempt", number,
			"elapsed", elapsed,
			"error", err)
	} else {
		c.strategy.logger.InfoContext(ctx, "provider attempt succeeded",
			"operation", c.strategy.name,
			"policy", c.strategy.policy.String(),
			"provider", provider,
			"attempt", number,
			"elapsed", elapsed)
	}

	attemptCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", c.strategy.name),
		attribute.String("policy", c.strategy.policy.String()),
		attribute.String("provider", provider),
		attribute.String("outcome", outcome),
	))
	trace.SpanFromContext(ctx).AddEvent("attempt", trace.WithAttributes(
		attribute.String("provider", provider),
		attribute.Int("attempt", number),
		attribute.String("outcome", outcome),
	))
	return attempt
}

func (c *call[P, T]) discardRemaining(arrivals <-chan arrival[T], pending int) {
	for range pending {
		a := <-arrivals
		c.discardOutcome("", a.outcome)
	}
}

func (c *call[P, T]) discardOutcome(provider string, outcome Outcome[T]) {
	if outcome.Err != nil || c.options.discard == nil {
		return
	}
	c.strategy.logger.Debug("discarding unused provider result", "operation", c.strategy.name, "provider", provider)
	c.options.discard(outcome.Payload)
}

func defaultValidator[T any](payload T) error {
	if s, ok := any(payload).(string); ok {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%w: empty string", ErrInvalidPayload)
		}
		return nil
	}
	v := reflect.ValueOf(&payload).Elem()
	if v.IsZero() {
		return fmt.Errorf("%w: zero value", ErrInvalidPayload)
	}
	return nil
}
