package invocation

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrTransientProviderFailure marks a provider call that failed or timed
	// out. Such failures are eligible for retry, failover and racing.
	ErrTransientProviderFailure = errors.New("transient provider failure")
	// ErrInvalidPayload marks a provider call that returned an empty or
	// malformed result.
	ErrInvalidPayload = errors.New("invalid payload")
	// ErrNoProviders is returned when a strategy is asked to run without any
	// providers configured.
	ErrNoProviders = errors.New("no providers configured")
)

// InvocationError is the failure of a single provider attempt.
type InvocationError struct {
	Provider string
	Cause    error
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("provider %s: %v", e.Provider, e.Cause)
}

func (e *InvocationError) Unwrap() error {
	return e.Cause
}

// Attempt records a single provider call made while executing a strategy.
type Attempt struct {
	Provider string
	Number   int
	Elapsed  time.Duration
	Err      error
	// Discarded is set for Zero-Trust racers whose result arrived after the
	// race was decided.
	Discarded bool
}

func (a Attempt) Failed() bool {
	return a.Err != nil
}

// ExhaustedError is returned once every configured attempt has failed.
type ExhaustedError struct {
	Policy   Policy
	Attempts []Attempt
}

func (e *ExhaustedError) Error() string {
	causes := make([]string, 0, len(e.Attempts))
	for _, attempt := range e.Attempts {
		if attempt.Err != nil {
			causes = append(causes, attempt.Err.Error())
		}
	}
	return fmt.Sprintf("all %d %s attempts failed: %s", len(e.Attempts), e.Policy, strings.Join(causes, "; "))
}

func (e *ExhaustedError) Unwrap() []error {
	errs := make([]error, 0, len(e.Attempts))
	for _, attempt := range e.Attempts {
		if attempt.Err != nil {
			errs = append(errs, attempt.Err)
		}
	}
	return errs
}

// OnlyInvalidPayloads reports whether err failed solely because providers
// answered with empty or rejected payloads, with no provider failing
// outright.
func OnlyInvalidPayloads(err error) bool {
	var exhausted *ExhaustedError
	if errors.As(err, &exhausted) {
		failed := 0
		for _, attempt := range exhausted.Attempts {
			if attempt.Err == nil {
				continue
			}
			failed++
			if !isInvalidPayload(attempt.Err) {
				return false
			}
		}
		return failed > 0
	}
	return isInvalidPayload(err)
}

func isInvalidPayload(err error) bool {
	return errors.Is(err, ErrInvalidPayload) && !errors.Is(err, ErrTransientProviderFailure)
}
