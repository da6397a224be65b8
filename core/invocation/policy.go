package invocation

import (
	"fmt"
	"strings"
)

// Policy selects how a set of providers is invoked.
type Policy int

const (
	// PolicyTrusted calls the first provider exactly once.
	PolicyTrusted Policy = iota + 1
	// PolicyReliable calls providers in order until one succeeds.
	PolicyReliable
	// PolicyZeroTrust races all providers and keeps the first valid result.
	PolicyZeroTrust
)

func (p Policy) String() string {
	switch p {
	case PolicyTrusted:
		return "trusted"
	case PolicyReliable:
		return "reliable"
	case PolicyZeroTrust:
		return "zero_trust"
	}
	return fmt.Sprintf("policy(%d)", int(p))
}

func (p Policy) IsValid() bool {
	return p >= PolicyTrusted && p <= PolicyZeroTrust
}

// ParsePolicy accepts policy names as well as the numeric modes used by older
// configuration files (1 trusted, 2 reliable, 3 zero-trust).
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trusted", "1":
		return PolicyTrusted, nil
	case "reliable", "failover", "2":
		return PolicyReliable, nil
	case "zero_trust", "zero-trust", "zerotrust", "race", "3":
		return PolicyZeroTrust, nil
	}
	return 0, fmt.Errorf("unknown invocation policy %q", s)
}

func (p Policy) MarshalText() ([]byte, error) {
	if !p.IsValid() {
		return nil, fmt.Errorf("invalid invocation policy %d", int(p))
	}
	return []byte(p.String()), nil
}

func (p *Policy) UnmarshalText(text []byte) error {
	parsed, err := ParsePolicy(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
