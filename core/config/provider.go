package config

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

type ProviderKind int

const (
	ProviderBuiltin ProviderKind = iota + 1
	ProviderHTTP
)

func (k ProviderKind) String() string {
	switch k {
	case ProviderBuiltin:
		return "builtin"
	case ProviderHTTP:
		return "http"
	default:
		return "unknown"
	}
}

// BuiltinProviders are the engine names that resolve to a bundled client.
var BuiltinProviders = []string{"deepgram"}

var urlPattern = regexp.MustCompile(`(?i)^(https?://)(([\da-z.-]+)\.([a-z.]{2,6})|(\d{1,3}\.){3}\d{1,3}|localhost)(:\d+)?(/[^\s]*)?$`)

// ProviderSpec is a provider reference resolved once at load time: either a
// builtin engine name or the URL of an HTTP endpoint.
type ProviderSpec struct {
	Kind ProviderKind
	Name string
	URL  string
}

// ParseProvider resolves a configured provider string.
func ParseProvider(s string) (ProviderSpec, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return ProviderSpec{}, fmt.Errorf("%w: empty provider", ErrConfiguration)
	case urlPattern.MatchString(s):
		return ProviderSpec{Kind: ProviderHTTP, Name: s, URL: s}, nil
	}

	name := strings.ToLower(s)
	if !slices.Contains(BuiltinProviders, name) {
		return ProviderSpec{}, fmt.Errorf("%w: unknown provider %q (want a URL or one of %s)",
			ErrConfiguration, s, strings.Join(BuiltinProviders, ", "))
	}
	return ProviderSpec{Kind: ProviderBuiltin, Name: name}, nil
}

func (p ProviderSpec) String() string {
	if p.Kind == ProviderHTTP {
		return p.URL
	}
	return p.Name
}

func (p *ProviderSpec) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("%w: line %d: provider must be a string", ErrConfiguration, value.Line)
	}
	parsed, err := ParseProvider(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*p = parsed
	return nil
}

func (p ProviderSpec) MarshalYAML() (any, error) {
	return p.String(), nil
}
