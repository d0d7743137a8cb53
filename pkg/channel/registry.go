package channel

import (
	"fmt"
	"slices"
	"strings"
)

// Factory builds an input channel from its credentials. Credentials may be nil.
type Factory func(creds Credentials) (InputChannel, error)

// Registry maps channel names to factories.
type Registry map[string]Factory

// Names returns the registered channel names in sorted order.
func (r Registry) Names() []string {
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// FromCredentials instantiates the named channels in order.
func FromCredentials(names []string, creds CredentialsFile, registry Registry) ([]InputChannel, error) {
	channels := make([]InputChannel, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, raw := range names {
		name := strings.ToLower(strings.TrimSpace(raw))
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}

		factory, ok := registry[name]
		if !ok {
			return nil, fmt.Errorf("unknown channel %q (available: %s)", name, strings.Join(registry.Names(), ", "))
		}

		ch, err := factory(creds[name])
		if err != nil {
			return nil, fmt.Errorf("build channel %q: %w", name, err)
		}
		channels = append(channels, ch)
	}

	return channels, nil
}
