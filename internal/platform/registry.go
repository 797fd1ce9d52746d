package platform

import (
	"fmt"
	"strings"

	"github.com/smswithoutborders/publisher/internal/status"
)

// ServiceType names the kind of outbound action a platform performs.
type ServiceType string

// Protocol names the credential protocol a platform speaks.
type Protocol string

const (
	ServiceEmail ServiceType = "email"

	ProtocolOAuth2 Protocol = "oauth2"
)

// Descriptor holds the static metadata for one supported platform. Descriptors
// are immutable after the registry is built.
type Descriptor struct {
	Name      string
	ShortCode byte
	Service   ServiceType
	Protocol  Protocol
}

// Registry is the fixed set of supported platforms, keyed by canonical name
// and reverse-indexed by shortcode.
type Registry struct {
	byName  map[string]Descriptor
	ordered []Descriptor
}

// NewRegistry validates the descriptor set. Shortcodes must be unique.
func NewRegistry(descriptors ...Descriptor) (*Registry, error) {
	byName := make(map[string]Descriptor, len(descriptors))
	byCode := make(map[byte]string, len(descriptors))
	ordered := make([]Descriptor, 0, len(descriptors))

	for _, d := range descriptors {
		name := strings.ToLower(strings.TrimSpace(d.Name))
		if name == "" {
			return nil, fmt.Errorf("platform descriptor without a name")
		}
		if d.ShortCode == 0 {
			return nil, fmt.Errorf("platform %q has no shortcode", name)
		}
		if _, exists := byName[name]; exists {
			return nil, fmt.Errorf("duplicate platform %q", name)
		}
		if other, exists := byCode[d.ShortCode]; exists {
			return nil, fmt.Errorf("shortcode %q claimed by both %q and %q", d.ShortCode, other, name)
		}
		d.Name = name
		byName[name] = d
		byCode[d.ShortCode] = name
		ordered = append(ordered, d)
	}

	return &Registry{byName: byName, ordered: ordered}, nil
}

// Default returns the registry of platforms this deployment supports.
func Default() *Registry {
	registry, err := NewRegistry(
		Descriptor{Name: "gmail", ShortCode: 'g', Service: ServiceEmail, Protocol: ProtocolOAuth2},
	)
	if err != nil {
		panic(err)
	}
	return registry
}

// Descriptors returns the platforms in registration order.
func (r *Registry) Descriptors() []Descriptor {
	out := make([]Descriptor, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// ResolveShortCode looks up the platform tagged by a relay payload. A miss
// enumerates every valid shortcode so client mistakes are diagnosable.
func (r *Registry) ResolveShortCode(code byte) (Descriptor, *status.Error) {
	for _, d := range r.ordered {
		if d.ShortCode == code {
			return d, nil
		}
	}

	available := make([]string, 0, len(r.ordered))
	for _, d := range r.ordered {
		available = append(available, fmt.Sprintf("'%c' for %s", d.ShortCode, d.Name))
	}
	return Descriptor{}, status.Errorf(
		status.InvalidArgument,
		"No platform found for shortcode '%c'. Available shortcodes: %s",
		code, strings.Join(available, ", "),
	)
}

// CheckSupported fails when the platform is absent from the registry or its
// registered protocol differs from the requested one. It runs before any
// downstream RPC so unsupported requests fail fast.
func (r *Registry) CheckSupported(name string, protocol Protocol) *status.Error {
	d, ok := r.byName[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return status.Errorf(
			status.Unimplemented,
			"The platform '%s' is currently not supported. Please contact the developers for more information on when this platform will be implemented.",
			name,
		)
	}
	if d.Protocol != protocol {
		return status.Errorf(
			status.Unimplemented,
			"The protocol '%s' for platform '%s' is currently not supported. Expected protocol: '%s'.",
			protocol, name, d.Protocol,
		)
	}
	return nil
}
