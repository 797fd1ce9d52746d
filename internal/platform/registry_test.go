package platform

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/smswithoutborders/publisher/internal/status"
)

func TestRegistry_ResolveShortCode(t *testing.T) {
	registry := Default()

	for _, d := range registry.Descriptors() {
		resolved, err := registry.ResolveShortCode(d.ShortCode)
		require.Nil(t, err)
		require.Equal(t, d.Name, resolved.Name)
		require.Equal(t, d.Service, resolved.Service)
		require.Equal(t, d.Protocol, resolved.Protocol)
	}
}

func TestRegistry_ResolveShortCode_Miss(t *testing.T) {
	registry := Default()

	_, err := registry.ResolveShortCode('z')
	require.NotNil(t, err)
	require.Equal(t, status.InvalidArgument, err.Code)
	require.Contains(t, err.Message, "No platform found for shortcode 'z'")
	require.Contains(t, err.Message, "'g' for gmail")
}

func TestRegistry_CheckSupported(t *testing.T) {
	registry := Default()

	require.Nil(t, registry.CheckSupported("gmail", ProtocolOAuth2))
	require.Nil(t, registry.CheckSupported("  GMAIL  ", ProtocolOAuth2))

	err := registry.CheckSupported("twitter", ProtocolOAuth2)
	require.NotNil(t, err)
	require.Equal(t, status.Unimplemented, err.Code)
	require.Contains(t, err.Message, "'twitter' is currently not supported")

	err = registry.CheckSupported("gmail", Protocol("pnba"))
	require.NotNil(t, err)
	require.Equal(t, status.Unimplemented, err.Code)
	require.Contains(t, err.Message, "Expected protocol: 'oauth2'")
}

func TestNewRegistry_RejectsDuplicateShortCode(t *testing.T) {
	_, err := NewRegistry(
		Descriptor{Name: "gmail", ShortCode: 'g', Service: ServiceEmail, Protocol: ProtocolOAuth2},
		Descriptor{Name: "gmx", ShortCode: 'g', Service: ServiceEmail, Protocol: ProtocolOAuth2},
	)
	require.Error(t, err)
	require.Contains(t, err.Error(), "shortcode")
}

func TestNewRegistry_RejectsMissingName(t *testing.T) {
	_, err := NewRegistry(Descriptor{ShortCode: 'x', Service: ServiceEmail, Protocol: ProtocolOAuth2})
	require.Error(t, err)
}
