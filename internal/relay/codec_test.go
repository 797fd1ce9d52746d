package relay

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func samplePayload() *Payload {
	p := &Payload{
		PlatformShortCode: 'g',
		Ciphertext:        []byte("encrypted-bytes"),
	}
	copy(p.DeviceID[:], bytes.Repeat([]byte{0xAB}, DeviceIDSize))
	return p
}

func TestPayload_RoundTrip(t *testing.T) {
	original := samplePayload()

	wire, err := EncodePayload(original)
	require.NoError(t, err)

	decoded, err := DecodePayload(wire)
	require.NoError(t, err)
	require.Equal(t, original.PlatformShortCode, decoded.PlatformShortCode)
	require.Equal(t, original.Ciphertext, decoded.Ciphertext)
	require.Equal(t, original.DeviceID, decoded.DeviceID)
}

func TestDecodePayload_EmptyCiphertext(t *testing.T) {
	p := samplePayload()
	p.Ciphertext = nil

	wire, err := EncodePayload(p)
	require.NoError(t, err)

	decoded, err := DecodePayload(wire)
	require.NoError(t, err)
	require.Empty(t, decoded.Ciphertext)
	require.Equal(t, p.DeviceID, decoded.DeviceID)
}

func TestDecodePayload_TooShort(t *testing.T) {
	_, err := DecodePayload([]byte{0x01, 0x02})
	require.Error(t, err)
	require.Contains(t, err.Error(), "content too short")
}

func TestDecodePayload_LengthMismatch(t *testing.T) {
	wire, err := EncodePayload(samplePayload())
	require.NoError(t, err)

	// Claim one more ciphertext byte than the envelope carries.
	wire[2]++
	_, err = DecodePayload(wire)
	require.Error(t, err)
	require.Contains(t, err.Error(), "does not match")
}

func TestDecodePayload_TrailingBytes(t *testing.T) {
	wire, err := EncodePayload(samplePayload())
	require.NoError(t, err)

	_, err = DecodePayload(append(wire, 0x00))
	require.Error(t, err)
}

func TestPayload_DeviceIDHex(t *testing.T) {
	p := samplePayload()
	require.Equal(t, "abababababababababababababababab", p.DeviceIDHex())
}

func TestParseEmail(t *testing.T) {
	msg, err := ParseEmail("alice@example.com:bob@example.com:carol@example.com::Greetings:Hello Bob,\nsee you at 10:30")
	require.NoError(t, err)
	require.Equal(t, "alice@example.com", msg.From)
	require.Equal(t, "bob@example.com", msg.To)
	require.Equal(t, "carol@example.com", msg.Cc)
	require.Empty(t, msg.Bcc)
	require.Equal(t, "Greetings", msg.Subject)
	require.Equal(t, "Hello Bob,\nsee you at 10:30", msg.Body)
}

func TestParseEmail_MissingFields(t *testing.T) {
	_, err := ParseEmail("alice@example.com:Subject only")
	require.Error(t, err)
	require.Contains(t, err.Error(), "expected 6")

	_, err = ParseEmail(":bob@example.com:::Subject:Body")
	require.Error(t, err)
	require.Contains(t, err.Error(), "missing sender")

	_, err = ParseEmail("alice@example.com::::Subject:Body")
	require.Error(t, err)
	require.Contains(t, err.Error(), "missing recipient")
}

func TestEmailMessage_RFC822(t *testing.T) {
	msg := &EmailMessage{
		From:    "alice@example.com",
		To:      "bob@example.com",
		Cc:      "carol@example.com",
		Subject: "Greetings",
		Body:    "Hello",
	}

	raw := string(msg.RFC822())
	require.Contains(t, raw, "From: alice@example.com\r\n")
	require.Contains(t, raw, "To: bob@example.com\r\n")
	require.Contains(t, raw, "Cc: carol@example.com\r\n")
	require.NotContains(t, raw, "Bcc:")
	require.Contains(t, raw, "Subject: Greetings\r\n")
	require.True(t, len(raw) > 0 && raw[len(raw)-5:] == "Hello")
}

func TestAccountIdentifier(t *testing.T) {
	require.Equal(t, "alice@example.com", AccountIdentifier("alice@example.com:rest:of:payload"))
	require.Equal(t, "no-delimiter", AccountIdentifier("no-delimiter"))
}
