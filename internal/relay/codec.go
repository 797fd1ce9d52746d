package relay

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// DeviceIDSize is the fixed width of the device identifier trailing every
// relay payload.
const DeviceIDSize = 16

const headerSize = 3 // shortcode byte + big-endian ciphertext length

// Payload is the decoded relay envelope: which platform to publish on, the
// encrypted body, and the device the body was encrypted for. It lives for a
// single publish call and is never persisted.
type Payload struct {
	PlatformShortCode byte
	Ciphertext        []byte
	DeviceID          [DeviceIDSize]byte
}

// DeviceIDHex renders the device identifier the way the vault keys it.
func (p *Payload) DeviceIDHex() string {
	return hex.EncodeToString(p.DeviceID[:])
}

// DecodePayload parses the relay wire format:
//
//	[shortcode:1][ciphertext length:2 BE][ciphertext][device id:16]
//
// The reported error cites the malformed segment.
func DecodePayload(content []byte) (*Payload, error) {
	if len(content) < headerSize+DeviceIDSize {
		return nil, fmt.Errorf("content too short: %d bytes, need at least %d", len(content), headerSize+DeviceIDSize)
	}

	shortCode := content[0]
	ciphertextLen := int(binary.BigEndian.Uint16(content[1:3]))

	rest := content[headerSize:]
	if len(rest) != ciphertextLen+DeviceIDSize {
		return nil, fmt.Errorf("ciphertext length %d does not match remaining %d bytes", ciphertextLen, len(rest)-DeviceIDSize)
	}

	p := &Payload{PlatformShortCode: shortCode}
	p.Ciphertext = make([]byte, ciphertextLen)
	copy(p.Ciphertext, rest[:ciphertextLen])
	copy(p.DeviceID[:], rest[ciphertextLen:])
	return p, nil
}

// EncodePayload renders the payload back into wire bytes. Decoding the result
// yields an identical payload.
func EncodePayload(p *Payload) ([]byte, error) {
	if len(p.Ciphertext) > 0xFFFF {
		return nil, fmt.Errorf("ciphertext too large: %d bytes", len(p.Ciphertext))
	}
	out := make([]byte, 0, headerSize+len(p.Ciphertext)+DeviceIDSize)
	out = append(out, p.PlatformShortCode)
	out = binary.BigEndian.AppendUint16(out, uint16(len(p.Ciphertext)))
	out = append(out, p.Ciphertext...)
	out = append(out, p.DeviceID[:]...)
	return out, nil
}
