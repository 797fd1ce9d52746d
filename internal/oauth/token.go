package oauth

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// expirySkew treats tokens about to expire as already expired, so a send does
// not start with a credential that dies mid-flight.
const expirySkew = 30 * time.Second

// Token is the serializable OAuth2 credential bundle. The vault is its only
// durable owner; this in-memory copy lives for one request.
type Token struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type,omitempty"`
	Scope        string `json:"scope,omitempty"`
	ExpiresAt    int64  `json:"expires_at,omitempty"`
}

// ParseToken decodes a credential bundle exactly as the vault stored it.
func ParseToken(serialized string) (*Token, error) {
	var t Token
	if err := json.Unmarshal([]byte(serialized), &t); err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	if strings.TrimSpace(t.AccessToken) == "" {
		return nil, fmt.Errorf("parse token: missing access_token")
	}
	return &t, nil
}

// Serialize renders the bundle for vault storage.
func (t *Token) Serialize() (string, error) {
	encoded, err := json.Marshal(t)
	if err != nil {
		return "", fmt.Errorf("serialize token: %w", err)
	}
	return string(encoded), nil
}

// Valid reports whether the access token is usable at the given instant.
// Tokens without an expiry are assumed valid.
func (t *Token) Valid(now time.Time) bool {
	if strings.TrimSpace(t.AccessToken) == "" {
		return false
	}
	if t.ExpiresAt == 0 {
		return true
	}
	return now.Add(expirySkew).Unix() < t.ExpiresAt
}
