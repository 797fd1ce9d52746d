package oauth

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// TokenSink persists a credential the session refreshed mid-operation. The
// refresh must be durable before the operation proceeds, so a sink failure
// aborts the send.
type TokenSink interface {
	PersistRefreshedToken(ctx context.Context, tok *Token) error
}

// Session binds a client to one fetched credential and its refresh sink for
// the duration of a single dispatch.
type Session struct {
	client *Client
	token  *Token
	sink   TokenSink
	now    func() time.Time
}

// NewSession opens a send session.
func (c *Client) NewSession(tok *Token, sink TokenSink) *Session {
	return &Session{client: c, token: tok, sink: sink, now: time.Now}
}

// SendMessage sends a raw message through a one-shot session bound to the
// credential and refresh sink.
func (c *Client) SendMessage(ctx context.Context, tok *Token, raw []byte, sink TokenSink) (string, error) {
	return c.NewSession(tok, sink).SendMessage(ctx, raw)
}

// SendMessage submits a raw RFC 822 message through the provider's send
// endpoint, refreshing the credential first when it has expired. The provider
// response body is returned verbatim.
func (s *Session) SendMessage(ctx context.Context, raw []byte) (string, error) {
	if err := s.ensureFresh(ctx); err != nil {
		return "", err
	}

	response, httpStatus, err := s.postMessage(ctx, raw)
	if err != nil {
		return "", err
	}
	if httpStatus == http.StatusUnauthorized && strings.TrimSpace(s.token.RefreshToken) != "" {
		// Expiry metadata lied; refresh once and retry.
		if err := s.refresh(ctx); err != nil {
			return "", err
		}
		response, httpStatus, err = s.postMessage(ctx, raw)
		if err != nil {
			return "", err
		}
	}
	if httpStatus >= 300 {
		return "", fmt.Errorf("send failed: status=%d body=%s", httpStatus, response)
	}
	return response, nil
}

func (s *Session) ensureFresh(ctx context.Context) error {
	if s.token.Valid(s.now()) {
		return nil
	}
	return s.refresh(ctx)
}

func (s *Session) refresh(ctx context.Context) error {
	refreshed, err := s.client.Refresh(ctx, s.token)
	if err != nil {
		return err
	}
	if s.sink != nil {
		if err := s.sink.PersistRefreshedToken(ctx, refreshed); err != nil {
			return err
		}
	}
	s.token = refreshed
	return nil
}

func (s *Session) postMessage(ctx context.Context, raw []byte) (string, int, error) {
	if strings.TrimSpace(s.client.cfg.Endpoints.SendURL) == "" {
		return "", 0, fmt.Errorf("send url missing for %s", s.client.cfg.Platform)
	}

	body, err := json.Marshal(map[string]string{
		"raw": base64.RawURLEncoding.EncodeToString(raw),
	})
	if err != nil {
		return "", 0, fmt.Errorf("encode send request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.client.cfg.Endpoints.SendURL, bytes.NewReader(body))
	if err != nil {
		return "", 0, fmt.Errorf("build send request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.token.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.httpClient.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", 0, fmt.Errorf("read send response: %w", err)
	}
	return string(respBody), resp.StatusCode, nil
}
