package vault

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/smswithoutborders/publisher/internal/status"
)

// Error carries the upstream status and human-readable details of a failed
// vault RPC. It is distinct from a logical failure, where the RPC succeeds at
// transport level but reports success=false in its body.
type Error struct {
	Code    status.Code
	Details string
}

func (e *Error) Error() string {
	return fmt.Sprintf("vault: %s: %s", e.Code, e.Details)
}

// Response is the success/message pair every vault RPC reports.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// StoredToken summarizes one credential the vault holds for an entity.
type StoredToken struct {
	Platform          string `json:"platform"`
	AccountIdentifier string `json:"account_identifier"`
}

// ListTokensResponse is the body of the list-stored-tokens RPC.
type ListTokensResponse struct {
	Response
	StoredTokens []StoredToken `json:"stored_tokens"`
}

// TokenResponse is the body of the get-access-token RPC. Token is the
// serialized credential bundle exactly as it was stored.
type TokenResponse struct {
	Response
	Token string `json:"token"`
}

// DecryptResponse is the body of the decrypt-payload RPC.
type DecryptResponse struct {
	Response
	PayloadPlaintext string `json:"payload_plaintext"`
}

// EncryptResponse is the body of the encrypt-payload RPC.
type EncryptResponse struct {
	Response
	PayloadCiphertext string `json:"payload_ciphertext"`
}

// AccessTokenQuery selects a stored credential. Exactly one of DeviceID or
// LongLivedToken identifies the entity.
type AccessTokenQuery struct {
	DeviceID          string `json:"device_id,omitempty"`
	LongLivedToken    string `json:"long_lived_token,omitempty"`
	Platform          string `json:"platform"`
	AccountIdentifier string `json:"account_identifier"`
}

// Client is the typed façade over the vault service's RPCs. Every call
// returns the decoded body and a transport error; callers must handle both
// shapes (transport error vs. success=false) separately.
type Client interface {
	ListStoredTokens(ctx context.Context, longLivedToken string) (*ListTokensResponse, *Error)
	StoreToken(ctx context.Context, longLivedToken, platformName, accountIdentifier, token string) (*Response, *Error)
	GetAccessToken(ctx context.Context, query AccessTokenQuery) (*TokenResponse, *Error)
	UpdateToken(ctx context.Context, deviceID, token, accountIdentifier, platformName string) (*Response, *Error)
	DeleteToken(ctx context.Context, longLivedToken, platformName, accountIdentifier string) (*Response, *Error)
	DecryptPayload(ctx context.Context, deviceID, ciphertext string) (*DecryptResponse, *Error)
	EncryptPayload(ctx context.Context, deviceID, plaintext string) (*EncryptResponse, *Error)
}

// HTTPClient talks JSON over HTTP to the vault service.
type HTTPClient struct {
	httpClient *http.Client
	baseURL    string
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient constructs the default vault client.
func NewHTTPClient(baseURL string, client *http.Client) *HTTPClient {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPClient{httpClient: client, baseURL: baseURL}
}

func (c *HTTPClient) ListStoredTokens(ctx context.Context, longLivedToken string) (*ListTokensResponse, *Error) {
	body := map[string]string{"long_lived_token": longLivedToken}
	out := &ListTokensResponse{}
	if err := c.post(ctx, "/v1/tokens/list", body, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTPClient) StoreToken(ctx context.Context, longLivedToken, platformName, accountIdentifier, token string) (*Response, *Error) {
	body := map[string]string{
		"long_lived_token":   longLivedToken,
		"platform":           platformName,
		"account_identifier": accountIdentifier,
		"token":              token,
	}
	out := &Response{}
	if err := c.post(ctx, "/v1/tokens/store", body, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTPClient) GetAccessToken(ctx context.Context, query AccessTokenQuery) (*TokenResponse, *Error) {
	out := &TokenResponse{}
	if err := c.post(ctx, "/v1/tokens/access", query, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTPClient) UpdateToken(ctx context.Context, deviceID, token, accountIdentifier, platformName string) (*Response, *Error) {
	body := map[string]string{
		"device_id":          deviceID,
		"token":              token,
		"account_identifier": accountIdentifier,
		"platform":           platformName,
	}
	out := &Response{}
	if err := c.post(ctx, "/v1/tokens/update", body, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTPClient) DeleteToken(ctx context.Context, longLivedToken, platformName, accountIdentifier string) (*Response, *Error) {
	body := map[string]string{
		"long_lived_token":   longLivedToken,
		"platform":           platformName,
		"account_identifier": accountIdentifier,
	}
	out := &Response{}
	if err := c.post(ctx, "/v1/tokens/delete", body, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTPClient) DecryptPayload(ctx context.Context, deviceID, ciphertext string) (*DecryptResponse, *Error) {
	body := map[string]string{
		"device_id":          deviceID,
		"payload_ciphertext": ciphertext,
	}
	out := &DecryptResponse{}
	if err := c.post(ctx, "/v1/payloads/decrypt", body, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTPClient) EncryptPayload(ctx context.Context, deviceID, plaintext string) (*EncryptResponse, *Error) {
	body := map[string]string{
		"device_id":         deviceID,
		"payload_plaintext": plaintext,
	}
	out := &EncryptResponse{}
	if err := c.post(ctx, "/v1/payloads/encrypt", body, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTPClient) post(ctx context.Context, path string, body any, result any) *Error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return &Error{Code: status.Internal, Details: fmt.Sprintf("encode request: %v", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return &Error{Code: status.Internal, Details: fmt.Sprintf("build request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return &Error{Code: status.DeadlineExceeded, Details: err.Error()}
		}
		return &Error{Code: status.Unavailable, Details: err.Error()}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &Error{Code: status.Unavailable, Details: fmt.Sprintf("read response: %v", err)}
	}

	if resp.StatusCode >= 300 {
		return &Error{
			Code:    status.FromHTTPStatus(resp.StatusCode),
			Details: errorDetails(raw, resp.StatusCode),
		}
	}

	if err := json.Unmarshal(raw, result); err != nil {
		return &Error{Code: status.Internal, Details: fmt.Sprintf("decode response: %v", err)}
	}
	return nil
}

func errorDetails(raw []byte, httpStatus int) string {
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err == nil {
		if body.Message != "" {
			return body.Message
		}
		if body.Error != "" {
			return body.Error
		}
	}
	return fmt.Sprintf("vault request failed: status=%d", httpStatus)
}
