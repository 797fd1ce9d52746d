package oauth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Default gmail endpoints; overridable per instance for tests.
const (
	defaultGmailAuthURL     = "https://accounts.google.com/o/oauth2/v2/auth"
	defaultGmailTokenURL    = "https://oauth2.googleapis.com/token"
	defaultGmailUserInfoURL = "https://www.googleapis.com/oauth2/v3/userinfo"
	defaultGmailRevokeURL   = "https://oauth2.googleapis.com/revoke"
	defaultGmailSendURL     = "https://gmail.googleapis.com/gmail/v1/users/me/messages/send"
)

// Endpoints holds the provider URLs a client talks to.
type Endpoints struct {
	AuthURL     string
	TokenURL    string
	UserInfoURL string
	RevokeURL   string
	SendURL     string
}

// GmailEndpoints returns the production gmail endpoint set.
func GmailEndpoints() Endpoints {
	return Endpoints{
		AuthURL:     defaultGmailAuthURL,
		TokenURL:    defaultGmailTokenURL,
		UserInfoURL: defaultGmailUserInfoURL,
		RevokeURL:   defaultGmailRevokeURL,
		SendURL:     defaultGmailSendURL,
	}
}

// Config binds provider endpoints to one platform's application credentials.
type Config struct {
	Platform     string
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Scopes       []string
	Endpoints    Endpoints
}

// UserInfo is the normalized provider profile.
type UserInfo struct {
	Subject  string
	Email    string
	Username string
	Name     string
}

// AccountIdentifier derives the key a credential is stored under: email
// first, username as fallback.
func (u *UserInfo) AccountIdentifier() string {
	if strings.TrimSpace(u.Email) != "" {
		return u.Email
	}
	return u.Username
}

// Authorization is the issued authorization URL with its CSRF state and PKCE
// verifier.
type Authorization struct {
	URL          string
	State        string
	CodeVerifier string
}

// ExchangeError reports the provider rejecting an authorization code or
// refresh token. It is a client error, not a provider outage.
type ExchangeError struct {
	HTTPStatus  int
	Code        string
	Description string
}

func (e *ExchangeError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("oauth exchange failed: %s: %s", e.Code, e.Description)
	}
	return fmt.Sprintf("oauth exchange failed: %s (status=%d)", e.Code, e.HTTPStatus)
}

// Client performs the OAuth2 flows for one platform.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// NewClient constructs a provider client.
func NewClient(cfg Config, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{cfg: cfg, httpClient: httpClient}
}

// Platform returns the platform this client is bound to.
func (c *Client) Platform() string {
	return c.cfg.Platform
}

// AuthorizationURL builds the provider authorization URL. A missing state is
// generated; a missing verifier is generated only when autogenerate is set.
func (c *Client) AuthorizationURL(state, codeVerifier string, autogenerate bool) (*Authorization, error) {
	if strings.TrimSpace(c.cfg.Endpoints.AuthURL) == "" {
		return nil, fmt.Errorf("auth url missing for %s", c.cfg.Platform)
	}

	var err error
	if state == "" {
		if state, err = secureRandomString(32); err != nil {
			return nil, fmt.Errorf("generate state: %w", err)
		}
	}
	if codeVerifier == "" && autogenerate {
		if codeVerifier, err = secureRandomString(64); err != nil {
			return nil, fmt.Errorf("generate pkce verifier: %w", err)
		}
	}

	authURL, err := url.Parse(c.cfg.Endpoints.AuthURL)
	if err != nil {
		return nil, fmt.Errorf("parse auth url: %w", err)
	}

	params := authURL.Query()
	params.Set("client_id", c.cfg.ClientID)
	params.Set("response_type", "code")
	params.Set("redirect_uri", c.cfg.RedirectURI)
	params.Set("scope", strings.Join(c.cfg.Scopes, " "))
	params.Set("state", state)
	params.Set("access_type", "offline")
	params.Set("prompt", "consent")
	if codeVerifier != "" {
		params.Set("code_challenge", pkceChallenge(codeVerifier))
		params.Set("code_challenge_method", "S256")
	}
	authURL.RawQuery = params.Encode()

	return &Authorization{URL: authURL.String(), State: state, CodeVerifier: codeVerifier}, nil
}

// ExchangeCode trades an authorization code for a token bundle. Provider
// rejections surface as *ExchangeError.
func (c *Client) ExchangeCode(ctx context.Context, code, codeVerifier string) (*Token, error) {
	data := url.Values{}
	data.Set("grant_type", "authorization_code")
	data.Set("code", code)
	data.Set("redirect_uri", c.cfg.RedirectURI)
	if codeVerifier != "" {
		data.Set("code_verifier", codeVerifier)
	}
	return c.tokenRequest(ctx, data)
}

// Refresh trades a refresh token for a fresh access token. The refresh token
// is carried over when the provider omits it from the response.
func (c *Client) Refresh(ctx context.Context, tok *Token) (*Token, error) {
	if strings.TrimSpace(tok.RefreshToken) == "" {
		return nil, fmt.Errorf("refresh: no refresh token for %s", c.cfg.Platform)
	}
	data := url.Values{}
	data.Set("grant_type", "refresh_token")
	data.Set("refresh_token", tok.RefreshToken)

	refreshed, err := c.tokenRequest(ctx, data)
	if err != nil {
		return nil, err
	}
	if refreshed.RefreshToken == "" {
		refreshed.RefreshToken = tok.RefreshToken
	}
	return refreshed, nil
}

func (c *Client) tokenRequest(ctx context.Context, data url.Values) (*Token, error) {
	if strings.TrimSpace(c.cfg.Endpoints.TokenURL) == "" {
		return nil, fmt.Errorf("token url missing for %s", c.cfg.Platform)
	}
	data.Set("client_id", c.cfg.ClientID)
	if c.cfg.ClientSecret != "" {
		data.Set("client_secret", c.cfg.ClientSecret)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoints.TokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read token response: %w", err)
	}
	if resp.StatusCode >= 300 {
		exchErr := &ExchangeError{HTTPStatus: resp.StatusCode, Code: "invalid_grant"}
		var oauthErr struct {
			Error            string `json:"error"`
			ErrorDescription string `json:"error_description"`
		}
		if jsonErr := json.Unmarshal(body, &oauthErr); jsonErr == nil && oauthErr.Error != "" {
			exchErr.Code = oauthErr.Error
			exchErr.Description = oauthErr.ErrorDescription
		}
		return nil, exchErr
	}

	var raw struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		TokenType    string `json:"token_type"`
		Scope        string `json:"scope"`
		ExpiresIn    int64  `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}
	if strings.TrimSpace(raw.AccessToken) == "" {
		return nil, fmt.Errorf("token response missing access_token")
	}

	tok := &Token{
		AccessToken:  raw.AccessToken,
		RefreshToken: raw.RefreshToken,
		TokenType:    raw.TokenType,
		Scope:        raw.Scope,
	}
	if raw.ExpiresIn > 0 {
		tok.ExpiresAt = time.Now().Add(time.Duration(raw.ExpiresIn) * time.Second).Unix()
	}
	return tok, nil
}

// FetchUserInfo loads the provider profile for the token's owner.
func (c *Client) FetchUserInfo(ctx context.Context, tok *Token) (*UserInfo, error) {
	if strings.TrimSpace(c.cfg.Endpoints.UserInfoURL) == "" {
		return nil, fmt.Errorf("userinfo url missing for %s", c.cfg.Platform)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.Endpoints.UserInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build userinfo request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+tok.AccessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("userinfo request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read userinfo: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("userinfo failed: status=%d", resp.StatusCode)
	}

	var raw struct {
		Subject           string `json:"sub"`
		Email             string `json:"email"`
		Name              string `json:"name"`
		Username          string `json:"username"`
		PreferredUsername string `json:"preferred_username"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode userinfo: %w", err)
	}

	username := raw.Username
	if username == "" {
		username = raw.PreferredUsername
	}
	return &UserInfo{Subject: raw.Subject, Email: raw.Email, Username: username, Name: raw.Name}, nil
}

// Revoke invalidates the access token at the provider.
func (c *Client) Revoke(ctx context.Context, tok *Token) error {
	if strings.TrimSpace(c.cfg.Endpoints.RevokeURL) == "" {
		return fmt.Errorf("revoke url missing for %s", c.cfg.Platform)
	}
	data := url.Values{}
	data.Set("token", tok.AccessToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoints.RevokeURL, strings.NewReader(data.Encode()))
	if err != nil {
		return fmt.Errorf("build revoke request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("revoke request: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))

	if resp.StatusCode >= 300 {
		return fmt.Errorf("revoke failed: status=%d", resp.StatusCode)
	}
	return nil
}

func secureRandomString(size int) (string, error) {
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func pkceChallenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
