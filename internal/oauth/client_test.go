package oauth

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testConfig(endpoints Endpoints) Config {
	return Config{
		Platform:     "gmail",
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURI:  "https://app.example.com/callback",
		Scopes:       []string{"openid", "email"},
		Endpoints:    endpoints,
	}
}

func TestClient_AuthorizationURL(t *testing.T) {
	client := NewClient(testConfig(Endpoints{AuthURL: "https://provider.example.com/auth"}), nil)

	auth, err := client.AuthorizationURL("my-state", "my-verifier", false)
	require.NoError(t, err)
	require.Equal(t, "my-state", auth.State)
	require.Equal(t, "my-verifier", auth.CodeVerifier)

	parsed, err := url.Parse(auth.URL)
	require.NoError(t, err)
	params := parsed.Query()
	require.Equal(t, "client-id", params.Get("client_id"))
	require.Equal(t, "code", params.Get("response_type"))
	require.Equal(t, "https://app.example.com/callback", params.Get("redirect_uri"))
	require.Equal(t, "openid email", params.Get("scope"))
	require.Equal(t, "my-state", params.Get("state"))
	require.Equal(t, "S256", params.Get("code_challenge_method"))

	sum := sha256.Sum256([]byte("my-verifier"))
	require.Equal(t, base64.RawURLEncoding.EncodeToString(sum[:]), params.Get("code_challenge"))
}

func TestClient_AuthorizationURL_Autogenerate(t *testing.T) {
	client := NewClient(testConfig(Endpoints{AuthURL: "https://provider.example.com/auth"}), nil)

	auth, err := client.AuthorizationURL("", "", true)
	require.NoError(t, err)
	require.NotEmpty(t, auth.State)
	require.NotEmpty(t, auth.CodeVerifier)

	parsed, err := url.Parse(auth.URL)
	require.NoError(t, err)
	require.NotEmpty(t, parsed.Query().Get("code_challenge"))
}

func TestClient_AuthorizationURL_NoVerifierWithoutAutogenerate(t *testing.T) {
	client := NewClient(testConfig(Endpoints{AuthURL: "https://provider.example.com/auth"}), nil)

	auth, err := client.AuthorizationURL("", "", false)
	require.NoError(t, err)
	require.Empty(t, auth.CodeVerifier)

	parsed, err := url.Parse(auth.URL)
	require.NoError(t, err)
	require.Empty(t, parsed.Query().Get("code_challenge"))
}

func TestClient_ExchangeCode(t *testing.T) {
	var gotForm url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotForm = r.PostForm
		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "access-1",
			"refresh_token": "refresh-1",
			"token_type":    "Bearer",
			"expires_in":    3600,
		})
	}))
	defer srv.Close()

	client := NewClient(testConfig(Endpoints{TokenURL: srv.URL}), srv.Client())
	tok, err := client.ExchangeCode(context.Background(), "auth-code", "verifier")
	require.NoError(t, err)
	require.Equal(t, "access-1", tok.AccessToken)
	require.Equal(t, "refresh-1", tok.RefreshToken)
	require.Greater(t, tok.ExpiresAt, time.Now().Unix())

	require.Equal(t, "authorization_code", gotForm.Get("grant_type"))
	require.Equal(t, "auth-code", gotForm.Get("code"))
	require.Equal(t, "verifier", gotForm.Get("code_verifier"))
	require.Equal(t, "client-id", gotForm.Get("client_id"))
	require.Equal(t, "client-secret", gotForm.Get("client_secret"))
}

func TestClient_ExchangeCode_ProviderRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{
			"error":             "invalid_grant",
			"error_description": "Code was already redeemed.",
		})
	}))
	defer srv.Close()

	client := NewClient(testConfig(Endpoints{TokenURL: srv.URL}), srv.Client())
	_, err := client.ExchangeCode(context.Background(), "stale-code", "")
	var exchErr *ExchangeError
	require.ErrorAs(t, err, &exchErr)
	require.Equal(t, "invalid_grant", exchErr.Code)
	require.Contains(t, exchErr.Description, "already redeemed")
}

func TestClient_Refresh_CarriesRefreshToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		require.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		require.Equal(t, "refresh-1", r.PostForm.Get("refresh_token"))
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "access-2",
			"expires_in":   3600,
		})
	}))
	defer srv.Close()

	client := NewClient(testConfig(Endpoints{TokenURL: srv.URL}), srv.Client())
	refreshed, err := client.Refresh(context.Background(), &Token{AccessToken: "access-1", RefreshToken: "refresh-1"})
	require.NoError(t, err)
	require.Equal(t, "access-2", refreshed.AccessToken)
	require.Equal(t, "refresh-1", refreshed.RefreshToken)
}

func TestClient_FetchUserInfo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer access-1", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(map[string]string{
			"sub":   "sub-1",
			"email": "alice@example.com",
			"name":  "Alice",
		})
	}))
	defer srv.Close()

	client := NewClient(testConfig(Endpoints{UserInfoURL: srv.URL}), srv.Client())
	info, err := client.FetchUserInfo(context.Background(), &Token{AccessToken: "access-1"})
	require.NoError(t, err)
	require.Equal(t, "alice@example.com", info.Email)
	require.Equal(t, "alice@example.com", info.AccountIdentifier())
}

func TestUserInfo_AccountIdentifierFallsBackToUsername(t *testing.T) {
	info := &UserInfo{Username: "alice"}
	require.Equal(t, "alice", info.AccountIdentifier())
}

func TestClient_Revoke(t *testing.T) {
	var gotToken string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotToken = r.PostForm.Get("token")
	}))
	defer srv.Close()

	client := NewClient(testConfig(Endpoints{RevokeURL: srv.URL}), srv.Client())
	require.NoError(t, client.Revoke(context.Background(), &Token{AccessToken: "access-1"}))
	require.Equal(t, "access-1", gotToken)
}

func TestClient_Revoke_Failure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	client := NewClient(testConfig(Endpoints{RevokeURL: srv.URL}), srv.Client())
	err := client.Revoke(context.Background(), &Token{AccessToken: "access-1"})
	require.Error(t, err)
}

type recordingSink struct {
	persisted []*Token
	err       error
}

func (s *recordingSink) PersistRefreshedToken(_ context.Context, tok *Token) error {
	if s.err != nil {
		return s.err
	}
	s.persisted = append(s.persisted, tok)
	return nil
}

func TestSession_SendMessage(t *testing.T) {
	var gotRaw string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer access-1", r.Header.Get("Authorization"))
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		gotRaw = body["raw"]
		json.NewEncoder(w).Encode(map[string]string{"id": "msg-1"})
	}))
	defer srv.Close()

	client := NewClient(testConfig(Endpoints{SendURL: srv.URL}), srv.Client())
	sink := &recordingSink{}
	resp, err := client.SendMessage(context.Background(), &Token{AccessToken: "access-1"}, []byte("raw-rfc822"), sink)
	require.NoError(t, err)
	require.Contains(t, resp, "msg-1")
	require.Empty(t, sink.persisted)

	decoded, err := base64.RawURLEncoding.DecodeString(gotRaw)
	require.NoError(t, err)
	require.Equal(t, "raw-rfc822", string(decoded))
}

func TestSession_SendMessage_RefreshesExpiredToken(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "access-2",
			"expires_in":   3600,
		})
	})
	mux.HandleFunc("/send", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer access-2", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(map[string]string{"id": "msg-2"})
	})

	client := NewClient(testConfig(Endpoints{TokenURL: srv.URL + "/token", SendURL: srv.URL + "/send"}), srv.Client())
	sink := &recordingSink{}
	expired := &Token{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		ExpiresAt:    time.Now().Add(-time.Hour).Unix(),
	}

	resp, err := client.SendMessage(context.Background(), expired, []byte("raw"), sink)
	require.NoError(t, err)
	require.Contains(t, resp, "msg-2")
	require.Len(t, sink.persisted, 1)
	require.Equal(t, "access-2", sink.persisted[0].AccessToken)
	require.Equal(t, "refresh-1", sink.persisted[0].RefreshToken)
}

func TestSession_SendMessage_SinkFailureAborts(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	sent := false
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"access_token": "access-2"})
	})
	mux.HandleFunc("/send", func(w http.ResponseWriter, r *http.Request) {
		sent = true
	})

	client := NewClient(testConfig(Endpoints{TokenURL: srv.URL + "/token", SendURL: srv.URL + "/send"}), srv.Client())
	sinkErr := errors.New("vault update failed")
	sink := &recordingSink{err: sinkErr}
	expired := &Token{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		ExpiresAt:    time.Now().Add(-time.Hour).Unix(),
	}

	_, err := client.SendMessage(context.Background(), expired, []byte("raw"), sink)
	require.ErrorIs(t, err, sinkErr)
	require.False(t, sent)
}

func TestSession_SendMessage_RetriesOnUnauthorized(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	sendCalls := 0
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"access_token": "access-2", "expires_in": 3600})
	})
	mux.HandleFunc("/send", func(w http.ResponseWriter, r *http.Request) {
		sendCalls++
		if r.Header.Get("Authorization") != "Bearer access-2" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"id": "msg-3"})
	})

	client := NewClient(testConfig(Endpoints{TokenURL: srv.URL + "/token", SendURL: srv.URL + "/send"}), srv.Client())
	sink := &recordingSink{}
	// Valid-looking token the provider no longer accepts.
	tok := &Token{AccessToken: "access-1", RefreshToken: "refresh-1"}

	resp, err := client.SendMessage(context.Background(), tok, []byte("raw"), sink)
	require.NoError(t, err)
	require.Contains(t, resp, "msg-3")
	require.Equal(t, 2, sendCalls)
	require.Len(t, sink.persisted, 1)
}

func TestToken_SerializeParseRoundTrip(t *testing.T) {
	tok := &Token{AccessToken: "a", RefreshToken: "r", TokenType: "Bearer", ExpiresAt: 123}
	serialized, err := tok.Serialize()
	require.NoError(t, err)

	parsed, err := ParseToken(serialized)
	require.NoError(t, err)
	require.Equal(t, tok, parsed)
}

func TestParseToken_RejectsMissingAccessToken(t *testing.T) {
	_, err := ParseToken(`{"refresh_token":"r"}`)
	require.Error(t, err)

	_, err = ParseToken("not-json")
	require.Error(t, err)
}

func TestToken_Valid(t *testing.T) {
	now := time.Now()
	require.True(t, (&Token{AccessToken: "a"}).Valid(now))
	require.True(t, (&Token{AccessToken: "a", ExpiresAt: now.Add(time.Hour).Unix()}).Valid(now))
	require.False(t, (&Token{AccessToken: "a", ExpiresAt: now.Add(-time.Hour).Unix()}).Valid(now))
	require.False(t, (&Token{AccessToken: "a", ExpiresAt: now.Add(10 * time.Second).Unix()}).Valid(now))
	require.False(t, (&Token{}).Valid(now))
}
