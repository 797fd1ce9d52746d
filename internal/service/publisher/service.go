package publisher

import (
	"context"
	"encoding/base64"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"

	"github.com/smswithoutborders/publisher/internal/oauth"
	"github.com/smswithoutborders/publisher/internal/platform"
	"github.com/smswithoutborders/publisher/internal/relay"
	"github.com/smswithoutborders/publisher/internal/status"
	"github.com/smswithoutborders/publisher/internal/vault"
)

const (
	internalErrorMessage = "Oops! Something went wrong. Please try again later."

	authStatePrefix = "publisher:authstate:"
	authStateTTL    = 10 * time.Minute
)

// ProviderClient is what the pipeline needs from a platform's OAuth2 client.
type ProviderClient interface {
	AuthorizationURL(state, codeVerifier string, autogenerate bool) (*oauth.Authorization, error)
	ExchangeCode(ctx context.Context, code, codeVerifier string) (*oauth.Token, error)
	FetchUserInfo(ctx context.Context, tok *oauth.Token) (*oauth.UserInfo, error)
	Revoke(ctx context.Context, tok *oauth.Token) error
	SendMessage(ctx context.Context, tok *oauth.Token, raw []byte, sink oauth.TokenSink) (string, error)
}

// AuthState is the state/verifier pair persisted while an authorization URL
// is outstanding, so the exchange can recover the verifier later.
type AuthState struct {
	State        string    `json:"state"`
	CodeVerifier string    `json:"code_verifier"`
	Platform     string    `json:"platform"`
	CreatedAt    time.Time `json:"created_at"`
}

// StateStore persists outstanding authorization states with a TTL.
type StateStore interface {
	SaveState(ctx context.Context, key string, data AuthState, ttl time.Duration) error
	GetState(ctx context.Context, key string) (*AuthState, error)
	DeleteState(ctx context.Context, key string) error
}

// Service orchestrates the credential lifecycle and the publishing pipeline.
type Service struct {
	registry        *platform.Registry
	vault           vault.Client
	providers       map[string]ProviderClient
	states          StateStore
	node            *snowflake.Node
	encryptResponse bool
	logger          *zap.Logger
	handlers        map[dispatchKey]dispatchFunc
}

// NewService wires the orchestrator. The dispatch table is closed here:
// adding a platform requires both a registry entry and a handler.
func NewService(
	registry *platform.Registry,
	vaultClient vault.Client,
	providers map[string]ProviderClient,
	states StateStore,
	node *snowflake.Node,
	encryptResponse bool,
	logger *zap.Logger,
) *Service {
	s := &Service{
		registry:        registry,
		vault:           vaultClient,
		providers:       providers,
		states:          states,
		node:            node,
		encryptResponse: encryptResponse,
		logger:          logger,
	}
	s.handlers = map[dispatchKey]dispatchFunc{
		{protocol: platform.ProtocolOAuth2, service: platform.ServiceEmail}: s.publishEmail,
	}
	return s
}

// Outcome is the terminal success/message pair of a lifecycle operation.
type Outcome struct {
	Success bool
	Message string
}

// AuthorizationURLInput selects the platform and optional CSRF/PKCE material.
type AuthorizationURLInput struct {
	Platform                 string
	State                    string
	CodeVerifier             string
	AutogenerateCodeVerifier bool
}

// AuthorizationURLOutput is the issued authorization URL with its state and
// verifier, which the caller must echo at exchange time.
type AuthorizationURLOutput struct {
	AuthorizationURL string
	State            string
	CodeVerifier     string
	Message          string
}

// AuthorizationURL issues a provider authorization URL for the platform.
func (s *Service) AuthorizationURL(ctx context.Context, in AuthorizationURLInput) (*AuthorizationURLOutput, error) {
	if err := requireFields(field{"platform", in.Platform}); err != nil {
		return nil, err
	}
	platformName := strings.ToLower(strings.TrimSpace(in.Platform))

	if err := s.registry.CheckSupported(platformName, platform.ProtocolOAuth2); err != nil {
		return nil, err
	}
	provider, err := s.clientFor(platformName)
	if err != nil {
		return nil, err
	}

	auth, authErr := provider.AuthorizationURL(in.State, in.CodeVerifier, in.AutogenerateCodeVerifier)
	if authErr != nil {
		s.log().Error("authorization url construction failed",
			zap.String("platform", platformName), zap.Error(authErr))
		return nil, status.New(status.Internal, internalErrorMessage)
	}

	if s.states != nil && auth.CodeVerifier != "" {
		state := AuthState{
			State:        auth.State,
			CodeVerifier: auth.CodeVerifier,
			Platform:     platformName,
			CreatedAt:    time.Now().UTC(),
		}
		if err := s.states.SaveState(ctx, authStateKey(auth.State), state, authStateTTL); err != nil {
			s.log().Error("persist auth state failed", zap.Error(err))
			return nil, status.New(status.Internal, internalErrorMessage)
		}
	}

	return &AuthorizationURLOutput{
		AuthorizationURL: auth.URL,
		State:            auth.State,
		CodeVerifier:     auth.CodeVerifier,
		Message:          "Successfully generated authorization url",
	}, nil
}

// ExchangeInput carries the authorization code to trade and store.
type ExchangeInput struct {
	LongLivedToken    string
	Platform          string
	AuthorizationCode string
	CodeVerifier      string
	State             string
}

// ExchangeAndStore trades an authorization code for a credential bundle and
// stores it in the vault under the profile-derived account identifier.
func (s *Service) ExchangeAndStore(ctx context.Context, in ExchangeInput) (*Outcome, error) {
	if err := requireFields(
		field{"long_lived_token", in.LongLivedToken},
		field{"platform", in.Platform},
		field{"authorization_code", in.AuthorizationCode},
	); err != nil {
		return nil, err
	}
	platformName := strings.ToLower(strings.TrimSpace(in.Platform))

	if err := s.registry.CheckSupported(platformName, platform.ProtocolOAuth2); err != nil {
		return nil, err
	}
	provider, err := s.clientFor(platformName)
	if err != nil {
		return nil, err
	}

	// Surface an upstream listing failure before spending the one-shot code.
	if _, verr := s.vault.ListStoredTokens(ctx, in.LongLivedToken); verr != nil {
		return nil, status.New(verr.Code, verr.Details)
	}

	verifier := in.CodeVerifier
	if verifier == "" && in.State != "" {
		verifier = s.recoverVerifier(ctx, in.State, platformName)
	}

	tok, exchErr := provider.ExchangeCode(ctx, in.AuthorizationCode, verifier)
	if exchErr != nil {
		return nil, s.mapProviderError(exchErr, "code exchange failed", platformName)
	}

	profile, profileErr := provider.FetchUserInfo(ctx, tok)
	if profileErr != nil {
		s.log().Error("userinfo fetch failed", zap.String("platform", platformName), zap.Error(profileErr))
		return nil, status.New(status.Internal, internalErrorMessage)
	}
	account := profile.AccountIdentifier()
	if strings.TrimSpace(account) == "" {
		s.log().Error("provider profile has no account identifier", zap.String("platform", platformName))
		return nil, status.New(status.Internal, internalErrorMessage)
	}

	serialized, serErr := tok.Serialize()
	if serErr != nil {
		s.log().Error("token serialization failed", zap.Error(serErr))
		return nil, status.New(status.Internal, internalErrorMessage)
	}

	store, verr := s.vault.StoreToken(ctx, in.LongLivedToken, platformName, account, serialized)
	if verr != nil {
		return nil, status.New(verr.Code, verr.Details)
	}
	if !store.Success {
		return &Outcome{Success: false, Message: store.Message}, nil
	}

	return &Outcome{Success: true, Message: "Successfully fetched and stored token"}, nil
}

// RevokeInput names the stored credential to revoke and delete.
type RevokeInput struct {
	LongLivedToken    string
	Platform          string
	AccountIdentifier string
}

// RevokeAndDelete fetches the stored credential, revokes it at the provider,
// then deletes it from the vault. A failure at any step aborts without
// attempting the next; the steps are idempotent so the caller may retry.
func (s *Service) RevokeAndDelete(ctx context.Context, in RevokeInput) (*Outcome, error) {
	if err := requireFields(
		field{"long_lived_token", in.LongLivedToken},
		field{"platform", in.Platform},
		field{"account_identifier", in.AccountIdentifier},
	); err != nil {
		return nil, err
	}
	platformName := strings.ToLower(strings.TrimSpace(in.Platform))

	if err := s.registry.CheckSupported(platformName, platform.ProtocolOAuth2); err != nil {
		return nil, err
	}
	provider, err := s.clientFor(platformName)
	if err != nil {
		return nil, err
	}

	fetched, verr := s.vault.GetAccessToken(ctx, vault.AccessTokenQuery{
		LongLivedToken:    in.LongLivedToken,
		Platform:          platformName,
		AccountIdentifier: in.AccountIdentifier,
	})
	if verr != nil {
		return nil, status.New(verr.Code, verr.Details)
	}
	if !fetched.Success {
		return &Outcome{Success: false, Message: fetched.Message}, nil
	}

	tok, parseErr := oauth.ParseToken(fetched.Token)
	if parseErr != nil {
		s.log().Error("stored token unparsable", zap.String("platform", platformName), zap.Error(parseErr))
		return nil, status.New(status.Internal, internalErrorMessage)
	}

	if revokeErr := provider.Revoke(ctx, tok); revokeErr != nil {
		s.log().Error("provider revocation failed", zap.String("platform", platformName), zap.Error(revokeErr))
		return nil, status.New(status.Internal, internalErrorMessage)
	}

	deleted, verr := s.vault.DeleteToken(ctx, in.LongLivedToken, platformName, in.AccountIdentifier)
	if verr != nil {
		return nil, status.New(verr.Code, verr.Details)
	}
	if !deleted.Success {
		return &Outcome{Success: false, Message: deleted.Message}, nil
	}

	return &Outcome{Success: true, Message: "Successfully deleted token"}, nil
}

// PublishInput carries the base64-encoded relay payload.
type PublishInput struct {
	Content string
}

// PublishOutcome is the terminal value of a publish run.
type PublishOutcome struct {
	Success          bool
	Message          string
	ProviderResponse string
}

// Publish runs the pipeline: decode, resolve, decrypt, fetch credential,
// dispatch, respond. Each stage either passes a value forward or terminates
// the run; the first failure is returned verbatim.
func (s *Service) Publish(ctx context.Context, in PublishInput) (*PublishOutcome, error) {
	if err := requireFields(field{"content", in.Content}); err != nil {
		return nil, err
	}

	wire, decodeErr := base64.StdEncoding.DecodeString(in.Content)
	if decodeErr != nil {
		s.log().Warn("relay payload not base64", zap.Error(decodeErr))
		return nil, status.New(status.InvalidArgument, "Invalid content format.")
	}
	payload, decodeErr := relay.DecodePayload(wire)
	if decodeErr != nil {
		s.log().Warn("relay payload malformed", zap.Error(decodeErr))
		return nil, status.New(status.InvalidArgument, "Invalid content format.")
	}

	descriptor, resolveErr := s.registry.ResolveShortCode(payload.PlatformShortCode)
	if resolveErr != nil {
		return nil, resolveErr
	}

	logger := s.log().With(
		zap.String("publish_id", s.publishID()),
		zap.String("platform", descriptor.Name),
		zap.String("device_id", payload.DeviceIDHex()),
	)

	decrypted, verr := s.vault.DecryptPayload(ctx, payload.DeviceIDHex(), base64.StdEncoding.EncodeToString(payload.Ciphertext))
	if verr != nil {
		return nil, status.New(verr.Code, verr.Details)
	}
	if !decrypted.Success {
		return &PublishOutcome{Success: false, Message: decrypted.Message}, nil
	}

	account := relay.AccountIdentifier(decrypted.PayloadPlaintext)

	fetched, verr := s.vault.GetAccessToken(ctx, vault.AccessTokenQuery{
		DeviceID:          payload.DeviceIDHex(),
		Platform:          descriptor.Name,
		AccountIdentifier: account,
	})
	if verr != nil {
		return nil, status.New(verr.Code, verr.Details)
	}
	if !fetched.Success {
		return &PublishOutcome{Success: false, Message: fetched.Message}, nil
	}

	tok, parseErr := oauth.ParseToken(fetched.Token)
	if parseErr != nil {
		logger.Error("stored token unparsable", zap.Error(parseErr))
		return nil, status.New(status.Internal, internalErrorMessage)
	}

	provider, err := s.clientFor(descriptor.Name)
	if err != nil {
		return nil, err
	}

	handler, ok := s.handlers[dispatchKey{protocol: descriptor.Protocol, service: descriptor.Service}]
	if !ok {
		// Registry entries may land before their handler does; fail closed.
		return nil, status.Errorf(
			status.Unimplemented,
			"Publishing via protocol '%s' for service '%s' is currently not supported.",
			descriptor.Protocol, descriptor.Service,
		)
	}

	providerResponse, dispatchErr := handler(ctx, &dispatchContext{
		descriptor: descriptor,
		plaintext:  decrypted.PayloadPlaintext,
		token:      tok,
		deviceID:   payload.DeviceIDHex(),
		provider:   provider,
	})
	if dispatchErr != nil {
		outcome, err := s.mapDispatchError(dispatchErr, logger)
		return outcome, err
	}

	if s.encryptResponse {
		encrypted, verr := s.vault.EncryptPayload(ctx, payload.DeviceIDHex(), providerResponse)
		if verr != nil {
			return nil, status.New(verr.Code, verr.Details)
		}
		if !encrypted.Success {
			return &PublishOutcome{Success: false, Message: encrypted.Message}, nil
		}
		providerResponse = encrypted.PayloadCiphertext
	}

	logger.Info("published message")
	return &PublishOutcome{
		Success:          true,
		Message:          "Successfully published " + descriptor.Name + " message",
		ProviderResponse: providerResponse,
	}, nil
}

func (s *Service) clientFor(platformName string) (ProviderClient, *status.Error) {
	if provider, ok := s.providers[platformName]; ok {
		return provider, nil
	}
	s.log().Error("no provider client configured", zap.String("platform", platformName))
	return nil, status.New(status.Internal, internalErrorMessage)
}

func (s *Service) recoverVerifier(ctx context.Context, state, platformName string) string {
	if s.states == nil {
		return ""
	}
	key := authStateKey(state)
	stored, err := s.states.GetState(ctx, key)
	if err != nil {
		s.log().Warn("auth state lookup failed", zap.Error(err))
		return ""
	}
	if stored == nil || !strings.EqualFold(stored.Platform, platformName) {
		return ""
	}
	if err := s.states.DeleteState(ctx, key); err != nil {
		s.log().Warn("auth state delete failed", zap.Error(err))
	}
	return stored.CodeVerifier
}

func (s *Service) publishID() string {
	if s.node == nil {
		return ""
	}
	return s.node.Generate().String()
}

func (s *Service) log() *zap.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return zap.L()
}

func authStateKey(state string) string {
	return authStatePrefix + strings.TrimSpace(state)
}

type field struct {
	name  string
	value string
}

func requireFields(fields ...field) *status.Error {
	var missing []string
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return status.Errorf(status.InvalidArgument, "Missing required fields: %s", strings.Join(missing, ", "))
	}
	return nil
}
