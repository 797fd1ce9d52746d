package publisher

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/smswithoutborders/publisher/internal/oauth"
	"github.com/smswithoutborders/publisher/internal/platform"
	"github.com/smswithoutborders/publisher/internal/relay"
	"github.com/smswithoutborders/publisher/internal/status"
	"github.com/smswithoutborders/publisher/internal/vault"
)

// dispatchKey is the closed tagged union of supported combinations. A
// registry entry without a matching handler fails closed at dispatch time.
type dispatchKey struct {
	protocol platform.Protocol
	service  platform.ServiceType
}

type dispatchContext struct {
	descriptor platform.Descriptor
	plaintext  string
	token      *oauth.Token
	deviceID   string
	provider   ProviderClient
}

type dispatchFunc func(ctx context.Context, d *dispatchContext) (string, error)

// publishEmail handles the (oauth2, email) pair: parse the decrypted payload
// into email fields and send it through the provider, with refreshed
// credentials persisted back to the vault before the send proceeds.
func (s *Service) publishEmail(ctx context.Context, d *dispatchContext) (string, error) {
	msg, err := relay.ParseEmail(d.plaintext)
	if err != nil {
		return "", status.New(status.InvalidArgument, err.Error())
	}

	sink := &vaultTokenSink{
		vault:        s.vault,
		deviceID:     d.deviceID,
		account:      msg.From,
		platformName: d.descriptor.Name,
	}
	return d.provider.SendMessage(ctx, d.token, msg.RFC822(), sink)
}

// vaultTokenSink persists refreshed credentials through the vault's update
// RPC, keyed the same way the original fetch was.
type vaultTokenSink struct {
	vault        vaultUpdater
	deviceID     string
	account      string
	platformName string
}

type vaultUpdater interface {
	UpdateToken(ctx context.Context, deviceID, token, accountIdentifier, platformName string) (*vault.Response, *vault.Error)
}

func (t *vaultTokenSink) PersistRefreshedToken(ctx context.Context, tok *oauth.Token) error {
	serialized, err := tok.Serialize()
	if err != nil {
		return err
	}
	resp, verr := t.vault.UpdateToken(ctx, t.deviceID, serialized, t.account, t.platformName)
	if verr != nil {
		return status.New(verr.Code, verr.Details)
	}
	if !resp.Success {
		return &logicalError{message: resp.Message}
	}
	return nil
}

// logicalError marks a collaborator reporting success=false without a
// transport failure: surfaced as an unsuccessful response, not an error code.
type logicalError struct {
	message string
}

func (e *logicalError) Error() string {
	return e.message
}

func (s *Service) mapProviderError(err error, action, platformName string) error {
	var exchErr *oauth.ExchangeError
	if errors.As(err, &exchErr) {
		return status.New(status.InvalidArgument, exchErr.Error())
	}
	s.log().Error(action, zap.String("platform", platformName), zap.Error(err))
	return status.New(status.Internal, internalErrorMessage)
}

func (s *Service) mapDispatchError(err error, logger *zap.Logger) (*PublishOutcome, error) {
	var statusErr *status.Error
	if errors.As(err, &statusErr) {
		return nil, statusErr
	}
	var logical *logicalError
	if errors.As(err, &logical) {
		return &PublishOutcome{Success: false, Message: logical.message}, nil
	}
	var exchErr *oauth.ExchangeError
	if errors.As(err, &exchErr) {
		return nil, status.New(status.InvalidArgument, exchErr.Error())
	}
	logger.Error("dispatch failed", zap.Error(err))
	return nil, status.New(status.Internal, internalErrorMessage)
}
