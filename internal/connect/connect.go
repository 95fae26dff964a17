// Package connect orchestrates a platform connection end to end: it
// ties the CSRF state store, the per-provider OAuth adapters, the token
// vault, and the error-recovery runtime together into the two
// operations a caller actually needs — start a connection, and finish
// one off a provider's callback.
package connect

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/nodrake/backplane/internal/models"
	"github.com/nodrake/backplane/internal/oauthprovider"
	"github.com/nodrake/backplane/internal/oauthstate"
	"github.com/nodrake/backplane/internal/recovery"
	"github.com/nodrake/backplane/internal/vault"
)

// ErrUnknownProvider is returned for a platform with no registered
// adapter.
var ErrUnknownProvider = errors.New("connect: no adapter registered for this provider")

// ErrAlreadyConnected is returned when InitiateConnection is called for
// a platform the user already has an active connection to.
var ErrAlreadyConnected = errors.New("connect: user already has an active connection for this provider")

// ErrInvalidState is returned when CompleteConnection is called with a
// state token that is unknown, expired, or was issued for a different
// provider.
var ErrInvalidState = errors.New("connect: invalid or expired state token")

// Service runs the initiate/complete halves of the authorization-code
// flow, gating connection attempts on the vault's existing state and
// routing every provider call through the recovery runtime's circuit
// breaker and retry logic.
type Service struct {
	states    *oauthstate.Manager
	providers *oauthprovider.Registry
	vault     *vault.Vault
	recovery  *recovery.Service
}

// New builds a connect Service.
func New(states *oauthstate.Manager, providers *oauthprovider.Registry, v *vault.Vault, rec *recovery.Service) *Service {
	return &Service{states: states, providers: providers, vault: v, recovery: rec}
}

// InitiateConnection starts an authorization-code flow for (userID,
// platform): it rejects the attempt if the user already has an active
// connection for that platform, then mints a CSRF state token and
// returns the provider's redirect URL alongside it.
func (s *Service) InitiateConnection(userID uuid.UUID, platform models.Platform) (authURL, stateToken string, err error) {
	provider, ok := s.providers.Get(platform)
	if !ok {
		return "", "", fmt.Errorf("%s: %w", platform, ErrUnknownProvider)
	}

	existing, err := s.vault.GetConnection(userID, platform)
	if err != nil {
		return "", "", fmt.Errorf("checking for an existing connection: %w", err)
	}
	if existing != nil && existing.Status == models.StatusActive {
		return "", "", fmt.Errorf("%s: %w", platform, ErrAlreadyConnected)
	}

	authURL, stateToken, err = provider.InitiateFlow(s.states, userID)
	if err != nil {
		return "", "", fmt.Errorf("%s: initiating connection flow: %w", platform, err)
	}
	return authURL, stateToken, nil
}

// CompleteConnection finishes a flow started by InitiateConnection: it
// validates and consumes the CSRF state, exchanges the authorization
// code for tokens (through the recovery runtime, so exchange failures
// are retried with backoff and counted against the provider's circuit
// breaker), resolves the user's profile, and stores the resulting
// connection in the vault.
func (s *Service) CompleteConnection(ctx context.Context, platform models.Platform, stateToken, code string) (*models.Connection, error) {
	provider, ok := s.providers.Get(platform)
	if !ok {
		return nil, fmt.Errorf("%s: %w", platform, ErrUnknownProvider)
	}

	entry, result := s.states.Consume(stateToken, string(platform))
	switch result {
	case oauthstate.Consumed:
		// proceed
	case oauthstate.WrongProvider:
		return nil, fmt.Errorf("%s: %w: state was issued for a different provider", platform, ErrInvalidState)
	default:
		return nil, fmt.Errorf("%s: %w", platform, ErrInvalidState)
	}

	var token *oauth2.Token
	err := s.recovery.Execute(ctx, string(platform), func(ctx context.Context) error {
		exchanged, err := provider.Exchange(ctx, code, entry.CodeVerifier)
		if err != nil {
			return err
		}
		token = exchanged
		return nil
	}, classifyExchangeError)
	if err != nil {
		return nil, fmt.Errorf("%s: exchanging authorization code: %w", platform, err)
	}

	userInfo, err := provider.GetUserInfo(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("%s: resolving user profile: %w", platform, err)
	}

	var expiresAt *time.Time
	if !token.Expiry.IsZero() {
		expiry := token.Expiry
		expiresAt = &expiry
	}

	conn, err := s.vault.StoreToken(entry.UserID, platform, userInfo.ProviderUserID, nil, token.AccessToken, token.RefreshToken, expiresAt)
	if err != nil {
		return nil, fmt.Errorf("%s: storing connection: %w", platform, err)
	}
	return conn, nil
}

func classifyExchangeError(err error) recovery.Classification {
	return recovery.Classification{Retryable: true}
}
