package oauthprovider

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/nodrake/backplane/internal/models"
	"github.com/nodrake/backplane/internal/oauthstate"
)

func TestGenerateCodeChallengeIsDeterministicS256(t *testing.T) {
	verifier, err := GenerateCodeVerifier()
	if err != nil {
		t.Fatalf("GenerateCodeVerifier: %v", err)
	}
	if len(verifier) == 0 {
		t.Fatal("expected a non-empty verifier")
	}

	challenge1 := GenerateCodeChallenge(verifier)
	challenge2 := GenerateCodeChallenge(verifier)
	if challenge1 != challenge2 {
		t.Fatal("the same verifier must always produce the same challenge")
	}
	if strings.Contains(challenge1, "=") {
		t.Fatal("challenge should be unpadded base64url, not standard base64")
	}
}

func TestTwoVerifiersProduceDistinctChallenges(t *testing.T) {
	v1, _ := GenerateCodeVerifier()
	v2, _ := GenerateCodeVerifier()
	if v1 == v2 {
		t.Fatal("two generated verifiers should not collide")
	}
	if GenerateCodeChallenge(v1) == GenerateCodeChallenge(v2) {
		t.Fatal("distinct verifiers should produce distinct challenges")
	}
}

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	spotifyProvider := NewSpotify("id", "secret", "https://app/callback", []string{"user-read-email"})
	r.Register(spotifyProvider)

	got, ok := r.Get(models.PlatformSpotify)
	if !ok {
		t.Fatal("expected spotify to be registered")
	}
	if got.Platform() != models.PlatformSpotify {
		t.Fatalf("got platform %q", got.Platform())
	}

	if _, ok := r.Get(models.PlatformTidal); ok {
		t.Fatal("tidal was never registered")
	}
}

func TestSpotifyUsesPKCE(t *testing.T) {
	p := NewSpotify("id", "secret", "https://app/callback", nil)
	if !p.Capabilities()[CapabilityPKCE] {
		t.Fatal("spotify adapter should advertise PKCE support")
	}

	url := p.AuthCodeURL("state123", "challenge456")
	if !strings.Contains(url, "code_challenge=challenge456") {
		t.Fatalf("expected code_challenge param in auth URL, got %s", url)
	}
	if !strings.Contains(url, "code_challenge_method=S256") {
		t.Fatalf("expected code_challenge_method=S256 in auth URL, got %s", url)
	}
}

func TestAppleAdvertisesIdentityJWS(t *testing.T) {
	p := NewApple("id", "secret", "https://app/callback", []string{"name", "email"})
	if !p.Capabilities()[CapabilityIdentityJWS] {
		t.Fatal("apple adapter should advertise identity-via-JWS capability")
	}
}

func TestInitiateFlowIssuesStateAndAuthURL(t *testing.T) {
	p := NewSpotify("id", "secret", "https://app/callback", []string{"user-read-email"})
	states := oauthstate.NewManager(time.Minute)
	uid := uuid.New()

	authURL, token, err := p.InitiateFlow(states, uid)
	if err != nil {
		t.Fatalf("InitiateFlow: %v", err)
	}
	if token == "" {
		t.Fatal("expected a non-empty state token")
	}
	if !strings.Contains(authURL, "code_challenge=") {
		t.Fatalf("expected a PKCE code_challenge in the auth URL, got %s", authURL)
	}

	entry, result := states.Consume(token, string(models.PlatformSpotify))
	if result != oauthstate.Consumed {
		t.Fatalf("expected the issued token to be consumable for spotify, got %v", result)
	}
	if entry.UserID != uid {
		t.Fatalf("expected state entry bound to %s, got %s", uid, entry.UserID)
	}
	if entry.CodeVerifier == "" {
		t.Fatal("expected the PKCE verifier to be persisted alongside the state")
	}
}

func TestValidateConfigRequiresCredentials(t *testing.T) {
	p := NewSpotify("", "secret", "https://app/callback", nil)
	if err := p.ValidateConfig(); err == nil {
		t.Fatal("expected an error when client id is missing")
	}
}

func TestGitHubValidateConfigRequiresEmailScope(t *testing.T) {
	withoutScope := NewGitHub("id", "secret", "https://app/callback", []string{"read:user"})
	if err := withoutScope.ValidateConfig(); err == nil {
		t.Fatal("expected an error when user:email scope is missing")
	}

	withScope := NewGitHub("id", "secret", "https://app/callback", []string{"read:user", "user:email"})
	if err := withScope.ValidateConfig(); err != nil {
		t.Fatalf("expected a valid config with user:email scope, got %v", err)
	}
}

func TestGitHubDoesNotSupportRefresh(t *testing.T) {
	p := NewGitHub("id", "secret", "https://app/callback", []string{"user:email"})
	if p.Capabilities()[CapabilityRefresh] {
		t.Fatal("github adapter must not advertise refresh support")
	}
	_, err := p.RefreshToken(context.Background(), "rt")
	if !errors.Is(err, ErrNotSupported) {
		t.Fatalf("expected ErrNotSupported, got %v", err)
	}
}

func TestAppleMusicDoesNotSupportRefresh(t *testing.T) {
	p := NewAppleMusic("id", "secret", "https://app/callback", nil)
	if p.Capabilities()[CapabilityRefresh] {
		t.Fatal("apple_music adapter must not advertise refresh support")
	}
}

func TestSpotifyRevokeNotSupported(t *testing.T) {
	p := NewSpotify("id", "secret", "https://app/callback", nil)
	if err := p.RevokeToken(context.Background(), "at"); !errors.Is(err, ErrNotSupported) {
		t.Fatalf("expected ErrNotSupported for spotify revoke, got %v", err)
	}
}

func TestGoogleAdvertisesRevoke(t *testing.T) {
	p := NewGoogle("id", "secret", "https://app/callback", []string{"openid", "email"})
	if !p.Capabilities()[CapabilityRevoke] {
		t.Fatal("google adapter should advertise revoke support")
	}
}
