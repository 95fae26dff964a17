// Package oauthprovider adapts each supported platform's OAuth2 dialect
// (authorization endpoints, token exchange, user-id lookup) behind one
// capability-set interface, registered by platform tag.
package oauthprovider

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/spotify"

	"github.com/nodrake/backplane/internal/models"
	"github.com/nodrake/backplane/internal/oauthstate"
)

// Capability is one optional behavior a provider adapter may support
// beyond the baseline authorization-code exchange.
type Capability string

const (
	CapabilityPKCE        Capability = "pkce"
	CapabilityRefresh     Capability = "refresh"
	CapabilityRevoke      Capability = "revoke"
	CapabilityIdentityJWS Capability = "identity_jws" // user id comes from a signed id_token, not a profile endpoint
)

// ErrNotSupported is returned by RefreshToken/RevokeToken for providers
// whose API has no equivalent operation (e.g. GitHub has no refresh
// grant; most streaming platforms expose no programmatic revoke).
var ErrNotSupported = errors.New("operation not supported by this provider")

// OAuthUserInfo normalizes a provider's profile response into the common
// shape the identity resolver and vault consume, regardless of which
// fields the underlying platform actually exposes.
type OAuthUserInfo struct {
	ProviderUserID string
	Email          *string
	EmailVerified  *bool
	DisplayName    *string
	FirstName      *string
	LastName       *string
	AvatarURL      *string
	Locale         *string
	ProviderData   map[string]any
}

// Provider is the adapter surface every supported platform implements:
// initiate_flow, exchange_code, get_user_info, refresh_token,
// revoke_token, and validate_config.
type Provider interface {
	Platform() models.Platform
	Capabilities() map[Capability]bool

	// InitiateFlow mints a CSRF state token via states (persisting any
	// PKCE verifier alongside it) and returns the provider's
	// authorization redirect URL together with that token.
	InitiateFlow(states *oauthstate.Manager, userID uuid.UUID) (authURL, stateToken string, err error)

	// AuthCodeURL builds the redirect URL for starting the
	// authorization-code flow. codeChallenge is empty when the provider
	// doesn't support PKCE.
	AuthCodeURL(state, codeChallenge string) string

	// Exchange trades an authorization code (and PKCE verifier, if any)
	// for a token.
	Exchange(ctx context.Context, code, codeVerifier string) (*oauth2.Token, error)

	// GetUserInfo resolves the normalized profile for a freshly
	// exchanged token.
	GetUserInfo(ctx context.Context, token *oauth2.Token) (OAuthUserInfo, error)

	// RefreshToken exchanges a stored refresh token for a new access
	// token. Returns an error wrapping ErrNotSupported for providers
	// with no refresh grant.
	RefreshToken(ctx context.Context, refreshToken string) (*oauth2.Token, error)

	// RevokeToken asks the provider to invalidate token. Returns an
	// error wrapping ErrNotSupported for providers with no revoke
	// endpoint.
	RevokeToken(ctx context.Context, token string) error

	// ValidateConfig reports whether this adapter's configuration
	// (credentials, scopes) is sufficient to run its flows.
	ValidateConfig() error

	// TokenSource wraps a stored token so the oauth2 HTTP transport can
	// auto-refresh it using the provider's refresh endpoint.
	TokenSource(ctx context.Context, token *oauth2.Token) oauth2.TokenSource
}

// Registry holds one configured Provider per platform.
type Registry struct {
	providers map[models.Platform]Provider
}

// NewRegistry builds an empty registry; call Register for each
// configured platform.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[models.Platform]Provider)}
}

// Register adds p to the registry, keyed by its own Platform().
func (r *Registry) Register(p Provider) {
	r.providers[p.Platform()] = p
}

// Get returns the adapter for platform, or false if it isn't configured.
func (r *Registry) Get(platform models.Platform) (Provider, bool) {
	p, ok := r.providers[platform]
	return p, ok
}

// Platforms lists every platform with a registered adapter.
func (r *Registry) Platforms() []models.Platform {
	out := make([]models.Platform, 0, len(r.providers))
	for p := range r.providers {
		out = append(out, p)
	}
	return out
}

// --- PKCE helpers ---

// GenerateCodeVerifier returns a random PKCE code verifier.
func GenerateCodeVerifier() (string, error) {
	b := make([]byte, 64)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating code verifier: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// GenerateCodeChallenge derives the S256 PKCE code challenge from a
// verifier.
func GenerateCodeChallenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// --- base adapter shared by providers that use golang.org/x/oauth2 plain
// authorization-code flows with no provider-specific quirks ---

type baseAdapter struct {
	platform        models.Platform
	config          oauth2.Config
	usesPKCE        bool
	supportsRefresh bool // golang.org/x/oauth2 defaults assume refresh support; set false to opt out
	revokeURL       string
	userInfoFunc    func(ctx context.Context, client *http.Client) (OAuthUserInfo, error)
}

func (a *baseAdapter) Platform() models.Platform { return a.platform }

func (a *baseAdapter) Capabilities() map[Capability]bool {
	caps := map[Capability]bool{}
	if a.usesPKCE {
		caps[CapabilityPKCE] = true
	}
	if a.supportsRefresh {
		caps[CapabilityRefresh] = true
	}
	if a.revokeURL != "" {
		caps[CapabilityRevoke] = true
	}
	return caps
}

func (a *baseAdapter) InitiateFlow(states *oauthstate.Manager, userID uuid.UUID) (authURL, stateToken string, err error) {
	var codeVerifier, codeChallenge string
	if a.usesPKCE {
		codeVerifier, err = GenerateCodeVerifier()
		if err != nil {
			return "", "", err
		}
		codeChallenge = GenerateCodeChallenge(codeVerifier)
	}

	stateToken, err = states.Issue(oauthstate.Entry{
		UserID:       userID,
		Provider:     string(a.platform),
		RedirectURI:  a.config.RedirectURL,
		CodeVerifier: codeVerifier,
	})
	if err != nil {
		return "", "", fmt.Errorf("%s: issuing state token: %w", a.platform, err)
	}
	return a.AuthCodeURL(stateToken, codeChallenge), stateToken, nil
}

func (a *baseAdapter) AuthCodeURL(state, codeChallenge string) string {
	opts := []oauth2.AuthCodeOption{oauth2.AccessTypeOffline}
	if a.usesPKCE && codeChallenge != "" {
		opts = append(opts,
			oauth2.SetAuthURLParam("code_challenge", codeChallenge),
			oauth2.SetAuthURLParam("code_challenge_method", "S256"),
		)
	}
	return a.config.AuthCodeURL(state, opts...)
}

func (a *baseAdapter) Exchange(ctx context.Context, code, codeVerifier string) (*oauth2.Token, error) {
	var opts []oauth2.AuthCodeOption
	if a.usesPKCE && codeVerifier != "" {
		opts = append(opts, oauth2.SetAuthURLParam("code_verifier", codeVerifier))
	}
	token, err := a.config.Exchange(ctx, code, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: exchanging code for token: %w", a.platform, err)
	}
	return token, nil
}

func (a *baseAdapter) GetUserInfo(ctx context.Context, token *oauth2.Token) (OAuthUserInfo, error) {
	client := a.config.Client(ctx, token)
	return a.userInfoFunc(ctx, client)
}

func (a *baseAdapter) RefreshToken(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	if !a.supportsRefresh {
		return nil, fmt.Errorf("%s: %w", a.platform, ErrNotSupported)
	}
	token, err := a.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, fmt.Errorf("%s: refreshing token: %w", a.platform, err)
	}
	return token, nil
}

func (a *baseAdapter) RevokeToken(ctx context.Context, token string) error {
	if a.revokeURL == "" {
		return fmt.Errorf("%s: %w", a.platform, ErrNotSupported)
	}
	form := url.Values{
		"token":         {token},
		"client_id":     {a.config.ClientID},
		"client_secret": {a.config.ClientSecret},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.revokeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: revoking token: %w", a.platform, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s: revoke request returned status %s", a.platform, resp.Status)
	}
	return nil
}

func (a *baseAdapter) ValidateConfig() error {
	if a.config.ClientID == "" {
		return fmt.Errorf("%s: client id is required", a.platform)
	}
	if a.config.ClientSecret == "" {
		return fmt.Errorf("%s: client secret is required", a.platform)
	}
	if a.config.RedirectURL == "" {
		return fmt.Errorf("%s: redirect uri is required", a.platform)
	}
	return nil
}

func (a *baseAdapter) TokenSource(ctx context.Context, token *oauth2.Token) oauth2.TokenSource {
	return oauth2.ReuseTokenSource(token, a.config.TokenSource(ctx, token))
}

// --- Spotify ---

// NewSpotify builds the Spotify adapter. Spotify's current API issues
// PKCE-only authorization codes for public clients; PKCE is always used.
// Spotify exposes no programmatic token-revoke endpoint.
func NewSpotify(clientID, clientSecret, redirectURI string, scopes []string) Provider {
	return &baseAdapter{
		platform: models.PlatformSpotify,
		config: oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURI,
			Scopes:       scopes,
			Endpoint:     spotify.Endpoint,
		},
		usesPKCE:        true,
		supportsRefresh: true,
		userInfoFunc:    fetchJSONField(spotifyUserInfoURL, "id"),
	}
}

const spotifyUserInfoURL = "https://api.spotify.com/v1/me"

// --- Google (used both as an identity provider and for YouTube Music,
// which rides on Google's OAuth with the YouTube Data API scope) ---

func newGoogleLike(platform models.Platform, clientID, clientSecret, redirectURI string, scopes []string) Provider {
	return &baseAdapter{
		platform: platform,
		config: oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURI,
			Scopes:       scopes,
			Endpoint:     google.Endpoint,
		},
		usesPKCE:        true,
		supportsRefresh: true,
		revokeURL:       "https://oauth2.googleapis.com/revoke",
		userInfoFunc:    fetchJSONField("https://www.googleapis.com/oauth2/v3/userinfo", "sub"),
	}
}

// NewGoogle builds the Google identity adapter.
func NewGoogle(clientID, clientSecret, redirectURI string, scopes []string) Provider {
	return newGoogleLike(models.PlatformGoogle, clientID, clientSecret, redirectURI, scopes)
}

// NewYouTubeMusic builds the YouTube Music adapter, which authenticates
// through Google's OAuth endpoint with YouTube-scoped permissions.
func NewYouTubeMusic(clientID, clientSecret, redirectURI string, scopes []string) Provider {
	return newGoogleLike(models.PlatformYouTubeMusic, clientID, clientSecret, redirectURI, scopes)
}

// --- GitHub ---

// githubAdapter overrides ValidateConfig to require the user:email scope
// and never supports refresh (GitHub OAuth apps issue non-expiring
// access tokens with no refresh grant).
type githubAdapter struct {
	baseAdapter
}

// NewGitHub builds the GitHub identity adapter.
func NewGitHub(clientID, clientSecret, redirectURI string, scopes []string) Provider {
	return &githubAdapter{baseAdapter: baseAdapter{
		platform: models.PlatformGitHub,
		config: oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURI,
			Scopes:       scopes,
			Endpoint:     github.Endpoint,
		},
		supportsRefresh: false,
		userInfoFunc:    fetchGitHubUserInfo,
	}}
}

func (a *githubAdapter) ValidateConfig() error {
	if err := a.baseAdapter.ValidateConfig(); err != nil {
		return err
	}
	for _, s := range a.config.Scopes {
		if s == "user:email" {
			return nil
		}
	}
	return fmt.Errorf("github: required scope %q not configured", "user:email")
}

func fetchGitHubUserInfo(ctx context.Context, client *http.Client) (OAuthUserInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://api.github.com/user", nil)
	if err != nil {
		return OAuthUserInfo{}, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return OAuthUserInfo{}, fmt.Errorf("fetching github user: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return OAuthUserInfo{}, fmt.Errorf("github user lookup: unexpected status %s", resp.Status)
	}

	var body struct {
		ID        int64   `json:"id"`
		Login     string  `json:"login"`
		Name      string  `json:"name"`
		Email     *string `json:"email"`
		AvatarURL string  `json:"avatar_url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return OAuthUserInfo{}, fmt.Errorf("decoding github user: %w", err)
	}

	info := OAuthUserInfo{
		ProviderUserID: fmt.Sprintf("%d", body.ID),
		ProviderData:   map[string]any{"login": body.Login},
	}
	if body.AvatarURL != "" {
		avatar := body.AvatarURL
		info.AvatarURL = &avatar
	}
	displayName := body.Name
	if displayName == "" {
		displayName = body.Login
	}
	info.DisplayName = &displayName
	if first, last, ok := splitName(displayName); ok {
		info.FirstName = &first
		if last != "" {
			info.LastName = &last
		}
	}

	if body.Email != nil && *body.Email != "" {
		info.Email = body.Email
		verified := true
		info.EmailVerified = &verified
		return info, nil
	}

	// GitHub omits the primary email from /user when it's kept private;
	// fall back to /user/emails and prefer the primary, verified address.
	email, verified, err := fetchGitHubPrimaryEmail(ctx, client)
	if err != nil {
		return info, nil
	}
	if email != "" {
		info.Email = &email
		info.EmailVerified = &verified
	}
	return info, nil
}

func fetchGitHubPrimaryEmail(ctx context.Context, client *http.Client) (email string, verified bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://api.github.com/user/emails", nil)
	if err != nil {
		return "", false, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", false, fmt.Errorf("fetching github user emails: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", false, fmt.Errorf("github user emails lookup: unexpected status %s", resp.Status)
	}

	var emails []struct {
		Email    string `json:"email"`
		Primary  bool   `json:"primary"`
		Verified bool   `json:"verified"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&emails); err != nil {
		return "", false, fmt.Errorf("decoding github user emails: %w", err)
	}

	var anyVerified string
	for _, e := range emails {
		if e.Primary && e.Verified {
			return e.Email, true, nil
		}
		if e.Verified && anyVerified == "" {
			anyVerified = e.Email
		}
	}
	if anyVerified != "" {
		return anyVerified, true, nil
	}
	return "", false, nil
}

func splitName(name string) (first, last string, ok bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", "", false
	}
	idx := strings.IndexByte(name, ' ')
	if idx < 0 {
		return name, "", true
	}
	return name[:idx], strings.TrimSpace(name[idx+1:]), true
}

// --- Apple / Sign in with Apple ---
//
// Apple doesn't expose a profile endpoint: the user's stable subject id,
// email, and email-verification state all travel inside the signed
// id_token returned alongside the access token. The adapter parses that
// JWS to recover them instead of making a follow-up HTTP call.
type appleAdapter struct {
	baseAdapter
}

// NewApple builds the Sign in with Apple adapter.
func NewApple(clientID, clientSecret, redirectURI string, scopes []string) Provider {
	a := &appleAdapter{baseAdapter: baseAdapter{
		platform: models.PlatformApple,
		config: oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURI,
			Scopes:       scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  "https://appleid.apple.com/auth/authorize",
				TokenURL: "https://appleid.apple.com/auth/token",
			},
		},
		usesPKCE:        false,
		supportsRefresh: true,
	}}
	a.userInfoFunc = func(ctx context.Context, client *http.Client) (OAuthUserInfo, error) {
		return OAuthUserInfo{}, fmt.Errorf("apple: call GetUserInfo with the raw token, not the client")
	}
	return a
}

func (a *appleAdapter) Capabilities() map[Capability]bool {
	caps := a.baseAdapter.Capabilities()
	caps[CapabilityIdentityJWS] = true
	return caps
}

// GetUserInfo overrides the base implementation: Apple's subject id,
// email, and email_verified all come from the `id_token`'s claims (the
// vault layer is responsible for verifying the signature against
// Apple's published JWKS before trusting it elsewhere; this adapter only
// extracts the claims for correlation).
func (a *appleAdapter) GetUserInfo(ctx context.Context, token *oauth2.Token) (OAuthUserInfo, error) {
	raw, ok := token.Extra("id_token").(string)
	if !ok || raw == "" {
		return OAuthUserInfo{}, fmt.Errorf("apple: token response missing id_token")
	}
	parsed, err := jwt.ParseInsecure([]byte(raw))
	if err != nil {
		return OAuthUserInfo{}, fmt.Errorf("apple: parsing id_token: %w", err)
	}

	info := OAuthUserInfo{ProviderUserID: parsed.Subject(), ProviderData: map[string]any{}}
	if v, ok := parsed.Get("email"); ok {
		if s, ok := v.(string); ok && s != "" {
			info.Email = &s
		}
	}
	if v, ok := parsed.Get("email_verified"); ok {
		switch b := v.(type) {
		case bool:
			info.EmailVerified = &b
		case string:
			verified := b == "true"
			info.EmailVerified = &verified
		}
	}
	if v, ok := parsed.Get("is_private_email"); ok {
		info.ProviderData["is_private_email"] = v
	}
	return info, nil
}

// --- Apple Music ---
//
// Apple Music uses developer/MusicKit tokens rather than a standard
// three-legged authorization-code flow on the server side; the
// authenticated party is the end user's Music User Token, obtained
// client-side via MusicKit JS and handed to the backplane directly. The
// adapter still implements Provider so it can sit in the same registry
// and be exercised by the vault/refresh/health subsystems uniformly.
// MusicKit tokens are long-lived and have no OAuth2 refresh grant.
type appleMusicAdapter struct {
	baseAdapter
}

// NewAppleMusic builds a placeholder adapter for Apple Music so it can
// be registered and health-checked alongside the other platforms, even
// though its token issuance happens client-side.
func NewAppleMusic(clientID, clientSecret, redirectURI string, scopes []string) Provider {
	return &appleMusicAdapter{baseAdapter: baseAdapter{
		platform: models.PlatformAppleMusic,
		config: oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURI,
			Scopes:       scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  "https://authorize.music.apple.com/woa",
				TokenURL: "https://authorize.music.apple.com/woa/token",
			},
		},
		supportsRefresh: false,
		userInfoFunc: func(ctx context.Context, client *http.Client) (OAuthUserInfo, error) {
			return OAuthUserInfo{}, fmt.Errorf("apple_music: user id is supplied by the client-issued Music User Token, not discovered server-side")
		},
	}}
}

// --- Tidal ---

// NewTidal builds the Tidal adapter.
func NewTidal(clientID, clientSecret, redirectURI string, scopes []string) Provider {
	return &baseAdapter{
		platform: models.PlatformTidal,
		config: oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURI,
			Scopes:       scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  "https://login.tidal.com/authorize",
				TokenURL: "https://auth.tidal.com/v1/oauth2/token",
			},
		},
		usesPKCE:        true,
		supportsRefresh: true,
		userInfoFunc:    fetchJSONField("https://openapi.tidal.com/v2/users/me", "id"),
	}
}

// --- Deezer ---

// NewDeezer builds the Deezer adapter. Deezer's access token comes back
// as a query parameter rather than a JSON body, but golang.org/x/oauth2's
// Exchange already handles form-encoded token responses.
func NewDeezer(clientID, clientSecret, redirectURI string, scopes []string) Provider {
	return &baseAdapter{
		platform: models.PlatformDeezer,
		config: oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURI,
			Scopes:       scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  "https://connect.deezer.com/oauth/auth.php",
				TokenURL: "https://connect.deezer.com/oauth/access_token.php",
			},
		},
		supportsRefresh: true,
		userInfoFunc:    fetchJSONField("https://api.deezer.com/user/me", "id"),
	}
}

// fetchJSONField GETs url with client and builds an OAuthUserInfo from
// its top-level fields, covering the common "thin REST client" shape
// used by most of these platforms' user-info endpoints. idField names
// the field holding the stable per-platform user id.
func fetchJSONField(url, idField string) func(ctx context.Context, client *http.Client) (OAuthUserInfo, error) {
	return func(ctx context.Context, client *http.Client) (OAuthUserInfo, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return OAuthUserInfo{}, err
		}
		resp, err := client.Do(req)
		if err != nil {
			return OAuthUserInfo{}, fmt.Errorf("fetching user info from %s: %w", url, err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return OAuthUserInfo{}, fmt.Errorf("user info request to %s: unexpected status %s", url, resp.Status)
		}
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return OAuthUserInfo{}, fmt.Errorf("reading user info response: %w", err)
		}
		var raw map[string]any
		if err := json.Unmarshal(body, &raw); err != nil {
			return OAuthUserInfo{}, fmt.Errorf("decoding user info response: %w", err)
		}
		val, ok := raw[idField]
		if !ok {
			return OAuthUserInfo{}, fmt.Errorf("user info response missing field %q", idField)
		}

		info := OAuthUserInfo{ProviderUserID: stringifyField(val), ProviderData: raw}
		if email, ok := raw["email"].(string); ok && email != "" {
			info.Email = &email
		}
		if verified, ok := raw["email_verified"].(bool); ok {
			info.EmailVerified = &verified
		}
		if name, ok := firstString(raw, "display_name", "name"); ok {
			info.DisplayName = &name
		}
		if avatar, ok := firstString(raw, "picture", "avatar_url"); ok {
			info.AvatarURL = &avatar
		}
		if locale, ok := raw["locale"].(string); ok && locale != "" {
			info.Locale = &locale
		}
		return info, nil
	}
}

func stringifyField(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return fmt.Sprintf("%.0f", t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

func firstString(raw map[string]any, keys ...string) (string, bool) {
	for _, k := range keys {
		if v, ok := raw[k].(string); ok && v != "" {
			return v, true
		}
	}
	return "", false
}
