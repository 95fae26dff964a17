// Package identity resolves artist identities across streaming
// platforms, using MusicBrainz as the canonical lookup, falling back to
// fuzzy name matching against artists already known to the vault.
package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// MusicBrainzArtist is the subset of MusicBrainz's artist search response
// this resolver cares about.
type MusicBrainzArtist struct {
	ID       string               `json:"id"`
	Name     string               `json:"name"`
	SortName string               `json:"sort-name,omitempty"`
	Aliases  []MusicBrainzAlias   `json:"aliases,omitempty"`
	Country  string               `json:"country,omitempty"`
	ISNIs    []string             `json:"isnis,omitempty"`
	LifeSpan *MusicBrainzLifeSpan `json:"life-span,omitempty"`
	Tags     []MusicBrainzTag     `json:"tags,omitempty"`
}

// MusicBrainzAlias is an alternate name MusicBrainz records for an artist.
type MusicBrainzAlias struct {
	Name     string `json:"name"`
	SortName string `json:"sort-name,omitempty"`
}

// MusicBrainzLifeSpan records whether an artist/group is still active.
type MusicBrainzLifeSpan struct {
	Begin string `json:"begin,omitempty"`
	End   string `json:"end,omitempty"`
	Ended *bool  `json:"ended,omitempty"`
}

// MusicBrainzTag is a community-contributed genre/style tag with a vote count.
type MusicBrainzTag struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

type musicBrainzSearchResponse struct {
	Artists []MusicBrainzArtist `json:"artists"`
	Count   int                 `json:"count"`
}

// cacheEntry holds a cached search result and its expiration time.
type cacheEntry struct {
	artists   []MusicBrainzArtist
	expiresAt time.Time
}

// MusicBrainzClient is a rate-limited, caching client for MusicBrainz's
// artist search API.
type MusicBrainzClient struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	limiter    *rate.Limiter

	cacheMu  sync.RWMutex
	cache    map[string]cacheEntry
	cacheTTL time.Duration

	logger *log.Logger
}

// NewMusicBrainzClient builds a client identifying itself per
// MusicBrainz's required user-agent format and rate-limited to 1
// request/second.
func NewMusicBrainzClient(appName, appVersion, contact string) *MusicBrainzClient {
	return &MusicBrainzClient{
		baseURL:    "https://musicbrainz.org/ws/2",
		userAgent:  fmt.Sprintf("%s/%s (%s)", appName, appVersion, contact),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    rate.NewLimiter(rate.Every(time.Second), 1),
		cache:      make(map[string]cacheEntry),
		cacheTTL:   time.Hour,
		logger:     log.New(os.Stdout, "musicbrainz: ", log.LstdFlags|log.Lmsgprefix),
	}
}

// SearchArtists looks up candidate MusicBrainz artists by name, caching
// results for an hour to stay well under the API's rate limit.
func (c *MusicBrainzClient) SearchArtists(ctx context.Context, name string) ([]MusicBrainzArtist, error) {
	if name == "" {
		return nil, fmt.Errorf("musicbrainz: artist name is required")
	}

	cacheKey := name
	c.cacheMu.RLock()
	if entry, ok := c.cache[cacheKey]; ok && time.Now().UTC().Before(entry.expiresAt) {
		c.cacheMu.RUnlock()
		return entry.artists, nil
	}
	c.cacheMu.RUnlock()

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("musicbrainz: rate limiter: %w", err)
	}

	endpoint := fmt.Sprintf("%s/artist/?query=artist:%s&fmt=json&limit=5", c.baseURL, url.QueryEscape(name))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("musicbrainz: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Printf("search for %q returned status %d", name, resp.StatusCode)
		return nil, nil
	}

	var parsed musicBrainzSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("musicbrainz: decoding response: %w", err)
	}

	c.cacheMu.Lock()
	c.cache[cacheKey] = cacheEntry{artists: parsed.Artists, expiresAt: time.Now().UTC().Add(c.cacheTTL)}
	c.cacheMu.Unlock()

	return parsed.Artists, nil
}
