package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"golang.org/x/time/rate"
)

func newTestMusicBrainzClient(t *testing.T, srv *httptest.Server) *MusicBrainzClient {
	t.Helper()
	c := NewMusicBrainzClient("backplane-test", "0.0.1", "test@example.com")
	c.baseURL = srv.URL
	return c
}

func TestSearchArtistsParsesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") == "" {
			t.Error("expected a User-Agent header on every MusicBrainz request")
		}
		resp := musicBrainzSearchResponse{
			Count: 1,
			Artists: []MusicBrainzArtist{
				{ID: "mbid-1", Name: "Test Artist", ISNIs: []string{"0000000123456789"}},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := newTestMusicBrainzClient(t, srv)
	artists, err := c.SearchArtists(context.Background(), "Test Artist")
	if err != nil {
		t.Fatalf("SearchArtists: %v", err)
	}
	if len(artists) != 1 || artists[0].ID != "mbid-1" {
		t.Fatalf("unexpected artists: %+v", artists)
	}
}

func TestSearchArtistsRequiresName(t *testing.T) {
	c := NewMusicBrainzClient("backplane-test", "0.0.1", "test@example.com")
	if _, err := c.SearchArtists(context.Background(), ""); err == nil {
		t.Fatal("expected an error for an empty artist name")
	}
}

func TestSearchArtistsCachesResults(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		json.NewEncoder(w).Encode(musicBrainzSearchResponse{
			Artists: []MusicBrainzArtist{{ID: "mbid-1", Name: "Cached Artist"}},
		})
	}))
	defer srv.Close()

	c := newTestMusicBrainzClient(t, srv)
	c.limiter.SetLimit(rate.Inf) // avoid the real 1 req/sec throttle slowing the test

	if _, err := c.SearchArtists(context.Background(), "Cached Artist"); err != nil {
		t.Fatalf("SearchArtists: %v", err)
	}
	if _, err := c.SearchArtists(context.Background(), "Cached Artist"); err != nil {
		t.Fatalf("SearchArtists: %v", err)
	}
	if requests != 1 {
		t.Fatalf("expected the second call to hit cache, got %d requests", requests)
	}
}

func TestCleanArtistStripsFeaturedArtists(t *testing.T) {
	cleaner := NewMetadataCleaner("Latin")
	cleaned, changed := cleaner.CleanArtist("Drake, Future")
	if !changed {
		t.Fatal("expected the comma-separated featuring clause to be stripped")
	}
	if cleaned != "Drake" {
		t.Fatalf("got %q, want %q", cleaned, "Drake")
	}
}
