package news

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRedditMonitorParsesListing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") == "" {
			t.Error("expected a User-Agent header")
		}
		w.Write([]byte(`{"data":{"children":[{"data":{
			"id":"abc123","title":"New single dropped","selftext":"",
			"url":"https://example.com/single","permalink":"/r/music/comments/abc123",
			"author":"fan1","subreddit":"music","created_utc":1700000000
		}}]}}`))
	}))
	defer srv.Close()

	m := NewRedditMonitor([]string{"music"}, "test-agent/1.0")
	m.baseURL = srv.URL

	posts, err := m.FetchAllSubreddits(context.Background())
	if err != nil {
		t.Fatalf("FetchAllSubreddits: %v", err)
	}
	if len(posts) != 1 {
		t.Fatalf("expected 1 post, got %d", len(posts))
	}
	if posts[0].URL != "https://example.com/single" {
		t.Fatalf("got url %q", posts[0].URL)
	}
	if posts[0].Authors[0] != "fan1" {
		t.Fatalf("got authors %v", posts[0].Authors)
	}
	if posts[0].PublishedAt == nil {
		t.Fatal("expected created_utc to populate published_at")
	}
}

func TestRedditMonitorFallsBackToPermalink(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"children":[{"data":{
			"id":"xyz","title":"Tour announced","selftext":"details here",
			"url":"","permalink":"/r/music/comments/xyz","author":"fan2",
			"subreddit":"music","created_utc":1700000000
		}}]}}`))
	}))
	defer srv.Close()

	m := NewRedditMonitor([]string{"music"}, "test-agent/1.0")
	m.baseURL = srv.URL

	posts, err := m.FetchAllSubreddits(context.Background())
	if err != nil {
		t.Fatalf("FetchAllSubreddits: %v", err)
	}
	if len(posts) != 1 || posts[0].URL != srv.URL+"/r/music/comments/xyz" {
		t.Fatalf("expected permalink fallback, got %+v", posts)
	}
}

func TestRedditMonitorNoSubredditsReturnsEmpty(t *testing.T) {
	m := NewRedditMonitor(nil, "agent")
	posts, err := m.FetchAllSubreddits(context.Background())
	if err != nil {
		t.Fatalf("FetchAllSubreddits: %v", err)
	}
	if len(posts) != 0 {
		t.Fatalf("expected no posts, got %d", len(posts))
	}
}
