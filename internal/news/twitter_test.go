package news

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestTwitterMonitorSearchParsesTweets(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-token" {
			t.Errorf("expected bearer auth header, got %q", r.Header.Get("Authorization"))
		}
		w.Write([]byte(`{
			"data":[{"id":"1","text":"Big album dropping next week","created_at":"2024-01-02T15:04:05Z","author_id":"u1"}],
			"includes":{"users":[{"id":"u1","username":"musicfan"}]}
		}`))
	}))
	defer srv.Close()

	m := NewTwitterMonitor("test-token", []string{"music news"})
	m.baseURL = srv.URL

	articles, err := m.SearchMusicNews(context.Background())
	if err != nil {
		t.Fatalf("SearchMusicNews: %v", err)
	}
	if len(articles) != 1 {
		t.Fatalf("expected 1 article, got %d", len(articles))
	}
	if articles[0].Authors[0] != "musicfan" {
		t.Fatalf("got authors %v", articles[0].Authors)
	}
	if articles[0].URL != "https://twitter.com/musicfan/status/1" {
		t.Fatalf("got url %q", articles[0].URL)
	}
}

func TestTwitterMonitorNoTokenReturnsNothing(t *testing.T) {
	m := NewTwitterMonitor("", []string{"music"})
	articles, err := m.SearchMusicNews(context.Background())
	if err != nil {
		t.Fatalf("SearchMusicNews: %v", err)
	}
	if articles != nil {
		t.Fatalf("expected nil articles when disabled, got %v", articles)
	}
}
