package news

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewsAPIClientSearchParsesArticles(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Api-Key") != "test-key" {
			t.Errorf("expected api key header, got %q", r.Header.Get("X-Api-Key"))
		}
		w.Write([]byte(`{"status":"ok","totalResults":1,"articles":[{
			"source":{"id":"billboard","name":"Billboard"},
			"author":"Jane Doe",
			"title":"Big Release",
			"description":"desc",
			"url":"https://example.com/news/1",
			"publishedAt":"2024-01-02T15:04:05Z",
			"content":"full content"
		}]}`))
	}))
	defer srv.Close()

	c := NewNewsAPIClient("test-key", srv.URL)
	articles, err := c.SearchMusicNews(context.Background(), "")
	if err != nil {
		t.Fatalf("SearchMusicNews: %v", err)
	}
	if len(articles) != 1 {
		t.Fatalf("expected 1 article, got %d", len(articles))
	}
	if articles[0].Content == nil || *articles[0].Content != "full content" {
		t.Fatalf("got content %v", articles[0].Content)
	}
}

func TestNewsAPIClientNoKeyReturnsNothing(t *testing.T) {
	c := NewNewsAPIClient("", "http://unused")
	articles, err := c.SearchMusicNews(context.Background(), "")
	if err != nil {
		t.Fatalf("SearchMusicNews: %v", err)
	}
	if articles != nil {
		t.Fatalf("expected nil articles when disabled, got %v", articles)
	}
}
