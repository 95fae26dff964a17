package news

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nodrake/backplane/internal/models"
)

func TestEnrichArticleStripsHTML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><head><style>body{color:red}</style></head>
		<body><script>track()</script><h1>Headline</h1><p>The band released a new album today.</p></body></html>`))
	}))
	defer srv.Close()

	s := NewWebScraper()
	article := models.FetchedArticle{URL: srv.URL, Title: "Headline"}
	enriched, err := s.EnrichArticle(context.Background(), article)
	if err != nil {
		t.Fatalf("EnrichArticle: %v", err)
	}
	if enriched.Content == nil {
		t.Fatal("expected content to be populated")
	}
	for _, tag := range []string{"<script>", "<style>", "<h1>"} {
		if strings.Contains(*enriched.Content, tag) {
			t.Fatalf("expected %q to be stripped, got %q", tag, *enriched.Content)
		}
	}
	if !strings.Contains(*enriched.Content, "new album") {
		t.Fatalf("expected body text preserved, got %q", *enriched.Content)
	}
}

func TestEnrichArticleFailsOnNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	s := NewWebScraper()
	_, err := s.EnrichArticle(context.Background(), models.FetchedArticle{URL: srv.URL})
	if err == nil {
		t.Fatal("expected an error for a 404 response")
	}
}
