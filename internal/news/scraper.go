package news

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/nodrake/backplane/internal/models"
)

var (
	scriptOrStyleTag = regexp.MustCompile(`(?is)<(script|style)[^>]*>.*?</(script|style)>`)
	htmlTag          = regexp.MustCompile(`(?s)<[^>]+>`)
	collapseSpace    = regexp.MustCompile(`\s+`)
)

// WebScraper fetches an article's URL and derives a plain-text body when
// the source feed didn't include full content. This is a best-effort
// enrichment step: any failure leaves the original article untouched.
type WebScraper struct {
	httpClient *http.Client
}

// NewWebScraper builds a scraper.
func NewWebScraper() *WebScraper {
	return &WebScraper{httpClient: &http.Client{Timeout: 10 * time.Second}}
}

// EnrichArticle fetches article.URL and sets Content to the page body's
// plain text, replacing any existing Content.
func (s *WebScraper) EnrichArticle(ctx context.Context, article models.FetchedArticle) (models.FetchedArticle, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, article.URL, nil)
	if err != nil {
		return article, err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return article, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return article, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	buf := make([]byte, 0, 64*1024)
	chunk := make([]byte, 4096)
	for len(buf) < cap(buf) {
		n, err := resp.Body.Read(chunk)
		buf = append(buf, chunk[:n]...)
		if err != nil {
			break
		}
	}

	text := stripHTML(string(buf))
	if text == "" {
		return article, fmt.Errorf("no extractable text content")
	}
	article.Content = &text
	return article, nil
}

func stripHTML(html string) string {
	html = scriptOrStyleTag.ReplaceAllString(html, " ")
	html = htmlTag.ReplaceAllString(html, " ")
	html = collapseSpace.ReplaceAllString(html, " ")
	return strings.TrimSpace(html)
}
