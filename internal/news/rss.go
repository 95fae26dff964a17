package news

import (
	"context"
	"encoding/xml"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nodrake/backplane/internal/models"
)

// rssFeed is the minimal RSS 2.0 shape this fetcher understands.
type rssFeed struct {
	XMLName xml.Name  `xml:"rss"`
	Channel rssChannel `xml:"channel"`
}

type rssChannel struct {
	Items []rssItem `xml:"item"`
}

type rssItem struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	Description string `xml:"description"`
	PubDate     string `xml:"pubDate"`
	Author      string `xml:"author"`
}

var rssDateLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	"2006-01-02T15:04:05Z07:00",
	time.RFC3339,
}

func parseRSSDate(s string) *time.Time {
	for _, layout := range rssDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

// RSSFetcher polls a fixed set of RSS feed URLs.
type RSSFetcher struct {
	feedURLs   []string
	httpClient *http.Client
	logger     *log.Logger
}

// NewRSSFetcher builds a fetcher over feedURLs.
func NewRSSFetcher(feedURLs []string) *RSSFetcher {
	return &RSSFetcher{
		feedURLs:   feedURLs,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     log.New(log.Writer(), "[rss] ", log.LstdFlags),
	}
}

// FetchAll fetches every configured feed concurrently, normalizing items
// into FetchedArticle. A single feed's failure is logged and does not
// fail the others.
func (f *RSSFetcher) FetchAll(ctx context.Context) ([]models.FetchedArticle, error) {
	if len(f.feedURLs) == 0 {
		return nil, nil
	}

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results []models.FetchedArticle
	)

	for _, feedURL := range f.feedURLs {
		wg.Add(1)
		go func(feedURL string) {
			defer wg.Done()
			articles, err := f.fetchOne(ctx, feedURL)
			if err != nil {
				f.logger.Printf("fetching %s: %v", feedURL, err)
				return
			}
			mu.Lock()
			results = append(results, articles...)
			mu.Unlock()
		}(feedURL)
	}
	wg.Wait()

	return results, nil
}

func (f *RSSFetcher) fetchOne(ctx context.Context, feedURL string) ([]models.FetchedArticle, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var feed rssFeed
	if err := xml.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return nil, fmt.Errorf("decoding feed: %w", err)
	}

	now := time.Now().UTC()
	out := make([]models.FetchedArticle, 0, len(feed.Channel.Items))
	for _, item := range feed.Channel.Items {
		if item.Link == "" {
			continue
		}
		article := models.FetchedArticle{
			ID:         uuid.New(),
			SourceID:   feedURL,
			URL:        item.Link,
			Title:      item.Title,
			FetchedAt:  now,
			Categories: []string{"rss"},
		}
		if item.Description != "" {
			description := item.Description
			article.Content = &description
		}
		if item.Author != "" {
			article.Authors = []string{item.Author}
		}
		article.PublishedAt = parseRSSDate(item.PubDate)
		out = append(out, article)
	}
	return out, nil
}
