package news

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/nodrake/backplane/internal/models"
)

type redditListing struct {
	Data struct {
		Children []struct {
			Data struct {
				ID        string  `json:"id"`
				Title     string  `json:"title"`
				Selftext  string  `json:"selftext"`
				URL       string  `json:"url"`
				Permalink string  `json:"permalink"`
				Author    string  `json:"author"`
				Subreddit string  `json:"subreddit"`
				CreatedAt float64 `json:"created_utc"`
			} `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

// RedditMonitor polls the public JSON listing of a fixed set of
// subreddits. Reddit's listing endpoint needs no authentication, only a
// descriptive User-Agent.
type RedditMonitor struct {
	baseURL    string
	subreddits []string
	userAgent  string
	httpClient *http.Client
}

// NewRedditMonitor builds a monitor over subreddits.
func NewRedditMonitor(subreddits []string, userAgent string) *RedditMonitor {
	return &RedditMonitor{
		baseURL:    "https://www.reddit.com",
		subreddits: subreddits,
		userAgent:  userAgent,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// FetchAllSubreddits fetches each configured subreddit's "new" listing
// and normalizes posts into FetchedArticle.
func (m *RedditMonitor) FetchAllSubreddits(ctx context.Context) ([]models.FetchedArticle, error) {
	var out []models.FetchedArticle
	for _, subreddit := range m.subreddits {
		posts, err := m.fetchOne(ctx, subreddit)
		if err != nil {
			return out, fmt.Errorf("fetching r/%s: %w", subreddit, err)
		}
		out = append(out, posts...)
	}
	return out, nil
}

func (m *RedditMonitor) fetchOne(ctx context.Context, subreddit string) ([]models.FetchedArticle, error) {
	u := fmt.Sprintf("%s/r/%s/new.json?limit=25", m.baseURL, subreddit)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", m.userAgent)

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var listing redditListing
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return nil, fmt.Errorf("decoding listing: %w", err)
	}

	now := time.Now().UTC()
	out := make([]models.FetchedArticle, 0, len(listing.Data.Children))
	for _, child := range listing.Data.Children {
		post := child.Data
		if post.ID == "" {
			continue
		}
		url := post.URL
		if url == "" {
			url = m.baseURL + post.Permalink
		}
		article := models.FetchedArticle{
			ID:         uuid.New(),
			SourceID:   "reddit",
			URL:        url,
			Title:      post.Title,
			FetchedAt:  now,
			Authors:    []string{post.Author},
			Categories: []string{"reddit", post.Subreddit},
		}
		if post.Selftext != "" {
			selftext := post.Selftext
			article.Content = &selftext
		}
		if post.CreatedAt > 0 {
			createdAt := time.Unix(int64(post.CreatedAt), 0).UTC()
			article.PublishedAt = &createdAt
		}
		out = append(out, article)
	}
	return out, nil
}
