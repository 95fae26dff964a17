package news

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/nodrake/backplane/internal/models"
)

type twitterSearchResponse struct {
	Data []struct {
		ID        string `json:"id"`
		Text      string `json:"text"`
		CreatedAt string `json:"created_at"`
		AuthorID  string `json:"author_id"`
	} `json:"data"`
	Includes struct {
		Users []struct {
			ID       string `json:"id"`
			Username string `json:"username"`
		} `json:"users"`
	} `json:"includes"`
}

// TwitterMonitor searches recent tweets via the Twitter/X v2 recent
// search endpoint. Treated as an optional source: an empty bearer token
// means every call returns no results rather than erroring.
type TwitterMonitor struct {
	baseURL     string
	bearerToken string
	queries     []string
	httpClient  *http.Client
}

// NewTwitterMonitor builds a monitor over a fixed set of search queries.
func NewTwitterMonitor(bearerToken string, queries []string) *TwitterMonitor {
	return &TwitterMonitor{
		baseURL:     "https://api.twitter.com",
		bearerToken: bearerToken,
		queries:     queries,
		httpClient:  &http.Client{Timeout: 15 * time.Second},
	}
}

// SearchMusicNews runs every configured query against the recent-search
// endpoint and normalizes matches into FetchedArticle.
func (m *TwitterMonitor) SearchMusicNews(ctx context.Context) ([]models.FetchedArticle, error) {
	if m.bearerToken == "" || len(m.queries) == 0 {
		return nil, nil
	}

	var out []models.FetchedArticle
	for _, query := range m.queries {
		articles, err := m.searchOne(ctx, query)
		if err != nil {
			return out, err
		}
		out = append(out, articles...)
	}
	return out, nil
}

func (m *TwitterMonitor) searchOne(ctx context.Context, query string) ([]models.FetchedArticle, error) {
	u := fmt.Sprintf("%s/2/tweets/search/recent?query=%s&expansions=author_id&tweet.fields=created_at",
		m.baseURL, url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+m.bearerToken)

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("twitter search returned status %d", resp.StatusCode)
	}

	var parsed twitterSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decoding twitter response: %w", err)
	}

	usernames := make(map[string]string, len(parsed.Includes.Users))
	for _, u := range parsed.Includes.Users {
		usernames[u.ID] = u.Username
	}

	now := time.Now().UTC()
	out := make([]models.FetchedArticle, 0, len(parsed.Data))
	for _, tweet := range parsed.Data {
		username := usernames[tweet.AuthorID]
		if username == "" {
			username = tweet.AuthorID
		}
		titlePreview := tweet.Text
		if len(titlePreview) > 50 {
			titlePreview = titlePreview[:50] + "..."
		}
		content := tweet.Text
		article := models.FetchedArticle{
			ID:         uuid.New(),
			SourceID:   "twitter",
			URL:        fmt.Sprintf("https://twitter.com/%s/status/%s", username, tweet.ID),
			Title:      fmt.Sprintf("@%s: %s", username, titlePreview),
			Content:    &content,
			FetchedAt:  now,
			Authors:    []string{username},
			Categories: []string{"twitter"},
		}
		if published, err := time.Parse(time.RFC3339, tweet.CreatedAt); err == nil {
			article.PublishedAt = &published
		}
		out = append(out, article)
	}
	return out, nil
}
