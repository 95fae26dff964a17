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

type newsAPIResponse struct {
	Status       string          `json:"status"`
	TotalResults int             `json:"totalResults"`
	Articles     []newsAPIArticle `json:"articles"`
}

type newsAPIArticle struct {
	Source struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"source"`
	Author      string `json:"author"`
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url"`
	URLToImage  string `json:"urlToImage"`
	PublishedAt string `json:"publishedAt"`
	Content     string `json:"content"`
}

// NewsAPIClient queries the NewsAPI "everything" endpoint for music news.
type NewsAPIClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewNewsAPIClient builds a client. apiKey may be empty, in which case
// every search call returns an empty result set (the feature is
// considered disabled rather than erroring).
func NewNewsAPIClient(apiKey, baseURL string) *NewsAPIClient {
	return &NewsAPIClient{apiKey: apiKey, baseURL: baseURL, httpClient: &http.Client{Timeout: 15 * time.Second}}
}

// SearchMusicNews searches for general music-industry news, optionally
// narrowed to a query string.
func (c *NewsAPIClient) SearchMusicNews(ctx context.Context, query string) ([]models.FetchedArticle, error) {
	if c.apiKey == "" {
		return nil, nil
	}
	if query == "" {
		query = "music industry"
	}
	return c.search(ctx, query)
}

// SearchArtistNews searches for news mentioning a specific artist by name.
func (c *NewsAPIClient) SearchArtistNews(ctx context.Context, artistName string) ([]models.FetchedArticle, error) {
	if c.apiKey == "" {
		return nil, nil
	}
	return c.search(ctx, fmt.Sprintf("%q", artistName))
}

func (c *NewsAPIClient) search(ctx context.Context, query string) ([]models.FetchedArticle, error) {
	u := fmt.Sprintf("%s/everything?q=%s&sortBy=publishedAt&language=en", c.baseURL, url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("newsapi returned status %d", resp.StatusCode)
	}

	var parsed newsAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decoding newsapi response: %w", err)
	}

	now := time.Now().UTC()
	out := make([]models.FetchedArticle, 0, len(parsed.Articles))
	for _, a := range parsed.Articles {
		if a.URL == "" {
			continue
		}
		article := models.FetchedArticle{
			ID:         uuid.New(),
			SourceID:   "newsapi",
			URL:        a.URL,
			Title:      a.Title,
			FetchedAt:  now,
			Categories: []string{"newsapi"},
		}
		if a.Content != "" {
			content := a.Content
			article.Content = &content
		} else if a.Description != "" {
			description := a.Description
			article.Content = &description
		}
		if a.Author != "" {
			article.Authors = []string{a.Author}
		}
		if a.URLToImage != "" {
			image := a.URLToImage
			article.ImageURL = &image
		}
		if published, err := time.Parse(time.RFC3339, a.PublishedAt); err == nil {
			article.PublishedAt = &published
		}
		out = append(out, article)
	}
	return out, nil
}
