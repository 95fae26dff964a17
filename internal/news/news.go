// Package news orchestrates multi-source article ingestion: concurrent
// fetch from RSS/NewsAPI/Twitter/Reddit, URL deduplication, and a
// batched per-article pipeline of entity extraction and offense
// classification.
package news

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/nodrake/backplane/internal/models"
	"github.com/nodrake/backplane/internal/offense"
)

// ErrAlreadyRunning is returned by Run when a previous run has not yet
// completed.
var ErrAlreadyRunning = errors.New("news pipeline is already running")

// Config tunes the orchestrator's batching, dedup, and source toggles.
type Config struct {
	BatchSize           int
	SeenURLCap          int
	RSSIntervalMinutes  int
	SocialIntervalHours int
	FullIntervalHours   int
	ScrapingEnabled     bool
	EmbeddingEnabled    bool
}

// DefaultConfig mirrors the pipeline's original defaults: batches of 50,
// a 100k-entry seen-URL cap, and RSS/social/full runs every 30
// minutes/1 hour/6 hours.
func DefaultConfig() Config {
	return Config{
		BatchSize:           50,
		SeenURLCap:          100_000,
		RSSIntervalMinutes:  30,
		SocialIntervalHours: 1,
		FullIntervalHours:   6,
		ScrapingEnabled:     true,
		EmbeddingEnabled:    false,
	}
}

// Stats is the orchestrator's running tally of one or more pipeline runs.
type Stats struct {
	ArticlesFetched    int
	RSSArticles        int
	NewsAPIArticles    int
	TwitterPosts       int
	RedditPosts        int
	ArticlesScraped    int
	EntitiesExtracted  int
	OffensesDetected   int
	Errors             int
	LastRun            *time.Time
	LastRunDurationSec float64
}

// ProcessedArticle is a fetched article enriched with extracted entities
// and offense classifications.
type ProcessedArticle struct {
	Article               models.FetchedArticle
	Entities              []models.ExtractedEntity
	Offenses              []models.OffenseClassification
	ProcessedAt           time.Time
	ProcessingDurationMs  int64
}

// Embedder optionally turns an article into a vector embedding. No
// embedding model is wired into this backplane; NoopEmbedder is the
// default and always reports itself disabled.
type Embedder interface {
	Enabled() bool
	Embed(ctx context.Context, title, content string) ([]float32, error)
}

// NoopEmbedder implements Embedder without producing anything. It's the
// default embedder: the corpus carries no vector-embedding library, so
// this hook exists for future wiring but ships disabled.
type NoopEmbedder struct{}

func (NoopEmbedder) Enabled() bool { return false }
func (NoopEmbedder) Embed(ctx context.Context, title, content string) ([]float32, error) {
	return nil, nil
}

// Pipeline is the news orchestrator.
type Pipeline struct {
	cfg Config

	rss     *RSSFetcher
	newsAPI *NewsAPIClient
	twitter *TwitterMonitor
	reddit  *RedditMonitor
	scraper *WebScraper
	entity  *EntityExtractor
	offense *offense.Classifier
	embed   Embedder
	store   *Store

	seenURLs *lru.Cache[string, struct{}]

	mu    sync.RWMutex
	stats Stats

	runMu     sync.Mutex
	isRunning bool

	logger *log.Logger
}

// New builds a Pipeline from its constituent sources and processors.
func New(cfg Config, rss *RSSFetcher, newsAPI *NewsAPIClient, twitter *TwitterMonitor, reddit *RedditMonitor,
	entity *EntityExtractor, classifier *offense.Classifier, embed Embedder) *Pipeline {
	if embed == nil {
		embed = NoopEmbedder{}
	}
	cache, err := lru.New[string, struct{}](max(cfg.SeenURLCap, 1))
	if err != nil {
		panic(err)
	}
	return &Pipeline{
		cfg:      cfg,
		rss:      rss,
		newsAPI:  newsAPI,
		twitter:  twitter,
		reddit:   reddit,
		scraper:  NewWebScraper(),
		entity:   entity,
		offense:  classifier,
		embed:    embed,
		seenURLs: cache,
		logger:   log.New(log.Writer(), "[news] ", log.LstdFlags),
	}
}

// SetStore attaches persistence for fetched articles and offense
// classifications. Without a store, the pipeline runs entirely
// in-memory and processed results are only returned to the caller.
func (p *Pipeline) SetStore(store *Store) {
	p.store = store
}

// Run executes a full pipeline run: fetch every source, dedup, and
// process. Concurrent Run invocations are refused with
// ErrAlreadyRunning.
func (p *Pipeline) Run(ctx context.Context) ([]ProcessedArticle, error) {
	p.runMu.Lock()
	if p.isRunning {
		p.runMu.Unlock()
		return nil, ErrAlreadyRunning
	}
	p.isRunning = true
	p.runMu.Unlock()

	start := time.Now()
	p.logger.Println("starting news pipeline run")

	processed, runErr := p.runInternal(ctx)

	p.mu.Lock()
	now := time.Now().UTC()
	p.stats.LastRun = &now
	p.stats.LastRunDurationSec = time.Since(start).Seconds()
	p.mu.Unlock()

	p.runMu.Lock()
	p.isRunning = false
	p.runMu.Unlock()

	return processed, runErr
}

func (p *Pipeline) runInternal(ctx context.Context) ([]ProcessedArticle, error) {
	var (
		rssArticles, newsAPIArticles, twitterArticles, redditArticles []models.FetchedArticle
		rssErr, newsAPIErr, twitterErr, redditErr                     error
	)

	var wg sync.WaitGroup
	wg.Add(4)
	go func() { defer wg.Done(); rssArticles, rssErr = p.fetchRSS(ctx) }()
	go func() { defer wg.Done(); newsAPIArticles, newsAPIErr = p.fetchNewsAPI(ctx) }()
	go func() { defer wg.Done(); twitterArticles, twitterErr = p.fetchTwitter(ctx) }()
	go func() { defer wg.Done(); redditArticles, redditErr = p.fetchReddit(ctx) }()
	wg.Wait()

	var all []models.FetchedArticle
	errorCount := 0

	if rssErr != nil {
		p.logger.Printf("RSS fetch failed: %v", rssErr)
		errorCount++
	} else {
		all = append(all, rssArticles...)
	}
	if newsAPIErr != nil {
		p.logger.Printf("NewsAPI fetch failed: %v", newsAPIErr)
		errorCount++
	} else {
		all = append(all, newsAPIArticles...)
	}
	if twitterErr != nil {
		p.logger.Printf("Twitter fetch failed (may be disabled): %v", twitterErr)
	} else {
		all = append(all, twitterArticles...)
	}
	if redditErr != nil {
		p.logger.Printf("Reddit fetch failed: %v", redditErr)
		errorCount++
	} else {
		all = append(all, redditArticles...)
	}

	p.logger.Printf("fetched %d articles (rss=%d newsapi=%d twitter=%d reddit=%d)",
		len(all), len(rssArticles), len(newsAPIArticles), len(twitterArticles), len(redditArticles))

	deduplicated := p.deduplicate(all)

	var processed []ProcessedArticle
	entitiesExtracted, offensesDetected := 0, 0
	for start := 0; start < len(deduplicated); start += p.cfg.BatchSize {
		end := min(start+p.cfg.BatchSize, len(deduplicated))
		batch, err := p.processBatch(ctx, deduplicated[start:end])
		if err != nil {
			p.logger.Printf("batch processing failed: %v", err)
			errorCount++
			continue
		}
		for _, article := range batch {
			entitiesExtracted += len(article.Entities)
			offensesDetected += len(article.Offenses)
		}
		processed = append(processed, batch...)
	}

	p.mu.Lock()
	p.stats.ArticlesFetched += len(deduplicated)
	p.stats.RSSArticles += len(rssArticles)
	p.stats.NewsAPIArticles += len(newsAPIArticles)
	p.stats.TwitterPosts += len(twitterArticles)
	p.stats.RedditPosts += len(redditArticles)
	p.stats.EntitiesExtracted += entitiesExtracted
	p.stats.OffensesDetected += offensesDetected
	p.stats.Errors += errorCount
	p.mu.Unlock()

	p.logger.Printf("pipeline run complete: processed=%d entities=%d offenses=%d",
		len(processed), entitiesExtracted, offensesDetected)

	return processed, nil
}

func (p *Pipeline) fetchRSS(ctx context.Context) ([]models.FetchedArticle, error) {
	if p.rss == nil {
		return nil, nil
	}
	return p.rss.FetchAll(ctx)
}

func (p *Pipeline) fetchNewsAPI(ctx context.Context) ([]models.FetchedArticle, error) {
	if p.newsAPI == nil {
		return nil, nil
	}
	return p.newsAPI.SearchMusicNews(ctx, "")
}

func (p *Pipeline) fetchTwitter(ctx context.Context) ([]models.FetchedArticle, error) {
	if p.twitter == nil {
		return nil, nil
	}
	return p.twitter.SearchMusicNews(ctx)
}

func (p *Pipeline) fetchReddit(ctx context.Context) ([]models.FetchedArticle, error) {
	if p.reddit == nil {
		return nil, nil
	}
	return p.reddit.FetchAllSubreddits(ctx)
}

// deduplicate drops articles whose URL has already been seen. The
// seen-set holds at most SeenURLCap URLs: when adding a URL would push it
// past that bound, the whole set is cleared and re-seeded with the URLs
// of the batch just deduplicated.
func (p *Pipeline) deduplicate(articles []models.FetchedArticle) []models.FetchedArticle {
	out := make([]models.FetchedArticle, 0, len(articles))
	overflowed := false
	for _, article := range articles {
		if article.URL == "" {
			continue
		}
		if _, seen := p.seenURLs.Get(article.URL); seen {
			continue
		}
		if p.seenURLs.Add(article.URL, struct{}{}) {
			overflowed = true
		}
		out = append(out, article)
	}
	if overflowed {
		p.seenURLs.Purge()
		for _, article := range out {
			p.seenURLs.Add(article.URL, struct{}{})
		}
	}
	return out
}

func (p *Pipeline) processBatch(ctx context.Context, batch []models.FetchedArticle) ([]ProcessedArticle, error) {
	out := make([]ProcessedArticle, 0, len(batch))
	for _, article := range batch {
		start := time.Now()

		if p.cfg.ScrapingEnabled && article.Content == nil && p.scraper != nil {
			if enriched, err := p.scraper.EnrichArticle(ctx, article); err == nil {
				article = enriched
			} else {
				p.logger.Printf("scraping %s failed, using original: %v", article.URL, err)
			}
		}

		content := ""
		if article.Content != nil {
			content = *article.Content
		}

		var entities []models.ExtractedEntity
		if p.entity != nil {
			if extracted, err := p.entity.Extract(article.ID, content, article.Title); err == nil {
				entities = extracted
			}
		}

		var offenses []models.OffenseClassification
		if p.offense != nil {
			offenses = p.offense.Classify(article.ID, content, article.Title, entities)
		}

		if p.embed.Enabled() {
			if _, err := p.embed.Embed(ctx, article.Title, content); err != nil {
				p.logger.Printf("embedding %s failed: %v", article.URL, err)
			}
		}

		if p.store != nil {
			if err := p.store.SaveArticle(article); err != nil {
				p.logger.Printf("saving article %s failed: %v", article.URL, err)
			} else if len(offenses) > 0 {
				if err := p.store.SaveOffenseClassifications(offenses); err != nil {
					p.logger.Printf("saving offense classifications for %s failed: %v", article.URL, err)
				}
			}
		}

		out = append(out, ProcessedArticle{
			Article:              article,
			Entities:             entities,
			Offenses:             offenses,
			ProcessedAt:          time.Now().UTC(),
			ProcessingDurationMs: time.Since(start).Milliseconds(),
		})
	}
	return out, nil
}

// RunRSSOnly fetches and processes only the RSS sources, for a scheduled
// lightweight run.
func (p *Pipeline) RunRSSOnly(ctx context.Context) ([]ProcessedArticle, error) {
	articles, err := p.fetchRSS(ctx)
	if err != nil {
		return nil, err
	}
	deduplicated := p.deduplicate(articles)
	return p.processBatch(ctx, deduplicated)
}

// RunSocialOnly fetches and processes only Twitter and Reddit.
func (p *Pipeline) RunSocialOnly(ctx context.Context) ([]ProcessedArticle, error) {
	var all []models.FetchedArticle
	if articles, err := p.fetchTwitter(ctx); err == nil {
		all = append(all, articles...)
	}
	redditArticles, err := p.fetchReddit(ctx)
	if err != nil {
		return nil, err
	}
	all = append(all, redditArticles...)
	deduplicated := p.deduplicate(all)
	return p.processBatch(ctx, deduplicated)
}

// SearchArtist fetches and processes NewsAPI results for a specific
// artist, bypassing the general music-news query.
func (p *Pipeline) SearchArtist(ctx context.Context, artistName string) ([]ProcessedArticle, error) {
	if p.newsAPI == nil {
		return nil, nil
	}
	articles, err := p.newsAPI.SearchArtistNews(ctx, artistName)
	if err != nil {
		return nil, err
	}
	return p.processBatch(ctx, articles)
}

// Stats returns a snapshot of the running pipeline statistics.
func (p *Pipeline) Stats() Stats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.stats
}

// IsRunning reports whether a Run invocation is currently in progress.
func (p *Pipeline) IsRunning() bool {
	p.runMu.Lock()
	defer p.runMu.Unlock()
	return p.isRunning
}

// ResetStats zeroes the running statistics.
func (p *Pipeline) ResetStats() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stats = Stats{}
}

// FilterWithOffenses returns the subset of articles carrying at least one
// offense classification.
func FilterWithOffenses(articles []ProcessedArticle) []ProcessedArticle {
	out := make([]ProcessedArticle, 0, len(articles))
	for _, a := range articles {
		if len(a.Offenses) > 0 {
			out = append(out, a)
		}
	}
	return out
}
