// Command backplaned is the do-not-play backplane's process entrypoint:
// it wires every subsystem together and runs the background schedulers
// (token refresh, health probes, news ingestion) until terminated. Per
// spec §1 this module exposes programmatic operations, not HTTP routes
// — the only listener it opens is the Prometheus scrape endpoint.
package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nodrake/backplane/db"
	"github.com/nodrake/backplane/internal/config"
	"github.com/nodrake/backplane/internal/connect"
	"github.com/nodrake/backplane/internal/crypto"
	"github.com/nodrake/backplane/internal/health"
	"github.com/nodrake/backplane/internal/identity"
	"github.com/nodrake/backplane/internal/metrics"
	"github.com/nodrake/backplane/internal/news"
	"github.com/nodrake/backplane/internal/oauthprovider"
	"github.com/nodrake/backplane/internal/oauthstate"
	"github.com/nodrake/backplane/internal/offense"
	"github.com/nodrake/backplane/internal/recovery"
	"github.com/nodrake/backplane/internal/refresh"
	"github.com/nodrake/backplane/internal/vault"
)

// application holds every constructed subsystem, mirroring the
// teacher's single struct-of-services shape.
type application struct {
	database  *db.DB
	cipher    *crypto.TokenCipher
	providers *oauthprovider.Registry
	vault     *vault.Vault
	recovery  *recovery.Service
	connect   *connect.Service
	refresh   *refresh.Scheduler
	health    *health.Monitor
	identity  *identity.Resolver
	idStore   *identity.Store
	offense   *offense.Classifier
	news      *news.Pipeline
	newsSched *news.ScheduledRunner
}

func main() {
	cfg := config.Load()

	database, err := db.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("connecting to database: %v", err)
	}
	if err := database.Initialize(); err != nil {
		log.Fatalf("initializing database: %v", err)
	}

	app := build(cfg, database)

	reg := prometheus.NewRegistry()
	refreshMetrics := refresh.NewMetrics(reg)
	app.refresh = refresh.NewScheduler(toRefreshConfig(cfg.Refresh), app.vault, app.providers, app.recovery, refreshMetrics)
	metrics.Register(reg, app.health, app.recovery.Breakers())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go app.refresh.Run(ctx)
	go app.health.Run(ctx)
	newsHandle := app.newsSched.Start(ctx)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	server := &http.Server{Addr: ":9090", Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server: %v", err)
		}
	}()

	log.Println("backplaned running, metrics on :9090/metrics")
	<-ctx.Done()
	log.Println("shutting down")
	newsHandle.Stop()
	_ = server.Shutdown(context.Background())
}

// build constructs every subsystem from cfg, following the teacher's
// construction order: crypto → providers → vault/recovery → identity →
// news, each step handed the pieces it depends on.
func build(cfg *config.Config, database *db.DB) *application {
	cipher := crypto.NewTokenCipherFromBase64(cfg.Crypto.CurrentKeyBase64, crypto.KeyRotationConfig{
		RotationInterval:  cfg.Crypto.RotationInterval,
		MaxHistoricalKeys: cfg.Crypto.MaxHistoricalKeys,
	})

	providers := buildProviders(cfg)

	v := vault.New(database, cipher)
	recoverySvc := recovery.NewService(recovery.Config{
		MaxRetries:              cfg.Recovery.MaxRetries,
		BaseDelay:               cfg.Recovery.BaseDelay,
		MaxDelay:                cfg.Recovery.MaxDelay,
		JitterFactor:            cfg.Recovery.JitterFactor,
		CircuitBreakerThreshold: cfg.Recovery.CircuitBreakerThreshold,
		CircuitBreakerTimeout:   cfg.Recovery.CircuitBreakerTimeout,
		SecurityViolationWindow: cfg.Recovery.SecurityViolationWindow,
		SecurityViolationMax:    cfg.Recovery.SecurityViolationMax,
	})
	oauthSt := oauthstate.NewManager(oauthstate.DefaultTTL)
	connectSvc := connect.New(oauthSt, providers, v, recoverySvc)

	healthMonitor := health.NewMonitor(health.Config{
		CheckInterval:          cfg.Health.CheckInterval,
		Timeout:                cfg.Health.Timeout,
		MaxConsecutiveFailures: cfg.Health.MaxConsecutiveFailures,
		BackoffBase:            cfg.Health.ExponentialBackoffBase,
		MaxBackoff:             cfg.Health.MaxBackoff,
	})
	healthMonitor.SetVault(v)
	for _, platform := range providers.Platforms() {
		healthMonitor.Track(platform)
	}

	mbClient := identity.NewMusicBrainzClient(cfg.Identity.AppName, cfg.Identity.AppVersion, cfg.Identity.MusicBrainzContactEmail)
	resolver := identity.NewResolver(mbClient)
	idStore := identity.NewStore(database)

	offenseClassifier := offense.NewClassifier(offense.Config{
		MinConfidence:           cfg.Offense.MinConfidence,
		HighConfidenceThreshold: cfg.Offense.HighConfidenceThreshold,
		ContextWindow:           cfg.Offense.ContextWindow,
	})

	newsCfg := news.Config{
		BatchSize:           cfg.News.BatchSize,
		SeenURLCap:          cfg.News.SeenURLCap,
		RSSIntervalMinutes:  cfg.News.RSSIntervalMinutes,
		SocialIntervalHours: cfg.News.SocialIntervalHours,
		FullIntervalHours:   cfg.News.FullIntervalHours,
		ScrapingEnabled:     cfg.News.ScrapingEnabled,
		EmbeddingEnabled:    cfg.News.EmbeddingEnabled,
	}
	rssFetcher := news.NewRSSFetcher(cfg.News.RSSFeedURLs)
	newsAPIClient := news.NewNewsAPIClient(cfg.News.NewsAPIKey, cfg.News.NewsAPIBaseURL)
	twitterMonitor := news.NewTwitterMonitor(cfg.News.TwitterBearerToken, cfg.News.TwitterQueries)
	redditMonitor := news.NewRedditMonitor(cfg.News.RedditSubreddits, cfg.News.RedditUserAgent)
	entityExtractor := news.NewEntityExtractor(idStore)

	pipeline := news.New(newsCfg, rssFetcher, newsAPIClient, twitterMonitor, redditMonitor, entityExtractor, offenseClassifier, news.NoopEmbedder{})
	pipeline.SetStore(news.NewStore(database))
	newsSched := news.NewScheduledRunner(pipeline, newsCfg)

	return &application{
		database:  database,
		cipher:    cipher,
		providers: providers,
		vault:     v,
		recovery:  recoverySvc,
		connect:   connectSvc,
		health:    healthMonitor,
		identity:  resolver,
		idStore:   idStore,
		offense:   offenseClassifier,
		news:      pipeline,
		newsSched: newsSched,
	}
}

// buildProviders registers an adapter for every platform with
// configured credentials. Platforms left unconfigured are simply
// absent from the registry; callers treat a missing adapter as
// "not offered", not an error.
func buildProviders(cfg *config.Config) *oauthprovider.Registry {
	reg := oauthprovider.NewRegistry()

	register := func(platform string, build func(clientID, clientSecret, redirectURI string, scopes []string) oauthprovider.Provider) {
		creds, ok := cfg.Providers[platform]
		if !ok {
			return
		}
		reg.Register(build(creds.ClientID, creds.ClientSecret, creds.RedirectURI, nil))
	}

	register("spotify", oauthprovider.NewSpotify)
	register("apple_music", oauthprovider.NewAppleMusic)
	register("youtube_music", oauthprovider.NewYouTubeMusic)
	register("tidal", oauthprovider.NewTidal)
	register("deezer", oauthprovider.NewDeezer)
	register("google", oauthprovider.NewGoogle)
	register("github", oauthprovider.NewGitHub)
	register("apple", oauthprovider.NewApple)

	return reg
}

func toRefreshConfig(c config.RefreshConfig) refresh.Config {
	return refresh.Config{
		Interval:      time.Duration(c.IntervalHours) * time.Hour,
		Threshold:     time.Duration(c.ThresholdHours) * time.Hour,
		BatchSize:     c.BatchSize,
		MaxRetries:    c.MaxRetries,
		BaseDelay:     time.Duration(c.BaseDelaySecs) * time.Second,
		RateLimitWait: time.Duration(c.RateLimitDelayMs) * time.Millisecond,
	}
}
