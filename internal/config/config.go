// Package config loads the backplane's runtime configuration with viper,
// following the same load-defaults-then-env-then-file convention the rest
// of this codebase's ancestry uses.
package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Providers supported by internal/oauthprovider.
var Providers = []string{
	"spotify", "apple_music", "youtube_music", "tidal", "deezer",
	"google", "github", "apple",
}

// ProviderCredentials holds a single provider's OAuth client configuration.
type ProviderCredentials struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
}

// CryptoConfig configures internal/crypto.
type CryptoConfig struct {
	CurrentKeyBase64  string
	MaxHistoricalKeys int
	RotationInterval  time.Duration
}

// RecoveryConfig configures internal/recovery and internal/breaker.
type RecoveryConfig struct {
	MaxRetries              int
	BaseDelay               time.Duration
	MaxDelay                time.Duration
	JitterFactor            float64
	CircuitBreakerThreshold int
	CircuitBreakerTimeout   time.Duration
	SecurityViolationWindow time.Duration
	SecurityViolationMax    int
}

// RefreshConfig configures internal/refresh.
type RefreshConfig struct {
	IntervalHours    int
	ThresholdHours   int
	BatchSize        int
	MaxRetries       int
	BaseDelaySecs    int
	RateLimitDelayMs int
}

// HealthConfig configures internal/health.
type HealthConfig struct {
	CheckInterval          time.Duration
	Timeout                time.Duration
	MaxConsecutiveFailures int
	ExponentialBackoffBase time.Duration
	MaxBackoff             time.Duration
}

// IdentityConfig configures internal/identity.
type IdentityConfig struct {
	MusicBrainzContactEmail string
	AppName                 string
	AppVersion              string
}

// NewsConfig configures internal/news.
type NewsConfig struct {
	BatchSize           int
	SeenURLCap          int
	RSSIntervalMinutes  int
	SocialIntervalHours int
	FullIntervalHours   int
	ScrapingEnabled     bool
	EmbeddingEnabled    bool
	RSSFeedURLs         []string
	NewsAPIKey          string
	NewsAPIBaseURL      string
	TwitterBearerToken  string
	TwitterQueries      []string
	RedditSubreddits    []string
	RedditUserAgent     string
}

// OffenseConfig configures internal/offense.
type OffenseConfig struct {
	MinConfidence           float64
	HighConfidenceThreshold float64
	ContextWindow           int
}

// Config is the fully assembled runtime configuration.
type Config struct {
	DBPath           string
	AutoLoginEnabled bool
	Providers        map[string]ProviderCredentials
	Crypto           CryptoConfig
	Recovery         RecoveryConfig
	Refresh          RefreshConfig
	Health           HealthConfig
	Identity         IdentityConfig
	News             NewsConfig
	Offense          OffenseConfig
}

// Load reads configuration from .env, the environment, and an optional
// config file. A missing OAUTH_ENCRYPTION_KEY is fatal; a provider whose
// client id or secret is missing is logged and left out of Providers.
// Mirrors the teacher's viper wiring: defaults first, then environment
// overrides, then an optional file.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found or error loading it. Using default values and environment variables.")
	}

	viper.SetDefault("db.path", "./data/backplane.db")
	viper.SetDefault("auto_login_enabled", true)

	viper.SetDefault("oauth_encryption_key", "")
	viper.SetDefault("crypto.max_historical_keys", 5)
	viper.SetDefault("crypto.rotation_interval_days", 90)

	viper.SetDefault("recovery.max_retries", 3)
	viper.SetDefault("recovery.base_delay_secs", 1)
	viper.SetDefault("recovery.max_delay_secs", 300)
	viper.SetDefault("recovery.jitter_factor", 0.1)
	viper.SetDefault("recovery.circuit_breaker_threshold", 5)
	viper.SetDefault("recovery.circuit_breaker_timeout_secs", 300)
	viper.SetDefault("recovery.security_violation_window_secs", 3600)
	viper.SetDefault("recovery.security_violation_max", 5)

	viper.SetDefault("token_refresh.interval_hours", 6)
	viper.SetDefault("token_refresh.threshold_hours", 24)
	viper.SetDefault("token_refresh.batch_size", 50)
	viper.SetDefault("token_refresh.max_retries", 3)
	viper.SetDefault("token_refresh.base_delay_secs", 30)
	viper.SetDefault("token_refresh.rate_limit_delay_ms", 250)

	viper.SetDefault("health.check_interval_secs", 300)
	viper.SetDefault("health.timeout_secs", 10)
	viper.SetDefault("health.max_consecutive_failures", 3)
	viper.SetDefault("health.exponential_backoff_base_secs", 30)
	viper.SetDefault("health.max_backoff_secs", 3600)

	viper.SetDefault("identity.musicbrainz_contact_email", "oss@example.com")
	viper.SetDefault("identity.app_name", "backplane")
	viper.SetDefault("identity.app_version", "0.1.0")

	viper.SetDefault("news.batch_size", 50)
	viper.SetDefault("news.seen_url_cap", 100000)
	viper.SetDefault("news.rss_interval_minutes", 30)
	viper.SetDefault("news.social_interval_hours", 1)
	viper.SetDefault("news.full_interval_hours", 6)
	viper.SetDefault("news.scraping_enabled", true)
	viper.SetDefault("news.embedding_enabled", false)
	viper.SetDefault("news.rss_feed_urls", "")
	viper.SetDefault("news.newsapi_key", "")
	viper.SetDefault("news.newsapi_base_url", "https://newsapi.org/v2")
	viper.SetDefault("news.twitter_bearer_token", "")
	viper.SetDefault("news.twitter_queries", "")
	viper.SetDefault("news.reddit_subreddits", "hiphopheads,indieheads,popheads,music")
	viper.SetDefault("news.reddit_user_agent", "backplane-news/0.1")

	viper.SetDefault("offense.min_confidence", 0.4)
	viper.SetDefault("offense.high_confidence_threshold", 0.8)
	viper.SetDefault("offense.context_window", 150)

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	viper.AddConfigPath(".")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Fatalf("Error reading config file: %v", err)
		}
		log.Println("Config file not found, using default values and environment variables")
	} else {
		log.Println("Using config file:", viper.ConfigFileUsed())
	}

	providers := make(map[string]ProviderCredentials, len(Providers))
	missingVars := []string{}
	for _, p := range Providers {
		upper := strings.ToUpper(p)
		clientID := viper.GetString(upper + "_CLIENT_ID")
		clientSecret := viper.GetString(upper + "_CLIENT_SECRET")
		redirectURI := viper.GetString(upper + "_REDIRECT_URI")
		if clientID == "" || clientSecret == "" {
			missingVars = append(missingVars, fmt.Sprintf("%s_CLIENT_ID/%s_CLIENT_SECRET", upper, upper))
			continue
		}
		providers[p] = ProviderCredentials{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURI:  redirectURI,
		}
	}

	if viper.GetString("oauth_encryption_key") == "" {
		log.Fatalf("Required configuration variable not set: OAUTH_ENCRYPTION_KEY")
	}

	if len(missingVars) == len(Providers) {
		log.Println("Warning: no OAuth provider credentials configured; only the subsystems that don't call out to providers will function")
	} else if len(missingVars) > 0 {
		log.Printf("Providers without configured credentials (skipped): %s", strings.Join(missingVars, ", "))
	}

	return &Config{
		DBPath:           viper.GetString("db.path"),
		AutoLoginEnabled: viper.GetBool("auto_login_enabled"),
		Providers:        providers,
		Crypto: CryptoConfig{
			CurrentKeyBase64:  viper.GetString("oauth_encryption_key"),
			MaxHistoricalKeys: viper.GetInt("crypto.max_historical_keys"),
			RotationInterval:  time.Duration(viper.GetInt("crypto.rotation_interval_days")) * 24 * time.Hour,
		},
		Recovery: RecoveryConfig{
			MaxRetries:              viper.GetInt("recovery.max_retries"),
			BaseDelay:               time.Duration(viper.GetInt("recovery.base_delay_secs")) * time.Second,
			MaxDelay:                time.Duration(viper.GetInt("recovery.max_delay_secs")) * time.Second,
			JitterFactor:            viper.GetFloat64("recovery.jitter_factor"),
			CircuitBreakerThreshold: viper.GetInt("recovery.circuit_breaker_threshold"),
			CircuitBreakerTimeout:   time.Duration(viper.GetInt("recovery.circuit_breaker_timeout_secs")) * time.Second,
			SecurityViolationWindow: time.Duration(viper.GetInt("recovery.security_violation_window_secs")) * time.Second,
			SecurityViolationMax:    viper.GetInt("recovery.security_violation_max"),
		},
		Refresh: RefreshConfig{
			IntervalHours:    viper.GetInt("token_refresh.interval_hours"),
			ThresholdHours:   viper.GetInt("token_refresh.threshold_hours"),
			BatchSize:        viper.GetInt("token_refresh.batch_size"),
			MaxRetries:       viper.GetInt("token_refresh.max_retries"),
			BaseDelaySecs:    viper.GetInt("token_refresh.base_delay_secs"),
			RateLimitDelayMs: viper.GetInt("token_refresh.rate_limit_delay_ms"),
		},
		Health: HealthConfig{
			CheckInterval:          time.Duration(viper.GetInt("health.check_interval_secs")) * time.Second,
			Timeout:                time.Duration(viper.GetInt("health.timeout_secs")) * time.Second,
			MaxConsecutiveFailures: viper.GetInt("health.max_consecutive_failures"),
			ExponentialBackoffBase: time.Duration(viper.GetInt("health.exponential_backoff_base_secs")) * time.Second,
			MaxBackoff:             time.Duration(viper.GetInt("health.max_backoff_secs")) * time.Second,
		},
		Identity: IdentityConfig{
			MusicBrainzContactEmail: viper.GetString("identity.musicbrainz_contact_email"),
			AppName:                 viper.GetString("identity.app_name"),
			AppVersion:              viper.GetString("identity.app_version"),
		},
		News: NewsConfig{
			BatchSize:           viper.GetInt("news.batch_size"),
			SeenURLCap:          viper.GetInt("news.seen_url_cap"),
			RSSIntervalMinutes:  viper.GetInt("news.rss_interval_minutes"),
			SocialIntervalHours: viper.GetInt("news.social_interval_hours"),
			FullIntervalHours:   viper.GetInt("news.full_interval_hours"),
			ScrapingEnabled:     viper.GetBool("news.scraping_enabled"),
			EmbeddingEnabled:    viper.GetBool("news.embedding_enabled"),
			RSSFeedURLs:         splitCSV(viper.GetString("news.rss_feed_urls")),
			NewsAPIKey:          viper.GetString("news.newsapi_key"),
			NewsAPIBaseURL:      viper.GetString("news.newsapi_base_url"),
			TwitterBearerToken:  viper.GetString("news.twitter_bearer_token"),
			TwitterQueries:      splitCSV(viper.GetString("news.twitter_queries")),
			RedditSubreddits:    splitCSV(viper.GetString("news.reddit_subreddits")),
			RedditUserAgent:     viper.GetString("news.reddit_user_agent"),
		},
		Offense: OffenseConfig{
			MinConfidence:           viper.GetFloat64("offense.min_confidence"),
			HighConfidenceThreshold: viper.GetFloat64("offense.high_confidence_threshold"),
			ContextWindow:           viper.GetInt("offense.context_window"),
		},
	}
}

// splitCSV splits a comma-separated string into trimmed, non-empty parts.
func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
