// Package db owns the sqlite-backed persistence layer: connection
// lifecycle management and the raw-SQL CRUD the token vault, identity
// resolver, and news pipeline build on.
package db

import (
	"database/sql"
	"log"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps a *sql.DB with the service's logging convention.
type DB struct {
	*sql.DB
	logger *log.Logger
}

// New opens (and creates, if necessary) the sqlite database at dbPath.
func New(dbPath string) (*DB, error) {
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "/" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}

	sqlDB, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, err
	}

	logger := log.New(os.Stdout, "db: ", log.LstdFlags|log.Lmsgprefix)
	return &DB{sqlDB, logger}, nil
}

// Initialize creates every table this module owns, idempotently.
func (db *DB) Initialize() error {
	if err := db.initConnections(); err != nil {
		return err
	}
	if err := db.initIdentity(); err != nil {
		return err
	}
	if err := db.initNews(); err != nil {
		return err
	}
	return nil
}

func (db *DB) initConnections() error {
	_, err := db.Exec(`
	CREATE TABLE IF NOT EXISTS connections (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		provider TEXT NOT NULL,
		provider_user_id TEXT NOT NULL,
		scopes TEXT NOT NULL DEFAULT '',
		access_token_ciphertext BLOB NOT NULL,
		refresh_token_ciphertext BLOB,
		token_version INTEGER NOT NULL DEFAULT 1,
		expires_at TIMESTAMP,
		status TEXT NOT NULL DEFAULT 'active',
		last_health_check TIMESTAMP,
		error_code TEXT,
		data_key_id TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (user_id, provider)
	);
	CREATE INDEX IF NOT EXISTS idx_connections_user_id ON connections(user_id);
	CREATE INDEX IF NOT EXISTS idx_connections_provider ON connections(provider);
	CREATE INDEX IF NOT EXISTS idx_connections_status ON connections(status);
	CREATE INDEX IF NOT EXISTS idx_connections_expires_at ON connections(expires_at);
	`)
	if err != nil {
		return err
	}

	// Idempotent column additions for fields introduced after the table's
	// original shape, following the ALTER-then-ignore-duplicate pattern
	// this module's migrations have always used.
	if _, err := db.Exec(`ALTER TABLE connections ADD COLUMN error_code TEXT`); err != nil && err.Error() != "duplicate column name: error_code" {
		return err
	}
	return nil
}

func (db *DB) initIdentity() error {
	_, err := db.Exec(`
	CREATE TABLE IF NOT EXISTS canonical_artists (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		musicbrainz_id TEXT,
		isni TEXT,
		aliases TEXT NOT NULL DEFAULT '[]',
		genres TEXT NOT NULL DEFAULT '[]',
		country TEXT,
		platform_ids TEXT NOT NULL DEFAULT '{}',
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_canonical_artists_mbid ON canonical_artists(musicbrainz_id) WHERE musicbrainz_id IS NOT NULL;
	CREATE INDEX IF NOT EXISTS idx_canonical_artists_name ON canonical_artists(name);

	CREATE TABLE IF NOT EXISTS identity_review_items (
		id TEXT PRIMARY KEY,
		platform TEXT NOT NULL,
		platform_id TEXT NOT NULL,
		platform_artist_name TEXT NOT NULL,
		proposed_artist_id TEXT,
		proposed_confidence REAL,
		proposed_method TEXT,
		alternatives TEXT NOT NULL DEFAULT '[]',
		status TEXT NOT NULL DEFAULT 'pending',
		merged_with_id TEXT,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_identity_review_status ON identity_review_items(status);
	`)
	return err
}

func (db *DB) initNews() error {
	_, err := db.Exec(`
	CREATE TABLE IF NOT EXISTS fetched_articles (
		id TEXT PRIMARY KEY,
		source_id TEXT NOT NULL,
		url TEXT NOT NULL UNIQUE,
		title TEXT NOT NULL,
		content TEXT,
		published_at TIMESTAMP,
		fetched_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		authors TEXT NOT NULL DEFAULT '[]',
		categories TEXT NOT NULL DEFAULT '[]',
		image_url TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_fetched_articles_source ON fetched_articles(source_id);
	CREATE INDEX IF NOT EXISTS idx_fetched_articles_published_at ON fetched_articles(published_at);

	CREATE TABLE IF NOT EXISTS offense_classifications (
		id TEXT PRIMARY KEY,
		article_id TEXT NOT NULL,
		entity_id TEXT,
		canonical_artist_id TEXT,
		category TEXT NOT NULL,
		severity INTEGER NOT NULL,
		confidence REAL NOT NULL,
		matched_keywords TEXT NOT NULL DEFAULT '[]',
		context TEXT NOT NULL DEFAULT '',
		needs_review BOOLEAN NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (article_id) REFERENCES fetched_articles(id)
	);
	CREATE INDEX IF NOT EXISTS idx_offense_article ON offense_classifications(article_id);
	CREATE INDEX IF NOT EXISTS idx_offense_artist ON offense_classifications(canonical_artist_id);
	CREATE INDEX IF NOT EXISTS idx_offense_needs_review ON offense_classifications(needs_review);
	`)
	return err
}
