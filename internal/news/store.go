package news

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/nodrake/backplane/db"
	"github.com/nodrake/backplane/internal/models"
)

// Store persists fetched articles and their offense classifications,
// following the same raw-SQL upsert idiom as internal/vault.
type Store struct {
	db *db.DB
}

// NewStore builds a Store backed by database.
func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

// SaveArticle upserts a fetched article keyed by its unique URL.
func (s *Store) SaveArticle(article models.FetchedArticle) error {
	authors, err := json.Marshal(article.Authors)
	if err != nil {
		return err
	}
	categories, err := json.Marshal(article.Categories)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`
	INSERT INTO fetched_articles (id, source_id, url, title, content, published_at, fetched_at, authors, categories, image_url)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(url) DO UPDATE SET
		title = excluded.title, content = excluded.content, published_at = excluded.published_at,
		authors = excluded.authors, categories = excluded.categories, image_url = excluded.image_url`,
		article.ID.String(), article.SourceID, article.URL, article.Title, article.Content,
		article.PublishedAt, article.FetchedAt, string(authors), string(categories), article.ImageURL)
	if err != nil {
		return fmt.Errorf("upserting fetched article: %w", err)
	}
	return nil
}

// SaveOffenseClassifications inserts every classification found for an
// article. Classifications are immutable once written: a re-run against
// the same article produces a fresh row rather than updating an old one,
// preserving history of how confidence/severity shifted over time.
func (s *Store) SaveOffenseClassifications(classifications []models.OffenseClassification) error {
	for _, c := range classifications {
		keywords, err := json.Marshal(c.MatchedKeywords)
		if err != nil {
			return err
		}
		_, err = s.db.Exec(`
		INSERT INTO offense_classifications (id, article_id, entity_id, canonical_artist_id, category, severity, confidence, matched_keywords, context, needs_review)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.ID.String(), c.ArticleID.String(), nullableUUID(c.EntityID), nullableUUID(c.CanonicalArtistID),
			string(c.Category), int(c.Severity), c.Confidence, string(keywords), c.Context, c.NeedsReview)
		if err != nil {
			return fmt.Errorf("inserting offense classification: %w", err)
		}
	}
	return nil
}

func nullableUUID(id *uuid.UUID) any {
	if id == nil {
		return nil
	}
	return id.String()
}

// ArticlesNeedingReview returns every article with at least one
// classification flagged needs_review, most recent first.
func (s *Store) ArticlesNeedingReview(limit int) ([]models.FetchedArticle, error) {
	rows, err := s.db.Query(`
	SELECT DISTINCT a.id, a.source_id, a.url, a.title, a.content, a.published_at, a.fetched_at, a.authors, a.categories, a.image_url
	FROM fetched_articles a
	JOIN offense_classifications c ON c.article_id = a.id
	WHERE c.needs_review = 1
	ORDER BY a.fetched_at DESC
	LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.FetchedArticle
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanArticle(row scanner) (models.FetchedArticle, error) {
	var a models.FetchedArticle
	var idStr, authorsStr, categoriesStr string
	err := row.Scan(&idStr, &a.SourceID, &a.URL, &a.Title, &a.Content, &a.PublishedAt, &a.FetchedAt, &authorsStr, &categoriesStr, &a.ImageURL)
	if err == sql.ErrNoRows {
		return models.FetchedArticle{}, err
	}
	if err != nil {
		return models.FetchedArticle{}, fmt.Errorf("scanning fetched article: %w", err)
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return models.FetchedArticle{}, fmt.Errorf("parsing article id: %w", err)
	}
	a.ID = id
	if authorsStr != "" {
		if err := json.Unmarshal([]byte(authorsStr), &a.Authors); err != nil {
			return models.FetchedArticle{}, err
		}
	}
	if categoriesStr != "" {
		if err := json.Unmarshal([]byte(categoriesStr), &a.Categories); err != nil {
			return models.FetchedArticle{}, err
		}
	}
	return a, nil
}
