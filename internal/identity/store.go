package identity

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nodrake/backplane/db"
	"github.com/nodrake/backplane/internal/models"
)

// Store persists canonical artists and pending identity-review items.
type Store struct {
	db *db.DB
}

// NewStore builds a Store backed by database.
func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

// Upsert inserts artist, or overwrites it if an artist with the same id
// already exists.
func (s *Store) Upsert(artist models.CanonicalArtist) error {
	aliases, err := json.Marshal(artist.Aliases)
	if err != nil {
		return err
	}
	genres, err := json.Marshal(artist.Genres)
	if err != nil {
		return err
	}
	platformIDs, err := json.Marshal(artist.PlatformIDs)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	_, err = s.db.Exec(`
	INSERT INTO canonical_artists (id, name, musicbrainz_id, isni, aliases, genres, country, platform_ids, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		name = excluded.name, musicbrainz_id = excluded.musicbrainz_id, isni = excluded.isni,
		aliases = excluded.aliases, genres = excluded.genres, country = excluded.country,
		platform_ids = excluded.platform_ids, updated_at = excluded.updated_at`,
		artist.ID.String(), artist.Name, artist.MusicBrainzID, artist.ISNI,
		string(aliases), string(genres), artist.Country, string(platformIDs), now, now)
	if err != nil {
		return fmt.Errorf("upserting canonical artist: %w", err)
	}
	return nil
}

// All returns every canonical artist in the store.
func (s *Store) All() ([]models.CanonicalArtist, error) {
	rows, err := s.db.Query(`
	SELECT id, name, musicbrainz_id, isni, aliases, genres, country, platform_ids
	FROM canonical_artists ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.CanonicalArtist
	for rows.Next() {
		artist, err := scanCanonicalArtist(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, artist)
	}
	return out, rows.Err()
}

// Get fetches a canonical artist by id, or nil if none exists.
func (s *Store) Get(id uuid.UUID) (*models.CanonicalArtist, error) {
	row := s.db.QueryRow(`
	SELECT id, name, musicbrainz_id, isni, aliases, genres, country, platform_ids
	FROM canonical_artists WHERE id = ?`, id.String())
	artist, err := scanCanonicalArtist(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &artist, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCanonicalArtist(row scanner) (models.CanonicalArtist, error) {
	var artist models.CanonicalArtist
	var idStr string
	var aliasesJSON, genresJSON, platformIDsJSON string

	err := row.Scan(&idStr, &artist.Name, &artist.MusicBrainzID, &artist.ISNI,
		&aliasesJSON, &genresJSON, &artist.Country, &platformIDsJSON)
	if err != nil {
		return models.CanonicalArtist{}, err
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return models.CanonicalArtist{}, fmt.Errorf("parsing canonical artist id: %w", err)
	}
	artist.ID = id

	if err := json.Unmarshal([]byte(aliasesJSON), &artist.Aliases); err != nil {
		return models.CanonicalArtist{}, fmt.Errorf("parsing aliases: %w", err)
	}
	if err := json.Unmarshal([]byte(genresJSON), &artist.Genres); err != nil {
		return models.CanonicalArtist{}, fmt.Errorf("parsing genres: %w", err)
	}
	artist.PlatformIDs = make(map[models.Platform]string)
	if err := json.Unmarshal([]byte(platformIDsJSON), &artist.PlatformIDs); err != nil {
		return models.CanonicalArtist{}, fmt.Errorf("parsing platform ids: %w", err)
	}

	return artist, nil
}

// QueueReview records an ambiguous identity match for human adjudication.
func (s *Store) QueueReview(item models.IdentityReviewItem) error {
	alternatives, err := json.Marshal(item.Alternatives)
	if err != nil {
		return err
	}

	var proposedArtistID *string
	var proposedConfidence *float64
	var proposedMethod *string
	if item.ProposedMatch.Artist.ID != uuid.Nil {
		id := item.ProposedMatch.Artist.ID.String()
		proposedArtistID = &id
		confidence := item.ProposedMatch.Confidence
		proposedConfidence = &confidence
		method := string(item.ProposedMatch.Method)
		proposedMethod = &method
	}

	_, err = s.db.Exec(`
	INSERT INTO identity_review_items (
		id, platform, platform_id, platform_artist_name,
		proposed_artist_id, proposed_confidence, proposed_method,
		alternatives, status, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID.String(), string(item.PlatformArtist.Platform), item.PlatformArtist.PlatformID, item.PlatformArtist.Name,
		proposedArtistID, proposedConfidence, proposedMethod,
		string(alternatives), string(models.ReviewPending), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("queuing identity review item: %w", err)
	}
	return nil
}

// PendingReviews lists review items awaiting a decision.
func (s *Store) PendingReviews() ([]models.IdentityReviewItem, error) {
	rows, err := s.db.Query(`
	SELECT id, platform, platform_id, platform_artist_name, status
	FROM identity_review_items WHERE status = ? ORDER BY created_at`, string(models.ReviewPending))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.IdentityReviewItem
	for rows.Next() {
		var item models.IdentityReviewItem
		var idStr, platformStr, status string
		if err := rows.Scan(&idStr, &platformStr, &item.PlatformArtist.PlatformID, &item.PlatformArtist.Name, &status); err != nil {
			return nil, err
		}
		id, err := uuid.Parse(idStr)
		if err != nil {
			return nil, fmt.Errorf("parsing review item id: %w", err)
		}
		item.ID = id
		item.PlatformArtist.Platform = models.Platform(platformStr)
		item.Status = models.ReviewStatus(status)
		out = append(out, item)
	}
	return out, rows.Err()
}

// ResolveReview marks a review item decided and, when the decision
// merges it into an existing artist, records the target artist's id.
func (s *Store) ResolveReview(id uuid.UUID, status models.ReviewStatus, mergedWithID *uuid.UUID) error {
	var mergedWith *string
	if mergedWithID != nil {
		v := mergedWithID.String()
		mergedWith = &v
	}
	_, err := s.db.Exec(`UPDATE identity_review_items SET status = ?, merged_with_id = ? WHERE id = ?`,
		string(status), mergedWith, id.String())
	return err
}
