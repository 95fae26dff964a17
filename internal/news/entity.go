package news

import (
	"strings"

	"github.com/google/uuid"

	"github.com/nodrake/backplane/internal/identity"
	"github.com/nodrake/backplane/internal/models"
)

// EntityExtractor finds mentions of known canonical artists within
// article text, linking matches back to the identity store.
type EntityExtractor struct {
	store *identity.Store
}

// NewEntityExtractor builds an extractor backed by store.
func NewEntityExtractor(store *identity.Store) *EntityExtractor {
	return &EntityExtractor{store: store}
}

// Extract scans content (and optionally title) for known artist names and
// aliases, returning one ExtractedEntity per distinct artist mentioned.
func (e *EntityExtractor) Extract(articleID uuid.UUID, content, title string) ([]models.ExtractedEntity, error) {
	artists, err := e.store.All()
	if err != nil {
		return nil, err
	}
	if len(artists) == 0 {
		return nil, nil
	}

	fullText := content
	if title != "" {
		fullText = title + "\n\n" + content
	}
	lowerText := strings.ToLower(fullText)

	var out []models.ExtractedEntity
	for _, artist := range artists {
		names := append([]string{artist.Name}, artist.Aliases...)
		for _, name := range names {
			if name == "" {
				continue
			}
			pos := strings.Index(lowerText, strings.ToLower(name))
			if pos < 0 {
				continue
			}
			artistID := artist.ID
			out = append(out, models.ExtractedEntity{
				ID:                uuid.New(),
				ArticleID:         articleID,
				Name:              artist.Name,
				EntityType:        models.EntityArtist,
				Confidence:        nameMatchConfidence(name, artist.Name),
				CanonicalArtistID: &artistID,
				Context:           extractEntityContext(fullText, pos, pos+len(name)),
			})
			break
		}
	}
	return out, nil
}

func nameMatchConfidence(matchedAs, canonicalName string) float64 {
	if strings.EqualFold(matchedAs, canonicalName) {
		return 1.0
	}
	return 0.8
}

func extractEntityContext(text string, start, end int) string {
	const window = 100
	contextStart := start - window
	if contextStart < 0 {
		contextStart = 0
	}
	contextEnd := end + window
	if contextEnd > len(text) {
		contextEnd = len(text)
	}
	return text[contextStart:contextEnd]
}
