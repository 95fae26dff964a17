// Package models holds the data shapes shared across the token vault,
// identity resolver, and news/offense pipeline.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Platform identifies a streaming service or identity provider.
type Platform string

const (
	PlatformSpotify      Platform = "spotify"
	PlatformAppleMusic   Platform = "apple_music"
	PlatformYouTubeMusic Platform = "youtube_music"
	PlatformTidal        Platform = "tidal"
	PlatformDeezer       Platform = "deezer"
	PlatformGoogle       Platform = "google"
	PlatformGitHub       Platform = "github"
	PlatformApple        Platform = "apple"
)

// ConnectionStatus is the lifecycle state of a persisted Connection.
type ConnectionStatus string

const (
	StatusActive      ConnectionStatus = "active"
	StatusExpired     ConnectionStatus = "expired"
	StatusRevoked     ConnectionStatus = "revoked"
	StatusError       ConnectionStatus = "error"
	StatusNeedsReauth ConnectionStatus = "needs_reauth"
)

// Connection is a persisted credential for (user_id, provider).
type Connection struct {
	ID                     uuid.UUID
	UserID                 uuid.UUID
	Provider               Platform
	ProviderUserID         string
	Scopes                 []string
	AccessTokenCiphertext  []byte
	RefreshTokenCiphertext []byte
	TokenVersion           int64
	ExpiresAt              *time.Time
	Status                 ConnectionStatus
	LastHealthCheck        *time.Time
	ErrorCode              *string
	DataKeyID              string
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// VaultStatistics aggregates connection counts for operational dashboards.
type VaultStatistics struct {
	CountsByStatus     map[ConnectionStatus]int64
	ExpiringWithin5Min int64
}

// CanonicalArtist is the unified identity for an artist across platforms.
type CanonicalArtist struct {
	ID            uuid.UUID
	Name          string
	MusicBrainzID *string
	ISNI          *string
	Aliases       []string
	Genres        []string
	Country       *string
	PlatformIDs   map[Platform]string
}

// PlatformArtist is the raw, ephemeral record ingested from a streaming platform.
type PlatformArtist struct {
	Platform      Platform
	PlatformID    string
	Name          string
	Genres        []string
	Popularity    *int
	ImageURL      *string
	ExternalURLs  map[string]string
	Metadata      map[string]string
}

// MatchMethod records which resolution strategy produced an IdentityMatch.
type MatchMethod string

const (
	MethodExistingMapping  MatchMethod = "existing_mapping"
	MethodMusicBrainzID    MatchMethod = "musicbrainz_id"
	MethodISNI             MatchMethod = "isni"
	MethodISRCCorrelation  MatchMethod = "isrc_correlation"
	MethodFuzzyName        MatchMethod = "fuzzy_name"
	MethodNewArtist        MatchMethod = "new_artist"
)

// IdentityMatch is the result of resolving a PlatformArtist against the
// canonical artist store.
type IdentityMatch struct {
	Artist      CanonicalArtist
	Confidence  float64
	Method      MatchMethod
	NeedsReview bool
}

// ReviewStatus tracks a pending human-review identity match.
type ReviewStatus string

const (
	ReviewPending  ReviewStatus = "pending"
	ReviewApproved ReviewStatus = "approved"
	ReviewRejected ReviewStatus = "rejected"
	ReviewCreated  ReviewStatus = "created_new"
)

// IdentityReviewItem queues an ambiguous match for human adjudication.
type IdentityReviewItem struct {
	ID              uuid.UUID
	PlatformArtist  PlatformArtist
	ProposedMatch   IdentityMatch
	Alternatives    []IdentityMatch
	Status          ReviewStatus
	MergedWithID    *uuid.UUID
	CreatedAt       time.Time
}

// FetchedArticle is a normalized article from any news source.
type FetchedArticle struct {
	ID          uuid.UUID
	SourceID    string
	URL         string
	Title       string
	Content     *string
	PublishedAt *time.Time
	FetchedAt   time.Time
	Authors     []string
	Categories  []string
	ImageURL    *string
}

// EntityType classifies an ExtractedEntity.
type EntityType string

const (
	EntityArtist EntityType = "artist"
	EntityPerson EntityType = "person"
	EntityOther  EntityType = "other"
)

// ExtractedEntity is a named entity found within an article's text.
type ExtractedEntity struct {
	ID              uuid.UUID
	ArticleID       uuid.UUID
	Name            string
	EntityType      EntityType
	Confidence      float64
	CanonicalArtistID *uuid.UUID
	Context         string
}

// OffenseSeverity is a total order: Low < Medium < High < Critical.
type OffenseSeverity int

const (
	SeverityLow OffenseSeverity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

func (s OffenseSeverity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// OffenseCategory is one of the fourteen fixed classification buckets.
type OffenseCategory string

const (
	CategorySexualMisconduct OffenseCategory = "sexual_misconduct"
	CategoryDomesticViolence OffenseCategory = "domestic_violence"
	CategoryHateSpeech       OffenseCategory = "hate_speech"
	CategoryRacism           OffenseCategory = "racism"
	CategoryAntisemitism     OffenseCategory = "antisemitism"
	CategoryHomophobia       OffenseCategory = "homophobia"
	CategoryChildAbuse       OffenseCategory = "child_abuse"
	CategoryAnimalCruelty    OffenseCategory = "animal_cruelty"
	CategoryFinancialCrimes  OffenseCategory = "financial_crimes"
	CategoryDrugOffenses     OffenseCategory = "drug_offenses"
	CategoryViolentCrimes    OffenseCategory = "violent_crimes"
	CategoryHarassment       OffenseCategory = "harassment"
	CategoryPlagiarism       OffenseCategory = "plagiarism"
	CategoryOther            OffenseCategory = "other"
)

// AllOffenseCategories lists the fourteen fixed categories in a stable order.
var AllOffenseCategories = []OffenseCategory{
	CategorySexualMisconduct,
	CategoryDomesticViolence,
	CategoryHateSpeech,
	CategoryRacism,
	CategoryAntisemitism,
	CategoryHomophobia,
	CategoryChildAbuse,
	CategoryAnimalCruelty,
	CategoryFinancialCrimes,
	CategoryDrugOffenses,
	CategoryViolentCrimes,
	CategoryHarassment,
	CategoryPlagiarism,
	CategoryOther,
}

// OffenseClassification is one category match for an article or entity.
type OffenseClassification struct {
	ID                uuid.UUID
	ArticleID         uuid.UUID
	EntityID          *uuid.UUID
	CanonicalArtistID *uuid.UUID
	Category          OffenseCategory
	Severity          OffenseSeverity
	Confidence        float64
	MatchedKeywords   []string
	Context           string
	NeedsReview       bool
}
