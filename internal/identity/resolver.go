package identity

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/nodrake/backplane/internal/models"
)

// Confidence thresholds a resolved match is judged against: at or above
// autoMergeThreshold a match is trusted outright; at or above
// reviewThreshold but below it, a match is used but flagged for human
// review; below reviewThreshold, no match is returned at all.
const (
	autoMergeThreshold = 0.85
	reviewThreshold    = 0.70
)

// genreSynonyms normalizes genre name variants so fuzzy genre overlap
// isn't fooled by "hip-hop" vs "hip hop" vs "rap".
var genreSynonyms = [][2]string{
	{"hip-hop", "hip hop"},
	{"hip-hop", "rap"},
	{"hip hop", "rap"},
	{"r&b", "rnb"},
	{"r&b", "rhythm and blues"},
	{"rock", "rock and roll"},
	{"pop", "pop rock"},
	{"electronic", "edm"},
	{"electronic", "dance"},
}

// Resolver resolves PlatformArtist records to a CanonicalArtist,
// trying existing platform-id mappings first, then MusicBrainz, then
// fuzzy name matching, and finally minting a new canonical identity.
type Resolver struct {
	musicbrainz *MusicBrainzClient
	cleaner     *MetadataCleaner
}

// NewResolver builds a Resolver backed by mb for external lookups.
func NewResolver(mb *MusicBrainzClient) *Resolver {
	return &Resolver{musicbrainz: mb, cleaner: NewMetadataCleaner("Latin")}
}

// Resolve maps platformArtist onto one of existingArtists, or proposes a
// new canonical identity if nothing matches well enough.
func (r *Resolver) Resolve(ctx context.Context, platformArtist models.PlatformArtist, existingArtists []models.CanonicalArtist) (models.IdentityMatch, error) {
	if match, ok := r.checkExistingMapping(platformArtist, existingArtists); ok {
		return match, nil
	}

	if match, ok, err := r.lookupMusicBrainz(ctx, platformArtist, existingArtists); err != nil {
		return models.IdentityMatch{}, err
	} else if ok {
		return match, nil
	}

	if match, ok := r.fuzzyMatch(platformArtist, existingArtists); ok {
		return match, nil
	}

	return r.newArtist(platformArtist), nil
}

// ResolveBatch resolves every platformArtists entry independently,
// stopping at the first lookup error.
func (r *Resolver) ResolveBatch(ctx context.Context, platformArtists []models.PlatformArtist, existingArtists []models.CanonicalArtist) ([]models.IdentityMatch, error) {
	out := make([]models.IdentityMatch, 0, len(platformArtists))
	for _, pa := range platformArtists {
		match, err := r.Resolve(ctx, pa, existingArtists)
		if err != nil {
			return nil, fmt.Errorf("resolving %q: %w", pa.Name, err)
		}
		out = append(out, match)
	}
	return out, nil
}

func (r *Resolver) checkExistingMapping(platformArtist models.PlatformArtist, existing []models.CanonicalArtist) (models.IdentityMatch, bool) {
	for _, artist := range existing {
		if id, ok := artist.PlatformIDs[platformArtist.Platform]; ok && id == platformArtist.PlatformID {
			return models.IdentityMatch{Artist: artist, Confidence: 1.0, Method: models.MethodExistingMapping}, true
		}
	}
	return models.IdentityMatch{}, false
}

func (r *Resolver) lookupMusicBrainz(ctx context.Context, platformArtist models.PlatformArtist, existing []models.CanonicalArtist) (models.IdentityMatch, bool, error) {
	if r.musicbrainz == nil {
		return models.IdentityMatch{}, false, nil
	}

	name, _ := r.cleaner.CleanArtist(platformArtist.Name)
	candidates, err := r.musicbrainz.SearchArtists(ctx, name)
	if err != nil {
		return models.IdentityMatch{}, false, err
	}
	if len(candidates) == 0 {
		return models.IdentityMatch{}, false, nil
	}

	var best *MusicBrainzArtist
	var bestScore float64
	for i := range candidates {
		score := scoreMusicBrainzMatch(&candidates[i], platformArtist.Name, platformArtist.Genres)
		if score >= reviewThreshold && (best == nil || score > bestScore) {
			best = &candidates[i]
			bestScore = score
		}
	}
	if best == nil {
		return models.IdentityMatch{}, false, nil
	}

	canonical := musicBrainzToCanonical(*best)
	for _, e := range existing {
		if e.MusicBrainzID != nil && canonical.MusicBrainzID != nil && *e.MusicBrainzID == *canonical.MusicBrainzID {
			return models.IdentityMatch{Artist: e, Confidence: bestScore, Method: models.MethodMusicBrainzID}, true, nil
		}
	}
	return models.IdentityMatch{
		Artist:      canonical,
		Confidence:  bestScore,
		Method:      models.MethodMusicBrainzID,
		NeedsReview: bestScore < autoMergeThreshold,
	}, true, nil
}

func scoreMusicBrainzMatch(mb *MusicBrainzArtist, searchName string, searchGenres []string) float64 {
	score := 0.0

	nameSim := stringSimilarity(mb.Name, searchName)
	for _, alias := range mb.Aliases {
		if aliasSim := stringSimilarity(alias.Name, searchName); aliasSim > nameSim {
			nameSim = aliasSim
		}
	}
	score += nameSim * 0.6

	if len(searchGenres) > 0 && len(mb.Tags) > 0 {
		mbGenres := make([]string, len(mb.Tags))
		for i, t := range mb.Tags {
			mbGenres[i] = t.Name
		}
		score += genreOverlap(searchGenres, mbGenres) * 0.2
	} else {
		score += 0.1
	}

	if mb.LifeSpan != nil {
		if mb.LifeSpan.Ended == nil || !*mb.LifeSpan.Ended {
			score += 0.1
		}
	} else {
		score += 0.05
	}

	if len(mb.ISNIs) > 0 {
		score += 0.1
	}

	return min(score, 1.0)
}

func musicBrainzToCanonical(mb MusicBrainzArtist) models.CanonicalArtist {
	aliases := make([]string, len(mb.Aliases))
	for i, a := range mb.Aliases {
		aliases[i] = a.Name
	}
	genres := make([]string, 0, len(mb.Tags))
	for _, t := range mb.Tags {
		if t.Count > 0 {
			genres = append(genres, t.Name)
		}
	}

	artist := models.CanonicalArtist{
		ID:            uuid.New(),
		Name:          mb.Name,
		MusicBrainzID: &mb.ID,
		Aliases:       aliases,
		Genres:        genres,
		PlatformIDs:   make(map[models.Platform]string),
	}
	if len(mb.ISNIs) > 0 {
		artist.ISNI = &mb.ISNIs[0]
	}
	if mb.Country != "" {
		artist.Country = &mb.Country
	}
	return artist
}

func (r *Resolver) fuzzyMatch(platformArtist models.PlatformArtist, existing []models.CanonicalArtist) (models.IdentityMatch, bool) {
	var best *models.CanonicalArtist
	var bestScore float64
	for i := range existing {
		score := scoreArtistMatch(platformArtist, existing[i])
		if score >= reviewThreshold && (best == nil || score > bestScore) {
			best = &existing[i]
			bestScore = score
		}
	}
	if best == nil {
		return models.IdentityMatch{}, false
	}
	return models.IdentityMatch{
		Artist:      *best,
		Confidence:  bestScore,
		Method:      models.MethodFuzzyName,
		NeedsReview: bestScore < autoMergeThreshold,
	}, true
}

func scoreArtistMatch(platformArtist models.PlatformArtist, canonical models.CanonicalArtist) float64 {
	score := 0.0

	nameSim := stringSimilarity(platformArtist.Name, canonical.Name)
	for _, alias := range canonical.Aliases {
		if aliasSim := stringSimilarity(platformArtist.Name, alias); aliasSim > nameSim {
			nameSim = aliasSim
		}
	}
	score += nameSim * 0.5

	if len(platformArtist.Genres) > 0 && len(canonical.Genres) > 0 {
		score += genreOverlap(platformArtist.Genres, canonical.Genres) * 0.3
	} else {
		score += 0.15
	}

	if len(canonical.PlatformIDs) > 0 {
		score += 0.2
	}

	return min(score, 1.0)
}

func (r *Resolver) newArtist(platformArtist models.PlatformArtist) models.IdentityMatch {
	canonical := models.CanonicalArtist{
		ID:          uuid.New(),
		Name:        platformArtist.Name,
		Genres:      append([]string(nil), platformArtist.Genres...),
		PlatformIDs: map[models.Platform]string{platformArtist.Platform: platformArtist.PlatformID},
	}
	return models.IdentityMatch{Artist: canonical, Confidence: 1.0, Method: models.MethodNewArtist}
}

// Merge combines secondary into primary, preferring primary's fields but
// filling gaps and deduplicating aliases, genres, and platform ids.
func Merge(primary, secondary models.CanonicalArtist) models.CanonicalArtist {
	merged := primary

	if merged.MusicBrainzID == nil {
		merged.MusicBrainzID = secondary.MusicBrainzID
	}
	if merged.ISNI == nil {
		merged.ISNI = secondary.ISNI
	}
	if merged.Country == nil {
		merged.Country = secondary.Country
	}

	merged.Aliases = append([]string(nil), merged.Aliases...)
	for _, alias := range secondary.Aliases {
		if !contains(merged.Aliases, alias) {
			merged.Aliases = append(merged.Aliases, alias)
		}
	}

	merged.Genres = append([]string(nil), merged.Genres...)
	for _, genre := range secondary.Genres {
		if !contains(merged.Genres, genre) {
			merged.Genres = append(merged.Genres, genre)
		}
	}

	merged.PlatformIDs = make(map[models.Platform]string, len(primary.PlatformIDs)+len(secondary.PlatformIDs))
	for k, v := range primary.PlatformIDs {
		merged.PlatformIDs[k] = v
	}
	for k, v := range secondary.PlatformIDs {
		if _, ok := merged.PlatformIDs[k]; !ok {
			merged.PlatformIDs[k] = v
		}
	}

	return merged
}

func contains(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}

// stringSimilarity scores how close two names are via normalized
// Levenshtein distance, 1.0 for an exact (case-insensitive) match.
func stringSimilarity(a, b string) float64 {
	aLower, bLower := strings.ToLower(a), strings.ToLower(b)
	if aLower == bLower {
		return 1.0
	}

	distance := levenshteinDistance(aLower, bLower)
	maxLen := max(len(aLower), len(bLower))
	if maxLen == 0 {
		return 1.0
	}
	return 1.0 - float64(distance)/float64(maxLen)
}

func levenshteinDistance(a, b string) int {
	aRunes, bRunes := []rune(a), []rune(b)
	aLen, bLen := len(aRunes), len(bRunes)
	if aLen == 0 {
		return bLen
	}
	if bLen == 0 {
		return aLen
	}

	matrix := make([][]int, aLen+1)
	for i := range matrix {
		matrix[i] = make([]int, bLen+1)
		matrix[i][0] = i
	}
	for j := 0; j <= bLen; j++ {
		matrix[0][j] = j
	}

	for i := 1; i <= aLen; i++ {
		for j := 1; j <= bLen; j++ {
			cost := 1
			if aRunes[i-1] == bRunes[j-1] {
				cost = 0
			}
			matrix[i][j] = min(
				matrix[i-1][j]+1,
				min(matrix[i][j-1]+1, matrix[i-1][j-1]+cost),
			)
		}
	}
	return matrix[aLen][bLen]
}

// genreOverlap scores what fraction of the smaller genre list has a
// synonym-aware match in the other.
func genreOverlap(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}

	matches := 0
	for _, genreA := range a {
		for _, genreB := range b {
			if genresMatch(genreA, genreB) {
				matches++
				break
			}
		}
	}

	smaller := len(a)
	if len(b) < smaller {
		smaller = len(b)
	}
	return float64(matches) / float64(smaller)
}

func genresMatch(a, b string) bool {
	aLower, bLower := strings.ToLower(a), strings.ToLower(b)
	if aLower == bLower {
		return true
	}
	if strings.Contains(aLower, bLower) || strings.Contains(bLower, aLower) {
		return true
	}
	for _, pair := range genreSynonyms {
		if (strings.Contains(aLower, pair[0]) && strings.Contains(bLower, pair[1])) ||
			(strings.Contains(aLower, pair[1]) && strings.Contains(bLower, pair[0])) {
			return true
		}
	}
	return false
}
