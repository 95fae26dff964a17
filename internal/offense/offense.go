// Package offense classifies news articles (and the entities named in
// them) against a fixed set of offense categories, using keyword and
// pattern matching rather than a trained model.
package offense

import (
	"sort"
	"strings"

	"github.com/dlclark/regexp2"
	"github.com/google/uuid"

	"github.com/nodrake/backplane/internal/models"
)

// Config tunes confidence thresholds and how much surrounding text a
// matched keyword's context snippet carries.
type Config struct {
	MinConfidence           float64
	HighConfidenceThreshold float64
	ContextWindow           int
}

// DefaultConfig matches the original classifier's thresholds: drop
// anything below 0.4 confidence, and flag anything below 0.8 for
// review.
func DefaultConfig() Config {
	return Config{MinConfidence: 0.4, HighConfidenceThreshold: 0.8, ContextWindow: 150}
}

type categoryRules struct {
	keywords          []string
	patterns          []*regexp2.Regexp
	severityModifiers map[string]models.OffenseSeverity
}

// Classifier scores article text against every fixed offense category.
type Classifier struct {
	cfg              Config
	categories       map[models.OffenseCategory]categoryRules
	negationPatterns []*regexp2.Regexp
}

// NewClassifier builds a Classifier with its keyword/pattern tables
// pre-compiled.
func NewClassifier(cfg Config) *Classifier {
	return &Classifier{
		cfg:        cfg,
		categories: buildCategoryRules(),
		negationPatterns: []*regexp2.Regexp{
			mustCompile(`denied|denies|dismisses|dismissed|unfounded|false|allegations? (were|was) dropped`),
			mustCompile(`not guilty|acquitted|exonerated|cleared of`),
			mustCompile(`no evidence|lacks evidence|unsubstantiated`),
		},
	}
}

func mustCompile(pattern string) *regexp2.Regexp {
	re := regexp2.MustCompile(`(?i)`+pattern, 0)
	return re
}

func sev(modifiers ...any) map[string]models.OffenseSeverity {
	m := make(map[string]models.OffenseSeverity, len(modifiers)/2)
	for i := 0; i+1 < len(modifiers); i += 2 {
		m[modifiers[i].(string)] = modifiers[i+1].(models.OffenseSeverity)
	}
	return m
}

func buildCategoryRules() map[models.OffenseCategory]categoryRules {
	rules := make(map[models.OffenseCategory]categoryRules)

	rules[models.CategorySexualMisconduct] = categoryRules{
		keywords: []string{
			"sexual assault", "sexual harassment", "rape", "groping",
			"inappropriate", "misconduct", "metoo", "#metoo",
			"sexual abuse", "molestation", "predator",
		},
		patterns: []*regexp2.Regexp{
			mustCompile(`sexual(ly)?\s+(assault|harass|abuse)`),
			mustCompile(`accused\s+of\s+.*sexual`),
		},
		severityModifiers: sev("rape", models.SeverityCritical, "assault", models.SeverityHigh, "harassment", models.SeverityMedium),
	}

	rules[models.CategoryDomesticViolence] = categoryRules{
		keywords: []string{
			"domestic violence", "domestic abuse", "beat", "hit",
			"assault", "battery", "restraining order", "abuse",
			"physical altercation", "attacked",
		},
		patterns: []*regexp2.Regexp{
			mustCompile(`(beat|hit|assault|attack)\s*(his|her|their)?\s*(wife|husband|girlfriend|boyfriend|partner|ex)`),
			mustCompile(`domestic\s+(violence|abuse)`),
		},
		severityModifiers: sev("hospitalized", models.SeverityCritical, "beat", models.SeverityHigh, "restraining order", models.SeverityMedium),
	}

	rules[models.CategoryHateSpeech] = categoryRules{
		keywords: []string{
			"hate speech", "slur", "offensive comments", "racist remarks",
			"discrimination", "bigot", "hateful", "derogatory",
		},
		patterns: []*regexp2.Regexp{
			mustCompile(`hate\s+speech`),
			mustCompile(`(racial|racist|homophobic|transphobic)\s+slur`),
		},
		severityModifiers: sev("slur", models.SeverityHigh, "hate speech", models.SeverityHigh),
	}

	rules[models.CategoryRacism] = categoryRules{
		keywords: []string{
			"racist", "racism", "racial slur", "n-word", "blackface",
			"white supremacy", "segregation", "racial discrimination",
		},
		patterns: []*regexp2.Regexp{
			mustCompile(`racist\s+(comment|remark|statement|post)`),
			mustCompile(`accused\s+of\s+racism`),
		},
		severityModifiers: sev("white supremacy", models.SeverityCritical, "n-word", models.SeverityHigh, "blackface", models.SeverityHigh),
	}

	rules[models.CategoryAntisemitism] = categoryRules{
		keywords: []string{
			"antisemit", "anti-semit", "jewish", "jews", "holocaust",
			"nazi", "hitler", "concentration camp", "zionist conspiracy",
		},
		patterns: []*regexp2.Regexp{
			mustCompile(`anti[- ]?semit`),
			mustCompile(`against\s+jews`),
		},
		severityModifiers: sev("holocaust denial", models.SeverityCritical, "nazi", models.SeverityCritical, "antisemitic", models.SeverityHigh),
	}

	rules[models.CategoryHomophobia] = categoryRules{
		keywords: []string{
			"homophobic", "homophobia", "anti-gay", "anti-lgbtq",
			"transphobic", "transphobia", "slur",
		},
		patterns: []*regexp2.Regexp{
			mustCompile(`homophobic\s+(comment|remark|slur)`),
			mustCompile(`anti[- ]?(gay|lgbtq|trans)`),
		},
		severityModifiers: sev("slur", models.SeverityHigh, "homophobic", models.SeverityMedium),
	}

	rules[models.CategoryChildAbuse] = categoryRules{
		keywords: []string{
			"child abuse", "minor", "underage", "pedophile",
			"child exploitation", "grooming",
		},
		patterns: []*regexp2.Regexp{
			mustCompile(`child\s+(abuse|exploitation|pornography)`),
			mustCompile(`(sexual|inappropriate)\s+.*\s+(minor|underage|child)`),
		},
		severityModifiers: sev("pedophile", models.SeverityCritical, "child abuse", models.SeverityCritical, "grooming", models.SeverityCritical),
	}

	rules[models.CategoryViolentCrimes] = categoryRules{
		keywords: []string{
			"murder", "killed", "shooting", "stabbing", "assault",
			"manslaughter", "attempted murder", "gun", "weapon",
		},
		patterns: []*regexp2.Regexp{
			mustCompile(`charged\s+with\s+(murder|assault|battery)`),
			mustCompile(`arrested\s+for\s+(shooting|stabbing|assault)`),
		},
		severityModifiers: sev("murder", models.SeverityCritical, "shooting", models.SeverityCritical, "assault", models.SeverityHigh),
	}

	rules[models.CategoryFinancialCrimes] = categoryRules{
		keywords: []string{
			"fraud", "embezzlement", "money laundering", "tax evasion",
			"scam", "ponzi", "crypto scam", "nft scam",
		},
		patterns: []*regexp2.Regexp{
			mustCompile(`charged\s+with\s+(fraud|embezzlement|tax)`),
			mustCompile(`(crypto|nft)\s+scam`),
		},
		severityModifiers: sev("fraud", models.SeverityHigh, "embezzlement", models.SeverityHigh, "scam", models.SeverityMedium),
	}

	rules[models.CategoryDrugOffenses] = categoryRules{
		keywords: []string{
			"drug trafficking", "drug possession", "cocaine", "heroin",
			"fentanyl", "drug arrest", "narcotics",
		},
		patterns: []*regexp2.Regexp{
			mustCompile(`arrested\s+.*\s+drug`),
			mustCompile(`drug\s+(trafficking|possession|charges)`),
		},
		severityModifiers: sev("trafficking", models.SeverityHigh, "fentanyl", models.SeverityHigh, "possession", models.SeverityLow),
	}

	// Supplemented beyond the original ten: animal cruelty, harassment
	// (non-sexual), plagiarism, and a catch-all "other" bucket.
	rules[models.CategoryAnimalCruelty] = categoryRules{
		keywords: []string{
			"animal cruelty", "animal abuse", "dog fighting", "neglected his dog",
			"neglected her dog", "abandoned the animal", "poaching",
		},
		patterns: []*regexp2.Regexp{
			mustCompile(`animal\s+(cruelty|abuse|neglect)`),
			mustCompile(`(dog|cock)\s*fighting`),
		},
		severityModifiers: sev("dog fighting", models.SeverityHigh, "animal cruelty", models.SeverityHigh, "poaching", models.SeverityMedium),
	}

	rules[models.CategoryHarassment] = categoryRules{
		keywords: []string{
			"harassment", "stalking", "intimidation", "threatening messages",
			"cyberbullying", "online harassment", "bullying",
		},
		patterns: []*regexp2.Regexp{
			mustCompile(`(online|cyber)\s*bullying`),
			mustCompile(`accused\s+of\s+(harassment|stalking)`),
		},
		severityModifiers: sev("stalking", models.SeverityHigh, "harassment", models.SeverityMedium, "cyberbullying", models.SeverityMedium),
	}

	rules[models.CategoryPlagiarism] = categoryRules{
		keywords: []string{
			"plagiarism", "plagiarized", "stole the beat", "copyright infringement",
			"uncredited sample", "sued for copying", "ripped off",
		},
		patterns: []*regexp2.Regexp{
			mustCompile(`(sued|lawsuit)\s+.*\s+(plagiar|copyright|infringement)`),
			mustCompile(`accused\s+of\s+plagiar`),
		},
		severityModifiers: sev("copyright infringement", models.SeverityMedium, "plagiarism", models.SeverityMedium),
	}

	rules[models.CategoryOther] = categoryRules{
		keywords: []string{
			"controversy", "scandal", "under investigation", "facing backlash",
		},
		patterns: []*regexp2.Regexp{
			mustCompile(`facing\s+backlash`),
		},
		severityModifiers: sev("scandal", models.SeverityLow, "controversy", models.SeverityLow),
	}

	return rules
}

// Classify scores text (and optional title) against every category,
// attributing matches to entities whose name appears in the matched
// context when entities are supplied, or producing one article-level
// classification per category otherwise.
func (c *Classifier) Classify(articleID uuid.UUID, text string, title string, entities []models.ExtractedEntity) []models.OffenseClassification {
	fullText := text
	if title != "" {
		fullText = title + "\n\n" + text
	}
	lowerText := strings.ToLower(fullText)

	var out []models.OffenseClassification

	for category, rules := range c.categories {
		var matchedKeywords []string
		var contexts []string
		maxSeverity := models.SeverityLow

		for _, keyword := range rules.keywords {
			lowerKeyword := strings.ToLower(keyword)
			pos := strings.Index(lowerText, lowerKeyword)
			if pos < 0 {
				continue
			}
			matchedKeywords = append(matchedKeywords, keyword)
			contexts = append(contexts, extractContext(fullText, pos, pos+len(keyword), c.cfg.ContextWindow))
			if severity, ok := rules.severityModifiers[keyword]; ok && severity > maxSeverity {
				maxSeverity = severity
			}
		}

		patternMatched := false
		for _, pattern := range rules.patterns {
			match, _ := pattern.FindStringMatch(fullText)
			for match != nil {
				matched := match.String()
				if !containsSubstringOf(matchedKeywords, matched) {
					matchedKeywords = append(matchedKeywords, matched)
					contexts = append(contexts, extractContext(fullText, match.Index, match.Index+match.Length, c.cfg.ContextWindow))
				}
				patternMatched = true
				match, _ = pattern.FindNextMatch(match)
			}
		}

		if len(matchedKeywords) == 0 {
			continue
		}

		hasNegation := false
		for _, neg := range c.negationPatterns {
			if ok, _ := neg.MatchString(fullText); ok {
				hasNegation = true
				break
			}
		}

		keywordScore := min(float64(len(matchedKeywords))*0.2, 0.6)
		patternScore := 0.0
		if patternMatched {
			patternScore = 0.3
		}
		titleScore := 0.0
		if title != "" {
			lowerTitle := strings.ToLower(title)
			for _, k := range matchedKeywords {
				if strings.Contains(lowerTitle, strings.ToLower(k)) {
					titleScore = 0.2
					break
				}
			}
		}

		confidence := min(keywordScore+patternScore+titleScore, 0.95)
		if hasNegation {
			confidence *= 0.5
		}
		if confidence < c.cfg.MinConfidence {
			continue
		}

		needsReview := confidence < c.cfg.HighConfidenceThreshold || hasNegation
		firstContext := ""
		if len(contexts) > 0 {
			firstContext = contexts[0]
		}

		relevant := relevantEntities(entities, contexts)
		if len(relevant) == 0 {
			out = append(out, models.OffenseClassification{
				ID:              uuid.New(),
				ArticleID:       articleID,
				Category:        category,
				Severity:        maxSeverity,
				Confidence:      confidence,
				MatchedKeywords: append([]string(nil), matchedKeywords...),
				Context:         firstContext,
				NeedsReview:     needsReview,
			})
			continue
		}
		for _, entity := range relevant {
			entityID := entity.ID
			out = append(out, models.OffenseClassification{
				ID:                uuid.New(),
				ArticleID:         articleID,
				EntityID:          &entityID,
				CanonicalArtistID: entity.CanonicalArtistID,
				Category:          category,
				Severity:          maxSeverity,
				Confidence:        confidence,
				MatchedKeywords:   append([]string(nil), matchedKeywords...),
				Context:           entity.Context,
				NeedsReview:       needsReview,
			})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Severity != out[j].Severity {
			return out[i].Severity > out[j].Severity
		}
		return out[i].Confidence > out[j].Confidence
	})

	return out
}

func relevantEntities(entities []models.ExtractedEntity, contexts []string) []models.ExtractedEntity {
	var out []models.ExtractedEntity
	for _, e := range entities {
		for _, c := range contexts {
			if strings.Contains(c, e.Name) {
				out = append(out, e)
				break
			}
		}
	}
	return out
}

func containsSubstringOf(keywords []string, matched string) bool {
	for _, k := range keywords {
		if strings.Contains(matched, k) {
			return true
		}
	}
	return false
}

func extractContext(text string, start, end, window int) string {
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
