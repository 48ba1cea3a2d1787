package extract

import (
	"regexp"
	"strings"
	"unicode"
)

// EntityType classifies an extracted entity
type EntityType string

const (
	// TypeEmail marks an email address
	TypeEmail EntityType = "email"
	// TypeURL marks a web URL
	TypeURL EntityType = "url"
	// TypeEntity marks a generic capitalized entity (name, project, place)
	TypeEntity EntityType = "entity"
)

// Entity is a single extracted entity. Entities are ephemeral: they feed the
// knowledge graph but are never persisted themselves.
type Entity struct {
	Type  EntityType `json:"type"`
	Value string     `json:"value"`
}

var (
	emailPattern    = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)
	urlPattern      = regexp.MustCompile(`https?://[^\s<>"'\)\]]+`)
	urlTrailingPunc = regexp.MustCompile(`[.,;:!?]+$`)
	sentenceSplit   = regexp.MustCompile(`[.!?]+\s*`)
	nonWord         = regexp.MustCompile(`[^\p{L}\p{N}_]`)
)

// stopwords are common words never treated as entities even when capitalized
var stopwords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "this": {}, "that": {}, "these": {}, "those": {},
	"i": {}, "you": {}, "he": {}, "she": {}, "it": {}, "we": {}, "they": {},
	"my": {}, "your": {}, "his": {}, "her": {}, "its": {}, "our": {}, "their": {},
	"is": {}, "are": {}, "was": {}, "were": {}, "be": {}, "been": {}, "being": {},
	"have": {}, "has": {}, "had": {}, "do": {}, "does": {}, "did": {},
	"will": {}, "would": {}, "could": {}, "should": {}, "may": {}, "might": {}, "must": {},
	"and": {}, "or": {}, "but": {}, "if": {}, "then": {}, "so": {}, "as": {}, "of": {}, "for": {}, "with": {},
	"to": {}, "from": {}, "in": {}, "on": {}, "at": {}, "by": {}, "about": {},
	"what": {}, "when": {}, "where": {}, "why": {}, "how": {}, "who": {}, "which": {},
	"there": {}, "here": {}, "now": {}, "just": {}, "also": {}, "very": {},
	"yes": {}, "no": {}, "not": {}, "only": {}, "all": {}, "any": {}, "some": {}, "every": {},
}

// Extract pulls entities out of free text using pure heuristics: email
// addresses first, then URLs, then capitalized words and multi-word runs.
// Deterministic and side-effect free; safe to call from any goroutine.
func Extract(text string) []Entity {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var entities []Entity
	seen := make(map[string]struct{})

	add := func(t EntityType, value string) {
		if _, dup := seen[value]; dup {
			return
		}
		seen[value] = struct{}{}
		entities = append(entities, Entity{Type: t, Value: value})
	}

	for _, email := range emailPattern.FindAllString(text, -1) {
		add(TypeEmail, email)
	}

	for _, url := range urlPattern.FindAllString(text, -1) {
		add(TypeURL, urlTrailingPunc.ReplaceAllString(url, ""))
	}

	for _, sentence := range sentenceSplit.Split(text, -1) {
		if strings.TrimSpace(sentence) == "" {
			continue
		}
		words := strings.Fields(sentence)

		i := 0
		for i < len(words) {
			clean := cleanWord(words[i])
			if !qualifies(clean) {
				i++
				continue
			}

			// Greedily absorb the run of qualifying words that follows
			run := []string{clean}
			j := i + 1
			for j < len(words) {
				next := cleanWord(words[j])
				if !qualifies(next) {
					break
				}
				run = append(run, next)
				j++
			}

			switch {
			case len(run) > 1:
				add(TypeEntity, strings.Join(run, " "))
				i = j
			case i > 0:
				add(TypeEntity, clean)
				i++
			default:
				// Lone capitalized word opening a sentence is ordinary
				// sentence capitalization, not an entity
				i++
			}
		}
	}

	return entities
}

// cleanWord strips punctuation so "Alice," and "(Alice)" both check as "Alice"
func cleanWord(word string) string {
	return nonWord.ReplaceAllString(word, "")
}

// qualifies reports whether a cleaned token is an entity candidate: at least
// two characters, uppercase initial, and not a stopword
func qualifies(clean string) bool {
	if len(clean) < 2 {
		return false
	}
	runes := []rune(clean)
	if !unicode.IsUpper(runes[0]) {
		return false
	}
	_, stop := stopwords[strings.ToLower(clean)]
	return !stop
}
