package chat

import (
	"fmt"
	"strings"

	"github.com/jlwestsr/nebulus-gantry/backend/internal/knowledge"
	"github.com/jlwestsr/nebulus-gantry/backend/internal/memory"
	"github.com/jlwestsr/nebulus-gantry/backend/internal/store"
)

const (
	maxRecalledMessages = 3
	recallExcerptLen    = 200
	maxRecalledFacts    = 5
)

// buildSystemPrompt picks the persona prompt when one is assigned, otherwise
// a default that names the active model
func buildSystemPrompt(persona *store.Persona, activeModel string) string {
	if persona != nil && strings.TrimSpace(persona.SystemPrompt) != "" {
		return persona.SystemPrompt
	}
	return fmt.Sprintf("You are a helpful AI assistant powered by %s.", activeModel)
}

// buildLTMContext renders the long-term memory blocks appended to the system
// prompt: recalled past messages first, then known graph facts. Empty inputs
// produce no block.
func buildLTMContext(similar []memory.SimilarMessage, facts []knowledge.Relation) string {
	var blocks []string

	if len(similar) > 0 {
		lines := []string{"Relevant past context:"}
		for i, m := range similar {
			if i >= maxRecalledMessages {
				break
			}
			lines = append(lines, "- "+truncateRunes(m.Content, recallExcerptLen))
		}
		blocks = append(blocks, strings.Join(lines, "\n"))
	}

	if len(facts) > 0 {
		lines := []string{"Known facts:"}
		for i, f := range facts {
			if i >= maxRecalledFacts {
				break
			}
			lines = append(lines, fmt.Sprintf("- %s %s %s", f.Entity, f.Relationship, f.ConnectedEntity))
		}
		blocks = append(blocks, strings.Join(lines, "\n"))
	}

	return strings.Join(blocks, "\n\n")
}

// truncateRunes cuts s to at most max characters, never splitting a rune
func truncateRunes(s string, max int) string {
	if len(s) <= max {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
