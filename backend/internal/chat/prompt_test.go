package chat

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"

	"github.com/jlwestsr/nebulus-gantry/backend/internal/knowledge"
	"github.com/jlwestsr/nebulus-gantry/backend/internal/memory"
	"github.com/jlwestsr/nebulus-gantry/backend/internal/store"
)

func TestBuildSystemPrompt_PersonaWins(t *testing.T) {
	persona := &store.Persona{SystemPrompt: "You are terse."}
	assert.Equal(t, "You are terse.", buildSystemPrompt(persona, "some-model"))
}

func TestBuildSystemPrompt_DefaultNamesModel(t *testing.T) {
	assert.Contains(t, buildSystemPrompt(nil, "some-model"), "some-model")
	// A persona with a blank prompt falls through to the default
	assert.Contains(t, buildSystemPrompt(&store.Persona{SystemPrompt: "  "}, "some-model"), "some-model")
}

func TestBuildLTMContext_Empty(t *testing.T) {
	assert.Equal(t, "", buildLTMContext(nil, nil))
}

func TestBuildLTMContext_CapsEntries(t *testing.T) {
	var similar []memory.SimilarMessage
	for i := 0; i < 5; i++ {
		similar = append(similar, memory.SimilarMessage{Content: "past message"})
	}
	var facts []knowledge.Relation
	for i := 0; i < 8; i++ {
		facts = append(facts, knowledge.Relation{Entity: "A", Relationship: "knows", ConnectedEntity: "B"})
	}

	out := buildLTMContext(similar, facts)

	assert.Equal(t, 3, strings.Count(out, "- past message"))
	assert.Equal(t, 5, strings.Count(out, "- A knows B"))
}

func TestBuildLTMContext_TruncatesOnRuneBoundary(t *testing.T) {
	// 300 characters, 900 bytes: a byte-indexed cut at 200 would land
	// mid-rune and corrupt the prompt
	content := strings.Repeat("界", 300)

	out := buildLTMContext([]memory.SimilarMessage{{Content: content}}, nil)

	assert.True(t, utf8.ValidString(out))
	assert.Contains(t, out, strings.Repeat("界", 200))
	assert.NotContains(t, out, strings.Repeat("界", 201))
}

func TestBuildLTMContext_ShortMultibyteKeptWhole(t *testing.T) {
	// 150 characters but over 200 bytes; character count is what matters
	content := strings.Repeat("é", 150)

	out := buildLTMContext([]memory.SimilarMessage{{Content: content}}, nil)

	assert.Contains(t, out, content)
}
