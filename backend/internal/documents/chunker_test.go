package documents

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkText_Empty(t *testing.T) {
	assert.Nil(t, ChunkText("", 100, 10))
}

func TestChunkText_ShorterThanChunkSize(t *testing.T) {
	chunks := ChunkText("  a short document  ", 100, 10)

	require.Len(t, chunks, 1)
	assert.Equal(t, "a short document", chunks[0])
}

func TestChunkText_CoversWholeSource(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 50; i++ {
		b.WriteString("Sentence number about various topics that runs on. ")
	}
	text := b.String()

	chunks := ChunkText(text, 200, 20)
	require.NotEmpty(t, chunks)

	// Every chunk is drawn from the source and the final chunk reaches its end
	for _, chunk := range chunks {
		assert.Contains(t, text, chunk)
		assert.LessOrEqual(t, len(chunk), 200)
	}
	last := chunks[len(chunks)-1]
	assert.Equal(t, strings.TrimSpace(text)[len(strings.TrimSpace(text))-len(last):], last)
}

func TestChunkText_PrefersParagraphBreak(t *testing.T) {
	para1 := strings.Repeat("a", 150)
	para2 := strings.Repeat("b", 150)
	text := para1 + "\n\n" + para2

	chunks := ChunkText(text, 200, 10)

	require.GreaterOrEqual(t, len(chunks), 2)
	// The first cut lands at the paragraph break, not mid-paragraph
	assert.Equal(t, para1, chunks[0])
}

func TestChunkText_FallsBackToSentenceBreak(t *testing.T) {
	sentence1 := strings.Repeat("a", 150) + ". "
	sentence2 := strings.Repeat("b", 150)
	text := sentence1 + sentence2

	chunks := ChunkText(text, 200, 10)

	require.GreaterOrEqual(t, len(chunks), 2)
	assert.Equal(t, strings.TrimSpace(sentence1), chunks[0])
}

func TestChunkText_HardCutWithoutBreaks(t *testing.T) {
	text := strings.Repeat("x", 450)

	chunks := ChunkText(text, 200, 50)

	require.Len(t, chunks, 3)
	assert.Equal(t, 200, len(chunks[0]))
	// Overlap: each next chunk starts 50 chars before the previous cut
	assert.Equal(t, 200, len(chunks[1]))
	assert.Equal(t, 150, len(chunks[2]))
}

func TestChunkText_OverlapRepeatsBoundaryText(t *testing.T) {
	text := strings.Repeat("y", 300)

	chunks := ChunkText(text, 200, 50)

	require.Len(t, chunks, 2)
	// Second window starts at 150, so 50 chars are shared
	assert.Equal(t, 150, len(chunks[1]))
}
