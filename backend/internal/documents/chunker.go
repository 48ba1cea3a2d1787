package documents

import "strings"

// Default chunk settings: ~500 tokens ≈ 2000 chars with 100 chars of overlap
const (
	DefaultChunkSize    = 2000
	DefaultChunkOverlap = 100
)

// ChunkText splits text into overlapping chunks of at most size characters.
// Each window prefers to cut at a paragraph break past its midpoint, then at
// a sentence break past its midpoint, then hard-cuts at the size limit. The
// next window starts overlap characters before the cut so no sentence is
// stranded between chunks.
func ChunkText(text string, size, overlap int) []string {
	if text == "" {
		return nil
	}

	var chunks []string
	start := 0

	for start < len(text) {
		end := start + size

		if end < len(text) {
			window := text[start:end]
			if br := strings.LastIndex(window, "\n\n"); br > size/2 {
				end = start + br + 2
			} else if br := strings.LastIndex(window, ". "); br > size/2 {
				end = start + br + 2
			}
		} else {
			end = len(text)
		}

		if chunk := strings.TrimSpace(text[start:end]); chunk != "" {
			chunks = append(chunks, chunk)
		}

		if end < len(text) {
			start = end - overlap
		} else {
			start = len(text)
		}
	}

	return chunks
}
