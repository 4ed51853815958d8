package ingest

import "strings"

// minChunkSize floors the configured chunk size; below this, chunks are
// too small to carry enough context for a useful embedding.
const minChunkSize = 200

// SplitIntoChunks splits text into chunks of at most chunkSize runes,
// each starting chunkSize-overlap runes after the previous one. Indexing
// is rune-based so a multibyte character is never cut in half.
func SplitIntoChunks(text string, chunkSize int, overlap int) []string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) == 0 {
		return nil
	}

	if chunkSize < minChunkSize {
		chunkSize = minChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	step := chunkSize - overlap
	if step <= 0 {
		step = chunkSize
	}

	chunks := make([]string, 0, len(runes)/step+1)
	for lo := 0; lo < len(runes); lo += step {
		hi := lo + chunkSize
		if hi > len(runes) {
			hi = len(runes)
		}
		if chunk := strings.TrimSpace(string(runes[lo:hi])); chunk != "" {
			chunks = append(chunks, chunk)
		}
		if hi == len(runes) {
			break
		}
	}
	return chunks
}
