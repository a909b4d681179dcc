package document

import (
	"fmt"
	"strings"

	"github.com/NathanYKo/RAG-Document-System/services"
)

// Chunking bounds accepted on upload.
const (
	minChunkSize    = 100
	maxChunkSize    = 4000
	maxChunkOverlap = 1000
)

// ChunkConfig controls the sliding-window splitter
type ChunkConfig struct {
	Size    int
	Overlap int
}

// Validate checks the window bounds. The overlap must stay below the
// chunk size so the window always moves forward.
func (c ChunkConfig) Validate() error {
	if c.Size < minChunkSize || c.Size > maxChunkSize {
		return services.NewDomainError(services.ErrorTypeValidation,
			fmt.Sprintf("chunk_size must be between %d and %d", minChunkSize, maxChunkSize), nil)
	}
	if c.Overlap < 0 || c.Overlap > maxChunkOverlap {
		return services.NewDomainError(services.ErrorTypeValidation,
			fmt.Sprintf("chunk_overlap must be between 0 and %d", maxChunkOverlap), nil)
	}
	if c.Overlap >= c.Size {
		return services.NewDomainError(services.ErrorTypeValidation,
			"chunk_overlap must be smaller than chunk_size", nil)
	}
	return nil
}

// splitChunks cuts text into fixed-size windows, each overlapping the
// previous one by cfg.Overlap. Offsets are in runes so multi-byte
// characters are never split. Whitespace-only windows are dropped.
func splitChunks(text string, cfg ChunkConfig) []string {
	runes := []rune(text)
	length := len(runes)

	// A non-positive step would stall the window.
	step := cfg.Size - cfg.Overlap
	if step < 1 {
		step = cfg.Size
	}

	var chunks []string
	for start := 0; start < length; start += step {
		end := start + cfg.Size
		if end > length {
			end = length
		}
		chunk := string(runes[start:end])
		if strings.TrimSpace(chunk) != "" {
			chunks = append(chunks, chunk)
		}
		if end >= length {
			break
		}
	}
	return chunks
}
