package rag

import (
	"strings"

	"go.uber.org/zap"
)

const (
	minChunkLength   = 10
	diversityOverlap = 0.7
)

// noisePrefixes mark chunks that are log output rather than document text
var noisePrefixes = []string{"error", "warning", "debug"}

// Filter removes low quality, unwanted and near-duplicate chunks while
// preserving retrieval order. Applying it twice gives the same result.
type Filter struct {
	logger *zap.Logger
}

func NewFilter(logger *zap.Logger) *Filter {
	return &Filter{logger: logger}
}

// Apply runs the quality gate, the caller's filter params and the
// diversity pass, in that order.
func (f *Filter) Apply(chunks []ContextChunk, params *FilterParams) []ContextChunk {
	kept := make([]ContextChunk, 0, len(chunks))
	for _, chunk := range chunks {
		if !passesQuality(chunk) {
			continue
		}
		if params != nil && !matchesParams(chunk, params) {
			continue
		}
		kept = append(kept, chunk)
	}

	diverse := diversify(kept)
	f.logger.Debug("filtered context chunks",
		zap.Int("in", len(chunks)),
		zap.Int("after_filters", len(kept)),
		zap.Int("out", len(diverse)),
	)
	return diverse
}

// passesQuality drops fragments too short to carry meaning and chunks
// that look like captured log lines.
func passesQuality(chunk ContextChunk) bool {
	if len(strings.TrimSpace(chunk.Content)) < minChunkLength {
		return false
	}
	lower := strings.ToLower(chunk.Content)
	for _, prefix := range noisePrefixes {
		if strings.HasPrefix(lower, prefix) {
			return false
		}
	}
	return true
}

func matchesParams(chunk ContextChunk, params *FilterParams) bool {
	if params.FileType != "" && string(chunk.Metadata.FileType) != params.FileType {
		return false
	}
	if params.MinScore != nil && chunk.RelevanceScore < *params.MinScore {
		return false
	}
	return true
}

// diversify drops chunks whose word overlap with an already accepted
// chunk exceeds the threshold. The first chunk is always kept, and order
// is preserved, so the result is deterministic.
func diversify(chunks []ContextChunk) []ContextChunk {
	if len(chunks) <= 1 {
		return chunks
	}

	diverse := make([]ContextChunk, 1, len(chunks))
	diverse[0] = chunks[0]
	keptSets := []map[string]struct{}{wordSet(chunks[0].Content)}

	for _, chunk := range chunks[1:] {
		words := wordSet(chunk.Content)
		include := true
		for _, kept := range keptSets {
			if jaccard(words, kept) > diversityOverlap {
				include = false
				break
			}
		}
		if include {
			diverse = append(diverse, chunk)
			keptSets = append(keptSets, words)
		}
	}
	return diverse
}

func wordSet(content string) map[string]struct{} {
	words := strings.Fields(strings.ToLower(content))
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	intersection := 0
	for w := range a {
		if _, ok := b[w]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	return float64(intersection) / float64(union)
}
