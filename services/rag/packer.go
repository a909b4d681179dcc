package rag

// truncationFloor is the smallest leftover token budget that still gets a
// truncated chunk.
const truncationFloor = 100

// Packer selects chunks for the prompt context under the token budget.
// Input order is preserved, so feeding it ranked chunks keeps the best
// ones first.
type Packer struct {
	cfg Config
}

func NewPacker(cfg Config) *Packer {
	return &Packer{cfg: cfg}
}

// Pack greedily accepts chunks until the context budget or the chunk cap
// is reached. The first chunk that does not fit whole is truncated to the
// remaining budget when enough of it remains, then packing stops.
func (p *Packer) Pack(chunks []ContextChunk) []ContextChunk {
	selected := make([]ContextChunk, 0, p.cfg.FinalContextChunks)
	total := 0

	for _, chunk := range chunks {
		tokens := estimateTokens(chunk.Content)
		if total+tokens <= p.cfg.MaxContextLength {
			selected = append(selected, chunk)
			total += tokens
			if len(selected) >= p.cfg.FinalContextChunks {
				break
			}
			continue
		}

		remaining := p.cfg.MaxContextLength - total
		if remaining > truncationFloor {
			selected = append(selected, chunk.WithContent(chunk.Content[:remaining*4]+"..."))
		}
		break
	}
	return selected
}

// estimateTokens approximates at four characters per token, cheap enough
// to run on every chunk without an encoder.
func estimateTokens(content string) int {
	return len(content) / 4
}
