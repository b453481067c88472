package engine

import (
	"sync"

	"github.com/google/uuid"
)

// BatchIDGenerator generates batch identifiers for submitted command batches.
// Implemented by UUIDv7Generator (production) and FixedGenerator (tests).
type BatchIDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 batch IDs.
//
// UUIDv7 embeds a timestamp in the most significant bits, so batch IDs sort
// by creation time in the dispatch log.
type UUIDv7Generator struct{}

// Generate returns a new hyphenated UUIDv7.
func (g UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// FixedGenerator returns predetermined batch IDs for testing.
// It is safe for concurrent use.
type FixedGenerator struct {
	mu  sync.Mutex
	ids []string
	idx int
}

// NewFixedGenerator creates a generator that returns ids in order.
//
//	gen := NewFixedGenerator("batch-1", "batch-2")
//	gen.Generate() // "batch-1"
//	gen.Generate() // "batch-2"
//	gen.Generate() // panic: all batch IDs exhausted
func NewFixedGenerator(ids ...string) *FixedGenerator {
	return &FixedGenerator{ids: ids}
}

// Generate returns the next predetermined ID. It panics once the list is
// exhausted so a test that submits more batches than expected fails loudly.
func (g *FixedGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.ids) {
		panic("FixedGenerator: all batch IDs exhausted")
	}
	id := g.ids[g.idx]
	g.idx++
	return id
}
