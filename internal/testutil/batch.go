// Package testutil holds deterministic helpers for tests and scenario runs.
package testutil

import (
	"fmt"
	"sync"
)

// SequentialBatchIDs generates prefix-0001, prefix-0002, ... and never runs
// out, unlike engine.FixedGenerator. The same run produces the same batch
// IDs, so dispatch IDs and golden traces are reproducible.
//
// Thread-safety: Generate is safe for concurrent use.
type SequentialBatchIDs struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequentialBatchIDs creates a generator. An empty prefix uses "batch".
func NewSequentialBatchIDs(prefix string) *SequentialBatchIDs {
	if prefix == "" {
		prefix = "batch"
	}
	return &SequentialBatchIDs{prefix: prefix}
}

// Generate returns the next batch ID.
//
// Implements engine.BatchIDGenerator.
func (g *SequentialBatchIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%04d", g.prefix, g.n)
}

// Reset restarts the sequence so the next call returns prefix-0001.
func (g *SequentialBatchIDs) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n = 0
}
