package engine

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUUIDv7Generator_ValidFormat(t *testing.T) {
	id := UUIDv7Generator{}.Generate()

	assert.Regexp(t, `^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`, id)

	parsed, err := uuid.Parse(id)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), parsed.Version())
}

func TestUUIDv7Generator_Concurrent(t *testing.T) {
	gen := UUIDv7Generator{}
	const goroutines = 100

	ids := make(chan string, goroutines)
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids <- gen.Generate()
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]bool)
	for id := range ids {
		require.False(t, seen[id], "duplicate batch ID generated")
		seen[id] = true
	}
	assert.Len(t, seen, goroutines)
}

func TestFixedGenerator_Sequential(t *testing.T) {
	gen := NewFixedGenerator("batch-1", "batch-2", "batch-3")

	assert.Equal(t, "batch-1", gen.Generate())
	assert.Equal(t, "batch-2", gen.Generate())
	assert.Equal(t, "batch-3", gen.Generate())
}

func TestFixedGenerator_PanicsWhenExhausted(t *testing.T) {
	gen := NewFixedGenerator("batch-1")
	assert.Equal(t, "batch-1", gen.Generate())
	assert.Panics(t, func() { gen.Generate() })

	assert.Panics(t, func() { NewFixedGenerator().Generate() })
}

func TestEngine_NewBatch(t *testing.T) {
	e := New(setupTestStore(t), nil, nil, WithBatchIDGenerator(NewFixedGenerator("b-1", "b-2")))

	assert.Equal(t, "b-1", e.NewBatch())
	assert.Equal(t, "b-2", e.NewBatch())
}

func TestEngine_NewBatch_DefaultsToUUIDv7(t *testing.T) {
	e := New(setupTestStore(t), nil, nil)

	parsed, err := uuid.Parse(e.NewBatch())
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), parsed.Version())
}
