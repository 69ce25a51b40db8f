package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/caminte/internal/schema"
)

func TestSequence_NextIncrementsMonotonically(t *testing.T) {
	seq := NewSequence()
	assert.Equal(t, int64(0), seq.Current())
	assert.Equal(t, int64(1), seq.Next())
	assert.Equal(t, int64(2), seq.Next())
	assert.Equal(t, int64(2), seq.Current())

	seq.Reset()
	assert.Equal(t, int64(0), seq.Current())
	assert.Equal(t, int64(1), seq.Next())
}

func TestSequence_Concurrent(t *testing.T) {
	seq := NewSequence()
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			seq.Next()
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(50), seq.Current())
}

func TestSequence_AsFieldDefault(t *testing.T) {
	seq := NewSequence()
	at := schema.Field{Name: "at", Type: schema.TypeDate, Default: schema.Generator(seq.Time)}
	n := schema.Field{Name: "n", Type: schema.TypeInt, Default: seq.Int}

	v, ok := at.DefaultValue()
	require.True(t, ok)
	assert.Equal(t, Epoch.Add(time.Second), v)

	v, ok = n.DefaultValue()
	require.True(t, ok)
	assert.Equal(t, int64(2), v)
}
