package goid

import (
	"sync"
	"testing"

	"github.com/joeycumines/goroutineid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCurrent_StableWithinGoroutine(t *testing.T) {
	id := Current()
	require.NotZero(t, id)
	assert.Equal(t, id, Current())
}

func TestCurrent_DistinctAcrossGoroutines(t *testing.T) {
	const n = 8

	ids := make([]uint64, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids[i] = Current()
		}()
	}
	wg.Wait()

	seen := make(map[uint64]bool, n+1)
	seen[Current()] = true
	for _, id := range ids {
		require.NotZero(t, id)
		assert.False(t, seen[id], "duplicate goroutine id %d", id)
		seen[id] = true
	}
}

func TestCurrent_MatchesStackParse(t *testing.T) {
	slow := goroutineid.Slow(make([]byte, 64))
	require.Positive(t, slow)
	assert.Equal(t, uint64(slow), Current())
}
