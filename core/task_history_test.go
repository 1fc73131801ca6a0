package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func namedHistoryTask(ctx context.Context) {}

// TestExecutionHistory_Ring verifies wrap-around and newest-first order
// Given: A history of capacity 3
// When: Five records are added
// Then: Only the last three remain, newest first
func TestExecutionHistory_Ring(t *testing.T) {
	h := newExecutionHistory(3)
	_, ok := h.Last()
	assert.False(t, ok)
	assert.Nil(t, h.Recent(0))

	for _, name := range []string{"a", "b", "c", "d", "e"} {
		h.Add(ExecutionRecord{Name: name})
	}

	var names []string
	for _, rec := range h.Recent(0) {
		names = append(names, rec.Name)
	}
	assert.Equal(t, []string{"e", "d", "c"}, names)
	assert.Len(t, h.Recent(2), 2)

	last, ok := h.Last()
	assert.True(t, ok)
	assert.Equal(t, "e", last.Name)
}

// TestExecutionHistory_DefaultCapacity verifies a non-positive capacity
func TestExecutionHistory_DefaultCapacity(t *testing.T) {
	h := newExecutionHistory(0)
	assert.Len(t, h.items, defaultTaskHistoryCapacity)
}

// TestResolveTaskName verifies name resolution
func TestResolveTaskName(t *testing.T) {
	assert.Equal(t, "explicit", resolveTaskName(namedHistoryTask, "explicit"))
	assert.Contains(t, resolveTaskName(namedHistoryTask, ""), "namedHistoryTask")
	assert.Equal(t, "anonymous", resolveTaskName(nil, ""))
}
