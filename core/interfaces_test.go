package core

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDefaultFaultHandler_Logs verifies the fault is written as one JSON line
func TestDefaultFaultHandler_Logs(t *testing.T) {
	var buf bytes.Buffer
	h := NewDefaultFaultHandler(NewDefaultLogger(&buf, LevelInformational))

	h.HandleFault(context.Background(), &CallbackFault{Source: "frame.end_frame", Value: "oops", Stack: []byte("stack")})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "unhandled callback fault", entry["msg"])
	assert.Equal(t, "frame.end_frame", entry["source"])
	assert.Equal(t, "oops", entry["panic"])
	assert.Equal(t, "stack", entry["stack"])
}

// TestDefaultFaultHandler_RateLimited verifies a noisy source is throttled
// per source
// Given: Twenty faults from one source and one from another
// When: They are handled within one second
// Then: The noisy source is capped and the quiet one still logs
func TestDefaultFaultHandler_RateLimited(t *testing.T) {
	var buf bytes.Buffer
	h := NewDefaultFaultHandler(NewDefaultLogger(&buf, LevelInformational))

	for range 20 {
		h.HandleFault(context.Background(), &CallbackFault{Source: "noisy", Value: "x"})
	}
	h.HandleFault(context.Background(), &CallbackFault{Source: "quiet", Value: "y"})

	out := buf.String()
	noisy := strings.Count(out, `"source":"noisy"`)
	assert.Positive(t, noisy)
	assert.LessOrEqual(t, noisy, defaultFaultRates[time.Second])
	assert.Equal(t, 1, strings.Count(out, `"source":"quiet"`))
}

// TestDefaultFaultHandler_NilLogger verifies a nil logger is silent
func TestDefaultFaultHandler_NilLogger(t *testing.T) {
	h := NewDefaultFaultHandler(NewNoOpLogger())
	assert.NotPanics(t, func() {
		h.HandleFault(context.Background(), &CallbackFault{Source: "s", Value: 1})
		h.HandleFault(context.Background(), nil)
	})
	var nilHandler *DefaultFaultHandler
	assert.NotPanics(t, func() { nilHandler.HandleFault(context.Background(), &CallbackFault{}) })
}

// TestNewDefaultLogger_Level verifies records below the level are dropped
func TestNewDefaultLogger_Level(t *testing.T) {
	var buf bytes.Buffer
	logger := NewDefaultLogger(&buf, LevelWarning)

	logger.Info().Log("hidden")
	logger.Warning().Str("k", "v").Log("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
}

// TestNilMetrics verifies the no-op implementation satisfies Metrics
func TestNilMetrics(t *testing.T) {
	var m Metrics = &NilMetrics{}
	assert.NotPanics(t, func() {
		m.RecordCallbackDuration("s", time.Millisecond)
		m.RecordCallbackFault("s", "x")
		m.RecordQueueDepth("s", 1)
		m.RecordCancelled("s", 2)
		m.RecordPhase("s", PhasePre, time.Millisecond)
	})
}

// TestDefaultConfigs verifies the default configs are usable as-is
func TestDefaultConfigs(t *testing.T) {
	sc := DefaultSchedulerConfig()
	assert.Equal(t, "frame", sc.Name)
	assert.NotNil(t, sc.Logger)
	assert.NotNil(t, sc.FaultHandler)
	assert.IsType(t, &NilMetrics{}, sc.Metrics)

	ec := DefaultExecutorConfig()
	assert.Equal(t, defaultExecutorName, ec.Name)
	assert.Zero(t, ec.CheckDelay)
	assert.Equal(t, defaultTaskHistoryCapacity, ec.HistoryCapacity)
}

// TestCallbackFault_Error verifies the error text
func TestCallbackFault_Error(t *testing.T) {
	f := &CallbackFault{Source: "q", Value: 3}
	assert.Equal(t, "framerunner: unhandled callback fault in q: 3", f.Error())
	assert.Nil(t, f.Unwrap())
}
