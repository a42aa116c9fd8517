package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTask(t *testing.T) {
	raw := `{"thread_id":"t1","thread_name":"SPY 0DTE"}`
	task, err := parseTask(raw)
	require.NoError(t, err)

	assert.Equal(t, "t1", task.ThreadID)
	assert.Equal(t, "SPY 0DTE", task.ThreadName)
	assert.Equal(t, raw, task.Raw())
	assert.Equal(t, 0, task.RetryCount())
	assert.Nil(t, task.ScheduledContext)
}

func TestParseTaskWithScheduledContext(t *testing.T) {
	raw := `{"thread_id":"t1","thread_name":"SPY","scheduled_context":{
		"thread_name":"SPY","retry_count":2,"delay_reason":"await PCE",
		"delay_question":"reaction?","key_levels":{"entry_price":1.77}}}`

	task, err := parseTask(raw)
	require.NoError(t, err)

	require.NotNil(t, task.ScheduledContext)
	assert.Equal(t, 2, task.RetryCount())
	assert.Equal(t, "await PCE", task.ScheduledContext.DelayReason)
	assert.InDelta(t, 1.77, task.ScheduledContext.KeyLevels["entry_price"], 1e-9)
}

func TestParseTaskErrors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"invalid json", `{"thread_id":`},
		{"missing thread_id", `{"thread_name":"SPY"}`},
		{"blank thread_id", `{"thread_id":"   "}`},
		{"wrong type", `{"thread_id":42}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseTask(tt.raw)
			assert.Error(t, err)
		})
	}
}

func TestExtractThreadID(t *testing.T) {
	assert.Equal(t, "t1", extractThreadID(`{"thread_id":"t1"}`))
	assert.Equal(t, "", extractThreadID(`{broken`))
	assert.Equal(t, "", extractThreadID(`{"thread_name":"x"}`))
}
