package health

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleReport() *Report {
	return &Report{
		Overall:     StatusDegraded,
		TimestampMs: 1700000000000,
		Checks: map[string]ProbeResult{
			"redis": {
				Component: "redis",
				Status:    StatusHealthy,
				Message:   "redis is responding",
				ElapsedMs: 1.2,
			},
			"queue": {
				Component: "queue",
				Status:    StatusDegraded,
				Message:   "backlog building: 60 pending tasks (threshold 50)",
				ElapsedMs: 0.8,
			},
		},
	}
}

func TestFormatTable(t *testing.T) {
	var buf bytes.Buffer
	FormatTable(&buf, sampleReport())
	out := buf.String()

	assert.Contains(t, out, "Overall: degraded")
	assert.Contains(t, out, "redis is responding")
	assert.Contains(t, out, "backlog building")

	// Components are listed alphabetically.
	assert.Less(t, strings.Index(out, "queue"), strings.Index(out, "redis"))
}

func TestFormatJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, FormatJSON(&buf, sampleReport()))

	var decoded Report
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, StatusDegraded, decoded.Overall)
	assert.Len(t, decoded.Checks, 2)
	assert.Equal(t, StatusHealthy, decoded.Checks["redis"].Status)
}
