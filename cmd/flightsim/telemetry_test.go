package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flightbus/internal/mlog"
)

func TestPrintRecords(t *testing.T) {
	var buf bytes.Buffer
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, printRecords(&buf, []mlog.Record{
		{Seq: 1, ID: mlog.GCSCmdID, Timestamp: at, Payload: make([]byte, 16)},
		{Seq: 2, ID: mlog.FMSOutID, Timestamp: at.Add(time.Millisecond), Payload: make([]byte, 2048)},
	}))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "SEQ"))
	assert.Contains(t, lines[1], "gcs_cmd")
	assert.Contains(t, lines[1], "2024-05-01T12:00:00Z")
	assert.Contains(t, lines[1], "16 B")
	assert.Contains(t, lines[2], "2.0 kB")
}
