package auditlog

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meteor-ioi/RDP-MultiSession-App/internal/events"
	"github.com/meteor-ioi/RDP-MultiSession-App/internal/logging"
	"github.com/meteor-ioi/RDP-MultiSession-App/internal/model"
)

func readRecords(t *testing.T, path string) []Record {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var out []Record
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var rec Record
		require.NoError(t, json.Unmarshal(sc.Bytes(), &rec))
		out = append(out, rec)
	}
	require.NoError(t, sc.Err())
	return out
}

func TestNewMirror_CreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "audit.jsonl")

	m, err := NewMirror(path, "S1", 0)
	require.NoError(t, err)
	defer m.Close()

	_, err = os.Stat(path)
	assert.NoError(t, err)
	assert.Equal(t, path, m.Path())
}

func TestMirror_Write(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	m, err := NewMirror(path, "01HSESSION", 0)
	require.NoError(t, err)

	at := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
	require.NoError(t, m.Write(Entry{Timestamp: at, Message: "Ready", Severity: model.SeverityInfo}))
	require.NoError(t, m.Close())

	recs := readRecords(t, path)
	require.Len(t, recs, 1)
	assert.Equal(t, "01HSESSION", recs[0].SessionID)
	assert.Equal(t, "Ready", recs[0].Message)
	assert.Equal(t, model.SeverityInfo, recs[0].Severity)
	assert.True(t, recs[0].Timestamp.Equal(at))
	assert.Empty(t, recs[0].Checksum)
}

func TestMirror_WriteAfterClose(t *testing.T) {
	m, err := NewMirror(filepath.Join(t.TempDir(), "audit.jsonl"), "S", 0)
	require.NoError(t, err)
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	assert.Error(t, m.Write(Entry{Message: "late"}))
}

func TestMirror_Rotation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.jsonl")

	m, err := NewMirror(path, "S", 1024)
	require.NoError(t, err)
	defer m.Close()

	msg := strings.Repeat("x", 120)
	for i := 0; i < 40; i++ {
		require.NoError(t, m.Write(Entry{Timestamp: time.Now(), Message: fmt.Sprintf("%d %s", i, msg), Severity: model.SeverityInfo}))
	}

	files, err := os.ReadDir(filepath.Join(dir, ArchiveDir))
	require.NoError(t, err)
	assert.NotEmpty(t, files, "rotation did not archive anything")
	assert.LessOrEqual(t, m.CurrentSize(), int64(1024))
}

func TestMirror_ChecksumAndVerify(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	m, err := NewMirror(path, "S", 0)
	require.NoError(t, err)
	m.EnableChecksum(true)

	for i := 0; i < 5; i++ {
		require.NoError(t, m.Write(Entry{Timestamp: time.Now(), Message: fmt.Sprintf("entry %d", i), Severity: model.SeverityWait}))
	}
	require.NoError(t, m.Close())

	total, valid, err := VerifyIntegrity(path)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Equal(t, 5, valid)

	// Tamper with one record's message.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data = bytes.Replace(data, []byte("entry 2"), []byte("entry X"), 1)
	require.NoError(t, os.WriteFile(path, data, 0644))

	total, valid, err = VerifyIntegrity(path)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Equal(t, 4, valid)
}

func TestVerifyIntegrity_MissingFile(t *testing.T) {
	_, _, err := VerifyIntegrity(filepath.Join(t.TempDir(), "nope.jsonl"))
	assert.Error(t, err)
}

func TestMirror_SinkFollowsLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	m, err := NewMirror(path, "S", 0)
	require.NoError(t, err)
	m.StartWriter(logging.Discard())

	l := New(WithSink(m))
	l.Append("first", model.SeverityInfo)
	l.Append("second", model.SeverityError)
	require.NoError(t, m.Close())

	recs := readRecords(t, path)
	require.Len(t, recs, 2)
	assert.Equal(t, "first", recs[0].Message)
	assert.Equal(t, model.SeverityError, recs[1].Severity)
}

func TestMirror_BurstIsNotDropped(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	m, err := NewMirror(path, "S", 0)
	require.NoError(t, err)
	m.StartWriter(logging.Discard())

	// A bus with one slot drops most of this burst; the mirror must not.
	bus := events.NewBus(1)
	l := New(WithPublisher(bus), WithSink(m))
	const n = 500
	for i := 0; i < n; i++ {
		l.Append(fmt.Sprintf("entry %d", i), model.SeverityInfo)
	}
	bus.Close()
	require.NoError(t, m.Close())

	recs := readRecords(t, path)
	require.Len(t, recs, n)
	for i, rec := range recs {
		assert.Equal(t, fmt.Sprintf("entry %d", i), rec.Message)
	}
}

func TestMirror_CloseWithoutWriterFlushesQueue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	m, err := NewMirror(path, "S", 0)
	require.NoError(t, err)

	m.Enqueue(Entry{Timestamp: time.Now(), Message: "queued", Severity: model.SeverityWait})
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	recs := readRecords(t, path)
	require.Len(t, recs, 1)
	assert.Equal(t, "queued", recs[0].Message)
}
