package auditlog

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meteor-ioi/RDP-MultiSession-App/internal/events"
	"github.com/meteor-ioi/RDP-MultiSession-App/internal/model"
)

// stepClock returns a clock that advances one second per call.
func stepClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	t := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now := t
		t = t.Add(time.Second)
		return now
	}
}

func TestLog_ExportThreeEntries(t *testing.T) {
	l := New(WithClock(stepClock(time.Date(2026, 1, 1, 23, 59, 58, 0, time.Local))))

	l.Append("Initializing control panel...", model.SeverityInfo)
	l.Append("Applying multi-session patch...", model.SeverityWait)
	l.Append("Access denied", model.SeverityError)

	want := strings.Join([]string{
		"[23:59:58] [INFO] Initializing control panel...",
		"[23:59:59] [WAIT] Applying multi-session patch...",
		"[00:00:00] [ERROR] Access denied",
	}, "\n")
	assert.Equal(t, want, l.Export())
}

func TestLog_ExportIsRepeatable(t *testing.T) {
	l := New()
	l.Append("one", model.SeverityInfo)
	l.Append("two", model.SeveritySuccess)

	first := l.Export()
	second := l.Export()
	assert.Equal(t, first, second)

	l.Append("three", model.SeverityInfo)
	assert.NotEqual(t, first, l.Export())
	assert.True(t, strings.HasPrefix(l.Export(), first+"\n"))
}

func TestLog_EmptyExport(t *testing.T) {
	assert.Equal(t, "", New().Export())
}

func TestLog_LengthMonotonic(t *testing.T) {
	l := New()
	prev := l.Len()
	for i := 0; i < 20; i++ {
		l.Append("x", model.SeverityInfo)
		require.Greater(t, l.Len(), prev)
		prev = l.Len()
	}
}

func TestLog_EntriesReturnsCopy(t *testing.T) {
	l := New()
	l.Append("original", model.SeverityInfo)

	entries := l.Entries()
	entries[0].Message = "tampered"

	assert.Equal(t, "original", l.Entries()[0].Message)
}

func TestLog_TimestampTakenAtAppend(t *testing.T) {
	at := time.Date(2026, 5, 1, 8, 0, 0, 0, time.Local)
	l := New(WithClock(func() time.Time { return at }))

	e := l.Append("done", model.SeveritySuccess)
	assert.Equal(t, at, e.Timestamp)
	assert.Equal(t, "[08:00:00] [SUCCESS] done", e.Line())
}

func TestLog_UnknownSeverityFallsBackToInfo(t *testing.T) {
	e := New().Append("odd", model.Severity("fatal"))
	assert.Equal(t, model.SeverityInfo, e.Severity)
}

func TestLog_NormalizesMessages(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"trailing crlf", "Access is denied.\r\n", "Access is denied."},
		{"multi line", "line one\r\n\r\nline two\n", "line one | line two"},
		{"nfc", "Cafe\u0301", "Caf\u00e9"},
		{"plain", "Ready", "Ready"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := New().Append(tt.in, model.SeverityError)
			assert.Equal(t, tt.want, e.Message)
		})
	}
}

func TestLog_ConcurrentAppends(t *testing.T) {
	l := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				l.Append("concurrent", model.SeverityInfo)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1000, l.Len())
	assert.Len(t, strings.Split(l.Export(), "\n"), 1000)
}

func TestLog_PublishesInAppendOrder(t *testing.T) {
	bus := events.NewBus(64)
	l := New(WithPublisher(bus))

	var mu sync.Mutex
	var got []string
	bus.Subscribe(events.EventLogAppended, func(ev events.Event) {
		mu.Lock()
		got = append(got, ev.Payload.(Entry).Message)
		mu.Unlock()
	})

	l.Append("a", model.SeverityInfo)
	l.Append("b", model.SeverityWait)
	l.Append("c", model.SeveritySuccess)
	bus.Close()

	assert.Equal(t, []string{"a", "b", "c"}, got)
}
