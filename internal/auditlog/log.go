// Package auditlog keeps the session's append-only record of every attempted operation.
package auditlog

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/meteor-ioi/RDP-MultiSession-App/internal/events"
	"github.com/meteor-ioi/RDP-MultiSession-App/internal/model"
)

// TimeLayout is the fixed 24-hour clock used in exports.
const TimeLayout = "15:04:05"

// Entry is a single audit log line.
type Entry struct {
	Timestamp time.Time      `json:"timestamp"`
	Message   string         `json:"message"`
	Severity  model.Severity `json:"severity"`
}

// Line renders the entry as "[HH:MM:SS] [SEVERITY] message".
func (e Entry) Line() string {
	return fmt.Sprintf("[%s] [%s] %s", e.Timestamp.Format(TimeLayout), strings.ToUpper(string(e.Severity)), e.Message)
}

// Publisher receives every appended entry. *events.Bus satisfies it.
type Publisher interface {
	Publish(eventType events.EventType, payload any)
}

// Log is safe for concurrent use. Entries are never mutated or removed.
type Log struct {
	mu      sync.Mutex
	entries []Entry
	now     func() time.Time
	pub     Publisher
	sinks   []Sink
}

// Sink receives every appended entry, in append order. Enqueue must not block.
type Sink interface {
	Enqueue(e Entry)
}

type Option func(*Log)

// WithClock overrides the wall clock used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(l *Log) { l.now = now }
}

// WithPublisher forwards each appended entry as an events.EventLogAppended event.
func WithPublisher(p Publisher) Option {
	return func(l *Log) { l.pub = p }
}

// WithSink hands each appended entry to s. Unlike a Publisher, a sink sees
// every entry.
func WithSink(s Sink) Option {
	return func(l *Log) { l.sinks = append(l.sinks, s) }
}

func New(opts ...Option) *Log {
	l := &Log{now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Append records a message. The timestamp is taken here, not when the
// operation that produced the message started.
func (l *Log) Append(message string, severity model.Severity) Entry {
	if !model.IsValidSeverity(severity) {
		severity = model.SeverityInfo
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	e := Entry{
		Timestamp: l.now(),
		Message:   normalize(message),
		Severity:  severity,
	}
	l.entries = append(l.entries, e)
	for _, s := range l.sinks {
		s.Enqueue(e)
	}
	if l.pub != nil {
		// Publish under the lock so subscribers see entries in append order.
		l.pub.Publish(events.EventLogAppended, e)
	}
	return e
}

func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Entries returns a copy of all entries in insertion order.
func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Export renders every entry, one per line, newline-joined without a trailing newline.
func (l *Log) Export() string {
	l.mu.Lock()
	defer l.mu.Unlock()

	var b strings.Builder
	for i, e := range l.entries {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(e.Line())
	}
	return b.String()
}

// normalize keeps one entry on one export line. Executor stderr often ends in
// CRLF and may be in a decomposed Unicode form.
func normalize(msg string) string {
	msg = norm.NFC.String(msg)
	msg = strings.TrimSpace(msg)
	msg = strings.ReplaceAll(msg, "\r\n", "\n")
	msg = strings.ReplaceAll(msg, "\r", "\n")
	if !strings.Contains(msg, "\n") {
		return msg
	}
	parts := strings.Split(msg, "\n")
	kept := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, " | ")
}
