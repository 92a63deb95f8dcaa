package auditlog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/meteor-ioi/RDP-MultiSession-App/internal/logging"
	"github.com/meteor-ioi/RDP-MultiSession-App/internal/model"
)

const (
	// DefaultMaxMirrorSize is the rotation threshold when none is configured (100MB).
	DefaultMaxMirrorSize = 100 * 1024 * 1024
	MirrorFileExtension  = ".jsonl"
	ArchiveDir           = "archive"
)

// Record is one JSONL line of the durable mirror.
type Record struct {
	Timestamp time.Time      `json:"timestamp"`
	SessionID string         `json:"session_id"`
	Severity  model.Severity `json:"severity"`
	Message   string         `json:"message"`
	Checksum  string         `json:"checksum,omitempty"`
}

// Mirror appends log entries to a JSONL file so they outlive the session.
// It rotates the file into archive/ once maxSize would be exceeded.
//
// Entries handed over with Enqueue wait in an unbounded queue; none is
// dropped while the writer catches up.
type Mirror struct {
	mu              sync.Mutex
	file            *os.File
	currentSize     int64
	maxSize         int64
	path            string
	sessionID       string
	enableChecksum  bool
	rotationCounter int

	qmu        sync.Mutex
	queue      []Entry
	wake       chan struct{}
	stop       chan struct{}
	writerDone chan struct{}
	logger     *logging.Logger
}

func NewMirror(path, sessionID string, maxSize int64) (*Mirror, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxMirrorSize
	}

	m := &Mirror{
		path:      path,
		sessionID: sessionID,
		maxSize:   maxSize,
		wake:      make(chan struct{}, 1),
		stop:      make(chan struct{}),
		logger:    logging.Discard(),
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create mirror directory: %w", err)
	}
	if err := m.open(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Mirror) open() error {
	file, err := os.OpenFile(m.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open mirror file: %w", err)
	}

	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("stat mirror file: %w", err)
	}

	m.file = file
	m.currentSize = stat.Size()
	return nil
}

// EnableChecksum adds a checksum to every subsequent record.
func (m *Mirror) EnableChecksum(enable bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enableChecksum = enable
}

// Write appends one entry and syncs it to disk.
func (m *Mirror) Write(e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.file == nil {
		return fmt.Errorf("mirror closed")
	}

	rec := Record{
		Timestamp: e.Timestamp.UTC(),
		SessionID: m.sessionID,
		Severity:  e.Severity,
		Message:   e.Message,
	}
	if m.enableChecksum {
		rec.Checksum = checksum(rec)
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal mirror record: %w", err)
	}
	data = append(data, '\n')

	if m.currentSize+int64(len(data)) > m.maxSize {
		if err := m.rotate(); err != nil {
			return fmt.Errorf("rotate mirror: %w", err)
		}
	}

	n, err := m.file.Write(data)
	if err != nil {
		return fmt.Errorf("write mirror record: %w", err)
	}
	if err := m.file.Sync(); err != nil {
		return fmt.Errorf("sync mirror file: %w", err)
	}
	m.currentSize += int64(n)
	return nil
}

// Enqueue queues e for the writer. It never blocks on I/O, so it is safe to
// call while holding the log's lock.
func (m *Mirror) Enqueue(e Entry) {
	m.qmu.Lock()
	m.queue = append(m.queue, e)
	m.qmu.Unlock()

	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// StartWriter drains the queue in the background until Close. Write errors
// go to logger; the panel never sees them.
func (m *Mirror) StartWriter(logger *logging.Logger) {
	if logger != nil {
		m.logger = logger
	}
	m.writerDone = make(chan struct{})
	go func() {
		defer close(m.writerDone)
		for {
			select {
			case <-m.wake:
				m.drain()
			case <-m.stop:
				m.drain()
				return
			}
		}
	}()
}

func (m *Mirror) drain() {
	m.qmu.Lock()
	batch := m.queue
	m.queue = nil
	m.qmu.Unlock()

	for _, e := range batch {
		if err := m.Write(e); err != nil {
			m.logger.Errorf("audit mirror: %v", err)
		}
	}
}

func (m *Mirror) rotate() error {
	if err := m.file.Close(); err != nil {
		return fmt.Errorf("close current mirror file: %w", err)
	}

	archiveDir := filepath.Join(filepath.Dir(m.path), ArchiveDir)
	if err := os.MkdirAll(archiveDir, 0755); err != nil {
		return fmt.Errorf("create archive directory: %w", err)
	}

	m.rotationCounter++
	base := strings.TrimSuffix(filepath.Base(m.path), MirrorFileExtension)
	archiveName := fmt.Sprintf("%s.%s.%d%s",
		base,
		time.Now().Format("20060102_150405"),
		m.rotationCounter,
		MirrorFileExtension)

	if err := os.Rename(m.path, filepath.Join(archiveDir, archiveName)); err != nil {
		return fmt.Errorf("archive mirror file: %w", err)
	}
	return m.open()
}

func checksum(rec Record) string {
	rec.Checksum = ""
	data, err := json.Marshal(rec)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("%x", djb2(data))
}

func djb2(data []byte) uint64 {
	var hash uint64 = 5381
	for _, b := range data {
		hash = ((hash << 5) + hash) + uint64(b)
	}
	return hash
}

// VerifyIntegrity counts records in a mirror file and how many pass their checksum.
// Records without a checksum count as valid; malformed lines are skipped.
func VerifyIntegrity(path string) (total, valid int, err error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, 0, fmt.Errorf("open mirror file: %w", err)
	}
	defer file.Close()

	dec := json.NewDecoder(file)
	for dec.More() {
		var rec Record
		if err := dec.Decode(&rec); err != nil {
			break
		}
		total++
		if rec.Checksum == "" || checksum(rec) == rec.Checksum {
			valid++
		}
	}
	return total, valid, nil
}

// Close writes every queued entry, stops the writer and closes the file.
func (m *Mirror) Close() error {
	if m.writerDone != nil {
		select {
		case <-m.stop:
		default:
			close(m.stop)
		}
		<-m.writerDone
	} else {
		m.drain()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.file == nil {
		return nil
	}
	f := m.file
	m.file = nil
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (m *Mirror) Path() string {
	return m.path
}

func (m *Mirror) CurrentSize() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentSize
}
