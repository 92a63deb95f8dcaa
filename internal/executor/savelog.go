package executor

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/meteor-ioi/RDP-MultiSession-App/internal/model"
)

// LogWriter saves exported panel logs to a fixed destination.
type LogWriter struct {
	fs   afero.Fs
	dir  string
	name string
}

// NewLogWriter resolves cfg against the operator's home: an empty Dir means
// <home>/Desktop, where home belongs to $SUDO_USER when the executor was
// started through sudo.
func NewLogWriter(fs afero.Fs, cfg model.ExportConfig) (*LogWriter, error) {
	dir := cfg.Dir
	if dir == "" {
		home, err := operatorHome()
		if err != nil {
			return nil, fmt.Errorf("resolve export dir: %w", err)
		}
		dir = filepath.Join(home, "Desktop")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve export dir: %w", err)
	}
	name := cfg.FileName
	if name == "" {
		name = model.DefaultExportFileName
	}
	if filepath.Base(name) != name {
		return nil, fmt.Errorf("export.file_name must be a file name, got %q", name)
	}
	return &LogWriter{fs: fs, dir: abs, name: name}, nil
}

func (w *LogWriter) Destination() string {
	return filepath.Join(w.dir, w.name)
}

// Save replaces the destination with text and returns its absolute path.
func (w *LogWriter) Save(text string) (string, error) {
	dest := w.Destination()
	if err := writeFileAtomic(w.fs, dest, []byte(text)); err != nil {
		return "", err
	}
	return dest, nil
}

func operatorHome() (string, error) {
	if name := os.Getenv("SUDO_USER"); name != "" {
		if u, err := user.Lookup(name); err == nil && u.HomeDir != "" {
			return u.HomeDir, nil
		}
	}
	return os.UserHomeDir()
}

func writeFileAtomic(fs afero.Fs, path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}

	tmp, err := afero.TempFile(fs, dir, ".rdpms-log-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() { _ = fs.Remove(tmpPath) }()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := fs.Chmod(tmpPath, 0o644); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := fs.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp file to %s: %w", path, err)
	}
	return nil
}
