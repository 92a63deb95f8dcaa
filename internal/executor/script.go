package executor

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/meteor-ioi/RDP-MultiSession-App/internal/logging"
	"github.com/meteor-ioi/RDP-MultiSession-App/internal/model"
)

// Script runs one operator-configured command line per operation through sh -c.
type Script struct {
	mu      sync.RWMutex
	scripts model.ScriptsConfig
	timeout time.Duration
	shell   string
	logger  *logging.Logger
}

type ScriptOption func(*Script)

func WithScriptLogger(l *logging.Logger) ScriptOption {
	return func(s *Script) { s.logger = l }
}

// WithShell replaces the interpreter used to run command lines.
func WithShell(shell string) ScriptOption {
	return func(s *Script) { s.shell = shell }
}

// NewScript refuses to build unless the process is root or
// cfg.AllowUnprivileged is set.
func NewScript(cfg model.ExecutorConfig, opts ...ScriptOption) (*Script, error) {
	if !cfg.AllowUnprivileged && os.Geteuid() != 0 {
		return nil, fmt.Errorf("script backend: %w (euid %d)", ErrPrivilegeDenied, os.Geteuid())
	}
	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	s := &Script{
		scripts: cfg.Scripts,
		timeout: timeout,
		shell:   "sh",
		logger:  logging.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// SetScripts swaps the command lines; used on config reload.
func (s *Script) SetScripts(sc model.ScriptsConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scripts = sc
}

func (s *Script) lines() model.ScriptsConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scripts
}

func (s *Script) Status(ctx context.Context) (model.SystemStatus, error) {
	out, err := s.run(ctx, "status", s.lines().Status)
	if err != nil {
		return model.SystemStatus{}, err
	}
	return parseStatus(out)
}

func (s *Script) EnablePatch(ctx context.Context) (string, error) {
	return s.runMessage(ctx, "patch_enable", s.lines().PatchEnable, "Multi-session patch applied")
}

func (s *Script) RestorePatch(ctx context.Context) (string, error) {
	return s.runMessage(ctx, "patch_restore", s.lines().PatchRestore, "Original system files restored")
}

func (s *Script) SetPersistence(ctx context.Context, enable bool) (string, error) {
	if enable {
		return s.runMessage(ctx, "persistence_enable", s.lines().PersistenceEnable, "Persistence task registered")
	}
	return s.runMessage(ctx, "persistence_remove", s.lines().PersistenceRemove, "Persistence task removed")
}

func (s *Script) SetExclusion(ctx context.Context, enable bool) (string, error) {
	if enable {
		return s.runMessage(ctx, "exclusion_add", s.lines().ExclusionAdd, "Security scan exclusion added")
	}
	return s.runMessage(ctx, "exclusion_remove", s.lines().ExclusionRemove, "Security scan exclusion removed")
}

// runMessage returns the command's stdout, or fallback when it printed nothing.
func (s *Script) runMessage(ctx context.Context, op, line, fallback string) (string, error) {
	out, err := s.run(ctx, op, line)
	if err != nil {
		return "", err
	}
	if out == "" {
		return fallback, nil
	}
	return out, nil
}

func (s *Script) run(ctx context.Context, op, line string) (string, error) {
	if strings.TrimSpace(line) == "" {
		return "", &CommandError{Op: op, ExitCode: -1, Message: fmt.Sprintf("no %s script configured", op)}
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, s.shell, "-c", line)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	// Children that inherit the pipes must not outlive the timeout.
	cmd.WaitDelay = time.Second

	start := time.Now()
	err := cmd.Run()
	s.logger.Debugf("script op=%s elapsed=%s err=%v", op, time.Since(start).Round(time.Millisecond), err)

	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", &CommandError{Op: op, ExitCode: -1, Message: fmt.Sprintf("%s timed out after %s", op, s.timeout)}
		}
		code := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = fmt.Sprintf("%s failed: %v", op, err)
		}
		return "", &CommandError{Op: op, ExitCode: code, Message: msg}
	}

	return strings.TrimSpace(stdout.String()), nil
}

// parseStatus reads key=value lines. Unknown keys and blank lines are skipped.
func parseStatus(out string) (model.SystemStatus, error) {
	st := model.SystemStatus{OSBuildLabel: model.UnknownBuildLabel}
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return model.SystemStatus{}, fmt.Errorf("status: malformed line %q", line)
		}
		key, value = strings.TrimSpace(key), strings.TrimSpace(value)

		var target *bool
		switch key {
		case "os_build":
			if value != "" {
				st.OSBuildLabel = value
			}
			continue
		case "patch_active":
			target = &st.PatchActive
		case "persistence_enabled":
			target = &st.PersistenceEnabled
		case "exclusion_enabled":
			target = &st.ExclusionEnabled
		default:
			continue
		}
		b, err := strconv.ParseBool(value)
		if err != nil {
			return model.SystemStatus{}, fmt.Errorf("status: %s: %w", key, err)
		}
		*target = b
	}
	if err := sc.Err(); err != nil {
		return model.SystemStatus{}, fmt.Errorf("status: %w", err)
	}
	return st, nil
}
