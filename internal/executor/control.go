// Package executor is the privileged side of rdpms: it owns the system
// changes and serves them to the panel over a Unix socket.
package executor

import (
	"context"
	"errors"
	"fmt"

	"github.com/meteor-ioi/RDP-MultiSession-App/internal/model"
)

// SystemControl performs the host changes behind each executor command.
// Returned messages are shown to the operator verbatim.
type SystemControl interface {
	Status(ctx context.Context) (model.SystemStatus, error)
	EnablePatch(ctx context.Context) (string, error)
	RestorePatch(ctx context.Context) (string, error)
	SetPersistence(ctx context.Context, enable bool) (string, error)
	SetExclusion(ctx context.Context, enable bool) (string, error)
}

// ErrPrivilegeDenied is returned when a backend needs root and does not have it.
var ErrPrivilegeDenied = errors.New("executor is not running with administrative privileges")

// CommandError is a host command that ran and failed. Message is its
// trimmed stderr, or a synthesized reason when stderr was empty.
type CommandError struct {
	Op       string
	ExitCode int
	Message  string
}

func (e *CommandError) Error() string {
	return e.Message
}

// NewControl builds the backend selected by cfg.Backend.
func NewControl(cfg model.ExecutorConfig, opts ...ScriptOption) (SystemControl, error) {
	switch cfg.Backend {
	case model.BackendMock, "":
		return NewMock(), nil
	case model.BackendScript:
		return NewScript(cfg, opts...)
	}
	return nil, fmt.Errorf("unknown executor backend %q", cfg.Backend)
}
