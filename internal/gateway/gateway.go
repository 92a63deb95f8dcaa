// Package gateway is the panel's only path to the privileged executor.
// Each method sends one command and returns its outcome; nothing is retried or cached.
package gateway

import (
	"context"
	"fmt"

	"github.com/meteor-ioi/RDP-MultiSession-App/internal/model"
)

// CodeUnreachable is reported when no response frame was received.
const CodeUnreachable = "UNREACHABLE"

type Gateway interface {
	GetStatus(ctx context.Context) (model.SystemStatus, error)
	PatchEnable(ctx context.Context) (string, error)
	PatchRestore(ctx context.Context) (string, error)
	SetPersistence(ctx context.Context, enable bool) (string, error)
	SetExclusion(ctx context.Context, enable bool) (string, error)
	CheckUpdates(ctx context.Context) (string, error)
	// SaveLog returns the destination the text was written to.
	SaveLog(ctx context.Context, text string) (string, error)
}

// Failure is a command that did not succeed. Reason is shown to the operator as-is.
type Failure struct {
	Command string
	Code    string
	Reason  string
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s failed [%s]: %s", f.Command, f.Code, f.Reason)
}

// Toggle dispatches the command that sets op to enable.
func Toggle(ctx context.Context, g Gateway, op model.Operation, enable bool) (string, error) {
	switch op {
	case model.OpPatch:
		if enable {
			return g.PatchEnable(ctx)
		}
		return g.PatchRestore(ctx)
	case model.OpPersistence:
		return g.SetPersistence(ctx, enable)
	case model.OpExclusion:
		return g.SetExclusion(ctx, enable)
	}
	return "", fmt.Errorf("operation %q is not a toggle", op)
}
