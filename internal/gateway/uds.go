package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/meteor-ioi/RDP-MultiSession-App/internal/logging"
	"github.com/meteor-ioi/RDP-MultiSession-App/internal/model"
	"github.com/meteor-ioi/RDP-MultiSession-App/internal/uds"
)

// UDS talks to the executor over its Unix socket.
type UDS struct {
	client  *uds.Client
	timeout time.Duration
	logger  *logging.Logger
}

func NewUDS(socketPath string, timeout time.Duration, logger *logging.Logger) *UDS {
	if logger == nil {
		logger = logging.Discard()
	}
	client := uds.NewClient(socketPath)
	// The per-call context governs; the client bound is only a backstop.
	client.SetTimeout(timeout + time.Second)
	return &UDS{client: client, timeout: timeout, logger: logger}
}

func (g *UDS) GetStatus(ctx context.Context) (model.SystemStatus, error) {
	var st model.SystemStatus
	if err := g.call(ctx, model.CommandGetStatus, nil, &st); err != nil {
		return model.SystemStatus{}, err
	}
	return st, nil
}

func (g *UDS) PatchEnable(ctx context.Context) (string, error) {
	return g.message(ctx, model.CommandPatchEnable, nil)
}

func (g *UDS) PatchRestore(ctx context.Context) (string, error) {
	return g.message(ctx, model.CommandPatchRestore, nil)
}

func (g *UDS) SetPersistence(ctx context.Context, enable bool) (string, error) {
	return g.message(ctx, model.CommandSetPersistence, model.ToggleParams{Enable: enable})
}

func (g *UDS) SetExclusion(ctx context.Context, enable bool) (string, error) {
	return g.message(ctx, model.CommandSetExclusion, model.ToggleParams{Enable: enable})
}

func (g *UDS) CheckUpdates(ctx context.Context) (string, error) {
	return g.message(ctx, model.CommandCheckUpdates, nil)
}

func (g *UDS) SaveLog(ctx context.Context, text string) (string, error) {
	var res model.SaveLogResult
	if err := g.call(ctx, model.CommandSaveLog, model.SaveLogParams{Text: text}, &res); err != nil {
		return "", err
	}
	return res.Destination, nil
}

func (g *UDS) message(ctx context.Context, command string, params any) (string, error) {
	var res model.MessageResult
	if err := g.call(ctx, command, params, &res); err != nil {
		return "", err
	}
	return res.Message, nil
}

func (g *UDS) call(ctx context.Context, command string, params any, out any) error {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	req, err := uds.NewRequest(command, params)
	if err != nil {
		return &Failure{Command: command, Code: uds.ErrCodeInternal, Reason: err.Error()}
	}

	start := time.Now()
	resp, err := g.client.Send(ctx, req)
	g.logger.Debugf("command=%s request_id=%s elapsed=%s err=%v", command, req.RequestID, time.Since(start).Round(time.Millisecond), err)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return &Failure{
				Command: command,
				Code:    CodeUnreachable,
				Reason:  fmt.Sprintf("%s timed out after %s", command, g.timeout),
			}
		}
		return &Failure{Command: command, Code: CodeUnreachable, Reason: unreachableReason(err)}
	}

	if !resp.Success {
		f := &Failure{Command: command, Code: uds.ErrCodeInternal, Reason: command + " failed"}
		if resp.Error != nil {
			f.Code = resp.Error.Code
			if resp.Error.Message != "" {
				f.Reason = resp.Error.Message
			}
		}
		return f
	}

	if out == nil || len(resp.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Data, out); err != nil {
		return &Failure{
			Command: command,
			Code:    CodeUnreachable,
			Reason:  fmt.Sprintf("malformed %s response: %v", command, err),
		}
	}
	return nil
}

// unreachableReason drops the multi-line dial hint from a transport error.
func unreachableReason(err error) string {
	first, _, _ := strings.Cut(err.Error(), "\n")
	return first
}
