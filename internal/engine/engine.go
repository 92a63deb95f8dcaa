// Package engine turns operator intents into executor commands, applying
// optimistic state changes and settling them when the executor answers.
package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/meteor-ioi/RDP-MultiSession-App/internal/gateway"
	"github.com/meteor-ioi/RDP-MultiSession-App/internal/logging"
	"github.com/meteor-ioi/RDP-MultiSession-App/internal/model"
	"github.com/meteor-ioi/RDP-MultiSession-App/internal/store"
)

// ErrInFlight is returned when the requested operation has not settled yet.
// Nothing is logged and the state is left untouched.
var ErrInFlight = errors.New("operation already in progress")

type Engine struct {
	store  *store.Store
	gw     gateway.Gateway
	logger *logging.Logger
}

func New(st *store.Store, gw gateway.Gateway, logger *logging.Logger) *Engine {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Engine{store: st, gw: gw, logger: logger}
}

func (e *Engine) Store() *store.Store {
	return e.store
}

// Load announces initialization and seeds the state from the executor's snapshot.
// A failed load keeps the defaults and logs the reason.
func (e *Engine) Load(ctx context.Context) error {
	return e.load(ctx, true)
}

// Refresh re-reads the snapshot without re-announcing initialization.
func (e *Engine) Refresh(ctx context.Context) error {
	return e.load(ctx, false)
}

func (e *Engine) load(ctx context.Context, announce bool) error {
	return e.execute(ctx, store.LoadRequested{Announce: announce}, func(ctx context.Context, d store.Dispatch) (store.Event, error) {
		st, err := e.gw.GetStatus(ctx)
		if err != nil {
			return nil, err
		}
		return store.LoadSucceeded{Status: st}, nil
	})
}

// Toggle flips op optimistically and asks the executor to make it so.
// On failure the previous value is restored.
func (e *Engine) Toggle(ctx context.Context, op model.Operation) error {
	if !model.IsToggle(op) {
		return fmt.Errorf("operation %q is not a toggle", op)
	}
	return e.execute(ctx, store.ToggleRequested{Op: op}, func(ctx context.Context, d store.Dispatch) (store.Event, error) {
		msg, err := gateway.Toggle(ctx, e.gw, d.Op, d.Enable)
		if err != nil {
			return nil, err
		}
		return store.ToggleSucceeded{Op: d.Op, Message: msg}, nil
	})
}

func (e *Engine) CheckUpdates(ctx context.Context) error {
	return e.execute(ctx, store.CommandRequested{Op: model.OpUpdates}, func(ctx context.Context, d store.Dispatch) (store.Event, error) {
		msg, err := e.gw.CheckUpdates(ctx)
		if err != nil {
			return nil, err
		}
		return store.CommandSucceeded{Op: d.Op, Message: msg}, nil
	})
}

// ExportLog saves the log as it stood when the intent was made.
func (e *Engine) ExportLog(ctx context.Context) error {
	text := e.store.Log().Export()
	return e.execute(ctx, store.CommandRequested{Op: model.OpExport, Text: text}, func(ctx context.Context, d store.Dispatch) (store.Event, error) {
		dest, err := e.gw.SaveLog(ctx, d.Text)
		if err != nil {
			return nil, err
		}
		return store.CommandSucceeded{Op: d.Op, Message: dest}, nil
	})
}

// execute applies req, runs call for the resulting dispatch, and settles the
// operation. Settling is deferred so a panicking call still clears in-flight.
func (e *Engine) execute(ctx context.Context, req store.Event, call func(context.Context, store.Dispatch) (store.Event, error)) (err error) {
	d, ok := store.DispatchOf(e.store.Apply(req))
	if !ok {
		return ErrInFlight
	}

	var done store.Event
	defer func() {
		if r := recover(); r != nil {
			e.logger.Errorf("command %s panicked: %v", d.Command, r)
			err = &gateway.Failure{
				Command: d.Command,
				Code:    "INTERNAL_ERROR",
				Reason:  fmt.Sprintf("%s failed: %v", d.Command, r),
			}
		}
		if err != nil {
			e.logger.Warnf("command %s failed: %v", d.Command, err)
			e.store.Apply(d.Failure(reason(err)))
			return
		}
		e.store.Apply(done)
	}()

	done, err = call(ctx, d)
	return err
}

func reason(err error) string {
	var f *gateway.Failure
	if errors.As(err, &f) {
		return f.Reason
	}
	return err.Error()
}
