// Package store holds the panel's single authoritative state and the pure
// transitions that move it.
package store

import (
	"fmt"

	"github.com/meteor-ioi/RDP-MultiSession-App/internal/model"
)

// State is the read model rendered by the presentation layer.
type State struct {
	Status   model.SystemStatus
	Loaded   bool
	InFlight map[model.Operation]bool
}

func initialState() State {
	return State{Status: model.DefaultStatus()}
}

func (s State) IsInFlight(op model.Operation) bool {
	return s.InFlight[op]
}

// ActiveSessions is derived from PatchActive; it has no state of its own.
func (s State) ActiveSessions() int {
	return model.ActiveSessions(s.Status.PatchActive)
}

func (s State) clone() State {
	inFlight := make(map[model.Operation]bool, len(s.InFlight))
	for op, v := range s.InFlight {
		if v {
			inFlight[op] = true
		}
	}
	s.InFlight = inFlight
	return s
}

func (s State) withInFlight(op model.Operation, v bool) State {
	s = s.clone()
	if v {
		s.InFlight[op] = true
	} else {
		delete(s.InFlight, op)
	}
	return s
}

// Event is an input to Reduce.
type Event interface{ isEvent() }

// LoadRequested starts a status snapshot. Announce adds the initialization entry.
type LoadRequested struct{ Announce bool }

type LoadSucceeded struct{ Status model.SystemStatus }

type LoadFailed struct{ Reason string }

type ToggleRequested struct{ Op model.Operation }

type ToggleSucceeded struct {
	Op      model.Operation
	Message string
}

type ToggleFailed struct {
	Op       model.Operation
	Previous bool
	Reason   string
}

// CommandRequested starts a non-toggle operation (update check or log export).
type CommandRequested struct {
	Op   model.Operation
	Text string
}

// CommandSucceeded carries the executor's text; for exports it is the destination.
type CommandSucceeded struct {
	Op      model.Operation
	Message string
}

type CommandFailed struct {
	Op     model.Operation
	Reason string
}

func (LoadRequested) isEvent()    {}
func (LoadSucceeded) isEvent()    {}
func (LoadFailed) isEvent()       {}
func (ToggleRequested) isEvent()  {}
func (ToggleSucceeded) isEvent()  {}
func (ToggleFailed) isEvent()     {}
func (CommandRequested) isEvent() {}
func (CommandSucceeded) isEvent() {}
func (CommandFailed) isEvent()    {}

// Effect is a side effect requested by Reduce.
type Effect interface{ isEffect() }

type AppendLog struct {
	Message  string
	Severity model.Severity
}

// Dispatch asks the engine to send Command to the executor.
type Dispatch struct {
	Op       model.Operation
	Command  string
	Enable   bool // target value for toggles
	Previous bool // value before the optimistic write
	Text     string
}

func (AppendLog) isEffect() {}
func (Dispatch) isEffect()  {}

// Failure builds the terminal event for a dispatch that did not succeed.
func (d Dispatch) Failure(reason string) Event {
	switch {
	case d.Op == model.OpStatus:
		return LoadFailed{Reason: reason}
	case model.IsToggle(d.Op):
		return ToggleFailed{Op: d.Op, Previous: d.Previous, Reason: reason}
	default:
		return CommandFailed{Op: d.Op, Reason: reason}
	}
}

// DispatchOf returns the dispatch among effects, if any.
func DispatchOf(effects []Effect) (Dispatch, bool) {
	for _, eff := range effects {
		if d, ok := eff.(Dispatch); ok {
			return d, true
		}
	}
	return Dispatch{}, false
}

const (
	MsgInitializing = "Initializing control panel..."
	MsgReady        = "Ready"
	MsgCheckUpdates = "Checking for pattern updates..."
	MsgExporting    = "Exporting log..."
)

var waitMessages = map[model.Operation][2]string{
	// [disable, enable]
	model.OpPatch:       {"Restoring original system files...", "Applying multi-session patch..."},
	model.OpPersistence: {"Removing persistence guard...", "Registering persistence guard..."},
	model.OpExclusion:   {"Removing security scan exclusion...", "Adding security scan exclusion..."},
}

// WaitMessage is the entry logged before a toggle's optimistic write.
func WaitMessage(op model.Operation, enable bool) string {
	msgs := waitMessages[op]
	if enable {
		return msgs[1]
	}
	return msgs[0]
}

// Reduce applies ev to s. A request for an operation that is already in flight,
// or an outcome for one that is not, yields s unchanged and no effects.
func Reduce(s State, ev Event) (State, []Effect) {
	switch ev := ev.(type) {
	case LoadRequested:
		if s.IsInFlight(model.OpStatus) {
			return s, nil
		}
		var effects []Effect
		if ev.Announce {
			effects = append(effects, AppendLog{Message: MsgInitializing, Severity: model.SeverityInfo})
		}
		effects = append(effects, Dispatch{Op: model.OpStatus, Command: model.CommandGetStatus})
		return s.withInFlight(model.OpStatus, true), effects

	case LoadSucceeded:
		if !s.IsInFlight(model.OpStatus) {
			return s, nil
		}
		next := s.withInFlight(model.OpStatus, false)
		loaded := ev.Status
		if loaded.OSBuildLabel == "" {
			loaded.OSBuildLabel = model.UnknownBuildLabel
		}
		// A toggle still awaiting confirmation owns its field until it settles.
		for _, op := range []model.Operation{model.OpPatch, model.OpPersistence, model.OpExclusion} {
			if next.IsInFlight(op) {
				loaded = loaded.WithField(op, next.Status.Field(op))
			}
		}
		next.Status = loaded
		next.Loaded = true
		return next, []Effect{
			AppendLog{Message: "Detected " + loaded.OSBuildLabel, Severity: model.SeveritySuccess},
			AppendLog{Message: MsgReady, Severity: model.SeverityInfo},
		}

	case LoadFailed:
		if !s.IsInFlight(model.OpStatus) {
			return s, nil
		}
		return s.withInFlight(model.OpStatus, false), []Effect{
			AppendLog{Message: ev.Reason, Severity: model.SeverityError},
		}

	case ToggleRequested:
		if !model.IsToggle(ev.Op) || s.IsInFlight(ev.Op) {
			return s, nil
		}
		prev := s.Status.Field(ev.Op)
		target := !prev
		next := s.withInFlight(ev.Op, true)
		next.Status = next.Status.WithField(ev.Op, target)
		return next, []Effect{
			AppendLog{Message: WaitMessage(ev.Op, target), Severity: model.SeverityWait},
			Dispatch{
				Op:       ev.Op,
				Command:  model.ToggleCommand(ev.Op, target),
				Enable:   target,
				Previous: prev,
			},
		}

	case ToggleSucceeded:
		if !s.IsInFlight(ev.Op) {
			return s, nil
		}
		return s.withInFlight(ev.Op, false), []Effect{
			AppendLog{Message: ev.Message, Severity: model.SeveritySuccess},
		}

	case ToggleFailed:
		if !s.IsInFlight(ev.Op) {
			return s, nil
		}
		next := s.withInFlight(ev.Op, false)
		next.Status = next.Status.WithField(ev.Op, ev.Previous)
		return next, []Effect{
			AppendLog{Message: ev.Reason, Severity: model.SeverityError},
		}

	case CommandRequested:
		if s.IsInFlight(ev.Op) {
			return s, nil
		}
		var d Dispatch
		var msg string
		switch ev.Op {
		case model.OpUpdates:
			d = Dispatch{Op: ev.Op, Command: model.CommandCheckUpdates}
			msg = MsgCheckUpdates
		case model.OpExport:
			d = Dispatch{Op: ev.Op, Command: model.CommandSaveLog, Text: ev.Text}
			msg = MsgExporting
		default:
			return s, nil
		}
		return s.withInFlight(ev.Op, true), []Effect{
			AppendLog{Message: msg, Severity: model.SeverityWait},
			d,
		}

	case CommandSucceeded:
		if !s.IsInFlight(ev.Op) {
			return s, nil
		}
		msg := ev.Message
		if ev.Op == model.OpExport {
			msg = fmt.Sprintf("Log saved to %s", ev.Message)
		}
		return s.withInFlight(ev.Op, false), []Effect{
			AppendLog{Message: msg, Severity: model.SeveritySuccess},
		}

	case CommandFailed:
		if !s.IsInFlight(ev.Op) {
			return s, nil
		}
		return s.withInFlight(ev.Op, false), []Effect{
			AppendLog{Message: ev.Reason, Severity: model.SeverityError},
		}
	}
	return s, nil
}
