// Package console is a line-oriented operator console for one panel session.
// Each command line becomes an intent that runs in its own goroutine. Log
// entries are printed as they are appended, and a status line whenever the
// loaded status changes.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/meteor-ioi/RDP-MultiSession-App/internal/auditlog"
	"github.com/meteor-ioi/RDP-MultiSession-App/internal/engine"
	"github.com/meteor-ioi/RDP-MultiSession-App/internal/events"
	"github.com/meteor-ioi/RDP-MultiSession-App/internal/model"
	"github.com/meteor-ioi/RDP-MultiSession-App/internal/store"
)

const helpText = `commands:
  status                      show the current status
  toggle <patch|persistence|exclusion>
  patch | persistence | exclusion   shorthand for toggle
  refresh                     re-read status from the executor
  updates                     check for pattern updates
  export                      save the log through the executor
  log                         print the whole log
  help | quit`

type Console struct {
	eng *engine.Engine
	bus *events.Bus
	in  io.Reader

	mu         sync.Mutex
	out        io.Writer
	lastStatus string

	wg sync.WaitGroup
}

func New(eng *engine.Engine, bus *events.Bus, in io.Reader, out io.Writer) *Console {
	return &Console{eng: eng, bus: bus, in: in, out: out}
}

// Run loads the status, then reads commands until quit or EOF. It returns
// after every started intent has settled.
func (c *Console) Run(ctx context.Context) error {
	unsubscribe := c.bus.Subscribe(events.EventLogAppended, func(ev events.Event) {
		if e, ok := ev.Payload.(auditlog.Entry); ok {
			c.println(e.Line())
		}
	})
	defer unsubscribe()
	stopStatus := c.bus.Subscribe(events.EventStateChanged, func(ev events.Event) {
		if st, ok := ev.Payload.(store.State); ok {
			c.statusChanged(st)
		}
	})
	defer stopStatus()
	defer c.Wait()

	c.spawn(ctx, "status load", c.eng.Load)

	sc := bufio.NewScanner(c.in)
	for sc.Scan() {
		if c.Execute(ctx, sc.Text()) {
			return nil
		}
	}
	return sc.Err()
}

// Execute handles one command line and reports whether the operator asked to quit.
func (c *Console) Execute(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}

	switch cmd := strings.ToLower(fields[0]); cmd {
	case "quit", "exit":
		return true
	case "help", "?":
		c.println(helpText)
	case "status":
		c.mu.Lock()
		RenderStatus(c.out, c.eng.Store().Snapshot())
		c.mu.Unlock()
	case "log":
		if text := c.eng.Store().Log().Export(); text != "" {
			c.println(text)
		}
	case "refresh":
		c.spawn(ctx, "status load", c.eng.Refresh)
	case "updates", "check-updates":
		c.spawn(ctx, "update check", c.eng.CheckUpdates)
	case "export":
		c.spawn(ctx, "log export", c.eng.ExportLog)
	case "toggle":
		if len(fields) != 2 {
			c.println("usage: toggle <patch|persistence|exclusion>")
			return false
		}
		c.toggle(ctx, fields[1])
	case "patch", "persistence", "exclusion":
		c.toggle(ctx, cmd)
	default:
		c.printf("unknown command %q (try help)\n", fields[0])
	}
	return false
}

// Wait blocks until all intents started so far have settled.
func (c *Console) Wait() {
	c.wg.Wait()
}

func (c *Console) toggle(ctx context.Context, name string) {
	op, err := model.ParseToggle(strings.ToLower(name))
	if err != nil {
		c.println(err.Error())
		return
	}
	c.spawn(ctx, string(op)+" change", func(ctx context.Context) error {
		return c.eng.Toggle(ctx, op)
	})
}

// spawn runs an intent. Outcomes reach the operator through the log; only
// rejected re-entry is reported here since it leaves no entry.
func (c *Console) spawn(ctx context.Context, name string, fn func(context.Context) error) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := fn(ctx); errors.Is(err, engine.ErrInFlight) {
			c.printf("%s is already in progress\n", name)
		}
	}()
}

// statusChanged prints StatusLine when it differs from the last one printed.
func (c *Console) statusChanged(st store.State) {
	if !st.Loaded {
		return
	}
	line := StatusLine(st)

	c.mu.Lock()
	defer c.mu.Unlock()
	if line == c.lastStatus {
		return
	}
	c.lastStatus = line
	fmt.Fprintln(c.out, line)
}

func (c *Console) println(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.out, s)
}

func (c *Console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

// RenderStatus writes the read model as an aligned block.
func RenderStatus(w io.Writer, st store.State) {
	build := st.Status.OSBuildLabel
	if !st.Loaded {
		build += " (not loaded)"
	}

	fmt.Fprintf(w, "%-16s%s\n", "OS build:", build)
	fmt.Fprintf(w, "%-16s%s%s\n", "Multi-session:", multiSession(st), pending(st, model.OpPatch))
	fmt.Fprintf(w, "%-16s%s%s\n", "Persistence:", onOff(st.Status.PersistenceEnabled, "on", "off"), pending(st, model.OpPersistence))
	fmt.Fprintf(w, "%-16s%s%s\n", "Scan exclusion:", onOff(st.Status.ExclusionEnabled, "on", "off"), pending(st, model.OpExclusion))
}

// StatusLine is the one-line form of RenderStatus.
func StatusLine(st store.State) string {
	return fmt.Sprintf("status: multi-session %s%s, persistence %s%s, scan exclusion %s%s",
		multiSession(st), pending(st, model.OpPatch),
		onOff(st.Status.PersistenceEnabled, "on", "off"), pending(st, model.OpPersistence),
		onOff(st.Status.ExclusionEnabled, "on", "off"), pending(st, model.OpExclusion))
}

func multiSession(st store.State) string {
	n := st.ActiveSessions()
	noun := "sessions"
	if n == 1 {
		noun = "session"
	}
	return fmt.Sprintf("%s (%d %s)", onOff(st.Status.PatchActive, "active", "inactive"), n, noun)
}

func onOff(v bool, on, off string) string {
	if v {
		return on
	}
	return off
}

func pending(st store.State, op model.Operation) string {
	if st.IsInFlight(op) {
		return " [pending]"
	}
	return ""
}
