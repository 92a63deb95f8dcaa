package store

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meteor-ioi/RDP-MultiSession-App/internal/auditlog"
	"github.com/meteor-ioi/RDP-MultiSession-App/internal/events"
	"github.com/meteor-ioi/RDP-MultiSession-App/internal/model"
)

func TestStore_InitialSnapshot(t *testing.T) {
	s := New(auditlog.New())
	snap := s.Snapshot()
	assert.Equal(t, model.DefaultStatus(), snap.Status)
	assert.False(t, snap.Loaded)
	assert.Empty(t, snap.InFlight)
}

func TestStore_ApplyAppendsLog(t *testing.T) {
	log := auditlog.New()
	s := New(log)

	effects := s.Apply(ToggleRequested{Op: model.OpPatch})
	require.Len(t, effects, 2)

	entries := log.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, model.SeverityWait, entries[0].Severity)
	assert.True(t, s.Snapshot().Status.PatchActive)
}

func TestStore_RejectedEventLeavesStateAndLog(t *testing.T) {
	log := auditlog.New()
	s := New(log)
	s.Apply(ToggleRequested{Op: model.OpPersistence})

	before := s.Snapshot()
	beforeLog := log.Export()

	effects := s.Apply(ToggleRequested{Op: model.OpPersistence})
	assert.Nil(t, effects)
	assert.Equal(t, before, s.Snapshot())
	assert.Equal(t, beforeLog, log.Export())
}

func TestStore_SnapshotIsolated(t *testing.T) {
	s := New(auditlog.New())
	s.Apply(ToggleRequested{Op: model.OpExclusion})

	snap := s.Snapshot()
	snap.InFlight[model.OpPatch] = true
	snap.Status.PatchActive = true

	assert.False(t, s.Snapshot().IsInFlight(model.OpPatch))
	assert.False(t, s.Snapshot().Status.PatchActive)
}

// The wait entry must be in the log before any subscriber sees the flipped field.
func TestStore_LogPrecedesStateChange(t *testing.T) {
	bus := events.NewBus(16)
	log := auditlog.New()
	s := New(log, WithPublisher(bus))

	var mu sync.Mutex
	var seenLogLen int
	var seenActive bool
	bus.Subscribe(events.EventStateChanged, func(ev events.Event) {
		st := ev.Payload.(State)
		mu.Lock()
		seenActive = st.Status.PatchActive
		seenLogLen = log.Len()
		mu.Unlock()
	})

	s.Apply(ToggleRequested{Op: model.OpPatch})
	bus.Close()

	mu.Lock()
	defer mu.Unlock()
	assert.True(t, seenActive)
	assert.GreaterOrEqual(t, seenLogLen, 1)
}

func TestStore_ConcurrentDistinctFields(t *testing.T) {
	log := auditlog.New()
	s := New(log)

	ops := []model.Operation{model.OpPatch, model.OpPersistence, model.OpExclusion}
	var wg sync.WaitGroup
	for _, op := range ops {
		wg.Add(1)
		go func(op model.Operation) {
			defer wg.Done()
			effects := s.Apply(ToggleRequested{Op: op})
			d, ok := DispatchOf(effects)
			if !ok {
				t.Errorf("%s rejected", op)
				return
			}
			if op == model.OpExclusion {
				s.Apply(d.Failure("denied"))
				return
			}
			s.Apply(ToggleSucceeded{Op: op, Message: "ok"})
		}(op)
	}
	wg.Wait()

	snap := s.Snapshot()
	assert.True(t, snap.Status.PatchActive)
	assert.True(t, snap.Status.PersistenceEnabled)
	assert.False(t, snap.Status.ExclusionEnabled)
	assert.Empty(t, snap.InFlight)
	assert.Equal(t, 6, log.Len())
}
