package executor

import (
	"context"
	"fmt"
	"sync"

	"github.com/meteor-ioi/RDP-MultiSession-App/internal/model"
)

const MockBuildLabel = "Mock OS (Not Windows)"

// Mock keeps the four settings in memory. It is the backend on hosts where
// the real system changes do not apply.
type Mock struct {
	mu     sync.Mutex
	status model.SystemStatus
}

func NewMock() *Mock {
	return &Mock{status: model.SystemStatus{OSBuildLabel: MockBuildLabel}}
}

func (m *Mock) Status(ctx context.Context) (model.SystemStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status, nil
}

func (m *Mock) EnablePatch(ctx context.Context) (string, error) {
	if err := m.set(ctx, func(s *model.SystemStatus) { s.PatchActive = true }); err != nil {
		return "", err
	}
	return "Mock patch applied successfully (non-Windows build)", nil
}

func (m *Mock) RestorePatch(ctx context.Context) (string, error) {
	if err := m.set(ctx, func(s *model.SystemStatus) { s.PatchActive = false }); err != nil {
		return "", err
	}
	return "Mock restore successful (non-Windows build)", nil
}

func (m *Mock) SetPersistence(ctx context.Context, enable bool) (string, error) {
	if err := m.set(ctx, func(s *model.SystemStatus) { s.PersistenceEnabled = enable }); err != nil {
		return "", err
	}
	return fmt.Sprintf("Mock Persistence: %t", enable), nil
}

func (m *Mock) SetExclusion(ctx context.Context, enable bool) (string, error) {
	if err := m.set(ctx, func(s *model.SystemStatus) { s.ExclusionEnabled = enable }); err != nil {
		return "", err
	}
	return fmt.Sprintf("Mock Defender exclusion: %t", enable), nil
}

// set applies fn unless the caller has already given up.
func (m *Mock) set(ctx context.Context, fn func(*model.SystemStatus)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(&m.status)
	return nil
}
