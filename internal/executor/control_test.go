package executor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meteor-ioi/RDP-MultiSession-App/internal/model"
)

func TestMock_InitialStatus(t *testing.T) {
	m := NewMock()
	st, err := m.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.SystemStatus{OSBuildLabel: MockBuildLabel}, st)
}

func TestMock_Operations(t *testing.T) {
	ctx := context.Background()
	m := NewMock()

	msg, err := m.EnablePatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Mock patch applied successfully (non-Windows build)", msg)

	msg, err = m.SetPersistence(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, "Mock Persistence: true", msg)

	msg, err = m.SetExclusion(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, "Mock Defender exclusion: false", msg)

	st, _ := m.Status(ctx)
	assert.True(t, st.PatchActive)
	assert.True(t, st.PersistenceEnabled)
	assert.False(t, st.ExclusionEnabled)

	msg, err = m.RestorePatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Mock restore successful (non-Windows build)", msg)
	st, _ = m.Status(ctx)
	assert.False(t, st.PatchActive)
}

func TestNewControl(t *testing.T) {
	c, err := NewControl(model.ExecutorConfig{Backend: model.BackendMock})
	require.NoError(t, err)
	assert.IsType(t, &Mock{}, c)

	c, err = NewControl(model.ExecutorConfig{Backend: model.BackendScript, AllowUnprivileged: true})
	require.NoError(t, err)
	assert.IsType(t, &Script{}, c)

	_, err = NewControl(model.ExecutorConfig{Backend: "registry"})
	assert.Error(t, err)
}

func TestMock_DoneContextLeavesStatus(t *testing.T) {
	m := NewMock()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.EnablePatch(ctx)
	require.ErrorIs(t, err, context.Canceled)
	_, err = m.SetPersistence(ctx, true)
	require.ErrorIs(t, err, context.Canceled)

	st, err := m.Status(context.Background())
	require.NoError(t, err)
	assert.False(t, st.PatchActive)
	assert.False(t, st.PersistenceEnabled)
}
