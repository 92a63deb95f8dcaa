package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meteor-ioi/RDP-MultiSession-App/internal/auditlog"
	"github.com/meteor-ioi/RDP-MultiSession-App/internal/model"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRootCmd_Subcommands(t *testing.T) {
	cmd := newRootCmd()
	names := map[string]bool{}
	for _, c := range cmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"setup", "daemon", "status", "toggle", "check-updates", "export-log", "console", "audit", "version"} {
		assert.True(t, names[want], "missing subcommand %s", want)
	}
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "rdpms "+version+"\n", out)
}

func TestSetupThenStatus_ExecutorDown(t *testing.T) {
	dir := t.TempDir()
	out, err := execute(t, "setup", dir)
	require.NoError(t, err)
	home := filepath.Join(dir, ".rdpms")
	assert.Contains(t, out, home)

	out, err = execute(t, "--home", home, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Initializing control panel...")
	assert.Contains(t, out, "[ERROR]")
	assert.Contains(t, out, "(not loaded)")

	_, err = os.Stat(filepath.Join(home, "logs", "audit.jsonl"))
	assert.NoError(t, err, "audit mirror should be written")
}

func TestToggle_UnknownName(t *testing.T) {
	_, err := execute(t, "--home", t.TempDir(), "toggle", "firewall")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown toggle")
}

func writeMirror(t *testing.T, path string, n int) {
	t.Helper()
	m, err := auditlog.NewMirror(path, model.NewSessionID(), 0)
	require.NoError(t, err)
	m.EnableChecksum(true)
	for i := 0; i < n; i++ {
		require.NoError(t, m.Write(auditlog.Entry{Timestamp: time.Now(), Message: fmt.Sprintf("entry %d", i), Severity: model.SeverityInfo}))
	}
	require.NoError(t, m.Close())
}

func TestAuditVerify(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	writeMirror(t, path, 3)

	out, err := execute(t, "audit", "verify", path)
	require.NoError(t, err)
	assert.Equal(t, path+": 3/3 records valid\n", out)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, bytes.Replace(data, []byte("entry 1"), []byte("entry X"), 1), 0644))

	out, err = execute(t, "audit", "verify", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 record(s) failed")
	assert.Equal(t, path+": 2/3 records valid\n", out)
}

func TestAuditVerify_DefaultsToConfiguredMirror(t *testing.T) {
	dir := t.TempDir()
	_, err := execute(t, "setup", dir)
	require.NoError(t, err)
	home := filepath.Join(dir, ".rdpms")
	mirror := filepath.Join(home, model.DefaultMirrorPath)
	writeMirror(t, mirror, 2)

	out, err := execute(t, "--home", home, "audit", "verify")
	require.NoError(t, err)
	assert.Equal(t, mirror+": 2/2 records valid\n", out)
}
