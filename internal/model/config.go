// Package model defines the data structures shared by the control panel and the privileged executor.
package model

import "time"

type Config struct {
	Executor ExecutorConfig `yaml:"executor"`
	Gateway  GatewayConfig  `yaml:"gateway"`
	Audit    AuditConfig    `yaml:"audit"`
	Updates  UpdatesConfig  `yaml:"updates"`
	Export   ExportConfig   `yaml:"export"`
	Daemon   DaemonConfig   `yaml:"daemon"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ExecutorConfig struct {
	SocketName        string        `yaml:"socket_name"`
	Backend           string        `yaml:"backend"` // "mock" or "script"
	AllowUnprivileged bool          `yaml:"allow_unprivileged"`
	TimeoutSec        int           `yaml:"timeout_sec"`
	Scripts           ScriptsConfig `yaml:"scripts"`
}

// ScriptsConfig holds one command line per privileged operation.
// Each entry is executed through the platform shell.
type ScriptsConfig struct {
	Status            string `yaml:"status"`
	PatchEnable       string `yaml:"patch_enable"`
	PatchRestore      string `yaml:"patch_restore"`
	PersistenceEnable string `yaml:"persistence_enable"`
	PersistenceRemove string `yaml:"persistence_remove"`
	ExclusionAdd      string `yaml:"exclusion_add"`
	ExclusionRemove   string `yaml:"exclusion_remove"`
}

type GatewayConfig struct {
	TimeoutSec int `yaml:"timeout_sec"`
}

type AuditConfig struct {
	MirrorEnabled bool   `yaml:"mirror_enabled"`
	MirrorPath    string `yaml:"mirror_path"` // relative paths resolve against the home dir
	MaxSizeBytes  int64  `yaml:"max_size_bytes"`
	Checksum      bool   `yaml:"checksum"`
}

type UpdatesConfig struct {
	Mirrors    []string `yaml:"mirrors"`
	TimeoutSec int      `yaml:"timeout_sec"`
}

type ExportConfig struct {
	Dir      string `yaml:"dir"` // empty means $HOME/Desktop
	FileName string `yaml:"file_name"`
}

type DaemonConfig struct {
	ShutdownTimeoutSec int `yaml:"shutdown_timeout_sec"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

const (
	BackendMock   = "mock"
	BackendScript = "script"

	DefaultSocketName      = "executor.sock"
	DefaultExportFileName  = "RDP_Manager_Logs.txt"
	DefaultMirrorPath      = "logs/audit.jsonl"
	defaultGatewayTimeout  = 90
	defaultExecutorTimeout = 60
	defaultUpdatesTimeout  = 10
	defaultShutdownTimeout = 10
)

// DefaultUpdateMirrors is the pattern-table source tried in order.
var DefaultUpdateMirrors = []string{
	"https://raw.githubusercontent.com/malnwaihi/RDP-MultiSession-Enabler/main/termsrv_offsets.json",
	"https://ghp.ci/https://raw.githubusercontent.com/malnwaihi/RDP-MultiSession-Enabler/main/termsrv_offsets.json",
	"https://mirror.ghproxy.com/https://raw.githubusercontent.com/malnwaihi/RDP-MultiSession-Enabler/main/termsrv_offsets.json",
}

// DefaultConfig is used when no config.yaml exists.
func DefaultConfig() Config {
	cfg := Config{
		Executor: ExecutorConfig{Backend: BackendMock},
		Audit:    AuditConfig{MirrorEnabled: true},
	}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills zero values left by a partial config file.
func (c *Config) ApplyDefaults() {
	if c.Executor.SocketName == "" {
		c.Executor.SocketName = DefaultSocketName
	}
	if c.Executor.Backend == "" {
		c.Executor.Backend = BackendMock
	}
	if c.Executor.TimeoutSec <= 0 {
		c.Executor.TimeoutSec = defaultExecutorTimeout
	}
	if c.Gateway.TimeoutSec <= 0 {
		c.Gateway.TimeoutSec = defaultGatewayTimeout
	}
	if c.Audit.MirrorPath == "" {
		c.Audit.MirrorPath = DefaultMirrorPath
	}
	if len(c.Updates.Mirrors) == 0 {
		c.Updates.Mirrors = append([]string(nil), DefaultUpdateMirrors...)
	}
	if c.Updates.TimeoutSec <= 0 {
		c.Updates.TimeoutSec = defaultUpdatesTimeout
	}
	if c.Export.FileName == "" {
		c.Export.FileName = DefaultExportFileName
	}
	if c.Daemon.ShutdownTimeoutSec <= 0 {
		c.Daemon.ShutdownTimeoutSec = defaultShutdownTimeout
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

func (c Config) GatewayTimeout() time.Duration {
	return time.Duration(c.Gateway.TimeoutSec) * time.Second
}

func (c Config) ExecutorTimeout() time.Duration {
	return time.Duration(c.Executor.TimeoutSec) * time.Second
}

func (c Config) UpdatesTimeout() time.Duration {
	return time.Duration(c.Updates.TimeoutSec) * time.Second
}
