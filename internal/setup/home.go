package setup

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/meteor-ioi/RDP-MultiSession-App/internal/model"
	atomicyaml "github.com/meteor-ioi/RDP-MultiSession-App/internal/yaml"
)

const (
	ConfigFileName = "config.yaml"
	// HomeEnv overrides home discovery.
	HomeEnv = "RDPMS_HOME"
)

// FindHome resolves the home directory: $RDPMS_HOME, else the nearest
// .rdpms/ at or above cwd, else $HOME/.rdpms. The result need not exist.
func FindHome(cwd string) (string, error) {
	if env := os.Getenv(HomeEnv); env != "" {
		return filepath.Abs(env)
	}

	dir, err := filepath.Abs(cwd)
	if err != nil {
		return "", fmt.Errorf("resolve cwd: %w", err)
	}
	for {
		candidate := filepath.Join(dir, HomeDirName)
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	userHome, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve user home: %w", err)
	}
	return filepath.Join(userHome, HomeDirName), nil
}

func ConfigPath(home string) string {
	return filepath.Join(home, ConfigFileName)
}

// LoadConfig reads <home>/config.yaml. A missing file yields model.DefaultConfig().
func LoadConfig(home string) (model.Config, error) {
	cfg := model.DefaultConfig()
	if err := atomicyaml.ReadFile(ConfigPath(home), &cfg); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return model.DefaultConfig(), nil
		}
		return model.Config{}, fmt.Errorf("load config: %w", err)
	}
	cfg.ApplyDefaults()
	if err := Validate(cfg); err != nil {
		return model.Config{}, err
	}
	return cfg, nil
}

// Validate checks values ApplyDefaults cannot repair.
func Validate(cfg model.Config) error {
	switch cfg.Executor.Backend {
	case model.BackendMock, model.BackendScript:
	default:
		return fmt.Errorf("executor.backend must be %q or %q, got %q", model.BackendMock, model.BackendScript, cfg.Executor.Backend)
	}
	// The panel must outwait the executor, or a change can land after the panel rolled it back.
	if cfg.Gateway.TimeoutSec <= cfg.Executor.TimeoutSec {
		return fmt.Errorf("gateway.timeout_sec (%d) must be greater than executor.timeout_sec (%d)",
			cfg.Gateway.TimeoutSec, cfg.Executor.TimeoutSec)
	}
	if cfg.Audit.MaxSizeBytes < 0 {
		return fmt.Errorf("audit.max_size_bytes must not be negative")
	}
	if filepath.Base(cfg.Executor.SocketName) != cfg.Executor.SocketName {
		return fmt.Errorf("executor.socket_name must be a file name, got %q", cfg.Executor.SocketName)
	}
	return nil
}

// Resolve joins a relative path onto home.
func Resolve(home, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(home, p)
}

func SocketPath(home string, cfg model.Config) string {
	return filepath.Join(home, cfg.Executor.SocketName)
}

func LockPath(home string) string {
	return filepath.Join(home, "locks", "executor.lock")
}

func LogDir(home string) string {
	return filepath.Join(home, "logs")
}
