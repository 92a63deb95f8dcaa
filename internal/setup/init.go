// Package setup creates and locates the rdpms home directory.
package setup

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	atomicyaml "github.com/meteor-ioi/RDP-MultiSession-App/internal/yaml"
	"github.com/meteor-ioi/RDP-MultiSession-App/templates"
)

// HomeDirName is the directory created under the target by Run.
const HomeDirName = ".rdpms"

// Run initializes <dir>/.rdpms with its logs/ and locks/ directories and the
// default config.yaml. It returns the created home path.
func Run(dir string) (string, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolve dir: %w", err)
	}

	home := filepath.Join(absDir, HomeDirName)
	if _, err := os.Stat(home); err == nil {
		return "", fmt.Errorf("%s already exists", home)
	}

	for _, d := range []string{"logs", "locks"} {
		if err := os.MkdirAll(filepath.Join(home, d), 0755); err != nil {
			return "", fmt.Errorf("create directory %s: %w", d, err)
		}
	}

	data, err := fs.ReadFile(templates.FS, ConfigFileName)
	if err != nil {
		return "", fmt.Errorf("read config template: %w", err)
	}
	if err := atomicyaml.AtomicWriteRaw(ConfigPath(home), data); err != nil {
		return "", fmt.Errorf("write %s: %w", ConfigFileName, err)
	}

	return home, nil
}
