package core

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Options controls the orchestrator itself, as opposed to the pipeline Config that is
// passed on to the collection scripts through the environment.
type Options struct {
	Interpreter      string `yaml:"interpreter" toml:"interpreter"`
	WorkDir          string `yaml:"work_dir" toml:"work_dir"`
	EnvFile          string `yaml:"env_file" toml:"env_file"`
	AbortOnInterrupt bool   `yaml:"abort_on_interrupt" toml:"abort_on_interrupt"`
	CaptureOutput    bool   `yaml:"capture_output" toml:"capture_output"`
	LockFile         string `yaml:"lock_file" toml:"lock_file"`
	MetricsFile      string `yaml:"metrics_file" toml:"metrics_file"`
	LogFile          string `yaml:"log_file" toml:"log_file"`
}

// DefaultOptions returns the built-in options. A user interrupt aborts the remaining
// queue and child output streams straight through.
func DefaultOptions() Options {
	return Options{
		WorkDir:          ".",
		EnvFile:          DefaultEnvFile,
		AbortOnInterrupt: true,
		CaptureOutput:    false,
		LockFile:         filepath.Join(os.TempDir(), "iptvrun.lock"),
	}
}

// LoadOptions reads an options file over the defaults. Files ending in .toml are decoded
// as TOML, anything else as YAML. An empty path returns the defaults.
func LoadOptions(path string) (Options, error) {
	opts := DefaultOptions()
	if path == "" {
		return opts, nil
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return opts, fmt.Errorf("read options: %w", err)
	}
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if err := toml.Unmarshal(content, &opts); err != nil {
			return opts, fmt.Errorf("parse options: %w", err)
		}
		return opts, nil
	}
	if err := yaml.Unmarshal(content, &opts); err != nil {
		return opts, fmt.Errorf("parse options: %w", err)
	}
	return opts, nil
}

// InterpreterPath returns the configured interpreter, then PYTHON_PATH, then python3.
// It must be called after the settings file has been applied.
func (o Options) InterpreterPath() string {
	if o.Interpreter != "" {
		return o.Interpreter
	}
	if v := os.Getenv("PYTHON_PATH"); v != "" {
		return v
	}
	return "python3"
}
