package core

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
)

// DefaultEnvFile is the settings file read from the working directory when none is given.
const DefaultEnvFile = ".env"

// LoadEnvFile reads KEY=VALUE pairs from path. Blank lines and lines starting with # are
// ignored, as are lines without '='. Keys and values are trimmed and a later duplicate key
// replaces an earlier one. A missing file yields an empty map and no error.
func LoadEnvFile(path string) (map[string]string, error) {
	if path == "" {
		path = DefaultEnvFile
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("open env file: %w", err)
	}
	defer f.Close()
	out := map[string]string{}
	s := bufio.NewScanner(f)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if i := strings.IndexByte(line, '='); i >= 0 {
			k := strings.TrimSpace(line[:i])
			if k == "" {
				continue
			}
			out[k] = strings.TrimSpace(line[i+1:])
		}
	}
	if err := s.Err(); err != nil {
		return nil, fmt.Errorf("read env file: %w", err)
	}
	return out, nil
}

// ApplyEnv writes every pair into the process environment, overwriting existing values.
func ApplyEnv(vars map[string]string) error {
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := os.Setenv(k, vars[k]); err != nil {
			return fmt.Errorf("set %s: %w", k, err)
		}
	}
	return nil
}

// LoadEnv loads the settings file at path into the process environment and returns the
// number of variables applied.
func LoadEnv(path string) (int, error) {
	vars, err := LoadEnvFile(path)
	if err != nil {
		return 0, err
	}
	if len(vars) == 0 {
		log.Debug().Str("path", path).Msg("no settings file, using defaults")
		return 0, nil
	}
	if err := ApplyEnv(vars); err != nil {
		return 0, err
	}
	log.Info().Str("path", path).Int("count", len(vars)).Msg("settings file loaded")
	return len(vars), nil
}
