package features

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// isYAML reports whether path names a YAML file. Everything else is TOML.
func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// Save writes set to path, replacing the file atomically.
func Save(path string, set *Set) error {
	if set.Version == 0 {
		set.Version = Version
	}

	var data []byte
	var err error
	if isYAML(path) {
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err = enc.Encode(set); err == nil {
			err = enc.Close()
		}
		data = buf.Bytes()
	} else {
		data, err = toml.Marshal(set)
	}
	if err != nil {
		return fmt.Errorf("failed to encode feature set: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write feature set: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace feature set: %w", err)
	}
	return nil
}

// Load reads a feature set written by Save.
func Load(path string) (*Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read feature set: %w", err)
	}

	var set Set
	if isYAML(path) {
		err = yaml.Unmarshal(data, &set)
	} else {
		err = toml.Unmarshal(data, &set)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse feature set %s: %w", path, err)
	}
	if set.Version > Version {
		return nil, fmt.Errorf("feature set %s has version %d, newest supported is %d", path, set.Version, Version)
	}
	for i, v := range set.Features {
		if v.Name == "" {
			return nil, fmt.Errorf("feature set %s: entry %d has no name", path, i)
		}
		if (v.Selects == "") != (v.Selector == "") {
			return nil, fmt.Errorf("feature set %s: %s needs both selects and selector", path, v.Name)
		}
	}
	return &set, nil
}
