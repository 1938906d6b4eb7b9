package address

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// maxConfigSize bounds the size of a gesture config document.
const maxConfigSize = 1 * 1024 * 1024

// DefaultConfigPath is the config file looked up when none is given.
const DefaultConfigPath = "gesture_config.json"

// Config mirrors the on-disk gesture configuration document.
type Config struct {
	ActiveSet   string                `json:"active_set"`
	GestureSets map[string]GestureSet `json:"gesture_sets"`
}

// GestureSet is one named group of gestures sharing a memory byte.
type GestureSet struct {
	Byte     *int           `json:"byte"`
	Gestures map[string]int `json:"gestures"`
}

// Load reads the config file at path and builds the Map for its active set.
func Load(path string) (*Map, error) {
	cleanPath := filepath.Clean(path)

	info, err := os.Stat(cleanPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, cleanPath)
		}
		return nil, fmt.Errorf("stat gesture config: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrConfigNotFound, cleanPath)
	}
	if info.Size() > maxConfigSize {
		return nil, fmt.Errorf("%w: file too large: %d bytes (max %d)", ErrConfigMalformed, info.Size(), maxConfigSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("read gesture config: %w", err)
	}
	return Parse(data)
}

// Parse decodes a config document and builds the Map for its active set.
func Parse(data []byte) (*Map, error) {
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigMalformed, err)
	}
	return cfg.Build()
}

// Build validates the config and returns the Map for the active set.
func (c Config) Build() (*Map, error) {
	if c.ActiveSet == "" {
		return nil, fmt.Errorf("%w: missing active_set", ErrConfigMalformed)
	}
	set, ok := c.GestureSets[c.ActiveSet]
	if !ok {
		return nil, fmt.Errorf("%w: gesture set %q not defined", ErrConfigMalformed, c.ActiveSet)
	}
	if set.Byte == nil {
		return nil, fmt.Errorf("%w: gesture set %q has no byte", ErrConfigMalformed, c.ActiveSet)
	}
	return New(c.ActiveSet, *set.Byte, set.Gestures)
}
