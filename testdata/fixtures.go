// Package testdata embeds recorded tracking sessions and configuration fixtures.
package testdata

import (
	"bytes"
	"embed"
	"fmt"

	"github.com/ayusman/gestureplc/internal/address"
	"github.com/ayusman/gestureplc/internal/leap"
)

//go:embed frames/*.jsonl gesture_config.json
var fixturesFS embed.FS

// LoadRecording returns a replay source for a recorded session under frames/.
func LoadRecording(name string) (*leap.ReplaySource, error) {
	data, err := fixturesFS.ReadFile("frames/" + name)
	if err != nil {
		return nil, fmt.Errorf("load recording %s: %w", name, err)
	}
	return leap.NewReplaySource(bytes.NewReader(data), false), nil
}

// Recordings lists the embedded recordings.
func Recordings() ([]string, error) {
	entries, err := fixturesFS.ReadDir("frames")
	if err != nil {
		return nil, err
	}

	var names []string
	for _, entry := range entries {
		if !entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	return names, nil
}

// ConfigJSON returns the raw gesture configuration fixture.
func ConfigJSON() []byte {
	data, err := fixturesFS.ReadFile("gesture_config.json")
	if err != nil {
		panic(err)
	}
	return data
}

// AddressMap parses the gesture configuration fixture.
func AddressMap() (*address.Map, error) {
	return address.Parse(ConfigJSON())
}
