package address

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const sampleConfig = `{
  "active_set": "primary",
  "gesture_sets": {
    "primary": {
      "byte": 4,
      "gestures": {
        "swipe_left": 0,
        "swipe_right": 1,
        "swipe_up": 2,
        "swipe_down": 3,
        "circle": 4
      }
    },
    "alternate": {
      "byte": 10,
      "gestures": {"swipe_left": 7}
    }
  }
}`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gesture_config.json")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	m, err := Load(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if m.Set() != "primary" {
		t.Errorf("Set() = %q, want primary", m.Set())
	}
	if m.ByteOffset() != 4 {
		t.Errorf("ByteOffset() = %d, want 4", m.ByteOffset())
	}

	want := []string{"circle", "swipe_down", "swipe_left", "swipe_right", "swipe_up"}
	if diff := cmp.Diff(want, m.Names()); diff != "" {
		t.Errorf("Names() mismatch (-want +got):\n%s", diff)
	}

	addr, err := m.Resolve("swipe_up")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if diff := cmp.Diff(Address{Area: AreaMarker, Byte: 4, Bit: 2}, addr); diff != "" {
		t.Errorf("Resolve(swipe_up) mismatch (-want +got):\n%s", diff)
	}
	if addr.String() != "M4.2" {
		t.Errorf("String() = %q, want M4.2", addr.String())
	}
	if addr.Mask() != 0x04 {
		t.Errorf("Mask() = %#x, want 0x04", addr.Mask())
	}
}

func TestLoad_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
		if !errors.Is(err, ErrConfigNotFound) {
			t.Errorf("expected ErrConfigNotFound, got %v", err)
		}
	})

	tests := []struct {
		name    string
		content string
	}{
		{"invalid json", `{"active_set": `},
		{"missing active_set", `{"gesture_sets": {"primary": {"byte": 0, "gestures": {"a": 0}}}}`},
		{"unknown active set", `{"active_set": "other", "gesture_sets": {"primary": {"byte": 0, "gestures": {"a": 0}}}}`},
		{"missing byte", `{"active_set": "primary", "gesture_sets": {"primary": {"gestures": {"a": 0}}}}`},
		{"bit too high", `{"active_set": "primary", "gesture_sets": {"primary": {"byte": 0, "gestures": {"a": 8}}}}`},
		{"negative bit", `{"active_set": "primary", "gesture_sets": {"primary": {"byte": 0, "gestures": {"a": -1}}}}`},
		{"negative byte", `{"active_set": "primary", "gesture_sets": {"primary": {"byte": -2, "gestures": {"a": 1}}}}`},
		{"no gestures", `{"active_set": "primary", "gesture_sets": {"primary": {"byte": 0, "gestures": {}}}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			if !errors.Is(err, ErrConfigMalformed) {
				t.Errorf("expected ErrConfigMalformed, got %v", err)
			}
		})
	}
}

func TestMap_ResolveUnknown(t *testing.T) {
	m, err := Parse([]byte(sampleConfig))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	_, err = m.Resolve("wave")
	if !errors.Is(err, ErrUnknownGesture) {
		t.Errorf("expected ErrUnknownGesture, got %v", err)
	}
}

func TestMap_Aliases(t *testing.T) {
	m, err := New("merged", 2, map[string]int{
		"swipe_left":  0,
		"swipe_right": 0,
		"swipe_up":    1,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	left, _ := m.Resolve("swipe_left")
	right, _ := m.Resolve("swipe_right")
	if left != right {
		t.Errorf("aliased gestures resolved to %v and %v", left, right)
	}

	want := map[Address][]string{
		{Area: AreaMarker, Byte: 2, Bit: 0}: {"swipe_left", "swipe_right"},
	}
	if diff := cmp.Diff(want, m.Aliases()); diff != "" {
		t.Errorf("Aliases() mismatch (-want +got):\n%s", diff)
	}
}

func TestParseArea(t *testing.T) {
	for _, in := range []string{"M", "m"} {
		a, err := ParseArea(in)
		if err != nil {
			t.Fatalf("ParseArea(%q) error = %v", in, err)
		}
		if a != AreaMarker {
			t.Errorf("ParseArea(%q) = %v, want M", in, a)
		}
	}
	for _, in := range []string{"", "MB", "1"} {
		if _, err := ParseArea(in); err == nil {
			t.Errorf("ParseArea(%q) expected error", in)
		}
	}
}
