package main

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/ayusman/gestureplc/internal/store"
)

func TestPruneHistory(t *testing.T) {
	st, err := store.New(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	defer st.Close()

	now := time.Date(2026, 6, 30, 12, 0, 0, 0, time.UTC)
	for i, age := range []int{1, 10, 29, 31, 90} {
		err := st.Pulses().Create(&store.PulseRecord{
			ID:        fmt.Sprintf("p%d", i),
			Gesture:   "swipe_left",
			Source:    store.SourceGesture,
			Address:   "M4.0",
			StartedAt: now.AddDate(0, 0, -age),
		})
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	t.Run("zero keeps everything", func(t *testing.T) {
		if err := pruneHistory(st, 0, now); err != nil {
			t.Fatalf("pruneHistory() error = %v", err)
		}
		all, _ := st.Pulses().List(0)
		if len(all) != 5 {
			t.Errorf("expected 5 records, got %d", len(all))
		}
	})

	t.Run("drops records past retention", func(t *testing.T) {
		if err := pruneHistory(st, 30, now); err != nil {
			t.Fatalf("pruneHistory() error = %v", err)
		}
		all, _ := st.Pulses().List(0)
		if len(all) != 3 {
			t.Fatalf("expected 3 records, got %d", len(all))
		}
		for _, p := range all {
			if now.Sub(p.StartedAt) > 30*24*time.Hour {
				t.Errorf("record %s from %s should have been removed", p.ID, p.StartedAt)
			}
		}
	})
}

func TestStatusURL(t *testing.T) {
	tests := []struct {
		listen string
		want   string
	}{
		{":8080", "http://localhost:8080/api/status"},
		{"127.0.0.1:9000", "http://127.0.0.1:9000/api/status"},
	}
	for _, tt := range tests {
		if got := statusURL(tt.listen); got != tt.want {
			t.Errorf("statusURL(%q) = %q, want %q", tt.listen, got, tt.want)
		}
	}
}
