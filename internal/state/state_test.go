package state

import (
	"path/filepath"
	"testing"
	"time"
)

func TestWatermarkRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "monitor.db")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()

	mark, err := store.Watermark()
	if err != nil {
		t.Fatalf("watermark: %v", err)
	}
	if !mark.IsZero() {
		t.Fatalf("fresh store watermark = %v, want zero", mark)
	}

	want := time.Date(2025, 6, 1, 10, 15, 30, 123456789, time.UTC)
	if err := store.SetWatermark(want); err != nil {
		t.Fatalf("set: %v", err)
	}

	got, err := store.Watermark()
	if err != nil {
		t.Fatalf("watermark: %v", err)
	}
	if !got.Equal(want) {
		t.Errorf("watermark = %v, want %v", got, want)
	}
}

func TestWatermarkSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "monitor.db")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	want := time.Date(2025, 6, 1, 10, 15, 0, 0, time.UTC)
	if err := store.SetWatermark(want); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.Watermark()
	if err != nil {
		t.Fatalf("watermark: %v", err)
	}
	if !got.Equal(want) {
		t.Errorf("watermark after reopen = %v, want %v", got, want)
	}
}

func TestSetWatermarkOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "monitor.db")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()

	first := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	second := first.Add(30 * time.Second)
	if err := store.SetWatermark(first); err != nil {
		t.Fatal(err)
	}
	if err := store.SetWatermark(second); err != nil {
		t.Fatal(err)
	}

	got, err := store.Watermark()
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(second) {
		t.Errorf("watermark = %v, want %v", got, second)
	}
}
