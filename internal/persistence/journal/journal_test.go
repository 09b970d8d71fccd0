package journal

import (
	"testing"
	"time"
)

func TestWriterRoundTrip(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir, "frames")
	base := time.Date(2026, 3, 1, 10, 15, 0, 0, time.UTC)
	w.now = func() time.Time { return base }

	frames := []string{"Seed:abc;Players:0", "Signal:3;Chat:a>hi", "move 1.00 2.00"}
	for i, f := range frames {
		dirn := In
		if i == 2 {
			dirn = Out
		}
		if err := w.Record(dirn, "", f); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	got, err := ReadAll(dir, "frames")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != len(frames) {
		t.Fatalf("entries: got %d want %d", len(got), len(frames))
	}
	for i, e := range got {
		if e.Data != frames[i] {
			t.Fatalf("entry %d: %q", i, e.Data)
		}
		if !e.At.Equal(base) {
			t.Fatalf("entry %d at %v", i, e.At)
		}
	}
	if got[2].Dir != Out || got[0].Dir != In {
		t.Fatalf("directions: %+v", got)
	}
}

func TestWriterRotatesHourly(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir, "frames")
	at := time.Date(2026, 3, 1, 10, 59, 0, 0, time.UTC)
	w.now = func() time.Time { return at }
	if err := w.Record(In, "", "one"); err != nil {
		t.Fatalf("record: %v", err)
	}
	at = at.Add(2 * time.Minute)
	if err := w.Record(In, "", "two"); err != nil {
		t.Fatalf("record: %v", err)
	}
	_ = w.Close()

	files, err := Files(dir, "frames")
	if err != nil {
		t.Fatalf("files: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("files: %v", files)
	}
	got, err := ReadAll(dir, "frames")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 2 || got[0].Data != "one" || got[1].Data != "two" {
		t.Fatalf("order: %+v", got)
	}
}

func TestWriterReopenAppends(t *testing.T) {
	dir := t.TempDir()
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for _, data := range []string{"a", "b"} {
		w := NewWriter(dir, "frames")
		w.now = func() time.Time { return at }
		if err := w.Record(In, "", data); err != nil {
			t.Fatalf("record: %v", err)
		}
		_ = w.Close()
	}
	got, err := ReadAll(dir, "frames")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 2 || got[1].Data != "b" {
		t.Fatalf("got %+v", got)
	}
}
