package store

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/smazurov/gigecam/internal/events"
)

func newTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open journal: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func TestRunLifecycle(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	id, err := j.Begin(ctx, Run{Camera: "sim", Trigger: "multi_frame", Selector: "AcquisitionStart", Software: true})
	if err != nil {
		t.Fatal(err)
	}

	r, err := j.Run(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if r.StoppedAt != nil || r.Camera != "sim" || !r.Software {
		t.Errorf("open run = %+v", r)
	}

	if err := j.Finish(ctx, id, 6, 2, 3, 3, nil); err != nil {
		t.Fatal(err)
	}
	r, err = j.Run(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if r.Frames != 6 || r.Triggers != 2 || r.Allocated != 3 || r.Freed != 3 || r.Error != "" {
		t.Errorf("finished run = %+v", r)
	}
	if r.StoppedAt == nil || r.StoppedAt.Before(r.StartedAt) {
		t.Errorf("stopped_at = %v, started_at = %v", r.StoppedAt, r.StartedAt)
	}
}

func TestFinishRecordsError(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()
	id, _ := j.Begin(ctx, Run{Camera: "sim", Trigger: "single_frame"})

	if err := j.Finish(ctx, id, 0, 0, 0, 0, errors.New("no grab buffers")); err != nil {
		t.Fatal(err)
	}
	r, _ := j.Run(ctx, id)
	if r.Error != "no grab buffers" {
		t.Errorf("error = %q", r.Error)
	}
}

func TestMissingRun(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()
	if _, err := j.Run(ctx, 42); !errors.Is(err, ErrNotFound) {
		t.Errorf("Run: err = %v", err)
	}
	if err := j.Finish(ctx, 42, 0, 0, 0, 0, nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("Finish: err = %v", err)
	}
}

func TestRunsNewestFirstAndFiltered(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()
	for _, cam := range []string{"a", "b", "a", "a"} {
		if _, err := j.Begin(ctx, Run{Camera: cam, Trigger: "continuous"}); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		camera string
		limit  int
		want   []int64
	}{
		{"", 0, []int64{4, 3, 2, 1}},
		{"a", 0, []int64{4, 3, 1}},
		{"a", 2, []int64{4, 3}},
		{"c", 0, nil},
	}
	for _, tt := range tests {
		runs, err := j.Runs(ctx, tt.camera, tt.limit)
		if err != nil {
			t.Fatal(err)
		}
		var ids []int64
		for _, r := range runs {
			ids = append(ids, r.ID)
		}
		if len(ids) != len(tt.want) {
			t.Errorf("Runs(%q, %d) = %v, want %v", tt.camera, tt.limit, ids, tt.want)
			continue
		}
		for i := range ids {
			if ids[i] != tt.want[i] {
				t.Errorf("Runs(%q, %d) = %v, want %v", tt.camera, tt.limit, ids, tt.want)
				break
			}
		}
	}
}

func TestJournalPersistsToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	id, err := j.Begin(context.Background(), Run{Camera: "sim", Trigger: "continuous"})
	if err != nil {
		t.Fatal(err)
	}
	j.Close()

	j, err = Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer j.Close()
	if _, err := j.Run(context.Background(), id); err != nil {
		t.Errorf("run lost after reopen: %v", err)
	}
}

func TestRecordFeatureChangesFromBus(t *testing.T) {
	j := newTestJournal(t)
	bus := events.New()
	stop := j.RecordFeatureChanges(bus, slog.New(slog.NewTextHandler(io.Discard, nil)))

	bus.Publish(events.FeatureChangedEvent{
		Camera:    "sim",
		Feature:   "ExposureTime",
		Value:     "5000",
		Timestamp: "2025-01-27T10:30:00Z",
	})

	var changes []FeatureChange
	deadline := time.Now().Add(2 * time.Second)
	for len(changes) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
		changes, _ = j.FeatureChanges(context.Background(), "sim", 0)
	}
	if len(changes) != 1 {
		t.Fatalf("changes = %+v", changes)
	}
	if changes[0].Feature != "ExposureTime" || changes[0].Value != "5000" || changes[0].ChangedAt.Year() != 2025 {
		t.Errorf("change = %+v", changes[0])
	}

	stop()
	bus.Publish(events.FeatureChangedEvent{Camera: "sim", Feature: "Width", Value: "64"})
	time.Sleep(50 * time.Millisecond)
	changes, _ = j.FeatureChanges(context.Background(), "", 0)
	if len(changes) != 1 {
		t.Errorf("recorded after stop: %+v", changes)
	}
}
