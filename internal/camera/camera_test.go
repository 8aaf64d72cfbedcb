package camera

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestIsGigE(t *testing.T) {
	tests := []struct {
		system string
		want   bool
	}{
		{SystemGigEVision, true},
		{SystemGevIQ, true},
		{"USB3Vision", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsGigE(tt.system); got != tt.want {
			t.Errorf("IsGigE(%q) = %v, want %v", tt.system, got, tt.want)
		}
	}
}

func TestOpenUnknownBackend(t *testing.T) {
	_, err := Open(Config{Backend: "does-not-exist"})
	if err == nil || !strings.Contains(err.Error(), "unknown camera backend") {
		t.Fatalf("Open returned %v", err)
	}
}

func TestOpenWrapsBackendError(t *testing.T) {
	sentinel := errors.New("boom")
	Register("failing-test-backend", func(Config) (Camera, error) { return nil, sentinel })
	if _, err := Open(Config{Backend: "failing-test-backend"}); !errors.Is(err, sentinel) {
		t.Errorf("Open error = %v, want wrapped sentinel", err)
	}
}

func TestWorkerSequenceWait(t *testing.T) {
	w := StartWorker(StartOp{Count: 3}, func(ctx context.Context, w *Worker) error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(5 * time.Millisecond):
				if w.Frame() {
					<-ctx.Done()
					return nil
				}
			}
		}
	})
	if err := w.Stop(true); err != nil {
		t.Fatal(err)
	}
	if got := w.Delivered(); got != 3 {
		t.Errorf("delivered %d frames, want 3", got)
	}
	select {
	case <-w.Done():
	default:
		t.Error("Done not closed after Stop")
	}
}

func TestWorkerStopWithoutWait(t *testing.T) {
	w := StartWorker(StartOp{}, func(ctx context.Context, w *Worker) error {
		<-ctx.Done()
		return nil
	})
	if err := w.Stop(false); err != nil {
		t.Fatal(err)
	}
	if w.Delivered() != 0 {
		t.Error("frames delivered by idle worker")
	}
}
