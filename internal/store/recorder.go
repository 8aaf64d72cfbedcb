package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/smazurov/gigecam/internal/events"
)

// Subscriber is the part of the event bus the recorder needs.
type Subscriber interface {
	Subscribe(handler any) func()
}

// RecordFeatureChanges journals every FeatureChangedEvent published on bus
// until the returned function is called.
func (j *Journal) RecordFeatureChanges(bus Subscriber, logger *slog.Logger) func() {
	return bus.Subscribe(func(e events.FeatureChangedEvent) {
		at, err := time.Parse(time.RFC3339Nano, e.Timestamp)
		if err != nil {
			at = time.Now()
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err = j.RecordFeatureChange(ctx, FeatureChange{
			Camera:    e.Camera,
			Feature:   e.Feature,
			Value:     e.Value,
			ChangedAt: at,
		})
		if err != nil {
			logger.Warn("Failed to journal feature change", "feature", e.Feature, "error", err)
		}
	})
}
