// Package metrics provides Prometheus metrics for camera acquisition.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// fpsSmoothing is the weight of the newest frame interval in the frame rate
// moving average.
const fpsSmoothing = 0.2

var (
	framesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gigecam",
		Name:      "frames_processed_total",
		Help:      "Frames delivered to the frame hook",
	}, []string{"camera"})

	softwareTriggers = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gigecam",
		Name:      "software_triggers_total",
		Help:      "TriggerSoftware commands executed",
	}, []string{"camera", "selector"})

	grabBuffers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "gigecam",
		Name:      "grab_buffers",
		Help:      "Grab buffers allocated for the running acquisition",
	}, []string{"camera"})

	acquisitionActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "gigecam",
		Name:      "acquisition_active",
		Help:      "1 while an acquisition is running",
	}, []string{"camera"})

	frameRate = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "gigecam",
		Name:      "frame_rate",
		Help:      "Smoothed rate of processed frames per second",
	}, []string{"camera"})

	missingPackets = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gigecam",
		Subsystem: "gvsp",
		Name:      "missing_packets_total",
		Help:      "Stream packets missing from assembled frames",
	}, []string{"camera"})

	// Local cache for SSE exporter and API access.
	cache   = make(map[string]*AcquisitionMetrics)
	cacheMu sync.RWMutex
)

// AcquisitionMetrics holds current metric values for a camera.
type AcquisitionMetrics struct {
	Frames         float64
	Triggers       float64
	MissingPackets float64
	Buffers        int
	Active         bool
	FPS            float64

	lastFrame time.Time
}

// RecordFrame counts a processed frame and updates the frame rate.
func RecordFrame(camera string, at time.Time) {
	framesProcessed.WithLabelValues(camera).Inc()

	var fps float64
	updateCache(camera, func(m *AcquisitionMetrics) {
		m.Frames++
		if !m.lastFrame.IsZero() {
			if dt := at.Sub(m.lastFrame).Seconds(); dt > 0 {
				if m.FPS == 0 {
					m.FPS = 1 / dt
				} else {
					m.FPS += fpsSmoothing * (1/dt - m.FPS)
				}
			}
		}
		m.lastFrame = at
		fps = m.FPS
	})
	frameRate.WithLabelValues(camera).Set(fps)
}

// RecordTrigger counts a software trigger on the given selector.
func RecordTrigger(camera, selector string) {
	softwareTriggers.WithLabelValues(camera, selector).Inc()
	updateCache(camera, func(m *AcquisitionMetrics) { m.Triggers++ })
}

// AddMissingPackets counts stream packets that never arrived.
func AddMissingPackets(camera string, n int) {
	if n <= 0 {
		return
	}
	missingPackets.WithLabelValues(camera).Add(float64(n))
	updateCache(camera, func(m *AcquisitionMetrics) { m.MissingPackets += float64(n) })
}

// SetGrabBuffers sets the number of grab buffers in use.
func SetGrabBuffers(camera string, n int) {
	grabBuffers.WithLabelValues(camera).Set(float64(n))
	updateCache(camera, func(m *AcquisitionMetrics) { m.Buffers = n })
}

// SetAcquisitionActive marks an acquisition as running or stopped.
// Stopping resets the frame rate.
func SetAcquisitionActive(camera string, active bool) {
	v := 0.0
	if active {
		v = 1
	} else {
		frameRate.WithLabelValues(camera).Set(0)
	}
	acquisitionActive.WithLabelValues(camera).Set(v)
	updateCache(camera, func(m *AcquisitionMetrics) {
		m.Active = active
		if !active {
			m.FPS = 0
			m.lastFrame = time.Time{}
		}
	})
}

// DeleteAcquisitionMetrics removes all metrics for a camera.
func DeleteAcquisitionMetrics(camera string) {
	framesProcessed.DeleteLabelValues(camera)
	softwareTriggers.DeletePartialMatch(prometheus.Labels{"camera": camera})
	grabBuffers.DeleteLabelValues(camera)
	acquisitionActive.DeleteLabelValues(camera)
	frameRate.DeleteLabelValues(camera)
	missingPackets.DeleteLabelValues(camera)

	cacheMu.Lock()
	delete(cache, camera)
	cacheMu.Unlock()
}

// GetAcquisitionMetrics returns current metric values for a camera.
func GetAcquisitionMetrics(camera string) *AcquisitionMetrics {
	cacheMu.RLock()
	defer cacheMu.RUnlock()
	if m, ok := cache[camera]; ok {
		dup := *m
		return &dup
	}
	return nil
}

// GetAllAcquisitionMetrics returns metrics for every camera seen so far.
func GetAllAcquisitionMetrics() map[string]*AcquisitionMetrics {
	cacheMu.RLock()
	defer cacheMu.RUnlock()
	result := make(map[string]*AcquisitionMetrics, len(cache))
	for name, m := range cache {
		dup := *m
		result[name] = &dup
	}
	return result
}

func updateCache(camera string, update func(*AcquisitionMetrics)) {
	cacheMu.Lock()
	defer cacheMu.Unlock()
	m, ok := cache[camera]
	if !ok {
		m = &AcquisitionMetrics{}
		cache[camera] = m
	}
	update(m)
}
