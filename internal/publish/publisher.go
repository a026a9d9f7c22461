// Package publish fans captured waveforms out to downstream consumers.
// Redis pub/sub with a bounded backup list is the primary sink; MQTT is
// available for deployments that feed a broker instead.
package publish

import (
	"context"
	"encoding/json"
	"time"

	"github.com/matteovidali/Keysight-Scope-Tools/internal/monitor"
	"github.com/matteovidali/Keysight-Scope-Tools/internal/waveform"
)

// Capture is the published envelope: the record plus its measurements.
type Capture struct {
	Record       *waveform.Record      `json:"record"`
	Measurements waveform.Measurements `json:"measurements"`
	PublishedAt  time.Time             `json:"published_at"`
}

// NewCapture measures a record and wraps it for publication.
func NewCapture(rec *waveform.Record) *Capture {
	return &Capture{
		Record:       rec,
		Measurements: waveform.Measure(rec),
		PublishedAt:  time.Now().UTC(),
	}
}

func (c *Capture) marshal() ([]byte, error) {
	return json.Marshal(c)
}

// Publisher delivers captures to one sink.
type Publisher interface {
	Publish(ctx context.Context, c *Capture) error
	Name() string
	Close() error
}

// BatchPublisher is implemented by sinks that can deliver several captures
// in one round trip.
type BatchPublisher interface {
	PublishBatch(ctx context.Context, captures []*Capture) error
}

// StatsReporter is implemented by sinks that expose delivery diagnostics.
type StatsReporter interface {
	GetStats(ctx context.Context) map[string]interface{}
}

// Multi fans a capture out to every sink, counting failures per sink
// without aborting the rest.
type Multi struct {
	sinks []Publisher
}

func NewMulti(sinks ...Publisher) *Multi {
	return &Multi{sinks: sinks}
}

func (m *Multi) Publish(ctx context.Context, c *Capture) error {
	var firstErr error
	for _, s := range m.sinks {
		if err := s.Publish(ctx, c); err != nil {
			monitor.PublishErrors.WithLabelValues(s.Name()).Inc()
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// PublishBatch hands the whole batch to sinks that support it and falls
// back to per-capture delivery for the rest.
func (m *Multi) PublishBatch(ctx context.Context, captures []*Capture) error {
	var firstErr error
	for _, s := range m.sinks {
		var err error
		if bp, ok := s.(BatchPublisher); ok {
			err = bp.PublishBatch(ctx, captures)
		} else {
			for _, c := range captures {
				if perr := s.Publish(ctx, c); perr != nil && err == nil {
					err = perr
				}
			}
		}
		if err != nil {
			monitor.PublishErrors.WithLabelValues(s.Name()).Inc()
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// GetStats collects diagnostics from every sink that reports them, keyed
// by sink name.
func (m *Multi) GetStats(ctx context.Context) map[string]interface{} {
	out := make(map[string]interface{})
	for _, s := range m.sinks {
		if sr, ok := s.(StatsReporter); ok {
			out[s.Name()] = sr.GetStats(ctx)
		}
	}
	return out
}

func (m *Multi) Name() string { return "multi" }

func (m *Multi) Close() error {
	var firstErr error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
