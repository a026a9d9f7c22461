// Package acquire runs the unattended capture loop: on each tick it pulls a
// waveform from every configured source and hands it to the publishers.
package acquire

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/matteovidali/Keysight-Scope-Tools/internal/publish"
	"github.com/matteovidali/Keysight-Scope-Tools/internal/waveform"
)

// Capturer is the slice of the scope the acquisition loop needs.
type Capturer interface {
	CaptureWaveform(ctx context.Context, source string) (*waveform.Record, error)
}

type Acquirer struct {
	scope     Capturer
	publisher publish.Publisher
	interval  time.Duration
	sources   []string
	log       *logrus.Logger
}

func NewAcquirer(scope Capturer, publisher publish.Publisher, interval time.Duration, sources []string, log *logrus.Logger) *Acquirer {
	return &Acquirer{
		scope:     scope,
		publisher: publisher,
		interval:  interval,
		sources:   sources,
		log:       log,
	}
}

// Run polls until the context is canceled. A failed source does not stop
// the loop; the error is logged and the next source proceeds.
func (a *Acquirer) Run(ctx context.Context) {
	a.log.Infof("acquisition loop started: every %v from %v", a.interval, a.sources)

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.log.Info("acquisition loop stopped")
			return
		case <-ticker.C:
			a.pollOnce(ctx)
		}
	}
}

func (a *Acquirer) pollOnce(ctx context.Context) {
	captures := make([]*publish.Capture, 0, len(a.sources))
	for _, source := range a.sources {
		rec, err := a.scope.CaptureWaveform(ctx, source)
		if err != nil {
			a.log.Errorf("capture from %s failed: %v", source, err)
			continue
		}
		captures = append(captures, publish.NewCapture(rec))
	}
	if len(captures) == 0 {
		return
	}

	// One tick's captures go out as a batch when the sink supports it.
	if bp, ok := a.publisher.(publish.BatchPublisher); ok {
		if err := bp.PublishBatch(ctx, captures); err != nil {
			a.log.Errorf("publishing %d captures: %v", len(captures), err)
		}
		return
	}
	for _, c := range captures {
		if err := a.publisher.Publish(ctx, c); err != nil {
			a.log.Errorf("publishing capture %s: %v", c.Record.CaptureID, err)
		}
	}
}
