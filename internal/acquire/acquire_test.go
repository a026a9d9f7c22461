package acquire

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matteovidali/Keysight-Scope-Tools/internal/publish"
	"github.com/matteovidali/Keysight-Scope-Tools/internal/waveform"
)

type stubCapturer struct {
	mu      sync.Mutex
	fail    map[string]bool
	sources []string
}

func (c *stubCapturer) CaptureWaveform(ctx context.Context, source string) (*waveform.Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail[source] {
		return nil, fmt.Errorf("capture failed")
	}
	c.sources = append(c.sources, source)
	return &waveform.Record{
		CaptureID:  fmt.Sprintf("cap-%d", len(c.sources)),
		Source:     source,
		XIncrement: 1e-6,
		Raw:        []byte{1, 2, 3},
	}, nil
}

func (c *stubCapturer) captured() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.sources...)
}

type memPublisher struct {
	mu       sync.Mutex
	captures []*publish.Capture
}

func (p *memPublisher) Publish(ctx context.Context, c *publish.Capture) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.captures = append(p.captures, c)
	return nil
}
func (p *memPublisher) Name() string { return "mem" }
func (p *memPublisher) Close() error { return nil }

func (p *memPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.captures)
}

type batchMemPublisher struct {
	memPublisher
	mu      sync.Mutex
	batches int
}

func (p *batchMemPublisher) PublishBatch(ctx context.Context, captures []*publish.Capture) error {
	p.mu.Lock()
	p.batches++
	p.mu.Unlock()
	for _, c := range captures {
		if err := p.Publish(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

func (p *batchMemPublisher) batchCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.batches
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func TestAcquirerPollsAllSources(t *testing.T) {
	inst := &stubCapturer{}
	pub := &memPublisher{}

	a := NewAcquirer(inst, pub, 10*time.Millisecond, []string{"channel1", "channel2"}, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		a.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return pub.count() >= 4 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	got := inst.captured()
	assert.Contains(t, got, "channel1")
	assert.Contains(t, got, "channel2")
}

func TestAcquirerBatchesPerTick(t *testing.T) {
	inst := &stubCapturer{}
	pub := &batchMemPublisher{}

	a := NewAcquirer(inst, pub, 10*time.Millisecond, []string{"channel1", "channel2"}, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		a.Run(ctx)
		close(done)
	}()

	// Both sources land in one batch per tick.
	require.Eventually(t, func() bool { return pub.batchCount() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	assert.Equal(t, 2*pub.batchCount(), pub.count())
}

func TestAcquirerContinuesPastFailures(t *testing.T) {
	inst := &stubCapturer{fail: map[string]bool{"channel1": true}}
	pub := &memPublisher{}

	a := NewAcquirer(inst, pub, 10*time.Millisecond, []string{"channel1", "channel2"}, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		a.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return pub.count() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	// Only the healthy source produced captures.
	for _, s := range inst.captured() {
		assert.Equal(t, "channel2", s)
	}
}
