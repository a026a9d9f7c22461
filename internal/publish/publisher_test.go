package publish

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matteovidali/Keysight-Scope-Tools/internal/monitor"
	"github.com/matteovidali/Keysight-Scope-Tools/internal/waveform"
)

type fakeSink struct {
	name   string
	err    error
	got    []*Capture
	closed bool
}

func (s *fakeSink) Publish(ctx context.Context, c *Capture) error {
	if s.err != nil {
		return s.err
	}
	s.got = append(s.got, c)
	return nil
}
func (s *fakeSink) Name() string { return s.name }
func (s *fakeSink) Close() error {
	s.closed = true
	return nil
}

func testRecord() *waveform.Record {
	return &waveform.Record{
		CaptureID:  "11111111-2222-3333-4444-555555555555",
		Source:     "channel1",
		Acquired:   time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		XIncrement: 1e-6,
		YIncrement: 0.01,
		YReference: 128,
		Raw:        []byte{118, 128, 138},
	}
}

func TestNewCaptureMeasures(t *testing.T) {
	c := NewCapture(testRecord())

	assert.InDelta(t, -0.1, c.Measurements.Min, 1e-9)
	assert.InDelta(t, 0.1, c.Measurements.Max, 1e-9)
	assert.InDelta(t, 0.2, c.Measurements.PeakToPeak, 1e-9)
	assert.False(t, c.PublishedAt.IsZero())
}

func TestCaptureMarshal(t *testing.T) {
	c := NewCapture(testRecord())

	data, err := c.marshal()
	require.NoError(t, err)

	var decoded map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Contains(t, decoded, "record")
	assert.Contains(t, decoded, "measurements")
	assert.Contains(t, decoded, "published_at")

	var rec waveform.Record
	require.NoError(t, json.Unmarshal(decoded["record"], &rec))
	assert.Equal(t, "channel1", rec.Source)
	assert.Equal(t, []byte{118, 128, 138}, rec.Raw)
}

func TestMultiFansOut(t *testing.T) {
	a := &fakeSink{name: "a"}
	b := &fakeSink{name: "b"}
	m := NewMulti(a, b)

	c := NewCapture(testRecord())
	require.NoError(t, m.Publish(context.Background(), c))

	assert.Len(t, a.got, 1)
	assert.Len(t, b.got, 1)
}

func TestMultiContinuesPastFailingSink(t *testing.T) {
	boom := errors.New("sink down")
	a := &fakeSink{name: "a", err: boom}
	b := &fakeSink{name: "b"}
	m := NewMulti(a, b)

	err := m.Publish(context.Background(), NewCapture(testRecord()))
	assert.ErrorIs(t, err, boom)
	assert.Len(t, b.got, 1, "healthy sink still receives the capture")
}

func TestMultiCountsPublishErrors(t *testing.T) {
	boom := errors.New("sink down")
	s := &fakeSink{name: "flaky-sink", err: boom}

	// A single sink still goes through Multi, so its failures reach the
	// per-sink counter.
	m := NewMulti(s)

	before := testutil.ToFloat64(monitor.PublishErrors.WithLabelValues("flaky-sink"))
	assert.Error(t, m.Publish(context.Background(), NewCapture(testRecord())))
	after := testutil.ToFloat64(monitor.PublishErrors.WithLabelValues("flaky-sink"))
	assert.Equal(t, before+1, after)
}

type batchSink struct {
	fakeSink
	batches [][]*Capture
}

func (s *batchSink) PublishBatch(ctx context.Context, captures []*Capture) error {
	if s.err != nil {
		return s.err
	}
	s.batches = append(s.batches, captures)
	return nil
}

func (s *batchSink) GetStats(ctx context.Context) map[string]interface{} {
	return map[string]interface{}{"batches": len(s.batches)}
}

func TestMultiPublishBatch(t *testing.T) {
	batch := &batchSink{fakeSink: fakeSink{name: "batch"}}
	plain := &fakeSink{name: "plain"}
	m := NewMulti(batch, plain)

	captures := []*Capture{NewCapture(testRecord()), NewCapture(testRecord())}
	require.NoError(t, m.PublishBatch(context.Background(), captures))

	// The batch-capable sink gets one delivery, the plain sink one per capture.
	require.Len(t, batch.batches, 1)
	assert.Len(t, batch.batches[0], 2)
	assert.Len(t, plain.got, 2)
}

func TestMultiGetStats(t *testing.T) {
	batch := &batchSink{fakeSink: fakeSink{name: "batch"}}
	plain := &fakeSink{name: "plain"}
	m := NewMulti(batch, plain)

	require.NoError(t, m.PublishBatch(context.Background(), []*Capture{NewCapture(testRecord())}))

	stats := m.GetStats(context.Background())
	assert.Contains(t, stats, "batch")
	assert.NotContains(t, stats, "plain")
}

func TestMultiClose(t *testing.T) {
	a := &fakeSink{name: "a"}
	b := &fakeSink{name: "b"}
	m := NewMulti(a, b)

	require.NoError(t, m.Close())
	assert.True(t, a.closed)
	assert.True(t, b.closed)
}
