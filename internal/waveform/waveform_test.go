package waveform

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rampRecord() *Record {
	// Codes 0..255: with yinc 1/255, yref 0, yorigin 0 this is a 0..1 V ramp.
	raw := make([]byte, 256)
	for i := range raw {
		raw[i] = byte(i)
	}
	return &Record{
		CaptureID:  "test-ramp",
		Source:     "channel1",
		Acquired:   time.Now(),
		XIncrement: 1e-6,
		XOrigin:    -128e-6,
		YIncrement: 1.0 / 255.0,
		Raw:        raw,
	}
}

func TestRecordConversion(t *testing.T) {
	rec := rampRecord()

	volts := rec.Volts()
	require.Len(t, volts, 256)
	assert.InDelta(t, 0.0, volts[0], 1e-12)
	assert.InDelta(t, 1.0, volts[255], 1e-12)

	times := rec.Times()
	assert.InDelta(t, -128e-6, times[0], 1e-15)
	assert.InDelta(t, -128e-6+255e-6, times[255], 1e-12)

	assert.Equal(t, 256, rec.Points())
	assert.Equal(t, 256*time.Microsecond, rec.Duration())
}

func TestRecordYReference(t *testing.T) {
	rec := &Record{
		Source:     "channel2",
		XIncrement: 1e-6,
		YIncrement: 0.01,
		YOrigin:    0.5,
		YReference: 128,
		Raw:        []byte{128, 228, 28},
	}

	volts := rec.Volts()
	assert.InDelta(t, 0.5, volts[0], 1e-12)
	assert.InDelta(t, 1.5, volts[1], 1e-12)
	assert.InDelta(t, -0.5, volts[2], 1e-12)
}

func TestMeasureRamp(t *testing.T) {
	m := Measure(rampRecord())

	assert.InDelta(t, 0.0, m.Min, 1e-12)
	assert.InDelta(t, 1.0, m.Max, 1e-12)
	assert.InDelta(t, 1.0, m.PeakToPeak, 1e-12)
	assert.InDelta(t, 0.5, m.Mean, 1e-3)
	// RMS of a uniform 0..1 ramp approaches 1/sqrt(3).
	assert.InDelta(t, 1/math.Sqrt(3), m.RMS, 1e-2)
}

func TestMeasureSine(t *testing.T) {
	raw := make([]byte, 1024)
	for i := range raw {
		raw[i] = byte(128 + 100*math.Sin(2*math.Pi*float64(i)/256))
	}
	rec := &Record{
		XIncrement: 1e-6,
		YIncrement: 0.01,
		YReference: 128,
		Raw:        raw,
	}

	m := Measure(rec)
	assert.InDelta(t, 0.0, m.Mean, 0.01)
	assert.InDelta(t, 2.0, m.PeakToPeak, 0.05)
	// Sine RMS is amplitude over sqrt(2).
	assert.InDelta(t, 1.0/math.Sqrt2, m.RMS, 0.02)
}

func TestMeasureFrequency(t *testing.T) {
	// Alternating extremes cross the mean at every sample, pinning the
	// estimate at the Nyquist rate 1/(2*dt).
	raw := make([]byte, 100)
	for i := range raw {
		if i%2 == 1 {
			raw[i] = 255
		}
	}
	m := Measure(&Record{XIncrement: 1e-6, YIncrement: 0.01, Raw: raw})
	assert.InDelta(t, 500000.0, m.Frequency, 1e-3)

	// A flat record has no crossings.
	m = Measure(&Record{XIncrement: 1e-6, YIncrement: 0.01, Raw: []byte{42, 42, 42, 42}})
	assert.Zero(t, m.Frequency)

	// Without time scaling there is no frequency.
	m = Measure(&Record{YIncrement: 0.01, Raw: raw})
	assert.Zero(t, m.Frequency)
}

func TestMeasureEmpty(t *testing.T) {
	assert.Equal(t, Measurements{}, Measure(&Record{}))
}

func TestValidate(t *testing.T) {
	assert.Error(t, (&Record{}).Validate())
	assert.Error(t, (&Record{Raw: []byte{1}}).Validate())
	assert.NoError(t, (&Record{Raw: []byte{1}, XIncrement: 1e-6}).Validate())
}
