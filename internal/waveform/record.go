// Package waveform holds captured trace data and the scaling needed to turn
// raw digitizer codes back into volts and seconds.
package waveform

import (
	"fmt"
	"time"
)

// Record is one captured trace. Raw holds unsigned 8-bit sample codes as
// transferred in BYTE format; the preamble fields convert them to physical
// units.
type Record struct {
	CaptureID string    `json:"capture_id"`
	Source    string    `json:"source"`
	Acquired  time.Time `json:"acquired"`

	XIncrement float64 `json:"x_increment"`
	XOrigin    float64 `json:"x_origin"`
	YIncrement float64 `json:"y_increment"`
	YOrigin    float64 `json:"y_origin"`
	YReference float64 `json:"y_reference"`

	Raw []byte `json:"raw"`
}

// Points returns the sample count.
func (r *Record) Points() int { return len(r.Raw) }

// Duration returns the time span the record covers.
func (r *Record) Duration() time.Duration {
	return time.Duration(float64(len(r.Raw)) * r.XIncrement * float64(time.Second))
}

// Volts converts the raw codes to volts:
// v = (code - yreference) * yincrement + yorigin.
func (r *Record) Volts() []float64 {
	out := make([]float64, len(r.Raw))
	for i, b := range r.Raw {
		out[i] = (float64(b)-r.YReference)*r.YIncrement + r.YOrigin
	}
	return out
}

// Times returns the sample timestamps in seconds relative to the trigger:
// t = i*xincrement + xorigin.
func (r *Record) Times() []float64 {
	out := make([]float64, len(r.Raw))
	for i := range r.Raw {
		out[i] = float64(i)*r.XIncrement + r.XOrigin
	}
	return out
}

// Validate checks that a record can be converted to physical units.
func (r *Record) Validate() error {
	if len(r.Raw) == 0 {
		return fmt.Errorf("record %s has no samples", r.CaptureID)
	}
	if r.XIncrement <= 0 {
		return fmt.Errorf("record %s has non-positive x increment %g", r.CaptureID, r.XIncrement)
	}
	return nil
}
