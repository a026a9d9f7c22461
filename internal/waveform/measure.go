package waveform

import "math"

// Measurements are basic statistics over one record. Vertical values are
// in volts; Frequency is a mean-crossing estimate in hertz, zero when the
// record has no crossings or no time scaling.
type Measurements struct {
	Min        float64 `json:"min"`
	Max        float64 `json:"max"`
	PeakToPeak float64 `json:"peak_to_peak"`
	Mean       float64 `json:"mean"`
	RMS        float64 `json:"rms"`
	Frequency  float64 `json:"frequency"`
}

// Measure computes vertical statistics for a record. An empty record
// yields the zero value.
func Measure(r *Record) Measurements {
	volts := r.Volts()
	if len(volts) == 0 {
		return Measurements{}
	}

	m := Measurements{Min: volts[0], Max: volts[0]}
	var sum, sumSq float64
	for _, v := range volts {
		if v < m.Min {
			m.Min = v
		}
		if v > m.Max {
			m.Max = v
		}
		sum += v
		sumSq += v * v
	}
	n := float64(len(volts))
	m.PeakToPeak = m.Max - m.Min
	m.Mean = sum / n
	m.RMS = math.Sqrt(sumSq / n)

	// A full period crosses the mean twice.
	if len(volts) > 1 && r.XIncrement > 0 {
		crossings := 0
		above := volts[0] >= m.Mean
		for _, v := range volts[1:] {
			now := v >= m.Mean
			if now != above {
				crossings++
				above = now
			}
		}
		if crossings > 0 {
			span := float64(len(volts)-1) * r.XIncrement
			m.Frequency = float64(crossings) / (2 * span)
		}
	}
	return m
}
