package scope

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"
	"unsafe"

	"github.com/google/uuid"

	"github.com/matteovidali/Keysight-Scope-Tools/internal/monitor"
	"github.com/matteovidali/Keysight-Scope-Tools/internal/waveform"
)

var nativeEndian binary.ByteOrder

func init() {
	buf := [2]byte{}
	*(*uint16)(unsafe.Pointer(&buf[0])) = uint16(0xABCD)

	switch buf {
	case [2]byte{0xCD, 0xAB}:
		nativeEndian = binary.LittleEndian
	case [2]byte{0xAB, 0xCD}:
		nativeEndian = binary.BigEndian
	default:
		panic("could not determine native endianness")
	}
}

// CaptureWaveform transfers one trace from the named source. The waveform
// subsystem is configured for raw BYTE records in host byte order, the
// preamble scaling factors are read, and the data block is fetched.
func (s *Scope) CaptureWaveform(ctx context.Context, source string) (*waveform.Record, error) {
	if err := validateOneOf("source", source, Channels); err != nil {
		return nil, err
	}
	s.ops.Lock()
	defer s.ops.Unlock()
	start := time.Now()

	byteorder := "MSBFirst"
	if nativeEndian == binary.LittleEndian {
		byteorder = "LSBFirst"
	}
	setup := []string{
		":WAVeform:POINts:MODE RAW",
		fmt.Sprintf(":WAVeform:POINts %d", s.points),
		":WAVeform:SOURce " + source,
		":WAVeform:FORMat BYTE",
		":WAVeform:BYTeorder " + byteorder,
	}
	for _, cmd := range setup {
		if err := s.command(ctx, cmd); err != nil {
			return nil, err
		}
	}

	rec := &waveform.Record{
		CaptureID: uuid.NewString(),
		Source:    source,
		Acquired:  time.Now().UTC(),
	}
	for _, pre := range []struct {
		dst   *float64
		query string
	}{
		{&rec.XIncrement, ":WAVeform:XINCrement"},
		{&rec.XOrigin, ":WAVeform:XORigin"},
		{&rec.YIncrement, ":WAVeform:YINCrement"},
		{&rec.YOrigin, ":WAVeform:YORigin"},
		{&rec.YReference, ":WAVeform:YREFerence"},
	} {
		v, err := s.queryFloat(ctx, pre.query)
		if err != nil {
			return nil, err
		}
		*pre.dst = v
	}

	data, err := s.sess.QueryBinary(ctx, ":WAVeform:DATA?")
	if err != nil {
		return nil, err
	}
	if err := s.drainErrors(ctx, ":WAVeform:DATA?"); err != nil {
		return nil, err
	}
	rec.Raw = data

	monitor.CapturesTotal.WithLabelValues(source).Inc()
	monitor.CaptureBytes.Add(float64(len(data)))
	monitor.CaptureDuration.Observe(time.Since(start).Seconds())
	s.log.Infof("captured %d points from %s in %v", len(data), source, time.Since(start).Round(time.Millisecond))
	return rec, nil
}
