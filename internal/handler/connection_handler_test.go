package handler

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matteovidali/Keysight-Scope-Tools/internal/publish"
	"github.com/matteovidali/Keysight-Scope-Tools/internal/waveform"
	"github.com/matteovidali/Keysight-Scope-Tools/pkg/scpi"
)

type stubDriver struct {
	captureErr error
	captured   []string
	forced     int
	autoscaled int
	digitized  [][]string
	rawCmds    []string
}

func (d *stubDriver) Identity() scpi.Identity {
	return scpi.Identity{Manufacturer: "KEYSIGHT", Model: "MSO-X 3104T", Serial: "MY1", Firmware: "07.50"}
}

func (d *stubDriver) CaptureWaveform(ctx context.Context, source string) (*waveform.Record, error) {
	if d.captureErr != nil {
		return nil, d.captureErr
	}
	d.captured = append(d.captured, source)
	return &waveform.Record{
		CaptureID:  "cap-1",
		Source:     source,
		XIncrement: 1e-6,
		YIncrement: 0.01,
		YReference: 128,
		Raw:        []byte{127, 128, 129},
	}, nil
}

func (d *stubDriver) ForceTrigger(ctx context.Context) error { d.forced++; return nil }
func (d *stubDriver) Autoscale(ctx context.Context) error    { d.autoscaled++; return nil }

func (d *stubDriver) Digitize(ctx context.Context, sources ...string) error {
	d.digitized = append(d.digitized, sources)
	return nil
}

func (d *stubDriver) Raw(ctx context.Context, cmd string) (string, error) {
	d.rawCmds = append(d.rawCmds, cmd)
	if scpi.IsQuery(cmd) {
		return "EDGE", nil
	}
	return "", nil
}

type memPublisher struct {
	captures []*publish.Capture
}

func (p *memPublisher) Publish(ctx context.Context, c *publish.Capture) error {
	p.captures = append(p.captures, c)
	return nil
}
func (p *memPublisher) Name() string { return "mem" }
func (p *memPublisher) Close() error { return nil }

type statsPublisher struct {
	memPublisher
}

func (p *statsPublisher) GetStats(ctx context.Context) map[string]interface{} {
	return map[string]interface{}{"mem": map[string]interface{}{"published": len(p.captures)}}
}

type session struct {
	conn   net.Conn
	reader *bufio.Reader
}

func startHandler(t *testing.T, driver Driver, pub publish.Publisher) *session {
	t.Helper()

	client, server := net.Pipe()
	t.Cleanup(func() { client.Close() })

	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	h := NewConnectionHandler(server, driver, pub, log, time.Second, time.Second)
	go h.Handle()

	return &session{conn: client, reader: bufio.NewReader(client)}
}

func (s *session) roundTrip(t *testing.T, cmd string) string {
	t.Helper()
	_, err := fmt.Fprintf(s.conn, "%s\n", cmd)
	require.NoError(t, err)
	resp, err := s.reader.ReadString('\n')
	require.NoError(t, err)
	return strings.TrimSpace(resp)
}

func TestHandlerIdn(t *testing.T) {
	s := startHandler(t, &stubDriver{}, nil)
	resp := s.roundTrip(t, "IDN")
	assert.Equal(t, "OK KEYSIGHT MSO-X 3104T (S/N MY1, FW 07.50)", resp)
}

func TestHandlerCapturePublishes(t *testing.T) {
	d := &stubDriver{}
	p := &memPublisher{}
	s := startHandler(t, d, p)

	resp := s.roundTrip(t, "CAPTURE channel2")
	assert.Equal(t, "OK cap-1 3 points", resp)
	assert.Equal(t, []string{"channel2"}, d.captured)

	require.Len(t, p.captures, 1)
	assert.Equal(t, "channel2", p.captures[0].Record.Source)
}

func TestHandlerCaptureErrors(t *testing.T) {
	d := &stubDriver{captureErr: fmt.Errorf("no such channel")}
	s := startHandler(t, d, nil)

	resp := s.roundTrip(t, "CAPTURE channel9")
	assert.Equal(t, "ERR no such channel", resp)

	resp = s.roundTrip(t, "CAPTURE")
	assert.True(t, strings.HasPrefix(resp, "ERR"), resp)
}

func TestHandlerMeasure(t *testing.T) {
	s := startHandler(t, &stubDriver{}, nil)

	resp := s.roundTrip(t, "MEASURE channel1")
	assert.True(t, strings.HasPrefix(resp, "OK {"), resp)
	assert.Contains(t, resp, `"peak_to_peak"`)
}

func TestHandlerTriggerAndAutoscale(t *testing.T) {
	d := &stubDriver{}
	s := startHandler(t, d, nil)

	assert.Equal(t, "OK", s.roundTrip(t, "TRIGGER FORCE"))
	assert.Equal(t, 1, d.forced)

	resp := s.roundTrip(t, "TRIGGER SOFTLY")
	assert.True(t, strings.HasPrefix(resp, "ERR"), resp)

	assert.Equal(t, "OK", s.roundTrip(t, "AUTOSCALE"))
	assert.Equal(t, 1, d.autoscaled)
}

func TestHandlerDigitize(t *testing.T) {
	d := &stubDriver{}
	s := startHandler(t, d, nil)

	assert.Equal(t, "OK", s.roundTrip(t, "DIGITIZE"))
	assert.Equal(t, "OK", s.roundTrip(t, "DIGITIZE channel1 channel3"))
	require.Len(t, d.digitized, 2)
	assert.Empty(t, d.digitized[0])
	assert.Equal(t, []string{"channel1", "channel3"}, d.digitized[1])
}

func TestHandlerRaw(t *testing.T) {
	d := &stubDriver{}
	s := startHandler(t, d, nil)

	assert.Equal(t, "OK EDGE", s.roundTrip(t, "RAW :TRIGger:MODE?"))
	assert.Equal(t, "OK", s.roundTrip(t, "RAW :TRIGger:MODE EDGE"))
	assert.Equal(t, []string{":TRIGger:MODE?", ":TRIGger:MODE EDGE"}, d.rawCmds)
}

func TestHandlerStats(t *testing.T) {
	// Without a stats-reporting publisher the response is an empty object.
	s := startHandler(t, &stubDriver{}, &memPublisher{})
	assert.Equal(t, "OK {}", s.roundTrip(t, "STATS"))

	p := &statsPublisher{}
	s = startHandler(t, &stubDriver{}, p)
	s.roundTrip(t, "CAPTURE channel1")

	resp := s.roundTrip(t, "STATS")
	assert.True(t, strings.HasPrefix(resp, "OK {"), resp)
	assert.Contains(t, resp, `"published":1`)
}

func TestHandlerUnknownAndQuit(t *testing.T) {
	s := startHandler(t, &stubDriver{}, nil)

	resp := s.roundTrip(t, "FROBNICATE")
	assert.Equal(t, "ERR unknown command: FROBNICATE", resp)

	assert.Equal(t, "OK bye", s.roundTrip(t, "QUIT"))

	// The handler closes its side after QUIT.
	s.conn.SetReadDeadline(time.Now().Add(time.Second))
	_, err := s.reader.ReadString('\n')
	assert.Error(t, err)
}
