// Package scope wraps a VISA session with typed operations for Keysight
// InfiniiVision-class oscilloscopes: trigger, channel and timebase setup,
// and waveform acquisition. Every command is followed by a drain of the
// instrument's error queue so failures surface at the call that caused them.
package scope

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/matteovidali/Keysight-Scope-Tools/internal/monitor"
	"github.com/matteovidali/Keysight-Scope-Tools/internal/visa"
	"github.com/matteovidali/Keysight-Scope-Tools/pkg/scpi"
)

// DefaultCapturePoints is the record length requested for waveform
// transfers when the configuration does not override it.
const DefaultCapturePoints = 10240

// Options tune scope behavior beyond the session itself.
type Options struct {
	// CapturePoints is the number of samples requested per waveform
	// transfer. Zero means DefaultCapturePoints.
	CapturePoints int
}

// Scope is a connected oscilloscope. Settings snapshots are taken on
// connect and refreshed after each setup call, so change-only writes can
// skip commands the instrument is already configured for.
//
// The instrument is a single serial channel: every operation is a sequence
// of commands, queries and error-queue checks that must not interleave with
// another caller's. ops is held for the full duration of each exported
// operation, so gateway clients and the acquisition loop can share one
// Scope.
type Scope struct {
	sess   *visa.Session
	log    *logrus.Entry
	id     scpi.Identity
	points int

	ops sync.Mutex

	mu       sync.Mutex
	trigger  TriggerSettings
	channels map[string]ChannelSettings
	timebase TimebaseSettings
}

// Connect identifies the instrument on an open session and snapshots its
// trigger, channel and timebase configuration.
func Connect(ctx context.Context, sess *visa.Session, opts Options, log *logrus.Logger) (*Scope, error) {
	s := &Scope{
		sess:     sess,
		log:      log.WithField("resource", sess.Resource().String()),
		points:   opts.CapturePoints,
		channels: make(map[string]ChannelSettings, len(Channels)),
	}
	if s.points <= 0 {
		s.points = DefaultCapturePoints
	}

	idn, err := s.query(ctx, "*IDN")
	if err != nil {
		return nil, fmt.Errorf("identifying instrument: %w", err)
	}
	if s.id, err = scpi.ParseIdentity(idn); err != nil {
		return nil, err
	}
	s.log = s.log.WithField("model", s.id.Model)
	s.log.Infof("connected to %s", s.id)

	if s.trigger, err = s.readTriggerSettings(ctx); err != nil {
		return nil, fmt.Errorf("reading trigger setup: %w", err)
	}
	for _, ch := range Channels {
		cs, err := s.readChannelSettings(ctx, ch)
		if err != nil {
			return nil, fmt.Errorf("reading %s setup: %w", ch, err)
		}
		s.channels[ch] = cs
	}
	if s.timebase, err = s.readTimebaseSettings(ctx); err != nil {
		return nil, fmt.Errorf("reading timebase setup: %w", err)
	}
	return s, nil
}

// Identity returns the parsed *IDN? response.
func (s *Scope) Identity() scpi.Identity { return s.id }

// TriggerSettings returns the cached trigger snapshot.
func (s *Scope) TriggerSettings() TriggerSettings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.trigger
}

// ChannelSettings returns the cached snapshot for one channel.
func (s *Scope) ChannelSettings(channel string) (ChannelSettings, error) {
	channel = strings.ToLower(channel)
	s.mu.Lock()
	defer s.mu.Unlock()
	cs, ok := s.channels[channel]
	if !ok {
		return ChannelSettings{}, &ValidationError{Field: "channel", Value: channel, Allowed: Channels}
	}
	return cs, nil
}

// TimebaseSettings returns the cached timebase snapshot.
func (s *Scope) TimebaseSettings() TimebaseSettings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timebase
}

// ForceTrigger forces an immediate trigger event.
func (s *Scope) ForceTrigger(ctx context.Context) error {
	s.ops.Lock()
	defer s.ops.Unlock()
	s.log.Debug("forcing trigger")
	return s.command(ctx, ":TRIGger:FORCe")
}

// Autoscale runs the instrument's autoscale routine.
func (s *Scope) Autoscale(ctx context.Context) error {
	s.ops.Lock()
	defer s.ops.Unlock()
	s.log.Debug("autoscale")
	return s.command(ctx, ":AUToscale")
}

// Digitize starts an acquisition on the given sources, or on the current
// configuration when none are named.
func (s *Scope) Digitize(ctx context.Context, sources ...string) error {
	for _, src := range sources {
		if err := validateOneOf("source", src, Channels); err != nil {
			return err
		}
	}
	s.ops.Lock()
	defer s.ops.Unlock()
	if len(sources) == 0 {
		return s.command(ctx, ":DIGitize")
	}
	return s.command(ctx, ":DIGitize "+strings.Join(sources, ","))
}

// EdgeTrigger holds the edge trigger parameters a setup call may change.
// Empty fields leave the instrument's current value alone.
type EdgeTrigger struct {
	Source   string
	Level    string
	Coupling string
	Slope    string
	Reject   string
}

// SetupTriggerEdge switches the instrument to edge triggering and applies
// the non-empty fields, skipping values the instrument already has.
func (s *Scope) SetupTriggerEdge(ctx context.Context, t EdgeTrigger) error {
	s.ops.Lock()
	defer s.ops.Unlock()

	s.mu.Lock()
	cur := s.trigger
	s.mu.Unlock()

	if !strings.EqualFold(cur.Mode, "EDGE") {
		if err := s.command(ctx, ":TRIGger:MODE EDGE"); err != nil {
			return err
		}
	}

	if t.Source != "" && !strings.EqualFold(t.Source, cur.EdgeSource) {
		if err := validateOneOf("trigger source", t.Source, EdgeSources); err != nil {
			return err
		}
		if err := s.command(ctx, ":TRIGger:EDGE:SOURce "+t.Source); err != nil {
			return err
		}
	}
	if t.Level != "" && !strings.EqualFold(t.Level, cur.EdgeLevel) {
		if err := validateVertical("trigger level", t.Level); err != nil {
			return err
		}
		if err := s.command(ctx, ":TRIGger:EDGE:LEVel "+t.Level); err != nil {
			return err
		}
	}
	if t.Coupling != "" && !strings.EqualFold(t.Coupling, cur.EdgeCoupling) {
		if err := validateOneOf("trigger coupling", t.Coupling, EdgeCouplings); err != nil {
			return err
		}
		if err := s.command(ctx, ":TRIGger:EDGE:COUPling "+t.Coupling); err != nil {
			return err
		}
	}
	if t.Slope != "" && !strings.EqualFold(t.Slope, cur.EdgeSlope) {
		if err := validateOneOf("trigger slope", t.Slope, EdgeSlopes); err != nil {
			return err
		}
		if err := s.command(ctx, ":TRIGger:EDGE:SLOPe "+t.Slope); err != nil {
			return err
		}
	}
	if t.Reject != "" && !strings.EqualFold(t.Reject, cur.EdgeReject) {
		if err := validateOneOf("trigger reject", t.Reject, EdgeRejects); err != nil {
			return err
		}
		if err := s.command(ctx, ":TRIGger:EDGE:REJect "+t.Reject); err != nil {
			return err
		}
	}

	refreshed, err := s.readTriggerSettings(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.trigger = refreshed
	s.mu.Unlock()
	return nil
}

// ChannelSetup holds the vertical parameters a setup call may change.
type ChannelSetup struct {
	Scale  string
	Offset string
}

// SetupChannel applies vertical scale and offset to one channel. Values
// take an optional V or mV suffix.
func (s *Scope) SetupChannel(ctx context.Context, channel string, c ChannelSetup) error {
	channel = strings.ToLower(channel)
	s.ops.Lock()
	defer s.ops.Unlock()

	s.mu.Lock()
	cur, ok := s.channels[channel]
	s.mu.Unlock()
	if !ok {
		return &ValidationError{Field: "channel", Value: channel, Allowed: Channels}
	}

	if c.Scale != "" && !strings.EqualFold(c.Scale, cur.Scale) {
		if err := validateVertical("scale", c.Scale); err != nil {
			return err
		}
		if err := s.command(ctx, fmt.Sprintf(":%s:SCALe %s", channel, c.Scale)); err != nil {
			return err
		}
	}
	if c.Offset != "" && !strings.EqualFold(c.Offset, cur.Offset) {
		if err := validateVertical("offset", c.Offset); err != nil {
			return err
		}
		if err := s.command(ctx, fmt.Sprintf(":%s:OFFSet %s", channel, c.Offset)); err != nil {
			return err
		}
	}

	refreshed, err := s.readChannelSettings(ctx, channel)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.channels[channel] = refreshed
	s.mu.Unlock()
	return nil
}

// TimebaseSetup holds the horizontal parameters a setup call may change.
type TimebaseSetup struct {
	Scale    string
	Position string
}

// SetupTimebase applies horizontal scale and position.
func (s *Scope) SetupTimebase(ctx context.Context, t TimebaseSetup) error {
	s.ops.Lock()
	defer s.ops.Unlock()

	s.mu.Lock()
	cur := s.timebase
	s.mu.Unlock()

	if t.Scale != "" && !strings.EqualFold(t.Scale, cur.Scale) {
		if err := s.command(ctx, ":TIMebase:SCALe "+t.Scale); err != nil {
			return err
		}
	}
	if t.Position != "" && !strings.EqualFold(t.Position, cur.Position) {
		if err := s.command(ctx, ":TIMebase:POSition "+t.Position); err != nil {
			return err
		}
	}

	refreshed, err := s.readTimebaseSettings(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.timebase = refreshed
	s.mu.Unlock()
	return nil
}

// Raw sends an arbitrary SCPI string, returning the response if it was a
// query and an empty string otherwise.
func (s *Scope) Raw(ctx context.Context, cmd string) (string, error) {
	s.ops.Lock()
	defer s.ops.Unlock()
	if scpi.IsQuery(cmd) {
		return s.query(ctx, cmd)
	}
	return "", s.command(ctx, cmd)
}

// Close tears down the underlying session.
func (s *Scope) Close() error {
	return s.sess.Close()
}

// command writes one SCPI command and drains the instrument error queue.
func (s *Scope) command(ctx context.Context, cmd string) error {
	monitor.CommandsIssued.Inc()
	s.log.Debugf("command %q", cmd)
	if err := s.sess.Write(ctx, cmd); err != nil {
		return err
	}
	return s.drainErrors(ctx, cmd)
}

// query sends one SCPI query (the '?' is appended if missing) and drains
// the instrument error queue after reading the response.
func (s *Scope) query(ctx context.Context, q string) (string, error) {
	monitor.QueriesIssued.Inc()
	q = scpi.Query(q)
	resp, err := s.sess.Query(ctx, q)
	if err != nil {
		return "", err
	}
	if err := s.drainErrors(ctx, q); err != nil {
		return "", err
	}
	s.log.Debugf("query %q -> %q", q, resp)
	return strings.TrimSpace(resp), nil
}

// queryFloat runs a query and parses the NR3 response.
func (s *Scope) queryFloat(ctx context.Context, q string) (float64, error) {
	resp, err := s.query(ctx, q)
	if err != nil {
		return 0, err
	}
	f, err := scpi.ParseFloat(resp)
	if err != nil {
		return 0, fmt.Errorf("query %q: %w", q, err)
	}
	return f, nil
}

// drainErrors checks :SYSTem:ERRor? and turns the oldest queued error into
// an InstrumentError naming cmd.
func (s *Scope) drainErrors(ctx context.Context, cmd string) error {
	raw, err := s.sess.Query(ctx, ":SYSTem:ERRor?")
	if err != nil {
		return fmt.Errorf("checking error queue after %q: %w", cmd, err)
	}
	if strings.TrimSpace(raw) == "" {
		return fmt.Errorf("empty error queue response after %q", cmd)
	}
	if scpi.IsNoError(raw) {
		return nil
	}
	code, msg, err := scpi.ParseSystemError(raw)
	if err != nil {
		return fmt.Errorf("after %q: %w", cmd, err)
	}
	monitor.InstrumentErrors.Inc()
	return &scpi.InstrumentError{Code: code, Message: msg, Command: cmd}
}
