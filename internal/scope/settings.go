package scope

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// Channels the instrument exposes. Channel names are used verbatim in SCPI
// command headers (":channel1:SCALe 3.00").
var Channels = []string{"channel1", "channel2", "channel3", "channel4"}

// Allowed values for edge trigger setup, matching the instrument's menus.
var (
	EdgeSources   = []string{"channel1", "channel2", "channel3", "channel4", "external", "line", "wgen", "wgen1", "wgen2", "wmod"}
	EdgeCouplings = []string{"ac", "dc", "lfreject"}
	EdgeSlopes    = []string{"positive", "negative", "either", "alternate"}
	EdgeRejects   = []string{"off", "lfreject", "hfreject"}
)

// TriggerSettings is a snapshot of the trigger subsystem.
type TriggerSettings struct {
	Mode          string `json:"mode"`
	Sweep         string `json:"sweep"`
	Holdoff       string `json:"holdoff"`
	HoldoffMin    string `json:"holdoff_min"`
	HoldoffMax    string `json:"holdoff_max"`
	HoldoffRandom string `json:"holdoff_random"`
	NoiseReject   string `json:"noise_reject"`
	HFReject      string `json:"hf_reject"`
	EdgeSource    string `json:"edge_source"`
	EdgeLevel     string `json:"edge_level"`
	EdgeCoupling  string `json:"edge_coupling"`
	EdgeSlope     string `json:"edge_slope"`
	EdgeReject    string `json:"edge_reject"`
}

// ChannelSettings is a snapshot of one analog channel.
type ChannelSettings struct {
	BandwidthLimit string `json:"bandwidth_limit"`
	Coupling       string `json:"coupling"`
	Display        string `json:"display"`
	Impedance      string `json:"impedance"`
	Invert         string `json:"invert"`
	Label          string `json:"label"`
	Offset         string `json:"offset"`
	Probe          string `json:"probe"`
	Protection     string `json:"protection"`
	Range          string `json:"range"`
	Scale          string `json:"scale"`
	Units          string `json:"units"`
	Vernier        string `json:"vernier"`
}

// TimebaseSettings is a snapshot of the horizontal subsystem.
type TimebaseSettings struct {
	Mode              string `json:"mode"`
	Position          string `json:"position"`
	Range             string `json:"range"`
	RefClock          string `json:"ref_clock"`
	Reference         string `json:"reference"`
	ReferenceLocation string `json:"reference_location"`
	Scale             string `json:"scale"`
	Vernier           string `json:"vernier"`
	WindowPosition    string `json:"window_position"`
	WindowRange       string `json:"window_range"`
	WindowScale       string `json:"window_scale"`
}

// ValidationError reports a setup value outside the instrument's menu.
type ValidationError struct {
	Field   string
	Value   string
	Allowed []string
}

func (e *ValidationError) Error() string {
	if len(e.Allowed) == 0 {
		return fmt.Sprintf("invalid %s value %q", e.Field, e.Value)
	}
	return fmt.Sprintf("invalid %s value %q, must be one of %s", e.Field, e.Value, strings.Join(e.Allowed, ", "))
}

func validateOneOf(field, value string, allowed []string) error {
	for _, a := range allowed {
		if strings.EqualFold(value, a) {
			return nil
		}
	}
	return &ValidationError{Field: field, Value: value, Allowed: allowed}
}

// validateVertical accepts a number with an optional V or mV suffix, the
// form the SCALe and OFFSet commands take.
func validateVertical(field, value string) error {
	v := strings.TrimSpace(value)
	upper := strings.ToUpper(v)
	switch {
	case strings.HasSuffix(upper, "MV"):
		v = v[:len(v)-2]
	case strings.HasSuffix(upper, "V"):
		v = v[:len(v)-1]
	}
	if _, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err != nil {
		return &ValidationError{Field: field, Value: value}
	}
	return nil
}

func (s *Scope) readTriggerSettings(ctx context.Context) (TriggerSettings, error) {
	var t TriggerSettings
	for _, q := range []struct {
		dst   *string
		query string
	}{
		{&t.Mode, ":TRIGger:MODE"},
		{&t.Sweep, ":TRIGger:SWEep"},
		{&t.Holdoff, ":TRIGger:HOLDoff"},
		{&t.HoldoffMin, ":TRIGger:HOLDoff:MINimum"},
		{&t.HoldoffMax, ":TRIGger:HOLDoff:MAXimum"},
		{&t.HoldoffRandom, ":TRIGger:HOLDoff:RANDom"},
		{&t.NoiseReject, ":TRIGger:NREJect"},
		{&t.HFReject, ":TRIGger:HFReject"},
		{&t.EdgeSource, ":TRIGger:EDGE:SOURce"},
		{&t.EdgeLevel, ":TRIGger:EDGE:LEVel"},
		{&t.EdgeCoupling, ":TRIGger:EDGE:COUPling"},
		{&t.EdgeSlope, ":TRIGger:EDGE:SLOPe"},
		{&t.EdgeReject, ":TRIGger:EDGE:REJect"},
	} {
		v, err := s.query(ctx, q.query)
		if err != nil {
			return t, err
		}
		*q.dst = v
	}
	return t, nil
}

func (s *Scope) readChannelSettings(ctx context.Context, channel string) (ChannelSettings, error) {
	var c ChannelSettings
	for _, q := range []struct {
		dst    *string
		suffix string
	}{
		{&c.BandwidthLimit, "BWLimit"},
		{&c.Coupling, "COUPling"},
		{&c.Display, "DISPlay"},
		{&c.Impedance, "IMPedance"},
		{&c.Invert, "INVert"},
		{&c.Label, "LABel"},
		{&c.Offset, "OFFSet"},
		{&c.Probe, "PROBe"},
		{&c.Protection, "PROTection"},
		{&c.Range, "RANGe"},
		{&c.Scale, "SCALe"},
		{&c.Units, "UNITs"},
		{&c.Vernier, "VERNier"},
	} {
		v, err := s.query(ctx, fmt.Sprintf(":%s:%s", channel, q.suffix))
		if err != nil {
			return c, err
		}
		*q.dst = v
	}
	return c, nil
}

func (s *Scope) readTimebaseSettings(ctx context.Context) (TimebaseSettings, error) {
	var t TimebaseSettings
	for _, q := range []struct {
		dst   *string
		query string
	}{
		{&t.Mode, ":TIMebase:MODE"},
		{&t.Position, ":TIMebase:POSition"},
		{&t.Range, ":TIMebase:RANGe"},
		{&t.RefClock, ":TIMebase:REFClock"},
		{&t.Reference, ":TIMebase:REFerence"},
		{&t.ReferenceLocation, ":TIMebase:REFerence:LOCation"},
		{&t.Scale, ":TIMebase:SCALe"},
		{&t.Vernier, ":TIMebase:VERNier"},
		{&t.WindowPosition, ":TIMebase:WINDow:POSition"},
		{&t.WindowRange, ":TIMebase:WINDow:RANGe"},
		{&t.WindowScale, ":TIMebase:WINDow:SCALe"},
	} {
		v, err := s.query(ctx, q.query)
		if err != nil {
			return t, err
		}
		*q.dst = v
	}
	return t, nil
}
