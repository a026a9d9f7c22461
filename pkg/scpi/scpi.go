// Package scpi implements the pieces of IEEE 488.2 / SCPI that Keysight
// InfiniiVision-class instruments speak over a raw socket: query formatting,
// the :SYSTem:ERRor? response grammar, identification strings, and the
// definite-length binary block used for waveform transfers.
package scpi

import (
	"fmt"
	"strconv"
	"strings"
)

// Identity is a parsed *IDN? response.
type Identity struct {
	Manufacturer string `json:"manufacturer"`
	Model        string `json:"model"`
	Serial       string `json:"serial"`
	Firmware     string `json:"firmware"`
}

func (id Identity) String() string {
	return fmt.Sprintf("%s %s (S/N %s, FW %s)", id.Manufacturer, id.Model, id.Serial, id.Firmware)
}

// ParseIdentity parses a *IDN? response of the form
// "KEYSIGHT TECHNOLOGIES,MSO-X 3104T,MY12345678,07.50.2021".
func ParseIdentity(resp string) (Identity, error) {
	fields := strings.Split(strings.TrimSpace(resp), ",")
	if len(fields) != 4 {
		return Identity{}, fmt.Errorf("identification response has %d fields, want 4: %q", len(fields), resp)
	}
	return Identity{
		Manufacturer: strings.TrimSpace(fields[0]),
		Model:        strings.TrimSpace(fields[1]),
		Serial:       strings.TrimSpace(fields[2]),
		Firmware:     strings.TrimSpace(fields[3]),
	}, nil
}

// InstrumentError is an error reported by the instrument's own error queue
// (:SYSTem:ERRor?), attributed to the command that provoked it.
type InstrumentError struct {
	Code    int
	Message string
	Command string
}

func (e *InstrumentError) Error() string {
	if e.Command != "" {
		return fmt.Sprintf("instrument error %d: %s (command %q)", e.Code, e.Message, e.Command)
	}
	return fmt.Sprintf("instrument error %d: %s", e.Code, e.Message)
}

// ParseSystemError parses a :SYSTem:ERRor? response such as
// `-113,"Undefined header"` or `+0,"No error"`.
func ParseSystemError(raw string) (code int, message string, err error) {
	raw = strings.TrimSpace(raw)
	idx := strings.Index(raw, ",")
	if idx < 0 {
		return 0, "", fmt.Errorf("malformed system error response: %q", raw)
	}
	code, err = strconv.Atoi(strings.TrimPrefix(raw[:idx], "+"))
	if err != nil {
		return 0, "", fmt.Errorf("malformed error code in %q: %w", raw, err)
	}
	message = strings.Trim(raw[idx+1:], `"`)
	return code, message, nil
}

// IsNoError reports whether a :SYSTem:ERRor? response indicates an empty
// error queue. The instrument answers `+0,"No error"` in that case.
func IsNoError(raw string) bool {
	return strings.HasPrefix(strings.TrimSpace(raw), "+0,")
}

// Query turns a command mnemonic into its query form, leaving strings that
// already carry a '?' untouched.
func Query(cmd string) string {
	if strings.HasSuffix(cmd, "?") {
		return cmd
	}
	return cmd + "?"
}

// IsQuery reports whether a raw SCPI string expects a response.
func IsQuery(cmd string) bool {
	return strings.Contains(cmd, "?")
}

// ParseBool parses an instrument boolean, which may come back as 0/1 or
// OFF/ON depending on the subsystem.
func ParseBool(s string) (bool, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "1", "ON":
		return true, nil
	case "0", "OFF":
		return false, nil
	}
	return false, fmt.Errorf("not an instrument boolean: %q", s)
}

// FormatBool renders a boolean the way setup commands expect it.
func FormatBool(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}

// ParseFloat parses an instrument real, which arrives in NR3 scientific
// notation (e.g. "+2.00000E-03").
func ParseFloat(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}

// ParseInt parses an instrument integer, tolerating NR3 notation for
// commands that report counts as reals.
func ParseInt(s string) (int, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(strings.TrimPrefix(s, "+")); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("not an instrument integer: %q", s)
	}
	return int(f), nil
}
