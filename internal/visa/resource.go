// Package visa implements the small slice of VISA this project needs:
// TCPIP resource strings and serialized request/response sessions over a
// raw SCPI socket.
package visa

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Default port instruments listen on for raw SCPI when the resource is given
// in INSTR form without an explicit port.
const DefaultSCPIPort = 5025

// Class distinguishes the supported VISA resource classes.
type Class string

const (
	ClassSocket Class = "SOCKET"
	ClassInstr  Class = "INSTR"
)

// Resource is a parsed TCPIP VISA resource string, e.g.
// "TCPIP0::192.168.0.17::5025::SOCKET" or "TCPIP::scope.lab.local::INSTR".
type Resource struct {
	Board int
	Host  string
	Port  int
	Class Class
}

// ParseResource parses a VISA resource string. Only the TCPIP interface is
// supported; USB/GPIB/ASRL resources parse far enough to produce a precise
// rejection.
func ParseResource(s string) (Resource, error) {
	parts := strings.Split(strings.TrimSpace(s), "::")
	if len(parts) < 2 {
		return Resource{}, fmt.Errorf("malformed resource string: %q", s)
	}

	iface := strings.ToUpper(parts[0])
	switch {
	case strings.HasPrefix(iface, "TCPIP"):
	case strings.HasPrefix(iface, "USB"), strings.HasPrefix(iface, "GPIB"), strings.HasPrefix(iface, "ASRL"):
		return Resource{}, fmt.Errorf("unsupported resource interface %q: only TCPIP resources can be opened", parts[0])
	default:
		return Resource{}, fmt.Errorf("unknown resource interface %q", parts[0])
	}

	r := Resource{Port: DefaultSCPIPort, Class: ClassInstr}
	if spec := iface[len("TCPIP"):]; spec != "" {
		board, err := strconv.Atoi(spec)
		if err != nil {
			return Resource{}, fmt.Errorf("malformed board number in %q", parts[0])
		}
		r.Board = board
	}

	// Strip a trailing class name if present.
	last := strings.ToUpper(parts[len(parts)-1])
	body := parts[1:]
	switch Class(last) {
	case ClassSocket, ClassInstr:
		r.Class = Class(last)
		body = parts[1 : len(parts)-1]
	}

	switch len(body) {
	case 1:
		r.Host = body[0]
	case 2:
		port, err := strconv.Atoi(body[1])
		if err != nil || port <= 0 || port > 65535 {
			return Resource{}, fmt.Errorf("malformed port %q in resource %q", body[1], s)
		}
		r.Host = body[0]
		r.Port = port
	default:
		return Resource{}, fmt.Errorf("malformed resource string: %q", s)
	}

	if r.Host == "" {
		return Resource{}, fmt.Errorf("resource %q has no host", s)
	}
	if r.Class == ClassSocket && len(body) != 2 {
		return Resource{}, fmt.Errorf("SOCKET resource %q needs an explicit port", s)
	}
	return r, nil
}

// String renders the resource back into VISA form.
func (r Resource) String() string {
	iface := "TCPIP"
	if r.Board != 0 {
		iface += strconv.Itoa(r.Board)
	}
	if r.Class == ClassSocket {
		return fmt.Sprintf("%s::%s::%d::SOCKET", iface, r.Host, r.Port)
	}
	if r.Port != DefaultSCPIPort {
		return fmt.Sprintf("%s::%s::%d::INSTR", iface, r.Host, r.Port)
	}
	return fmt.Sprintf("%s::%s::INSTR", iface, r.Host)
}

// Addr returns the dialable host:port for the resource.
func (r Resource) Addr() string {
	return net.JoinHostPort(r.Host, strconv.Itoa(r.Port))
}
