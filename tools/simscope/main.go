// simscope is a simulated Keysight oscilloscope for development without
// hardware: it answers *IDN?, the setup queries scoped issues on connect,
// :SYSTem:ERRor?, and serves a synthetic sine wave for :WAVeform:DATA?.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"math"
	"net"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/matteovidali/Keysight-Scope-Tools/pkg/scpi"
)

type simScope struct {
	mu       sync.Mutex
	settings map[string]string
	errQueue []string
	points   int
	log      *logrus.Logger
}

func newSimScope(points int, log *logrus.Logger) *simScope {
	s := &simScope{
		settings: map[string]string{
			"*IDN": "KEYSIGHT TECHNOLOGIES,MSO-X 3104T,MY00012345,07.50.2021",

			":TRIGGER:MODE":            "EDGE",
			":TRIGGER:SWEEP":           "AUTO",
			":TRIGGER:HOLDOFF":         "+40.0E-09",
			":TRIGGER:HOLDOFF:MINIMUM": "+40.0E-09",
			":TRIGGER:HOLDOFF:MAXIMUM": "+10.0E+00",
			":TRIGGER:HOLDOFF:RANDOM":  "0",
			":TRIGGER:NREJECT":         "0",
			":TRIGGER:HFREJECT":        "0",
			":TRIGGER:EDGE:SOURCE":     "CHAN1",
			":TRIGGER:EDGE:LEVEL":      "+0.0E+00",
			":TRIGGER:EDGE:COUPLING":   "DC",
			":TRIGGER:EDGE:SLOPE":      "POS",
			":TRIGGER:EDGE:REJECT":     "OFF",

			":TIMEBASE:MODE":               "MAIN",
			":TIMEBASE:POSITION":           "+0.0E+00",
			":TIMEBASE:RANGE":              "+2.0E-03",
			":TIMEBASE:REFCLOCK":           "0",
			":TIMEBASE:REFERENCE":          "CENT",
			":TIMEBASE:REFERENCE:LOCATION": "+0.5E+00",
			":TIMEBASE:SCALE":              "+2.0E-04",
			":TIMEBASE:VERNIER":            "0",
			":TIMEBASE:WINDOW:POSITION":    "+0.0E+00",
			":TIMEBASE:WINDOW:RANGE":       "+2.0E-04",
			":TIMEBASE:WINDOW:SCALE":       "+2.0E-05",

			":WAVEFORM:XINCREMENT": "+2.0E-07",
			":WAVEFORM:XORIGIN":    "-1.0E-03",
			":WAVEFORM:YINCREMENT": "+8.0E-03",
			":WAVEFORM:YORIGIN":    "+0.0E+00",
			":WAVEFORM:YREFERENCE": "+1.28E+02",
		},
		points: points,
		log:    log,
	}

	for ch := 1; ch <= 4; ch++ {
		p := fmt.Sprintf(":CHANNEL%d:", ch)
		for k, v := range map[string]string{
			"BWLIMIT": "0", "COUPLING": "DC", "DISPLAY": "1", "IMPEDANCE": "ONEM",
			"INVERT": "0", "LABEL": fmt.Sprintf(`"CHAN %d"`, ch), "OFFSET": "+0.0E+00",
			"PROBE": "+10E+00", "PROTECTION": "0", "RANGE": "+8.0E+00",
			"SCALE": "+1.0E+00", "UNITS": "VOLT", "VERNIER": "0",
		} {
			s.settings[p+k] = v
		}
	}
	return s
}

func (s *simScope) serve(conn net.Conn) {
	defer conn.Close()
	s.log.Infof("client connected: %s", conn.RemoteAddr())

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if resp := s.handle(line); resp != nil {
			conn.Write(append(resp, '\n'))
		}
	}
	s.log.Infof("client disconnected: %s", conn.RemoteAddr())
}

func (s *simScope) handle(line string) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	upper := strings.ToUpper(line)
	s.log.Debugf("<- %q", line)

	if strings.HasSuffix(upper, "?") {
		key := strings.TrimSuffix(upper, "?")
		switch key {
		case ":SYSTEM:ERROR":
			if len(s.errQueue) > 0 {
				e := s.errQueue[0]
				s.errQueue = s.errQueue[1:]
				return []byte(e)
			}
			return []byte(`+0,"No error"`)
		case ":WAVEFORM:DATA":
			return scpi.EncodeBlock(s.sine())
		}
		if v, ok := s.settings[key]; ok {
			return []byte(v)
		}
		s.errQueue = append(s.errQueue, `-113,"Undefined header"`)
		return []byte("") // queries on unknown headers still answer
	}

	// Setup command: store the value under the header.
	idx := strings.IndexByte(upper, ' ')
	if idx < 0 {
		// Commands like :AUTOSCALE or :DIGITIZE take no argument.
		return nil
	}
	key := upper[:idx]
	switch {
	case key == ":DIGITIZE":
	case strings.HasPrefix(key, ":WAVEFORM:"):
	default:
		if _, ok := s.settings[key]; ok {
			s.settings[key] = strings.TrimSpace(upper[idx+1:])
		} else {
			s.errQueue = append(s.errQueue, `-113,"Undefined header"`)
		}
	}
	return nil
}

func (s *simScope) sine() []byte {
	out := make([]byte, s.points)
	for i := range out {
		out[i] = byte(128 + 100*math.Sin(2*math.Pi*float64(i)/256))
	}
	return out
}

func main() {
	addr := flag.String("addr", ":5025", "listen address")
	points := flag.Int("points", 10240, "samples served per waveform query")
	debug := flag.Bool("debug", false, "log every command")
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if *debug {
		log.SetLevel(logrus.DebugLevel)
	}

	sim := newSimScope(*points, log)

	l, err := net.Listen("tcp", *addr)
	if err != nil {
		log.Fatalf("listen: %v", err)
	}
	log.Infof("simulated scope listening on %s", *addr)

	for {
		conn, err := l.Accept()
		if err != nil {
			log.Errorf("accept: %v", err)
			continue
		}
		go sim.serve(conn)
	}
}
