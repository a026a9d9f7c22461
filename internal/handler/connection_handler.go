// Package handler serves one gateway client connection: a line-oriented
// command protocol that drives the instrument and reports results.
package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/matteovidali/Keysight-Scope-Tools/internal/monitor"
	"github.com/matteovidali/Keysight-Scope-Tools/internal/publish"
	"github.com/matteovidali/Keysight-Scope-Tools/internal/waveform"
	"github.com/matteovidali/Keysight-Scope-Tools/pkg/scpi"
)

// Driver is the slice of the scope the gateway exposes to remote clients.
type Driver interface {
	Identity() scpi.Identity
	CaptureWaveform(ctx context.Context, source string) (*waveform.Record, error)
	ForceTrigger(ctx context.Context) error
	Autoscale(ctx context.Context) error
	Digitize(ctx context.Context, sources ...string) error
	Raw(ctx context.Context, cmd string) (string, error)
}

type ConnectionHandler struct {
	conn         net.Conn
	clientID     string
	driver       Driver
	publisher    publish.Publisher
	log          *logrus.Logger
	readTimeout  time.Duration
	writeTimeout time.Duration
}

func NewConnectionHandler(
	conn net.Conn,
	driver Driver,
	publisher publish.Publisher,
	log *logrus.Logger,
	readTimeout time.Duration,
	writeTimeout time.Duration,
) *ConnectionHandler {
	return &ConnectionHandler{
		conn:         conn,
		clientID:     conn.RemoteAddr().String(),
		driver:       driver,
		publisher:    publisher,
		log:          log,
		readTimeout:  readTimeout,
		writeTimeout: writeTimeout,
	}
}

// Handle reads commands line by line until the client quits or the
// connection drops.
func (h *ConnectionHandler) Handle() {
	defer func() {
		h.conn.Close()
		monitor.ActiveConnections.Dec()
		h.log.Infof("client disconnected: %s", h.clientID)
	}()

	monitor.ActiveConnections.Inc()
	monitor.TotalConnections.Inc()
	h.log.Infof("client connected: %s", h.clientID)

	scanner := bufio.NewScanner(h.conn)
	ctx := context.Background()

	for {
		h.conn.SetReadDeadline(time.Now().Add(h.readTimeout))

		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
					h.log.Debugf("client idle timeout: %s", h.clientID)
					return
				}
				h.log.Debugf("client read error: %s: %v", h.clientID, err)
			}
			return
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.EqualFold(line, "QUIT") {
			h.respond("OK bye")
			return
		}
		h.dispatch(ctx, line)
	}
}

func (h *ConnectionHandler) dispatch(ctx context.Context, line string) {
	verb, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	h.log.Debugf("client %s: %q", h.clientID, line)

	switch strings.ToUpper(verb) {
	case "IDN":
		h.respond("OK " + h.driver.Identity().String())

	case "CAPTURE":
		if rest == "" {
			h.respond("ERR CAPTURE needs a source channel")
			return
		}
		rec, err := h.driver.CaptureWaveform(ctx, rest)
		if err != nil {
			h.respond("ERR " + err.Error())
			return
		}
		if h.publisher != nil {
			if err := h.publisher.Publish(ctx, publish.NewCapture(rec)); err != nil {
				h.log.Errorf("publishing capture %s: %v", rec.CaptureID, err)
			}
		}
		h.respond(fmt.Sprintf("OK %s %d points", rec.CaptureID, rec.Points()))

	case "MEASURE":
		if rest == "" {
			h.respond("ERR MEASURE needs a source channel")
			return
		}
		rec, err := h.driver.CaptureWaveform(ctx, rest)
		if err != nil {
			h.respond("ERR " + err.Error())
			return
		}
		payload, err := json.Marshal(waveform.Measure(rec))
		if err != nil {
			h.respond("ERR " + err.Error())
			return
		}
		h.respond("OK " + string(payload))

	case "TRIGGER":
		if !strings.EqualFold(rest, "FORCE") {
			h.respond("ERR unknown trigger action, want TRIGGER FORCE")
			return
		}
		if err := h.driver.ForceTrigger(ctx); err != nil {
			h.respond("ERR " + err.Error())
			return
		}
		h.respond("OK")

	case "AUTOSCALE":
		if err := h.driver.Autoscale(ctx); err != nil {
			h.respond("ERR " + err.Error())
			return
		}
		h.respond("OK")

	case "DIGITIZE":
		var sources []string
		if rest != "" {
			sources = strings.Fields(rest)
		}
		if err := h.driver.Digitize(ctx, sources...); err != nil {
			h.respond("ERR " + err.Error())
			return
		}
		h.respond("OK")

	case "STATS":
		sr, ok := h.publisher.(publish.StatsReporter)
		if h.publisher == nil || !ok {
			h.respond("OK {}")
			return
		}
		payload, err := json.Marshal(sr.GetStats(ctx))
		if err != nil {
			h.respond("ERR " + err.Error())
			return
		}
		h.respond("OK " + string(payload))

	case "RAW":
		if rest == "" {
			h.respond("ERR RAW needs a SCPI string")
			return
		}
		resp, err := h.driver.Raw(ctx, rest)
		if err != nil {
			h.respond("ERR " + err.Error())
			return
		}
		if resp == "" {
			h.respond("OK")
			return
		}
		h.respond("OK " + resp)

	default:
		h.respond("ERR unknown command: " + verb)
	}
}

func (h *ConnectionHandler) respond(line string) {
	h.conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))

	if _, err := h.conn.Write([]byte(line + "\n")); err != nil {
		h.log.Debugf("client write error: %s: %v", h.clientID, err)
	}
}
