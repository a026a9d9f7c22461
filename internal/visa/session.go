package visa

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/matteovidali/Keysight-Scope-Tools/pkg/scpi"
)

// Session is a serialized request/response connection to one instrument.
// A VISA TCPIP socket carries exactly one in-flight operation, so every
// exported method takes the session lock for its full duration.
type Session struct {
	resource Resource
	conn     net.Conn
	reader   *bufio.Reader
	mu       sync.Mutex

	readTimeout  time.Duration
	writeTimeout time.Duration
	log          *logrus.Entry
}

// SessionOptions tune a dialed session. Zero values fall back to defaults.
type SessionOptions struct {
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	KeepAlive    time.Duration
}

func (o *SessionOptions) withDefaults() SessionOptions {
	out := SessionOptions{
		DialTimeout:  5 * time.Second,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 5 * time.Second,
		KeepAlive:    30 * time.Second,
	}
	if o == nil {
		return out
	}
	if o.DialTimeout > 0 {
		out.DialTimeout = o.DialTimeout
	}
	if o.ReadTimeout > 0 {
		out.ReadTimeout = o.ReadTimeout
	}
	if o.WriteTimeout > 0 {
		out.WriteTimeout = o.WriteTimeout
	}
	if o.KeepAlive > 0 {
		out.KeepAlive = o.KeepAlive
	}
	return out
}

// Dial opens a session to the instrument named by the resource.
func Dial(ctx context.Context, r Resource, opts *SessionOptions, log *logrus.Logger) (*Session, error) {
	o := opts.withDefaults()

	d := net.Dialer{
		Timeout:   o.DialTimeout,
		KeepAlive: o.KeepAlive,
	}
	conn, err := d.DialContext(ctx, "tcp", r.Addr())
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", r, err)
	}

	entry := log.WithField("resource", r.String())
	entry.Infof("session opened: %s", r.Addr())

	return &Session{
		resource:     r,
		conn:         conn,
		reader:       bufio.NewReaderSize(conn, 64*1024),
		readTimeout:  o.ReadTimeout,
		writeTimeout: o.WriteTimeout,
		log:          entry,
	}, nil
}

// Resource returns the resource this session is connected to.
func (s *Session) Resource() Resource { return s.resource }

// Write sends a single command, appending the line terminator.
func (s *Session) Write(ctx context.Context, cmd string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(ctx, cmd)
}

// Query sends a query and reads one line of response, with the terminator
// stripped.
func (s *Session) Query(ctx context.Context, cmd string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.write(ctx, cmd); err != nil {
		return "", err
	}
	line, err := s.readLine(ctx)
	if err != nil {
		return "", fmt.Errorf("query %q: %w", cmd, err)
	}
	return line, nil
}

// QueryBinary sends a query whose response is a definite-length block and
// returns the payload. The trailing terminator byte is consumed.
func (s *Session) QueryBinary(ctx context.Context, cmd string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.write(ctx, cmd); err != nil {
		return nil, err
	}

	if err := s.setReadDeadline(ctx); err != nil {
		return nil, err
	}
	head := make([]byte, 2)
	if _, err := io.ReadFull(s.reader, head); err != nil {
		return nil, fmt.Errorf("query %q: reading block header: %w", cmd, err)
	}
	if head[0] != '#' {
		return nil, fmt.Errorf("query %q: response is not a definite-length block (first byte 0x%02X)", cmd, head[0])
	}
	digits := int(head[1] - '0')
	if digits < 1 || digits > 9 {
		return nil, fmt.Errorf("query %q: invalid block digit count %q", cmd, head[1])
	}

	lenField := make([]byte, digits)
	if _, err := io.ReadFull(s.reader, lenField); err != nil {
		return nil, fmt.Errorf("query %q: reading block length: %w", cmd, err)
	}
	header := append(append([]byte{}, head...), lenField...)
	_, payloadLen, err := scpi.BlockHeaderSize(header)
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", cmd, err)
	}

	payload := make([]byte, payloadLen)
	if _, err := io.ReadFull(s.reader, payload); err != nil {
		return nil, fmt.Errorf("query %q: reading %d block bytes: %w", cmd, payloadLen, err)
	}

	// The block is followed by the response terminator.
	if b, err := s.reader.ReadByte(); err == nil && b != '\n' {
		s.reader.UnreadByte()
	}

	s.log.Debugf("binary query %q returned %d bytes", cmd, payloadLen)
	return payload, nil
}

// Close tears down the connection.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log.Info("session closed")
	return s.conn.Close()
}

func (s *Session) write(ctx context.Context, cmd string) error {
	deadline := time.Now().Add(s.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := s.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	if _, err := s.conn.Write(append([]byte(cmd), '\n')); err != nil {
		return fmt.Errorf("write %q: %w", cmd, err)
	}
	s.log.Debugf("sent %q", cmd)
	return nil
}

func (s *Session) readLine(ctx context.Context) (string, error) {
	if err := s.setReadDeadline(ctx); err != nil {
		return "", err
	}
	line, err := s.reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (s *Session) setReadDeadline(ctx context.Context) error {
	deadline := time.Now().Add(s.readTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	return s.conn.SetReadDeadline(deadline)
}
