// Package server runs the TCP command gateway: remote clients get a
// line-oriented protocol for driving the instrument without speaking SCPI
// framing themselves, and every capture made through the gateway is fanned
// out to the configured publishers.
package server

import (
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/matteovidali/Keysight-Scope-Tools/internal/config"
	"github.com/matteovidali/Keysight-Scope-Tools/internal/handler"
	"github.com/matteovidali/Keysight-Scope-Tools/internal/publish"
)

type TCPServer struct {
	config    *config.Config
	listener  net.Listener
	driver    handler.Driver
	publisher publish.Publisher
	closers   []io.Closer
	log       *logrus.Logger
	limiter   chan struct{}
	wg        sync.WaitGroup
	shutdown  chan struct{}
}

// NewTCPServer wires the gateway over an already-connected scope. Extra
// closers are shut down with the server (the scope session, publishers).
func NewTCPServer(cfg *config.Config, driver handler.Driver, publisher publish.Publisher, log *logrus.Logger, closers ...io.Closer) *TCPServer {
	return &TCPServer{
		config:    cfg,
		driver:    driver,
		publisher: publisher,
		closers:   closers,
		log:       log,
		limiter:   make(chan struct{}, cfg.Server.MaxConnections),
		shutdown:  make(chan struct{}),
	}
}

func (s *TCPServer) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	s.listener = listener
	s.log.Infof("gateway listening on %s (max clients: %d)", addr, s.config.Server.MaxConnections)

	go s.handleShutdown()

	for {
		select {
		case <-s.shutdown:
			s.log.Info("no longer accepting connections")
			return nil
		default:
		}

		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-s.shutdown:
				return nil
			default:
				s.log.Errorf("accept error: %v", err)
				continue
			}
		}

		select {
		case s.limiter <- struct{}{}:
			s.wg.Add(1)
			go s.handleConnection(conn)
		default:
			s.log.Warn("client limit reached, rejecting connection")
			conn.Close()
		}
	}
}

// Stop closes the listener and stops accepting new clients.
func (s *TCPServer) Stop() {
	select {
	case <-s.shutdown:
	default:
		close(s.shutdown)
	}
	if s.listener != nil {
		s.listener.Close()
	}
}

func (s *TCPServer) handleConnection(conn net.Conn) {
	defer func() {
		<-s.limiter
		s.wg.Done()
	}()

	h := handler.NewConnectionHandler(
		conn,
		s.driver,
		s.publisher,
		s.log,
		s.config.Server.ReadTimeout.Std(),
		s.config.Server.WriteTimeout.Std(),
	)

	h.Handle()
}

func (s *TCPServer) handleShutdown() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	s.log.Infof("received %v, shutting down...", sig)

	s.Stop()

	// Let in-flight clients finish, up to 30 seconds.
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.log.Info("all clients disconnected")
	case <-time.After(30 * time.Second):
		s.log.Warn("shutdown timed out, exiting anyway")
	}

	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			s.log.Errorf("closing publisher: %v", err)
		}
	}
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			s.log.Errorf("closing resource: %v", err)
		}
	}

	s.log.Info("gateway stopped")
	os.Exit(0)
}
