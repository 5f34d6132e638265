package http_no

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
)

const shutdownTimeout = 5 * time.Second

// Stopper is anything with a non blocking Stop, servers and background
// services alike.
type Stopper interface {
	Stop()
}

// StopOnSignal stops every stopper, in order, on SIGINT, SIGTERM or SIGHUP.
// Pass services before the servers they depend on.
func StopOnSignal(stoppers ...Stopper) {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)

	go func(s []Stopper) {
		sig := <-signals
		zap.L().Info(sig.String() + " signal caught, stopping app")

		for _, stopper := range s {
			stopper.Stop()
		}
	}(stoppers)
}

// ServerOption is a configuration option used when constructing a Server
type ServerOption func(s *Server)

// IdleTimeout sets the server's IdleTimeout.
func IdleTimeout(t time.Duration) ServerOption {
	return func(s *Server) {
		s.Server.IdleTimeout = t
	}
}

// ReadTimeout sets the server's ReadTimeout.
func ReadTimeout(t time.Duration) ServerOption {
	return func(s *Server) {
		s.Server.ReadTimeout = t
	}
}

// WriteTimeout sets the server's WriteTimeout.
func WriteTimeout(t time.Duration) ServerOption {
	return func(s *Server) {
		s.Server.WriteTimeout = t
	}
}

// TLS serves https with the given PEM encoded pair. A bad pair is logged and
// the server stays on plain http.
func TLS(certContents, keyContents []byte) ServerOption {
	return func(s *Server) {
		cert, err := tls.X509KeyPair(certContents, keyContents)
		if err != nil {
			zap.L().Error("failed to generate X509KeyPair", zap.Error(err))
			return
		}
		s.TLSConfig = &tls.Config{
			Certificates: []tls.Certificate{cert},
		}
	}
}

// Server is an http.Server with a Start/Stop/Wait lifecycle matching the
// background services.
type Server struct {
	*http.Server

	listener net.Listener
	close    chan bool
	done     chan bool
}

func NewServer(listen string, handler http.Handler, options ...ServerOption) *Server {
	s := &Server{
		Server: &http.Server{
			Addr:           listen,
			Handler:        handler,
			MaxHeaderBytes: 1 << 20,
		},
		close: make(chan bool, 1),
		done:  make(chan bool, 1),
	}
	for i := range options {
		options[i](s)
	}
	return s
}

// Start binds the listen address and serves in the background. Binding
// errors are returned; serving errors are logged and end the server.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return err
	}
	s.listener = ln

	go func() {
		<-s.close
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.Shutdown(ctx); err != nil {
			zap.L().Warn("forcing server close", zap.String("addr", s.Addr), zap.Error(err))
			s.Server.Close()
		}
	}()

	go func() {
		var serveErr error
		if s.TLSConfig != nil {
			serveErr = s.ServeTLS(ln, "", "")
		} else {
			serveErr = s.Serve(ln)
		}
		if !errors.Is(serveErr, http.ErrServerClosed) {
			zap.L().Error("server stopped unexpectedly", zap.String("addr", s.Addr), zap.Error(serveErr))
		}
		s.done <- true
	}()

	return nil
}

// ListenAddr is the bound address, useful when listening on port 0.
func (s *Server) ListenAddr() string {
	if s.listener == nil {
		return s.Addr
	}
	return s.listener.Addr().String()
}

// Stop asks the server to drain and returns immediately. In-flight requests
// get shutdownTimeout to finish.
func (s *Server) Stop() {
	select {
	case s.close <- true:
	default:
	}
}

// Wait blocks until the server has stopped serving.
func (s *Server) Wait() {
	<-s.done
}

// Protocol returns the protocol supported by this server (http or https).
func (s *Server) Protocol() string {
	if s.Server.TLSConfig != nil {
		return "https"
	}
	return "http"
}
