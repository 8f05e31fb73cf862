package server

import (
	"time"

	"github.com/qmsolve/mrscf/internal/logging"
)

// Option is a functional option for configuring a Server.
type Option func(*Server)

// WithLogger sets the server's logger. A nil logger keeps the default.
func WithLogger(logger logging.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithHealth sets the sampling function backing the /healthz probe.
func WithHealth(health HealthFunc) Option {
	return func(s *Server) {
		if health != nil {
			s.health = health
		}
	}
}

// WithTimeouts sets custom timeouts, mainly for tests.
func WithTimeouts(timeouts Timeouts) Option {
	return func(s *Server) {
		s.timeouts = timeouts
	}
}

// Timeouts holds the HTTP server timeout configuration.
type Timeouts struct {
	// Read bounds reading an entire request, including the body.
	Read time.Duration
	// Write bounds writing a response.
	Write time.Duration
	// Idle bounds keep-alive waits between requests.
	Idle time.Duration
	// Shutdown bounds the graceful shutdown.
	Shutdown time.Duration
}

// DefaultTimeouts returns the production timeout configuration.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Read:     10 * time.Second,
		Write:    30 * time.Second,
		Idle:     2 * time.Minute,
		Shutdown: 10 * time.Second,
	}
}
