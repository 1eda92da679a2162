// Package smtp exposes the inbound mail transfer listener. It speaks a
// line-oriented SMTP dialect, bounds message size, parses the payload
// down to subject and plain-text body, and hands the envelope to the
// delivery router.
package smtp

import (
	"context"
	"fmt"
	"net"
	"os"
	"sync/atomic"
	"time"

	"github.com/emersion/go-smtp"

	"github.com/sandesh-mail/sandesh/logger"
	"github.com/sandesh-mail/sandesh/pkg/metrics"
	"github.com/sandesh-mail/sandesh/pkg/ratelimit"
	"github.com/sandesh-mail/sandesh/server/delivery"
)

type Backend struct {
	addr     string
	hostname string
	appCtx   context.Context

	router  *delivery.Router
	limiter *ratelimit.Limiter

	maxMessageSize int64
	maxRecipients  int
	mailRateLimit  int
	mailRateWindow time.Duration

	debug  bool
	server *smtp.Server

	totalConnections  atomic.Int64
	activeConnections atomic.Int64
}

type Options struct {
	Debug          bool
	MaxMessageSize int64 // bytes, 0 disables the ceiling
	MaxRecipients  int
	MailRateLimit  int // MAIL commands per remote IP per window, 0 disables
	MailRateWindow time.Duration
}

func New(appCtx context.Context, hostname, addr string, router *delivery.Router, limiter *ratelimit.Limiter, options Options) *Backend {
	backend := &Backend{
		addr:           addr,
		hostname:       hostname,
		appCtx:         appCtx,
		router:         router,
		limiter:        limiter,
		maxMessageSize: options.MaxMessageSize,
		maxRecipients:  options.MaxRecipients,
		mailRateLimit:  options.MailRateLimit,
		mailRateWindow: options.MailRateWindow,
		debug:          options.Debug,
	}

	s := smtp.NewServer(backend)
	s.Addr = addr
	s.Domain = hostname
	s.MaxMessageBytes = options.MaxMessageSize
	s.MaxRecipients = options.MaxRecipients
	s.ReadTimeout = 60 * time.Second
	s.WriteTimeout = 60 * time.Second
	if options.Debug {
		s.Debug = os.Stdout
	}

	backend.server = s
	return backend
}

func (b *Backend) NewSession(c *smtp.Conn) (smtp.Session, error) {
	b.totalConnections.Add(1)
	b.activeConnections.Add(1)
	metrics.ConnectionsTotal.WithLabelValues("smtp").Inc()
	metrics.ConnectionsCurrent.WithLabelValues("smtp").Inc()

	return &Session{
		backend:  b,
		remoteIP: remoteIP(c),
	}, nil
}

func remoteIP(c *smtp.Conn) string {
	if c == nil || c.Conn() == nil {
		return ""
	}
	addr := c.Conn().RemoteAddr()
	if tcpAddr, ok := addr.(*net.TCPAddr); ok {
		return tcpAddr.IP.String()
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}

// ListenAndServe blocks until the listener stops.
func (b *Backend) ListenAndServe() error {
	logger.Infof("SMTP listening on %s (max message size %d bytes)", b.addr, b.maxMessageSize)
	if err := b.server.ListenAndServe(); err != nil {
		return fmt.Errorf("SMTP server on %s: %w", b.addr, err)
	}
	return nil
}

func (b *Backend) Close() error {
	return b.server.Close()
}

// TotalConnections reports connections accepted since start.
func (b *Backend) TotalConnections() int64 {
	return b.totalConnections.Load()
}

func (b *Backend) logf(format string, args ...any) {
	if b.debug {
		logger.Debugf(format, args...)
		return
	}
	logger.Infof(format, args...)
}
