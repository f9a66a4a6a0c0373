// Package apns is a client for the Apple Push Notification service HTTP/2
// API. A Connection owns exactly one gateway session, opens it lazily and
// turns transport faults into *Error values of kind KindRejection or
// KindDisconnection.
package apns

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"

	"github.com/sideshow/apns2/token"
	"golang.org/x/sync/singleflight"

	"github.com/tinywideclouds/go-apns-service/pkg/h2"
)

const connectKey = "connect"

// Connection manages the single gateway session. It is safe for concurrent
// use; concurrent Connect calls share one handshake.
type Connection struct {
	cfg    Config
	cert   tls.Certificate
	logger *slog.Logger

	inflight singleflight.Group

	mu      sync.Mutex
	session Session
	// gen is bumped by Disconnect so an in-flight attempt can tell it was
	// overtaken.
	gen   uint64
	abort context.CancelFunc
}

// NewConnection loads the credentials in cfg and returns a disconnected
// Connection. Bad certificate material fails here rather than on first send.
func NewConnection(cfg Config, logger *slog.Logger) (*Connection, error) {
	cert, err := loadCertificate(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load APNs client certificate: %w", err)
	}
	if len(cert.Certificate) == 0 && cfg.AuthToken == nil {
		return nil, ErrNoCredentials
	}
	return newConnection(cfg, cert, logger), nil
}

func newConnection(cfg Config, cert tls.Certificate, logger *slog.Logger) *Connection {
	return &Connection{
		cfg:    cfg.withDefaults(),
		cert:   cert,
		logger: logger.With("component", "APNSConnection"),
	}
}

// Endpoint returns the "host:port" of the gateway this Connection dials.
func (c *Connection) Endpoint() string {
	return net.JoinHostPort(c.cfg.Host(), strconv.Itoa(c.cfg.Port))
}

// Connected reports whether a session exists and reports itself healthy.
func (c *Connection) Connected() bool {
	s := c.currentSession()
	return s != nil && s.Healthy()
}

// Connect opens the gateway session. It returns immediately when already
// connected and joins the attempt in flight when there is one. ctx bounds
// only this caller's wait; the shared handshake is bounded by
// Config.ConnectTimeout.
func (c *Connection) Connect(ctx context.Context) error {
	if c.Connected() {
		return nil
	}

	dialCtx := context.WithoutCancel(ctx)
	ch := c.inflight.DoChan(connectKey, func() (any, error) {
		return nil, c.dial(dialCtx)
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Connection) dial(parent context.Context) error {
	c.mu.Lock()
	if c.session != nil && c.session.Healthy() {
		c.mu.Unlock()
		return nil
	}
	stale := c.session
	c.session = nil
	gen := c.gen

	var ctx context.Context
	var cancel context.CancelFunc
	if c.cfg.ConnectTimeout > 0 {
		ctx, cancel = context.WithTimeout(parent, c.cfg.ConnectTimeout)
	} else {
		ctx, cancel = context.WithCancel(parent)
	}
	defer cancel()
	c.abort = cancel
	c.mu.Unlock()

	if stale != nil {
		_ = stale.Close()
	}

	host, port := c.cfg.Host(), c.cfg.Port
	c.logger.Debug("Connecting to APNs", "host", host, "port", port, "development", c.cfg.Development)
	session, err := c.cfg.Dialer.Dial(ctx, host, port, c.cert)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.abort = nil
	overtaken := c.gen != gen

	if err != nil {
		if overtaken && c.cfg.InflightPolicy == InflightAbort {
			return fmt.Errorf("%w: %v", ErrConnectionAborted, err)
		}
		c.logger.Warn("APNs connect failed", "host", host, "port", port, "err", err)
		return fmt.Errorf("failed to connect to %s:%d: %w", host, port, err)
	}

	if overtaken {
		switch c.cfg.InflightPolicy {
		case InflightDiscard:
			_ = session.Close()
			return ErrConnectionDiscarded
		case InflightAbort:
			_ = session.Close()
			return ErrConnectionAborted
		}
	}

	c.session = session
	c.logger.Info("Connected to APNs", "host", host, "port", port)
	return nil
}

// Disconnect closes the session and forgets it. What happens to a connect
// attempt still in flight is decided by Config.InflightPolicy.
func (c *Connection) Disconnect() error {
	c.mu.Lock()
	session := c.session
	c.session = nil
	c.gen++
	if c.abort != nil && c.cfg.InflightPolicy == InflightAbort {
		c.abort()
	}
	c.mu.Unlock()

	if session == nil {
		return nil
	}
	c.logger.Info("Disconnected from APNs")
	return session.Close()
}

// Send delivers p to the device identified by deviceToken and returns the apns-id
// the gateway assigned, or "" when it returned none. The session is opened
// first if needed. Gateway refusals and link failures come back as *Error;
// any other fault is returned unchanged.
func (c *Connection) Send(ctx context.Context, p Payload, deviceToken string, opts ...SendOption) (string, error) {
	o := sendOptions{priority: Immediate}
	for _, opt := range opts {
		opt(&o)
	}
	code, ok := o.priority.Code()
	if !ok {
		return "", fmt.Errorf("%w: %v", ErrInvalidPriority, o.priority)
	}

	req, err := BuildRequest(p, deviceToken)
	if err != nil {
		return "", err
	}
	req.Headers = append(req.Headers, h2.Header{Name: "apns-priority", Value: strconv.Itoa(code)})
	if o.topic != "" {
		req.Headers = append(req.Headers, h2.Header{Name: "apns-topic", Value: o.topic})
	}
	if err := c.appendOptionalHeaders(req, o); err != nil {
		return "", err
	}

	if !c.Connected() {
		if err := c.Connect(ctx); err != nil {
			return "", err
		}
	}

	session := c.currentSession()
	if session == nil {
		return "", ErrNotConnected
	}

	if c.cfg.SendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.SendTimeout)
		defer cancel()
	}

	resp, err := session.Send(ctx, req.Headers, req.Body)
	if err != nil {
		translated := TranslateError(err)
		c.logger.Debug("APNs send failed", "token", deviceToken, "err", translated)
		return "", translated
	}
	return resp.Header.Get("apns-id"), nil
}

func (c *Connection) appendOptionalHeaders(req *Request, o sendOptions) error {
	if o.id != "" {
		req.Headers = append(req.Headers, h2.Header{Name: "apns-id", Value: o.id})
	}
	if o.collapseID != "" {
		req.Headers = append(req.Headers, h2.Header{Name: "apns-collapse-id", Value: o.collapseID})
	}
	if o.pushType != "" {
		req.Headers = append(req.Headers, h2.Header{Name: "apns-push-type", Value: string(o.pushType)})
	}
	if !o.expiration.IsZero() {
		req.Headers = append(req.Headers, h2.Header{Name: "apns-expiration", Value: strconv.FormatInt(o.expiration.Unix(), 10)})
	}
	if c.cfg.AuthToken != nil {
		bearer, err := bearerToken(c.cfg.AuthToken)
		if err != nil {
			return fmt.Errorf("failed to sign APNs auth token: %w", err)
		}
		req.Headers = append(req.Headers, h2.Header{Name: "authorization", Value: "bearer " + bearer})
	}
	return nil
}

// bearerToken returns the provider JWT, re-signing it once it has expired.
func bearerToken(t *token.Token) (string, error) {
	t.Lock()
	defer t.Unlock()
	if t.Expired() {
		if _, err := t.Generate(); err != nil {
			return "", err
		}
	}
	return t.Bearer, nil
}

func (c *Connection) currentSession() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}
