package apns

import (
	"context"
	"crypto/tls"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/sideshow/apns2/certificate"
	"github.com/sideshow/apns2/token"
	"github.com/tinywideclouds/go-apns-service/pkg/h2"
)

const (
	DefaultProductionHost  = "api.push.apple.com"
	DefaultDevelopmentHost = "api.development.push.apple.com"
	DefaultPort            = 443
)

// InflightPolicy decides what Disconnect does to a connect attempt that is
// still in flight.
type InflightPolicy int

const (
	// InflightKeep lets the attempt finish and keeps the session it opens.
	InflightKeep InflightPolicy = iota
	// InflightDiscard lets the attempt finish, then closes its session.
	InflightDiscard
	// InflightAbort cancels the handshake.
	InflightAbort
)

func (p InflightPolicy) String() string {
	switch p {
	case InflightKeep:
		return "keep"
	case InflightDiscard:
		return "discard"
	case InflightAbort:
		return "abort"
	default:
		return fmt.Sprintf("InflightPolicy(%d)", int(p))
	}
}

// ParseInflightPolicy parses "keep", "discard" or "abort". Empty means keep.
func ParseInflightPolicy(s string) (InflightPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "keep":
		return InflightKeep, nil
	case "discard":
		return InflightDiscard, nil
	case "abort":
		return InflightAbort, nil
	}
	return 0, fmt.Errorf("unknown inflight policy %q", s)
}

// Session is one live transport session to the gateway.
type Session interface {
	Send(ctx context.Context, headers []h2.Header, body []byte) (*h2.Response, error)
	Healthy() bool
	Close() error
}

// Dialer opens Sessions.
type Dialer interface {
	Dial(ctx context.Context, host string, port int, cert tls.Certificate) (Session, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, host string, port int, cert tls.Certificate) (Session, error)

func (f DialerFunc) Dial(ctx context.Context, host string, port int, cert tls.Certificate) (Session, error) {
	return f(ctx, host, port, cert)
}

// H2Dialer adapts an *h2.Dialer to Dialer.
func H2Dialer(d *h2.Dialer) Dialer {
	return DialerFunc(func(ctx context.Context, host string, port int, cert tls.Certificate) (Session, error) {
		conn, err := d.Dial(ctx, host, port, cert)
		if err != nil {
			return nil, err
		}
		return conn, nil
	})
}

// Config holds everything a Connection needs. Hosts and port fall back to
// the public gateway defaults.
type Config struct {
	// CertFile is a PEM certificate, a combined PEM certificate+key (when
	// KeyFile is empty) or a PKCS#12 bundle (.p12).
	CertFile string
	KeyFile  string
	// CertPassword decrypts a .p12 bundle or an encrypted PEM key.
	CertPassword string

	// AuthToken, when set, signs every request with a provider JWT.
	AuthToken *token.Token

	Development     bool
	ProductionHost  string
	DevelopmentHost string
	Port            int

	// ConnectTimeout bounds the shared handshake. Zero means no limit.
	ConnectTimeout time.Duration
	// SendTimeout bounds each request round trip. Zero means no limit.
	SendTimeout time.Duration
	// PingInterval enables HTTP/2 health-check pings on the default dialer.
	PingInterval time.Duration
	// InsecureSkipVerify disables gateway certificate checks on the default dialer.
	InsecureSkipVerify bool

	InflightPolicy InflightPolicy

	// Dialer overrides the HTTP/2 dialer.
	Dialer Dialer
}

func (c Config) withDefaults() Config {
	if c.ProductionHost == "" {
		c.ProductionHost = DefaultProductionHost
	}
	if c.DevelopmentHost == "" {
		c.DevelopmentHost = DefaultDevelopmentHost
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.Dialer == nil {
		c.Dialer = H2Dialer(&h2.Dialer{
			InsecureSkipVerify: c.InsecureSkipVerify,
			ReadIdleTimeout:    c.PingInterval,
		})
	}
	return c
}

// Host returns the gateway host selected by the Development flag.
func (c Config) Host() string {
	if c.Development {
		return c.DevelopmentHost
	}
	return c.ProductionHost
}

func loadCertificate(cfg Config) (tls.Certificate, error) {
	switch {
	case cfg.CertFile == "":
		return tls.Certificate{}, nil
	case strings.EqualFold(filepath.Ext(cfg.CertFile), ".p12"):
		return certificate.FromP12File(cfg.CertFile, cfg.CertPassword)
	case cfg.KeyFile == "":
		return certificate.FromPemFile(cfg.CertFile, cfg.CertPassword)
	default:
		return tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	}
}
