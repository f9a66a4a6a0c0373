// Package h2 provides the persistent HTTP/2 session used to talk to the
// APNs gateway. A Conn wraps a single x/net/http2 ClientConn over mutual TLS
// and exposes it as an ordered-header request/response exchange.
package h2

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/http2"
)

// Header is a single request header. Pseudo-headers keep their leading colon.
type Header struct {
	Name  string
	Value string
}

// Response is a successful (200) gateway response.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// ErrContentLength is returned when a content-length header disagrees with the body.
var ErrContentLength = errors.New("h2: content-length does not match body")

// Dialer opens Conns. The zero value verifies the server against the system roots.
type Dialer struct {
	// RootCAs overrides the system certificate pool.
	RootCAs *x509.CertPool
	// InsecureSkipVerify disables server certificate verification.
	InsecureSkipVerify bool
	// ReadIdleTimeout enables PING health checks after this much read silence.
	ReadIdleTimeout time.Duration
	// PingTimeout closes the connection when a health-check PING goes unanswered.
	PingTimeout time.Duration
}

// Dial performs the TLS handshake (negotiating "h2" via ALPN) and starts the
// HTTP/2 client connection. cert is presented to the server when it has
// any certificate data.
func (d *Dialer) Dial(ctx context.Context, host string, port int, cert tls.Certificate) (*Conn, error) {
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	tlsCfg := &tls.Config{
		ServerName:         host,
		NextProtos:         []string{http2.NextProtoTLS},
		MinVersion:         tls.VersionTLS12,
		RootCAs:            d.RootCAs,
		InsecureSkipVerify: d.InsecureSkipVerify,
	}
	if len(cert.Certificate) > 0 {
		tlsCfg.Certificates = []tls.Certificate{cert}
	}

	raw, err := (&tls.Dialer{Config: tlsCfg}).DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("tls dial %s: %w", addr, err)
	}
	tlsConn := raw.(*tls.Conn)

	if proto := tlsConn.ConnectionState().NegotiatedProtocol; proto != http2.NextProtoTLS {
		_ = tlsConn.Close()
		return nil, fmt.Errorf("%s negotiated protocol %q, want %q", addr, proto, http2.NextProtoTLS)
	}

	tr := &http2.Transport{
		ReadIdleTimeout: d.ReadIdleTimeout,
		PingTimeout:     d.PingTimeout,
	}
	watch := newGoAwayWatcher(tlsConn)
	cc, err := tr.NewClientConn(watch)
	if err != nil {
		_ = tlsConn.Close()
		return nil, fmt.Errorf("http2 client conn %s: %w", addr, err)
	}

	authority := host
	if port != 443 {
		authority = addr
	}
	return &Conn{cc: cc, authority: authority, watch: watch}, nil
}

// Conn is one multiplexed HTTP/2 session. It is safe for concurrent use.
type Conn struct {
	cc        *http2.ClientConn
	authority string
	watch     *goAwayWatcher
}

// Send issues one request on its own stream and waits for the full response.
// A non-200 status is returned as a *RequestError. A failure of the link
// itself is returned as a *DisconnectError carrying the GOAWAY debug data
// when the server sent one. Other failures, such as the
// caller's context expiring, are returned as they are.
func (c *Conn) Send(ctx context.Context, headers []Header, body []byte) (*Response, error) {
	req, err := c.newRequest(ctx, headers, body)
	if err != nil {
		return nil, err
	}

	resp, err := c.cc.RoundTrip(req)
	if err != nil {
		return nil, classify(err, c.Healthy(), c.watch.last())
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classify(err, c.Healthy(), c.watch.last())
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &RequestError{Status: resp.StatusCode, Header: resp.Header, Body: data}
	}
	return &Response{Status: resp.StatusCode, Header: resp.Header, Body: data}, nil
}

// Healthy reports whether the session can still carry new requests: it is
// neither closed nor shutting down after a GOAWAY.
func (c *Conn) Healthy() bool {
	st := c.cc.State()
	return !st.Closed && !st.Closing
}

// Close tears the session down, failing any in-flight streams.
func (c *Conn) Close() error {
	return c.cc.Close()
}

func (c *Conn) newRequest(ctx context.Context, headers []Header, body []byte) (*http.Request, error) {
	method := http.MethodGet
	scheme := "https"
	path := "/"
	authority := c.authority
	contentLength := int64(-1)
	extra := make(http.Header)

	for _, h := range headers {
		switch h.Name {
		case ":method":
			method = h.Value
		case ":scheme":
			scheme = h.Value
		case ":path":
			path = h.Value
		case ":authority":
			authority = h.Value
		case "content-length":
			n, err := strconv.ParseInt(h.Value, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid content-length %q: %w", h.Value, err)
			}
			contentLength = n
		default:
			if strings.HasPrefix(h.Name, ":") {
				return nil, fmt.Errorf("unsupported pseudo-header %q", h.Name)
			}
			extra.Add(h.Name, h.Value)
		}
	}

	if contentLength >= 0 && contentLength != int64(len(body)) {
		return nil, fmt.Errorf("%w: header %d, body %d", ErrContentLength, contentLength, len(body))
	}

	u := &url.URL{Scheme: scheme, Host: authority, Path: path}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	for k, v := range extra {
		req.Header[k] = v
	}
	return req, nil
}
