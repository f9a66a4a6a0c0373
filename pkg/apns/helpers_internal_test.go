package apns

import (
	"context"
	"crypto/tls"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/stretchr/testify/mock"
	"github.com/tinywideclouds/go-apns-service/pkg/h2"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockSession is a testify mock for Send with a real health flag.
type mockSession struct {
	mock.Mock
	healthy atomic.Bool
	closed  atomic.Int32
}

func newMockSession() *mockSession {
	s := &mockSession{}
	s.healthy.Store(true)
	return s
}

func (m *mockSession) Send(ctx context.Context, headers []h2.Header, body []byte) (*h2.Response, error) {
	args := m.Called(ctx, headers, body)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*h2.Response), args.Error(1)
}

func (m *mockSession) Healthy() bool { return m.healthy.Load() }

func (m *mockSession) Close() error {
	m.healthy.Store(false)
	m.closed.Add(1)
	return nil
}

type dialRecord struct {
	host string
	port int
}

// fakeDialer counts handshakes. When release is non-nil each Dial blocks
// until it is closed or the dial context ends.
type fakeDialer struct {
	dials   atomic.Int32
	started chan struct{}
	release chan struct{}
	err     error

	mu       sync.Mutex
	records  []dialRecord
	sessions []*mockSession
	prepare  func(*mockSession)
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{started: make(chan struct{}, 64)}
}

func (d *fakeDialer) Dial(ctx context.Context, host string, port int, _ tls.Certificate) (Session, error) {
	d.dials.Add(1)
	d.mu.Lock()
	d.records = append(d.records, dialRecord{host: host, port: port})
	d.mu.Unlock()
	d.started <- struct{}{}

	if d.release != nil {
		select {
		case <-d.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if d.err != nil {
		return nil, d.err
	}

	s := newMockSession()
	if d.prepare != nil {
		d.prepare(s)
	}
	d.mu.Lock()
	d.sessions = append(d.sessions, s)
	d.mu.Unlock()
	return s, nil
}

func (d *fakeDialer) lastSession() *mockSession {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.sessions) == 0 {
		return nil
	}
	return d.sessions[len(d.sessions)-1]
}

func newTestConnection(cfg Config, dialer *fakeDialer) *Connection {
	cfg.Dialer = dialer
	return newConnection(cfg, tls.Certificate{}, newTestLogger())
}
