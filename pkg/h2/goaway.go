package h2

import (
	"bytes"
	"crypto/tls"
	"io"
	"sync"

	"golang.org/x/net/http2"
)

const frameHeaderLen = 9

// goAway is what the server said when it shut the session down.
type goAway struct {
	Code  http2.ErrCode
	Debug []byte
}

// goAwayWatcher sits between the TLS connection and the HTTP/2 read loop
// and keeps a copy of any GOAWAY the server sends. Streams above the
// frame's last stream ID are failed without its debug data, so the reason
// has to be recovered from here.
//
// Read is only ever called from the read loop, so the frame-tracking state
// needs no locking. The recorded GOAWAY is read from request goroutines.
type goAwayWatcher struct {
	*tls.Conn

	hdr     [frameHeaderLen]byte
	hdrN    int
	remain  uint32
	capture []byte

	mu   sync.Mutex
	seen *goAway
}

func newGoAwayWatcher(c *tls.Conn) *goAwayWatcher {
	return &goAwayWatcher{Conn: c}
}

func (w *goAwayWatcher) Read(p []byte) (int, error) {
	n, err := w.Conn.Read(p)
	if n > 0 {
		w.observe(p[:n])
	}
	return n, err
}

// observe walks frame boundaries in b. The bytes reach the framer only
// after this returns, so a GOAWAY is recorded before any stream sees it.
func (w *goAwayWatcher) observe(b []byte) {
	for len(b) > 0 {
		if w.hdrN < frameHeaderLen {
			n := copy(w.hdr[w.hdrN:], b)
			w.hdrN += n
			b = b[n:]
			if w.hdrN < frameHeaderLen {
				return
			}
			fh, err := http2.ReadFrameHeader(bytes.NewReader(w.hdr[:]))
			if err != nil {
				w.hdrN = 0
				return
			}
			w.remain = fh.Length
			if fh.Type == http2.FrameGoAway {
				w.capture = make([]byte, 0, frameHeaderLen+int(fh.Length))
				w.capture = append(w.capture, w.hdr[:]...)
			}
		}

		take := min(len(b), int(w.remain))
		if w.capture != nil {
			w.capture = append(w.capture, b[:take]...)
		}
		w.remain -= uint32(take)
		b = b[take:]

		if w.remain == 0 {
			if w.capture != nil {
				w.record(w.capture)
				w.capture = nil
			}
			w.hdrN = 0
		}
	}
}

// record merges a GOAWAY the same way the transport does: the first debug
// data and the first error code other than NO_ERROR win.
func (w *goAwayWatcher) record(frame []byte) {
	f, err := http2.NewFramer(io.Discard, bytes.NewReader(frame)).ReadFrame()
	if err != nil {
		return
	}
	ga, ok := f.(*http2.GoAwayFrame)
	if !ok {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.seen == nil {
		w.seen = &goAway{Code: ga.ErrCode, Debug: bytes.Clone(ga.DebugData())}
		return
	}
	if len(w.seen.Debug) == 0 {
		w.seen.Debug = bytes.Clone(ga.DebugData())
	}
	if w.seen.Code == http2.ErrCodeNo {
		w.seen.Code = ga.ErrCode
	}
}

// last returns the merged GOAWAY, or nil if the server has not sent one.
func (w *goAwayWatcher) last() *goAway {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.seen == nil {
		return nil
	}
	cp := *w.seen
	return &cp
}
