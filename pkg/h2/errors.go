package h2

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/net/http2"
)

// ErrNoBody is returned by DecodeBody when the fault carried no body.
var ErrNoBody = errors.New("h2: fault has no body")

// RequestError is a rejection fault: the gateway answered the request with
// a non-200 status. Body is the raw response body, possibly empty.
type RequestError struct {
	Status int
	Header http.Header
	Body   []byte
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("h2: request rejected with status %d", e.Status)
}

// DecodeBody unmarshals the JSON response body into v.
func (e *RequestError) DecodeBody(v any) error {
	return decodeBody(e.Body, v)
}

// DisconnectError is a disconnection fault: the session failed before or
// while the request was in flight. Body holds GOAWAY debug data when the
// server sent any.
type DisconnectError struct {
	Code http2.ErrCode
	Body []byte
	Err  error
}

func (e *DisconnectError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("h2: connection lost (%v)", e.Code)
	}
	return fmt.Sprintf("h2: connection lost (%v): %v", e.Code, e.Err)
}

func (e *DisconnectError) Unwrap() error { return e.Err }

// DecodeBody unmarshals the GOAWAY debug data into v.
func (e *DisconnectError) DecodeBody(v any) error {
	return decodeBody(e.Body, v)
}

func decodeBody(body []byte, v any) error {
	if len(body) == 0 {
		return ErrNoBody
	}
	return json.Unmarshal(body, v)
}

// classify turns a round-trip failure into a DisconnectError when the link
// is gone. healthy is the session state observed after the failure and away
// is the GOAWAY the server sent, if any. Streams the server never saw fail
// with a bare transport error, so their reason comes from away.
func classify(err error, healthy bool, away *goAway) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	disc := &DisconnectError{Code: http2.ErrCodeNo, Err: err}

	var goAwayErr http2.GoAwayError
	var connErr http2.ConnectionError
	switch {
	case errors.As(err, &goAwayErr):
		disc.Code = goAwayErr.ErrCode
		if goAwayErr.DebugData != "" {
			disc.Body = []byte(goAwayErr.DebugData)
		}
	case errors.As(err, &connErr):
		disc.Code = http2.ErrCode(connErr)
	case healthy && away == nil:
		return err
	}

	if away != nil {
		if len(disc.Body) == 0 {
			disc.Body = away.Debug
		}
		if disc.Code == http2.ErrCodeNo {
			disc.Code = away.Code
		}
	}
	return disc
}
