package apns

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/sideshow/apns2/payload"
	"github.com/tinywideclouds/go-apns-service/pkg/h2"
)

var (
	ErrMissingToken = errors.New("apns: device token is required")
	ErrNilPayload   = errors.New("apns: payload is required")
)

// Payload is the notification content. *payload.Payload from
// github.com/sideshow/apns2/payload and json.RawMessage both satisfy it.
type Payload interface {
	MarshalJSON() ([]byte, error)
}

// PayloadFromString wraps a bare alert string into the canonical
// {"aps":{"alert":...}} payload.
func PayloadFromString(alert string) *payload.Payload {
	return payload.NewPayload().Alert(alert)
}

// Request is one wire-level gateway request: ordered headers and the
// encoded body.
type Request struct {
	Headers []h2.Header
	Body    []byte
}

// BuildRequest encodes p and produces the pseudo-headers addressing token.
// Priority, topic and the other per-send headers are appended by the caller.
func BuildRequest(p Payload, token string) (*Request, error) {
	if token == "" {
		return nil, ErrMissingToken
	}
	if p == nil {
		return nil, ErrNilPayload
	}

	body, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}

	return &Request{
		Headers: []h2.Header{
			{Name: ":method", Value: http.MethodPost},
			{Name: ":scheme", Value: "https"},
			{Name: ":path", Value: "/3/device/" + token},
			{Name: "content-length", Value: strconv.Itoa(len(body))},
		},
		Body: body,
	}, nil
}

// Get returns the first value of the named header.
func (r *Request) Get(name string) (string, bool) {
	for _, h := range r.Headers {
		if h.Name == name {
			return h.Value, true
		}
	}
	return "", false
}
