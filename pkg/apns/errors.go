package apns

import (
	"errors"
	"fmt"
	"time"

	"github.com/sideshow/apns2"
	"github.com/tinywideclouds/go-apns-service/pkg/h2"
)

var (
	ErrInvalidPriority     = errors.New("apns: invalid priority")
	ErrNoCredentials       = errors.New("apns: a client certificate or an auth token is required")
	ErrNotConnected        = errors.New("apns: not connected")
	ErrConnectionDiscarded = errors.New("apns: connection discarded by a concurrent disconnect")
	ErrConnectionAborted   = errors.New("apns: connection attempt aborted by a concurrent disconnect")
)

// ErrorKind separates "this request was refused" from "the link failed".
type ErrorKind int

const (
	// KindRejection means the gateway refused one request.
	KindRejection ErrorKind = iota + 1
	// KindDisconnection means the session failed and no response was obtained.
	KindDisconnection
)

func (k ErrorKind) String() string {
	switch k {
	case KindRejection:
		return "rejection"
	case KindDisconnection:
		return "disconnection"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// Error is the domain error returned by Send. Callers switch on Kind.
// Empty strings mean the gateway did not supply the value.
type Error struct {
	Kind ErrorKind
	// Reason is the gateway's reason string, e.g. "BadDeviceToken".
	Reason string
	// NotificationID is the apns-id of the rejected request. Rejections only.
	NotificationID string
	// Status is the HTTP status of a rejection.
	Status int
	// Timestamp is when the gateway last saw the token valid (410 Unregistered).
	Timestamp time.Time
	// Err is the underlying transport fault.
	Err error
}

func (e *Error) Error() string {
	reason := e.Reason
	if reason == "" {
		reason = "no reason given"
	}
	if e.Kind == KindRejection {
		if e.NotificationID != "" {
			return fmt.Sprintf("apns: notification %s rejected: %s", e.NotificationID, reason)
		}
		return fmt.Sprintf("apns: notification rejected: %s", reason)
	}
	return fmt.Sprintf("apns: disconnected: %s", reason)
}

func (e *Error) Unwrap() error { return e.Err }

// IsInvalidToken reports whether the rejection means the device token will
// never be deliverable for this topic again.
func (e *Error) IsInvalidToken() bool {
	if e.Kind != KindRejection {
		return false
	}
	switch e.Reason {
	case apns2.ReasonBadDeviceToken, apns2.ReasonUnregistered, apns2.ReasonDeviceTokenNotForTopic:
		return true
	}
	return false
}

// IsRejection reports whether err is a rejection Error.
func IsRejection(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindRejection
}

// IsDisconnection reports whether err is a disconnection Error.
func IsDisconnection(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindDisconnection
}

type errorBody struct {
	Reason    string `json:"reason"`
	Timestamp int64  `json:"timestamp"`
}

// bodyDecoder is satisfied by both transport fault kinds.
type bodyDecoder interface {
	DecodeBody(v any) error
}

func decodeReason(f bodyDecoder) errorBody {
	var body errorBody
	if err := f.DecodeBody(&body); err != nil {
		return errorBody{}
	}
	return body
}

// TranslateError maps a transport fault to an *Error. Faults of any other
// kind are returned unchanged.
func TranslateError(err error) error {
	var reqErr *h2.RequestError
	if errors.As(err, &reqErr) {
		body := decodeReason(reqErr)
		e := &Error{
			Kind:   KindRejection,
			Reason: body.Reason,
			Status: reqErr.Status,
			Err:    err,
		}
		if reqErr.Header != nil {
			e.NotificationID = reqErr.Header.Get("apns-id")
		}
		if body.Timestamp > 0 {
			e.Timestamp = time.UnixMilli(body.Timestamp)
		}
		return e
	}

	var discErr *h2.DisconnectError
	if errors.As(err, &discErr) {
		return &Error{
			Kind:   KindDisconnection,
			Reason: decodeReason(discErr).Reason,
			Err:    err,
		}
	}

	return err
}
