// Package dispatch holds the contracts between the delivery pipeline and its
// collaborators.
package dispatch

import (
	"context"

	urn "github.com/tinywideclouds/go-platform/pkg/net/v1"
	"github.com/tinywideclouds/go-platform/pkg/notification/v1"
)

// Dispatcher delivers one notification to a batch of APNs device tokens.
// It returns a human-readable receipt and the tokens the gateway reported
// as permanently invalid, so the caller can forget them.
type Dispatcher interface {
	Dispatch(ctx context.Context, tokens []string, content notification.NotificationContent, data map[string]string) (string, []string, error)
}

// TokenStore remembers which APNs device tokens belong to a user.
type TokenStore interface {
	// Register adds a device token for a user. Registering twice is a no-op.
	Register(ctx context.Context, user urn.URN, token string) error
	// Unregister removes a device token. Unknown tokens are not an error.
	Unregister(ctx context.Context, user urn.URN, token string) error
	// Fetch returns every token registered for the user.
	Fetch(ctx context.Context, user urn.URN) ([]string, error)
}
