package apns

import (
	"time"

	"github.com/sideshow/apns2"
)

type sendOptions struct {
	priority   Priority
	topic      string
	id         string
	collapseID string
	pushType   apns2.EPushType
	expiration time.Time
}

// SendOption customises a single Send.
type SendOption func(*sendOptions)

// WithPriority sets apns-priority. The default is Immediate.
func WithPriority(p Priority) SendOption {
	return func(o *sendOptions) { o.priority = p }
}

// WithTopic sets apns-topic, normally the app bundle ID.
func WithTopic(topic string) SendOption {
	return func(o *sendOptions) { o.topic = topic }
}

// WithNotificationID sets the apns-id request header. The gateway echoes it
// back instead of generating one.
func WithNotificationID(id string) SendOption {
	return func(o *sendOptions) { o.id = id }
}

// WithCollapseID sets apns-collapse-id.
func WithCollapseID(id string) SendOption {
	return func(o *sendOptions) { o.collapseID = id }
}

// WithPushType sets apns-push-type.
func WithPushType(t apns2.EPushType) SendOption {
	return func(o *sendOptions) { o.pushType = t }
}

// WithExpiration sets apns-expiration. The gateway keeps retrying delivery
// until then.
func WithExpiration(t time.Time) SendOption {
	return func(o *sendOptions) { o.expiration = t }
}
