// Package apns adapts the pkg/apns connection to the pipeline's Dispatcher
// contract.
package apns

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/payload"
	"github.com/tinywideclouds/go-platform/pkg/notification/v1"

	apnsclient "github.com/tinywideclouds/go-apns-service/pkg/apns"
)

// Sender is the subset of *apnsclient.Connection the dispatcher uses.
// This allows mocking for unit tests.
type Sender interface {
	Send(ctx context.Context, p apnsclient.Payload, token string, opts ...apnsclient.SendOption) (string, error)
	Disconnect() error
}

// Options are the per-notification headers applied to every send.
type Options struct {
	Topic    string // The App Bundle ID (e.g. com.tinywide.messenger)
	Priority apnsclient.Priority
	// TTL sets apns-expiration relative to the send. Zero leaves it unset.
	TTL time.Duration
}

type Dispatcher struct {
	client Sender
	opts   Options
	logger *slog.Logger
	now    func() time.Time
}

func NewDispatcher(client Sender, opts Options, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		client: client,
		opts:   opts,
		logger: logger.With("component", "APNSDispatcher"),
		now:    time.Now,
	}
}

// Dispatch sends the notification to each token in turn over the shared
// session. Invalid tokens are returned for cleanup. A lost connection drops
// the session so the next attempt reconnects. It and any other failure that
// is not a per-token rejection stop the batch and are returned as an error
// so the message is redelivered.
func (d *Dispatcher) Dispatch(
	ctx context.Context,
	tokens []string,
	content notification.NotificationContent,
	data map[string]string,
) (string, []string, error) {
	if len(tokens) == 0 {
		return "skipped: no tokens", nil, nil
	}

	p := d.buildPayload(content, data)

	var invalidTokens []string
	successCount := 0
	failureCount := 0

	for i, deviceToken := range tokens {
		notificationID := uuid.NewString()
		apnsID, err := d.client.Send(ctx, p, deviceToken, d.sendOptions(notificationID)...)
		if err == nil {
			successCount++
			d.logger.Debug("APNs accepted notification", "apns_id", apnsID)
			continue
		}
		failureCount++

		if errors.Is(err, apnsclient.ErrMissingToken) {
			invalidTokens = append(invalidTokens, deviceToken)
			continue
		}

		var apnsErr *apnsclient.Error
		if !errors.As(err, &apnsErr) {
			// Connect failures, send timeouts and cancellation all hit every
			// remaining token alike, so the message goes back for redelivery.
			d.logger.Error("APNs transport failed", "token", deviceToken, "apns_id", notificationID, "err", err)
			return "", invalidTokens, fmt.Errorf("apns dispatch interrupted after %d of %d tokens: %w", i, len(tokens), err)
		}

		switch apnsErr.Kind {
		case apnsclient.KindRejection:
			if apnsErr.IsInvalidToken() {
				invalidTokens = append(invalidTokens, deviceToken)
				continue
			}
			// TopicDisallowed, PayloadTooLarge and friends are configuration
			// problems, not dead tokens.
			d.logger.Warn("APNs rejected notification",
				"reason", apnsErr.Reason, "status", apnsErr.Status, "apns_id", apnsErr.NotificationID)

		case apnsclient.KindDisconnection:
			d.logger.Warn("APNs connection lost, dropping session", "reason", apnsErr.Reason)
			if dErr := d.client.Disconnect(); dErr != nil {
				d.logger.Debug("Closing lost APNs session failed", "err", dErr)
			}
			return "", invalidTokens, fmt.Errorf("apns connection lost after %d of %d tokens: %w", i, len(tokens), err)
		}
	}

	receipt := fmt.Sprintf("success:%d invalid:%d total_fail:%d", successCount, len(invalidTokens), failureCount)
	return receipt, invalidTokens, nil
}

func (d *Dispatcher) buildPayload(content notification.NotificationContent, data map[string]string) *payload.Payload {
	p := payload.NewPayload().
		AlertTitle(content.Title).
		AlertBody(content.Body)
	if content.Sound != "" {
		p.Sound(content.Sound)
	}
	for k, v := range data {
		p.Custom(k, v)
	}
	return p
}

func (d *Dispatcher) sendOptions(notificationID string) []apnsclient.SendOption {
	opts := []apnsclient.SendOption{
		apnsclient.WithPriority(d.opts.Priority),
		apnsclient.WithPushType(apns2.PushTypeAlert),
		apnsclient.WithNotificationID(notificationID),
	}
	if d.opts.Topic != "" {
		opts = append(opts, apnsclient.WithTopic(d.opts.Topic))
	}
	if d.opts.TTL > 0 {
		opts = append(opts, apnsclient.WithExpiration(d.now().Add(d.opts.TTL)))
	}
	return opts
}
