package pipeline

import (
	"context"
	"log/slog"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-platform/pkg/notification/v1"

	"github.com/tinywideclouds/go-apns-service/pkg/dispatch"
)

// NewProcessor creates the stage that looks up a recipient's device tokens
// and hands the notification to the APNs dispatcher.
func NewProcessor(
	dispatcher dispatch.Dispatcher,
	tokenStore dispatch.TokenStore,
	logger *slog.Logger,
) messagepipeline.StreamProcessor[notification.NotificationRequest] {

	return func(ctx context.Context, original messagepipeline.Message, request *notification.NotificationRequest) error {
		procLogger := logger.With(
			"recipient_id", request.RecipientID.String(),
			"pubsub_msg_id", original.ID,
		)

		// 1. Lookup. The inbound request carries content only.
		tokens, err := tokenStore.Fetch(ctx, request.RecipientID)
		if err != nil {
			procLogger.Error("Failed to fetch device tokens", "err", err)
			return err
		}

		if len(tokens) == 0 {
			procLogger.Info("No devices registered for user; dropping notification.")
			return nil
		}

		// 2. Dispatch
		receipt, invalidTokens, err := dispatcher.Dispatch(ctx, tokens, request.Content, request.DataPayload)

		// 3. Self-Healing. Runs even when the batch was cut short.
		if len(invalidTokens) > 0 {
			procLogger.Info("Cleaning up invalid APNs tokens", "count", len(invalidTokens))
			for _, t := range invalidTokens {
				if err := tokenStore.Unregister(ctx, request.RecipientID, t); err != nil {
					procLogger.Warn("Failed to delete APNs token", "token", t, "err", err)
				}
			}
		}

		if err != nil {
			procLogger.Error("APNs Dispatch failed", "err", err)
			return err // Retryable
		}
		procLogger.Info("APNs Dispatched", "receipt", receipt)
		return nil
	}
}
