// Package pipeline contains the core message processing components for the service.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-platform/pkg/notification/v1"
)

// NotificationRequestTransformer unmarshals a raw message payload into a
// notification.NotificationRequest.
//
// The native type's UnmarshalJSON does the protojson decoding and URN
// validation, so a malformed payload surfaces here as a single error.
func NotificationRequestTransformer(
	_ context.Context,
	msg *messagepipeline.Message,
) (*notification.NotificationRequest, bool, error) {
	var nativeReq notification.NotificationRequest

	if err := json.Unmarshal(msg.Payload, &nativeReq); err != nil {
		// skip=true lets the StreamingService Nack and route to the DLQ.
		return nil, true, fmt.Errorf("failed to unmarshal notification request from message %s: %w", msg.ID, err)
	}

	return &nativeReq, false, nil
}
