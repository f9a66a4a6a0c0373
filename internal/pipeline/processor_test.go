package pipeline_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	urn "github.com/tinywideclouds/go-platform/pkg/net/v1"
	"github.com/tinywideclouds/go-platform/pkg/notification/v1"

	"github.com/tinywideclouds/go-apns-service/internal/pipeline"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- Typed Mocks ---

type mockDispatcher struct {
	mock.Mock
}

func (m *mockDispatcher) Dispatch(ctx context.Context, tokens []string, content notification.NotificationContent, data map[string]string) (string, []string, error) {
	args := m.Called(ctx, tokens, content, data)
	var invalid []string
	if v := args.Get(1); v != nil {
		invalid = v.([]string)
	}
	return args.String(0), invalid, args.Error(2)
}

type mockTokenStore struct {
	mock.Mock
}

func (m *mockTokenStore) Fetch(ctx context.Context, user urn.URN) ([]string, error) {
	args := m.Called(ctx, user)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}
func (m *mockTokenStore) Unregister(ctx context.Context, user urn.URN, token string) error {
	return m.Called(ctx, user, token).Error(0)
}
func (m *mockTokenStore) Register(_ context.Context, _ urn.URN, _ string) error { return nil }

func TestProcessor(t *testing.T) {
	ctx := context.Background()
	logger := newTestLogger()
	testURN, _ := urn.Parse("urn:sm:user:test-processor")

	inboundReq := &notification.NotificationRequest{
		RecipientID: testURN,
		Content:     notification.NotificationContent{Title: "Hello"},
		DataPayload: map[string]string{"k": "v"},
	}

	t.Run("Dispatches to registered tokens", func(t *testing.T) {
		dispatcher := new(mockDispatcher)
		storeMock := new(mockTokenStore)

		storeMock.On("Fetch", mock.Anything, testURN).Return([]string{"aa11", "bb22"}, nil)
		dispatcher.On("Dispatch", mock.Anything, []string{"aa11", "bb22"}, inboundReq.Content, inboundReq.DataPayload).
			Return("success:2 invalid:0 total_fail:0", nil, nil)

		processor := pipeline.NewProcessor(dispatcher, storeMock, logger)
		err := processor(ctx, messagepipeline.Message{}, inboundReq)

		require.NoError(t, err)
		dispatcher.AssertExpectations(t)
		storeMock.AssertNotCalled(t, "Unregister", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("No tokens drops the notification", func(t *testing.T) {
		dispatcher := new(mockDispatcher)
		storeMock := new(mockTokenStore)
		storeMock.On("Fetch", mock.Anything, testURN).Return([]string{}, nil)

		processor := pipeline.NewProcessor(dispatcher, storeMock, logger)
		require.NoError(t, processor(ctx, messagepipeline.Message{}, inboundReq))
		dispatcher.AssertNotCalled(t, "Dispatch", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Store failure is retryable", func(t *testing.T) {
		storeMock := new(mockTokenStore)
		storeMock.On("Fetch", mock.Anything, testURN).Return(nil, errors.New("firestore down"))

		processor := pipeline.NewProcessor(new(mockDispatcher), storeMock, logger)
		assert.Error(t, processor(ctx, messagepipeline.Message{}, inboundReq))
	})

	t.Run("Self-Healing Token Cleanup", func(t *testing.T) {
		dispatcher := new(mockDispatcher)
		storeMock := new(mockTokenStore)

		storeMock.On("Fetch", mock.Anything, testURN).Return([]string{"dead"}, nil)
		dispatcher.On("Dispatch", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return("success:0 invalid:1 total_fail:1", []string{"dead"}, nil)
		storeMock.On("Unregister", mock.Anything, testURN, "dead").Return(nil)

		processor := pipeline.NewProcessor(dispatcher, storeMock, logger)
		err := processor(ctx, messagepipeline.Message{}, inboundReq)

		require.NoError(t, err)
		storeMock.AssertExpectations(t)
	})

	t.Run("Cleanup still runs when the connection is lost", func(t *testing.T) {
		dispatcher := new(mockDispatcher)
		storeMock := new(mockTokenStore)
		lost := errors.New("apns connection lost")

		storeMock.On("Fetch", mock.Anything, testURN).Return([]string{"dead", "next"}, nil)
		dispatcher.On("Dispatch", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return("", []string{"dead"}, lost)
		storeMock.On("Unregister", mock.Anything, testURN, "dead").Return(errors.New("ignored"))

		processor := pipeline.NewProcessor(dispatcher, storeMock, logger)
		err := processor(ctx, messagepipeline.Message{}, inboundReq)

		assert.ErrorIs(t, err, lost)
		storeMock.AssertExpectations(t)
	})
}
