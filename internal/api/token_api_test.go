package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
	urn "github.com/tinywideclouds/go-platform/pkg/net/v1"

	"github.com/tinywideclouds/go-apns-service/internal/api"
)

// --- Mocks ---
type MockTokenStore struct {
	mock.Mock
}

func (m *MockTokenStore) Register(ctx context.Context, u urn.URN, token string) error {
	return m.Called(ctx, u, token).Error(0)
}
func (m *MockTokenStore) Unregister(ctx context.Context, u urn.URN, token string) error {
	return m.Called(ctx, u, token).Error(0)
}
func (m *MockTokenStore) Fetch(ctx context.Context, u urn.URN) ([]string, error) {
	args := m.Called(ctx, u)
	return args.Get(0).([]string), args.Error(1)
}

// --- Setup ---
func setupAPI(t *testing.T) (*api.TokenAPI, *MockTokenStore) {
	t.Helper()
	mockStore := new(MockTokenStore)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return api.NewTokenAPI(mockStore, logger), mockStore
}

// withUser simulates the auth middleware.
func withUser(req *http.Request, userID string) *http.Request {
	ctx := middleware.ContextWithUser(req.Context(), userID, userID, "")
	return req.WithContext(ctx)
}

func tokenBody(token string) *bytes.Reader {
	body, _ := json.Marshal(api.TokenRequest{Token: token})
	return bytes.NewReader(body)
}

// --- Tests ---

func TestRegisterAPNS(t *testing.T) {
	targetURN, _ := urn.Parse("urn:test:user:123")

	t.Run("Success normalises the token", func(t *testing.T) {
		apiHandler, mockStore := setupAPI(t)
		req := withUser(httptest.NewRequest("POST", "/api/v1/register/apns", tokenBody(" ABCDEF0123 ")), targetURN.String())
		w := httptest.NewRecorder()

		mockStore.On("Register", mock.Anything, targetURN, "abcdef0123").Return(nil)

		apiHandler.RegisterAPNS(w, req)

		assert.Equal(t, http.StatusNoContent, w.Code)
		mockStore.AssertExpectations(t)
	})

	t.Run("Rejects bad input", func(t *testing.T) {
		testCases := []struct {
			name string
			body io.Reader
		}{
			{name: "Empty token", body: tokenBody("")},
			{name: "Non-hex token", body: tokenBody("not-a-device-token")},
			{name: "Malformed JSON", body: bytes.NewReader([]byte(`{"token":`))},
		}
		for _, tc := range testCases {
			t.Run(tc.name, func(t *testing.T) {
				apiHandler, mockStore := setupAPI(t)
				req := withUser(httptest.NewRequest("POST", "/api/v1/register/apns", tc.body), targetURN.String())
				w := httptest.NewRecorder()

				apiHandler.RegisterAPNS(w, req)

				assert.Equal(t, http.StatusBadRequest, w.Code)
				mockStore.AssertNotCalled(t, "Register", mock.Anything, mock.Anything, mock.Anything)
			})
		}
	})

	t.Run("Rejects anonymous caller", func(t *testing.T) {
		apiHandler, _ := setupAPI(t)
		req := httptest.NewRequest("POST", "/api/v1/register/apns", tokenBody("aa"))
		w := httptest.NewRecorder()

		apiHandler.RegisterAPNS(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("Rejects caller without a handle", func(t *testing.T) {
		apiHandler, mockStore := setupAPI(t)
		req := httptest.NewRequest("POST", "/api/v1/register/apns", tokenBody("aa"))
		req = req.WithContext(middleware.ContextWithUserID(req.Context(), targetURN.String()))
		w := httptest.NewRecorder()

		apiHandler.RegisterAPNS(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		mockStore.AssertNotCalled(t, "Register", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Storage failure is a 500", func(t *testing.T) {
		apiHandler, mockStore := setupAPI(t)
		req := withUser(httptest.NewRequest("POST", "/api/v1/register/apns", tokenBody("aa")), targetURN.String())
		w := httptest.NewRecorder()

		mockStore.On("Register", mock.Anything, targetURN, "aa").Return(assert.AnError)

		apiHandler.RegisterAPNS(w, req)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}

func TestUnregisterAPNS(t *testing.T) {
	targetURN, _ := urn.Parse("urn:test:user:123")

	t.Run("Success", func(t *testing.T) {
		apiHandler, mockStore := setupAPI(t)
		req := withUser(httptest.NewRequest("POST", "/api/v1/unregister/apns", tokenBody("beef")), targetURN.String())
		w := httptest.NewRecorder()

		mockStore.On("Unregister", mock.Anything, targetURN, "beef").Return(nil)

		apiHandler.UnregisterAPNS(w, req)

		assert.Equal(t, http.StatusNoContent, w.Code)
		mockStore.AssertExpectations(t)
	})

	t.Run("Storage failure is a 500", func(t *testing.T) {
		apiHandler, mockStore := setupAPI(t)
		req := withUser(httptest.NewRequest("POST", "/api/v1/unregister/apns", tokenBody("beef")), targetURN.String())
		w := httptest.NewRecorder()

		mockStore.On("Unregister", mock.Anything, targetURN, "beef").Return(assert.AnError)

		apiHandler.UnregisterAPNS(w, req)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}
