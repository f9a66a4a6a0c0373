package api

import (
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
	"github.com/tinywideclouds/go-microservice-base/pkg/response"
	urn "github.com/tinywideclouds/go-platform/pkg/net/v1"

	"github.com/tinywideclouds/go-apns-service/pkg/dispatch"
)

type TokenAPI struct {
	Store  dispatch.TokenStore
	Logger *slog.Logger
}

func NewTokenAPI(store dispatch.TokenStore, logger *slog.Logger) *TokenAPI {
	return &TokenAPI{
		Store:  store,
		Logger: logger.With("component", "TokenAPI"),
	}
}

// TokenRequest carries the hex device token handed out by iOS.
type TokenRequest struct {
	Token string `json:"token"`
}

func (api *TokenAPI) RegisterAPNS(w http.ResponseWriter, r *http.Request) {
	userURN, token, ok := api.decode(w, r)
	if !ok {
		return
	}

	if err := api.Store.Register(r.Context(), userURN, token); err != nil {
		api.Logger.Error("failed to register apns token", "err", err)
		response.WriteJSONError(w, http.StatusInternalServerError, "storage failed")
		return
	}
	api.Logger.Info("RegisterAPNS: token registered", "user", userURN.String())

	w.WriteHeader(http.StatusNoContent)
}

func (api *TokenAPI) UnregisterAPNS(w http.ResponseWriter, r *http.Request) {
	userURN, token, ok := api.decode(w, r)
	if !ok {
		return
	}

	if err := api.Store.Unregister(r.Context(), userURN, token); err != nil {
		api.Logger.Warn("failed to unregister apns token", "err", err)
		response.WriteJSONError(w, http.StatusInternalServerError, "failed to unregister token")
		return
	}
	api.Logger.Info("UnregisterAPNS: token unregistered", "user", userURN.String())

	w.WriteHeader(http.StatusNoContent)
}

// decode resolves the caller and validates the token body. It writes the
// error response itself and reports whether the handler should continue.
func (api *TokenAPI) decode(w http.ResponseWriter, r *http.Request) (urn.URN, string, bool) {
	userID, ok := middleware.GetUserHandleFromContext(r.Context())
	if !ok {
		response.WriteJSONError(w, http.StatusUnauthorized, "unauthorized")
		return urn.URN{}, "", false
	}
	userURN, err := urn.Parse(userID)
	if err != nil {
		api.Logger.Warn("Rejecting request with malformed user id", "user_id", userID, "err", err)
		response.WriteJSONError(w, http.StatusUnauthorized, "unauthorized")
		return urn.URN{}, "", false
	}

	var req TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "invalid json")
		return urn.URN{}, "", false
	}

	token := strings.ToLower(strings.TrimSpace(req.Token))
	if token == "" {
		response.WriteJSONError(w, http.StatusBadRequest, "missing token")
		return urn.URN{}, "", false
	}
	if _, err := hex.DecodeString(token); err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "token must be hex encoded")
		return urn.URN{}, "", false
	}
	return userURN, token, true
}
