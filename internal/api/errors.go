// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/digimedia-pe/wagate/internal/outbound"
	"github.com/digimedia-pe/wagate/internal/qr"
	"github.com/digimedia-pe/wagate/internal/ratelimit"
	"github.com/digimedia-pe/wagate/internal/session"
)

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// errorBody is the uniform error envelope.
type errorBody struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	ResetAt string `json:"resetAt,omitempty"`
	Expires string `json:"expiresAt,omitempty"`
}

// writeError maps domain errors onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	var (
		qrActive *session.QRActiveError
		limit    *ratelimit.LimitExceededError
		valErr   *outbound.ValidationError
		sendErr  *outbound.SendError
	)

	switch {
	case errors.As(err, &limit):
		w.Header().Set("Retry-After", strconv.Itoa(int(time.Until(limit.ResetAt).Seconds())+1))
		writeJSON(w, http.StatusTooManyRequests, errorBody{
			Error:   err.Error(),
			Code:    "rate_limited",
			ResetAt: limit.ResetAt.Format(time.RFC3339),
		})
	case errors.As(err, &qrActive):
		writeJSON(w, http.StatusConflict, errorBody{
			Error:   err.Error(),
			Code:    "qr_active",
			Expires: qrActive.ExpiresAt.Format(time.RFC3339),
		})
	case errors.Is(err, session.ErrConnectionInProgress):
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error(), Code: "connection_in_progress"})
	case errors.Is(err, outbound.ErrNotConnected):
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error(), Code: "not_connected"})
	case errors.As(err, &valErr):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error(), Code: "invalid_request"})
	case errors.Is(err, session.ErrImageTooLarge):
		writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{Error: err.Error(), Code: "image_too_large"})
	case errors.Is(err, session.ErrImageUnavailable):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: err.Error(), Code: "image_unavailable"})
	case errors.Is(err, qr.ErrNoActiveCredential):
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error(), Code: "no_active_qr"})
	case errors.As(err, &sendErr):
		writeJSON(w, http.StatusBadGateway, errorBody{Error: err.Error(), Code: string(sendErr.Class)})
	default:
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: err.Error()})
	}
}

// writeBadRequest rejects malformed request bodies.
func writeBadRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: msg, Code: "invalid_request"})
}
