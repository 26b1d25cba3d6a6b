package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/cellmind/agentcore/runtime/gateway"
	"github.com/cellmind/agentcore/runtime/model"
)

// errorResponse is the {error, status} envelope every failed request
// returns, matching the wire contract exactly: no HTML error bodies, ever.
type errorResponse struct {
	Error  string `json:"error"`
	Status int    `json:"status"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error(), Status: status})
}

// statusFor maps an error to the HTTP status the wire contract requires:
// 400 invalid input, 404 unknown id, 500 internal, 503 upstream LLM
// unavailable, 504 upstream timeout.
func statusFor(err error) int {
	var exhausted *gateway.ExhaustedError
	if errors.As(err, &exhausted) {
		return upstreamStatus(exhausted.LastErr)
	}
	var statusErr *gateway.StatusError
	if errors.As(err, &statusErr) {
		return upstreamStatus(statusErr)
	}
	if errors.Is(err, errInvalidInput) {
		return http.StatusBadRequest
	}
	if errors.Is(err, errNotFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func upstreamStatus(err error) int {
	var statusErr *gateway.StatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.StatusCode == http.StatusRequestTimeout || statusErr.StatusCode == http.StatusGatewayTimeout:
			return http.StatusGatewayTimeout
		case statusErr.StatusCode == http.StatusUnauthorized || statusErr.StatusCode == http.StatusForbidden:
			return http.StatusBadRequest
		case statusErr.StatusCode == http.StatusTooManyRequests || statusErr.StatusCode >= 500:
			return http.StatusServiceUnavailable
		}
	}
	if errors.Is(err, model.ErrStreamingUnsupported) {
		return http.StatusBadRequest
	}
	return http.StatusServiceUnavailable
}

var (
	errInvalidInput = errors.New("invalid input")
	errNotFound     = errors.New("not found")
)

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errors.Join(errInvalidInput, err)
	}
	return nil
}
