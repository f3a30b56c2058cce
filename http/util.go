package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nutrilog/sessiond/logical"
	"github.com/nutrilog/sessiond/login"
	"github.com/nutrilog/sessiond/principal"
	"github.com/nutrilog/sessiond/revocation"
	"github.com/nutrilog/sessiond/token"
)

// Uniform boundary messages. Credential failures are internally
// distinguished for logging but externally identical, so a caller
// cannot enumerate accounts or probe which check failed.
const (
	msgInvalidCredentials = "invalid credentials"
	msgSessionExpired     = "session expired, restart login"
)

type errorResponse struct {
	Error string `json:"error"`
}

func respondJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, &errorResponse{Error: message})
}

// respondServiceError maps typed core failures to status codes and the
// uniform external messages.
func respondServiceError(w http.ResponseWriter, err error) {
	var invalid *token.InvalidCredentialError
	if errors.As(err, &invalid) {
		respondError(w, http.StatusUnauthorized, msgInvalidCredentials)
		return
	}

	var rejected *login.RejectedError
	if errors.As(err, &rejected) {
		if rejected.Reason == login.ReasonSessionExpired {
			respondError(w, http.StatusUnauthorized, msgSessionExpired)
			return
		}
		respondError(w, http.StatusUnauthorized, msgInvalidCredentials)
		return
	}

	if errors.Is(err, principal.ErrNotFound) {
		respondError(w, http.StatusNotFound, "not found")
		return
	}

	if errors.Is(err, revocation.ErrStoreUnavailable) {
		respondError(w, http.StatusServiceUnavailable, "service unavailable")
		return
	}

	var coded *logical.CodedError
	if errors.As(err, &coded) {
		respondError(w, coded.Code(), coded.Message)
		return
	}

	respondError(w, http.StatusInternalServerError, "internal error")
}

func decodeJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
