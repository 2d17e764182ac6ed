package api

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/susu3304/chipledger/internal/ledger"
	"github.com/susu3304/chipledger/internal/player"
	"github.com/susu3304/chipledger/internal/settlement"
)

func generateRandomString(length int) string {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return base64.RawURLEncoding.EncodeToString(b)[:length]
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("api: failed to encode response: %v", err)
	}
}

func writeErrorStatus(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeError maps domain errors to HTTP statuses. Unknown errors are logged
// and reported as 500 without detail.
func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Printf("api: internal error: %v", err)
		writeErrorStatus(w, status, "internal server error")
		return
	}
	writeErrorStatus(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ledger.ErrInvalidArgument), errors.Is(err, player.ErrInvalidPlayer):
		return http.StatusBadRequest
	case errors.Is(err, player.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, ledger.ErrRoomNotFound), errors.Is(err, ledger.ErrSessionNotFound),
		errors.Is(err, ledger.ErrUnknownPlayer), errors.Is(err, player.ErrPlayerNotFound):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrAlreadyExists), errors.Is(err, ledger.ErrAlreadyMember),
		errors.Is(err, ledger.ErrSessionFrozen), errors.Is(err, player.ErrPlayerExists):
		return http.StatusConflict
	case errors.Is(err, settlement.ErrUnbalanced):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON reads the request body into v and writes a 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeErrorStatus(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}
