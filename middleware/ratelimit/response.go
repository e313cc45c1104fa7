package ratelimit

import (
	"encoding/json"
	"net/http"
	"strconv"

	"homework-gateway/middleware/ratelimit/domain"
)

// Rejection é o corpo padrão de 429.
type Rejection struct {
	Error      string `json:"error"`
	Details    string `json:"details"`
	RetryAfter int    `json:"retryAfter"`
}

// NewRejection monta o corpo para uma espera de `seconds` segundos.
func NewRejection(seconds int) Rejection {
	return Rejection{
		Error:      "Rate limit exceeded",
		Details:    "Please wait " + strconv.Itoa(seconds) + " seconds before trying again",
		RetryAfter: seconds,
	}
}

// WriteTooManyRequests escreve 429 + Retry-After + JSON.
func WriteTooManyRequests(w http.ResponseWriter, seconds int) {
	WriteRejection(w, http.StatusTooManyRequests, seconds)
}

// WriteRejection permite status customizado (ex.: RejectStatus do middleware).
func WriteRejection(w http.ResponseWriter, status, seconds int) {
	if seconds < 1 {
		seconds = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(seconds))
	WriteJSON(w, status, NewRejection(seconds))
}

// WriteExceeded traduz um *domain.ExceededError.
func WriteExceeded(w http.ResponseWriter, err *domain.ExceededError) {
	WriteTooManyRequests(w, err.RetryAfterSeconds())
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func formatInt(v int) string { return strconv.Itoa(v) }
