package relay

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"homework-gateway/middleware/ratelimit"
	"homework-gateway/middleware/ratelimit/domain"

	"go.uber.org/zap"
)

// imagens chegam como data URL dentro do JSON
const defaultMaxBodyBytes = 10 << 20

// Penalizer recebe o Retry-After do upstream (application.Service implementa).
type Penalizer interface {
	Penalize(ctx context.Context, key domain.Key, retryAfter time.Duration)
}

type Handler struct {
	Client       *Client
	Solver       *Solver
	Feedback     Penalizer
	KeyFn        ratelimit.KeyFunc
	MaxBodyBytes int64
	Logger       *zap.Logger
}

type apiError struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
	Status  int    `json:"status,omitempty"`
	Type    string `json:"type,omitempty"`
}

type solveRequest struct {
	Question string `json:"question"`
	ImageURL string `json:"imageUrl"`
}

type solveResponse struct {
	Answer string `json:"answer"`
}

func (h *Handler) log() *zap.Logger {
	if h.Logger == nil {
		return zap.NewNop()
	}
	return h.Logger
}

func (h *Handler) key(r *http.Request) domain.Key {
	if k, ok := ratelimit.KeyFromContext(r.Context()); ok {
		return k
	}
	if h.KeyFn != nil {
		if k := h.KeyFn(r); k != "" {
			return domain.Key(k)
		}
	}
	return domain.UnknownKey
}

func (h *Handler) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	limit := h.MaxBodyBytes
	if limit <= 0 {
		limit = defaultMaxBodyBytes
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		ratelimit.WriteJSON(w, http.StatusBadRequest, apiError{Error: "Invalid request", Details: err.Error()})
		return nil, false
	}
	return body, true
}

// Chat repassa o corpo para /chat/completions e devolve o JSON do upstream.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	if h.Client == nil || h.Client.APIKey == "" {
		h.log().Error("API key not found in environment variables")
		ratelimit.WriteJSON(w, http.StatusInternalServerError, apiError{
			Error:   "Server configuration error",
			Details: "API key not configured",
		})
		return
	}

	body, ok := h.readBody(w, r)
	if !ok {
		return
	}

	data, err := h.Client.Forward(r.Context(), body)
	if err != nil {
		h.writeUpstreamError(w, r, err, "Failed to process request")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// Solve responde {answer} para {question, imageUrl}.
func (h *Handler) Solve(w http.ResponseWriter, r *http.Request) {
	body, ok := h.readBody(w, r)
	if !ok {
		return
	}

	var in solveRequest
	if err := json.Unmarshal(body, &in); err != nil {
		ratelimit.WriteJSON(w, http.StatusBadRequest, apiError{Error: "Invalid request", Details: "body must be JSON"})
		return
	}
	if strings.TrimSpace(in.Question) == "" {
		ratelimit.WriteJSON(w, http.StatusBadRequest, apiError{Error: "Invalid request", Details: "question is required"})
		return
	}
	if h.Solver == nil {
		ratelimit.WriteJSON(w, http.StatusInternalServerError, apiError{
			Error:   "Server configuration error",
			Details: "solver not configured",
		})
		return
	}

	answer, err := h.Solver.Solve(r.Context(), in.Question, in.ImageURL)
	if err != nil {
		h.writeUpstreamError(w, r, err, "Failed to process request after multiple attempts")
		return
	}
	ratelimit.WriteJSON(w, http.StatusOK, solveResponse{Answer: answer})
}

func (h *Handler) writeUpstreamError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	var (
		exceeded *domain.ExceededError
		provider *ProviderError
	)

	switch {
	case errors.As(err, &exceeded):
		key := h.key(r)
		if h.Feedback != nil {
			h.Feedback.Penalize(r.Context(), key, exceeded.RetryAfter)
		}
		h.log().Warn("upstream rate limited",
			zap.String("key", string(key)),
			zap.Int("retry_after_s", exceeded.RetryAfterSeconds()))
		ratelimit.WriteExceeded(w, exceeded)

	case errors.Is(err, ErrMissingAPIKey):
		ratelimit.WriteJSON(w, http.StatusInternalServerError, apiError{
			Error:   "Server configuration error",
			Details: "API key not configured",
		})

	case errors.Is(err, ErrTimeout):
		ratelimit.WriteJSON(w, http.StatusGatewayTimeout, apiError{
			Error:   "Request timeout",
			Details: "The request took too long to complete",
		})

	case errors.Is(err, ErrInvalidResponse):
		h.log().Error("failed to parse upstream response", zap.Error(err))
		ratelimit.WriteJSON(w, http.StatusInternalServerError, apiError{
			Error:   "Invalid API response",
			Details: "Failed to parse API response",
		})

	case errors.As(err, &provider):
		h.log().Error("upstream error response",
			zap.Int("status", provider.StatusCode),
			zap.ByteString("body", provider.Body))
		ratelimit.WriteJSON(w, provider.StatusCode, apiError{
			Error:   "API request failed",
			Details: provider.Message,
			Status:  provider.StatusCode,
		})

	default:
		h.log().Error("relay error", zap.Error(err))
		ratelimit.WriteJSON(w, http.StatusInternalServerError, apiError{
			Error:   fallback,
			Details: err.Error(),
			Type:    "UpstreamError",
		})
	}
}
