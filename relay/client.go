package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"homework-gateway/middleware/ratelimit/domain"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultBaseURL    = "https://router.requesty.ai/v1"
	DefaultTimeout    = 30 * time.Second
	DefaultRetryAfter = 60 * time.Second

	maxResponseBytes = 8 << 20
)

var (
	ErrMissingAPIKey   = errors.New("api key not configured")
	ErrTimeout         = errors.New("upstream request timed out")
	ErrInvalidResponse = errors.New("invalid upstream response")
)

// ProviderError é uma resposta não-2xx (exceto 429) do upstream.
type ProviderError struct {
	StatusCode int
	Message    string
	Body       []byte
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("upstream status %d: %s", e.StatusCode, e.Message)
}

// Pacer segura chamadas de saída (ex.: *rate.Limiter).
type Pacer interface {
	Wait(ctx context.Context) error
}

// Client fala com /chat/completions.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	Timeout    time.Duration
	Pacer      Pacer
	Logger     *zap.Logger
}

func NewClient(baseURL, apiKey string) *Client {
	url := strings.TrimSpace(baseURL)
	if url == "" {
		url = DefaultBaseURL
	}
	return &Client{
		BaseURL: url,
		APIKey:  strings.TrimSpace(apiKey),
		Timeout: DefaultTimeout,
	}
}

func (c *Client) log() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}

// Forward envia o corpo como veio e devolve o JSON do upstream.
//
// Erros: ErrMissingAPIKey, ErrTimeout, *domain.ExceededError (429),
// *ProviderError (outros não-2xx), ErrInvalidResponse (corpo sem JSON, qualquer status).
func (c *Client) Forward(ctx context.Context, body []byte) (json.RawMessage, error) {
	if c == nil || c.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	if c.Pacer != nil {
		if err := c.Pacer.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: waiting for upstream pacer: %v", ErrTimeout, err)
		}
	}

	url := strings.TrimRight(c.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	reqID := uuid.NewString()
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-Id", reqID)

	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s", ErrTimeout, time.Since(start).Round(time.Millisecond))
		}
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close() // nolint:errcheck // best-effort cleanup

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		return nil, fmt.Errorf("read response: %w", err)
	}

	c.log().Debug("upstream call",
		zap.String("upstream_request_id", reqID),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)))

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &domain.ExceededError{
			RetryAfter: ParseRetryAfter(resp.Header.Get("Retry-After"), time.Now()),
			Reason:     domain.ReasonUpstream,
		}
	}

	// corpo que não é JSON vira ErrInvalidResponse qualquer que seja o status
	if !json.Valid(raw) {
		return nil, fmt.Errorf("%w (status %d)", ErrInvalidResponse, resp.StatusCode)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, &ProviderError{
			StatusCode: resp.StatusCode,
			Message:    providerMessage(resp.StatusCode, raw),
			Body:       raw,
		}
	}
	return json.RawMessage(raw), nil
}

// ParseRetryAfter aceita segundos ou HTTP-date; sem valor utilizável, 60s.
func ParseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return DefaultRetryAfter
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs <= 0 {
			return DefaultRetryAfter
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return DefaultRetryAfter
}

// providerMessage usa error.message do corpo quando existir.
func providerMessage(status int, raw []byte) string {
	var parsed struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &parsed); err == nil && parsed.Error.Message != "" {
		return parsed.Error.Message
	}
	return "Status " + strconv.Itoa(status)
}
