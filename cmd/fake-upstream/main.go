// fake-upstream imita /v1/chat/completions para testar o gateway localmente,
// inclusive o caminho de 429 do upstream.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"sync/atomic"
	"time"

	"homework-gateway/logging"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type upstream struct {
	calls      atomic.Int64
	every      int64
	retryAfter int
	log        *zap.Logger
}

type completionRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string          `json:"role"`
		Content json.RawMessage `json:"content"`
	} `json:"messages"`
}

func (u *upstream) completions(w http.ResponseWriter, r *http.Request) {
	n := u.calls.Add(1)
	if u.every > 0 && n%u.every == 0 {
		u.log.Info("simulating upstream rate limit", zap.Int64("call", n))
		w.Header().Set("Retry-After", strconv.Itoa(u.retryAfter))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limit reached"}}`))
		return
	}

	var req completionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Messages) == 0 {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"messages are required"}}`))
		return
	}

	resp := map[string]any{
		"id":      "chatcmpl-" + uuid.NewString(),
		"object":  "chat.completion",
		"created": time.Now().Unix(),
		"model":   req.Model,
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message": map[string]string{
				"role":    "assistant",
				"content": fmt.Sprintf("**Answer #%d**\n\n$$x = \\frac{-b \\pm \\sqrt{b^2-4ac}}{2a}$$", n),
			},
		}},
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func main() {
	log, err := logging.New(os.Getenv("LOG_ENV"), os.Getenv("LOG_LEVEL"), "")
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	u := &upstream{
		every:      int64(envInt("FAKE_429_EVERY", 4)),
		retryAfter: envInt("FAKE_RETRY_AFTER", 30),
		log:        log,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(logging.Middleware(log))
	r.Post("/v1/chat/completions", u.completions)

	addr := ":8081"
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		addr = v
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Info("fake upstream listening", zap.String("addr", addr), zap.Int64("429_every", u.every))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("server error", zap.Error(err))
	}
}

func envInt(k string, def int) int {
	v, err := strconv.Atoi(os.Getenv(k))
	if err != nil {
		return def
	}
	return v
}
