package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestUpstream_EveryNthCallIs429(t *testing.T) {
	u := &upstream{every: 2, retryAfter: 30, log: zap.NewNop()}
	body := `{"model":"m","messages":[{"role":"user","content":"2+2?"}]}`

	w1 := httptest.NewRecorder()
	u.completions(w1, httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, w1.Code)

	var out struct {
		Model   string `json:"model"`
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	require.NoError(t, json.Unmarshal(w1.Body.Bytes(), &out))
	assert.Equal(t, "m", out.Model)
	require.Len(t, out.Choices, 1)
	assert.Contains(t, out.Choices[0].Message.Content, "Answer #1")

	w2 := httptest.NewRecorder()
	u.completions(w2, httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(body)))
	assert.Equal(t, http.StatusTooManyRequests, w2.Code)
	assert.Equal(t, "30", w2.Header().Get("Retry-After"))
}

func TestUpstream_RejectsEmptyMessages(t *testing.T) {
	u := &upstream{log: zap.NewNop()}

	w := httptest.NewRecorder()
	u.completions(w, httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(`{"model":"m"}`)))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
