package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"homework-gateway/middleware/ratelimit/domain"

	"go.uber.org/zap"
)

const (
	DefaultModel       = "google/gemini-2.5-pro-exp-03-25"
	DefaultMaxAttempts = 3
)

var ErrEmptyAnswer = errors.New("upstream returned no answer")

// Solver transforma {question, imageUrl} numa chamada de chat e tenta de novo
// quando o upstream responde 429 (espera 2^tentativa segundos).
type Solver struct {
	Client      *Client
	Model       string
	MaxAttempts int
	// Sleep é trocado nos testes.
	Sleep  func(ctx context.Context, d time.Duration) error
	Logger *zap.Logger
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func buildRequest(model, question, image string) chatRequest {
	var content any = question
	if image != "" {
		content = []contentPart{
			{Type: "text", Text: question},
			{Type: "image_url", ImageURL: &imageURL{URL: image}},
		}
	}
	return chatRequest{
		Model:    model,
		Messages: []chatMessage{{Role: "user", Content: content}},
	}
}

// Solve devolve o texto da primeira escolha.
// Esgotadas as tentativas em 429, retorna o *domain.ExceededError do upstream.
func (s *Solver) Solve(ctx context.Context, question, image string) (string, error) {
	question = strings.TrimSpace(question)
	image = strings.TrimSpace(image)

	model := s.Model
	if model == "" {
		model = DefaultModel
	}
	attempts := s.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}
	sleep := s.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}
	log := s.Logger
	if log == nil {
		log = zap.NewNop()
	}

	body, err := json.Marshal(buildRequest(model, question, image))
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		raw, err := s.Client.Forward(ctx, body)
		if err == nil {
			return firstChoice(raw)
		}
		lastErr = err

		var exceeded *domain.ExceededError
		if !errors.As(err, &exceeded) || attempt == attempts {
			break
		}

		backoff := time.Duration(1<<attempt) * time.Second
		log.Warn("upstream rate limited, backing off",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff))
		if err := sleep(ctx, backoff); err != nil {
			return "", err
		}
	}
	return "", lastErr
}

func firstChoice(raw []byte) (string, error) {
	var resp chatResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyAnswer
	}
	return resp.Choices[0].Message.Content, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
