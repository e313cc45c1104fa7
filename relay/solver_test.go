package relay

import (
	"context"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"homework-gateway/middleware/ratelimit/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const completion = `{"choices":[{"message":{"role":"assistant","content":"**4**"}}]}`

func recordSleeps(out *[]time.Duration) func(context.Context, time.Duration) error {
	return func(_ context.Context, d time.Duration) error {
		*out = append(*out, d)
		return nil
	}
}

func TestSolver_ReturnsFirstChoice(t *testing.T) {
	c := upstream(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(completion))
	})
	s := &Solver{Client: c}

	answer, err := s.Solve(context.Background(), "2+2?", "")
	require.NoError(t, err)
	assert.Equal(t, "**4**", answer)
}

func TestSolver_RetriesOn429WithBackoff(t *testing.T) {
	var calls atomic.Int32
	c := upstream(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(completion))
	})
	var sleeps []time.Duration
	s := &Solver{Client: c, Sleep: recordSleeps(&sleeps)}

	answer, err := s.Solve(context.Background(), "2+2?", "")
	require.NoError(t, err)
	assert.Equal(t, "**4**", answer)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, sleeps)
}

func TestSolver_GivesUpAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	c := upstream(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Retry-After", "15")
		w.WriteHeader(http.StatusTooManyRequests)
	})
	var sleeps []time.Duration
	s := &Solver{Client: c, MaxAttempts: 3, Sleep: recordSleeps(&sleeps)}

	_, err := s.Solve(context.Background(), "2+2?", "")
	var ex *domain.ExceededError
	require.ErrorAs(t, err, &ex)
	assert.Equal(t, 15*time.Second, ex.RetryAfter)
	assert.Equal(t, int32(3), calls.Load())
	assert.Len(t, sleeps, 2)
}

func TestSolver_DoesNotRetryOtherErrors(t *testing.T) {
	var calls atomic.Int32
	c := upstream(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"boom"}}`))
	})
	s := &Solver{Client: c, Sleep: recordSleeps(new([]time.Duration))}

	_, err := s.Solve(context.Background(), "2+2?", "")
	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, int32(1), calls.Load())
}

func TestSolver_EmptyChoices(t *testing.T) {
	c := upstream(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	})
	s := &Solver{Client: c}

	_, err := s.Solve(context.Background(), "2+2?", "")
	assert.ErrorIs(t, err, ErrEmptyAnswer)
}

func TestSolver_SleepHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepCtx(ctx, time.Hour), context.Canceled)
}
