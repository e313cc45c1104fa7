package application

import (
	"context"
	"testing"
	"time"

	"homework-gateway/middleware/ratelimit/domain"
)

type fakeLimiter struct {
	dec domain.Decision

	checked   []domain.Key
	checkedAt []time.Time
	penalized map[domain.Key]time.Duration
}

func (f *fakeLimiter) Check(key domain.Key, now time.Time) domain.Decision {
	f.checked = append(f.checked, key)
	f.checkedAt = append(f.checkedAt, now)
	return f.dec
}

func (f *fakeLimiter) Penalize(key domain.Key, d time.Duration, _ time.Time) {
	if f.penalized == nil {
		f.penalized = make(map[domain.Key]time.Duration)
	}
	f.penalized[key] = d
}

type fakeStats struct {
	events []domain.StatsEvent
}

func (f *fakeStats) Record(_ context.Context, ev domain.StatsEvent) error {
	f.events = append(f.events, ev)
	return nil
}

func TestService_Decide_AllowsWhenNoLimiter(t *testing.T) {
	svc := Service{}
	dec := svc.Decide("k")
	if !dec.Allowed {
		t.Fatalf("expected allowed")
	}
	if dec.RetryAfter != 0 {
		t.Fatalf("expected RetryAfter=0 when allowed, got %s", dec.RetryAfter)
	}
}

func TestService_Decide_UsesInjectedClock(t *testing.T) {
	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	lim := &fakeLimiter{dec: domain.Decision{Allowed: true}}
	svc := Service{Limiter: lim, Clock: func() time.Time { return at }}

	svc.Decide("k")
	if len(lim.checkedAt) != 1 || !lim.checkedAt[0].Equal(at) {
		t.Fatalf("expected check at injected time, got %v", lim.checkedAt)
	}
}

func TestService_Decide_EmptyKeyFallsBackToUnknown(t *testing.T) {
	lim := &fakeLimiter{dec: domain.Decision{Allowed: true}}
	svc := Service{Limiter: lim}

	svc.Decide("")
	if lim.checked[0] != domain.UnknownKey {
		t.Fatalf("expected %q, got %q", domain.UnknownKey, lim.checked[0])
	}
}

func TestService_Decide_PassesRejection(t *testing.T) {
	lim := &fakeLimiter{dec: domain.Decision{RetryAfter: 42 * time.Second, Reason: domain.ReasonLimited}}
	svc := Service{Limiter: lim}

	dec := svc.Decide("k")
	if dec.Allowed {
		t.Fatalf("expected blocked")
	}
	if dec.RetryAfterSeconds() != 42 {
		t.Fatalf("expected 42s, got %d", dec.RetryAfterSeconds())
	}
}

func TestService_Penalize_ForwardsAndRecords(t *testing.T) {
	lim := &fakeLimiter{}
	stats := &fakeStats{}
	svc := Service{Limiter: lim, Stats: stats}

	svc.Penalize(context.Background(), "k", 30*time.Second)

	if lim.penalized["k"] != 30*time.Second {
		t.Fatalf("expected limiter penalized for 30s, got %v", lim.penalized)
	}
	if len(stats.events) != 1 || stats.events[0].Reason != domain.ReasonUpstream {
		t.Fatalf("expected one upstream stats event, got %+v", stats.events)
	}
}

func TestService_Penalize_IgnoresNonPositive(t *testing.T) {
	lim := &fakeLimiter{}
	svc := Service{Limiter: lim}

	svc.Penalize(context.Background(), "k", 0)
	if len(lim.penalized) != 0 {
		t.Fatalf("expected no penalty, got %v", lim.penalized)
	}
}
