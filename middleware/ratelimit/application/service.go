package application

import (
	"context"
	"time"

	"homework-gateway/middleware/ratelimit/domain"
)

// Service concentra a regra de aplicação do rate limit.
//
// Ele não sabe nada sobre HTTP (headers/status), apenas retorna uma decisão.
type Service struct {
	Limiter domain.WindowLimiter
	// Stats é opcional e só é usado por Penalize; decisões são gravadas
	// pelo adapter, que conhece método/rota.
	Stats domain.StatsStore
	Clock func() time.Time
}

func (s Service) now() time.Time {
	if s.Clock != nil {
		return s.Clock()
	}
	return time.Now()
}

func (s Service) Decide(key domain.Key) domain.Decision {
	if s.Limiter == nil {
		return domain.Decision{Allowed: true, Reason: domain.ReasonAdmitted}
	}
	if key == "" {
		key = domain.UnknownKey
	}
	return s.Limiter.Check(key, s.now())
}

// Penalize aplica no cliente o tempo de espera pedido pelo upstream.
// Sem Retry-After utilizável, o chamador deve passar um padrão (> 0).
func (s Service) Penalize(ctx context.Context, key domain.Key, retryAfter time.Duration) {
	if s.Limiter == nil || retryAfter <= 0 {
		return
	}
	if key == "" {
		key = domain.UnknownKey
	}

	now := s.now()
	s.Limiter.Penalize(key, retryAfter, now)

	if s.Stats != nil {
		_ = s.Stats.Record(ctx, domain.StatsEvent{
			Key:        key,
			Reason:     domain.ReasonUpstream,
			RetryAfter: retryAfter,
			At:         now,
		})
	}
}
