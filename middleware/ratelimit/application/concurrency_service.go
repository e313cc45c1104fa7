package application

import (
	"context"
	"errors"
	"time"

	"homework-gateway/middleware/ratelimit/domain"
)

var (
	// ErrNoSlot: todas as vagas de chamada ao upstream ocupadas até o timeout.
	ErrNoSlot = errors.New("no upstream slot available")
	// ErrClientGone: o contexto do chamador acabou antes de conseguir vaga.
	ErrClientGone = errors.New("client went away while waiting for a slot")
)

// ConcurrencyService concentra a regra de aquisição/liberação de vagas com timeout,
// sem saber nada sobre HTTP.
type ConcurrencyService struct {
	Pool           domain.SlotPool
	AcquireTimeout time.Duration
}

// Acquire tenta adquirir uma vaga.
//   - AcquireTimeout <= 0: espera até ctx cancelar.
//   - AcquireTimeout > 0: espera até o timeout.
//
// Em erro, nenhuma vaga foi adquirida e release é nil.
func (s ConcurrencyService) Acquire(ctx context.Context) (func(), error) {
	if s.Pool == nil {
		return func() {}, nil
	}

	acqCtx := ctx
	if s.AcquireTimeout > 0 {
		var cancel context.CancelFunc
		acqCtx, cancel = context.WithTimeout(ctx, s.AcquireTimeout)
		defer cancel()
	}

	release, ok := s.Pool.Acquire(acqCtx)
	if ok {
		return release, nil
	}
	if ctx.Err() != nil {
		return nil, ErrClientGone
	}
	return nil, ErrNoSlot
}
