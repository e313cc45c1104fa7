package infra

import (
	"context"

	"homework-gateway/middleware/ratelimit/domain"
)

type chanPool struct {
	sem chan struct{}
}

// NewChanPool cria um pool baseado em channel com capacidade `max`.
// Cada vaga é uma chamada em voo ao upstream.
func NewChanPool(max int) domain.SlotPool {
	return &chanPool{sem: make(chan struct{}, max)}
}

func (p *chanPool) Acquire(ctx context.Context) (func(), bool) {
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, false
	}
	// ctx pode ter vencido junto com a vaga livre; select escolhe ao acaso.
	if ctx.Err() != nil {
		<-p.sem
		return nil, false
	}
	return func() { <-p.sem }, true
}
