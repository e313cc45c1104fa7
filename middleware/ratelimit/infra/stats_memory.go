package infra

import (
	"context"
	"sync"

	"homework-gateway/middleware/ratelimit/domain"
)

// Counters agrega decisões por motivo.
type Counters struct {
	Admitted  int64 `json:"admitted"`
	Limited   int64 `json:"limited"`
	Escalated int64 `json:"escalated"`
	Upstream  int64 `json:"upstream"`
}

func (c *Counters) add(r domain.Reason) {
	switch r {
	case domain.ReasonAdmitted:
		c.Admitted++
	case domain.ReasonEscalated:
		c.Escalated++
	case domain.ReasonUpstream:
		c.Upstream++
	default:
		c.Limited++
	}
}

// Denied soma todas as rejeições.
func (c Counters) Denied() int64 { return c.Limited + c.Escalated + c.Upstream }

// MemoryStatsStore é a implementação em memória (padrão do gateway).
//
// Não faz expiração: com trackKeys ligado o mapa por chave cresce sem limite.
type MemoryStatsStore struct {
	mu      sync.Mutex
	total   Counters
	byRoute map[string]Counters
	byKey   map[string]Counters

	trackKeys bool
}

type MemoryStatsOption func(*MemoryStatsStore)

func WithTrackKeys(track bool) MemoryStatsOption {
	return func(s *MemoryStatsStore) { s.trackKeys = track }
}

func NewMemoryStatsStore(opts ...MemoryStatsOption) *MemoryStatsStore {
	s := &MemoryStatsStore{
		byRoute: make(map[string]Counters),
		byKey:   make(map[string]Counters),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStatsStore) Record(_ context.Context, ev domain.StatsEvent) error {
	reason := ev.Reason
	if reason == "" {
		reason = domain.ReasonLimited
		if ev.Allowed {
			reason = domain.ReasonAdmitted
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.total.add(reason)

	if ev.Method != "" || ev.Path != "" {
		route := ev.Method + " " + ev.Path
		c := s.byRoute[route]
		c.add(reason)
		s.byRoute[route] = c
	}

	if s.trackKeys {
		k := s.byKey[string(ev.Key)]
		k.add(reason)
		s.byKey[string(ev.Key)] = k
	}
	return nil
}

func (s *MemoryStatsStore) Total() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

func (s *MemoryStatsStore) ByRoute() map[string]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Counters, len(s.byRoute))
	for k, v := range s.byRoute {
		out[k] = v
	}
	return out
}

func (s *MemoryStatsStore) ByKey() map[string]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Counters, len(s.byKey))
	for k, v := range s.byKey {
		out[k] = v
	}
	return out
}
