package infra

import (
	"context"
	"sync"
	"time"

	"homework-gateway/middleware/ratelimit/domain"

	"go.uber.org/zap"
)

// WindowConfig é fixa na construção.
type WindowConfig struct {
	Window     time.Duration
	Max        int
	Strategy   domain.Strategy
	Escalation domain.Escalation
}

// WindowStore é o limiter por janela (fixa ou deslizante) com escalada
// opcional e expiração preguiçosa. O mapa é todo dele: só Check, Penalize
// e Sweep mexem no estado, sempre sob mu.
type WindowStore struct {
	mu      sync.Mutex
	entries map[domain.Key]*windowEntry

	window     time.Duration
	max        int
	strategy   domain.Strategy
	escalation domain.Escalation

	sweepEvery time.Duration
	clock      func() time.Time
	log        *zap.Logger
}

type windowEntry struct {
	domain.WindowRecord
	// só na estratégia sliding
	hits         []time.Time
	blockedUntil time.Time
}

type WindowOption func(*WindowStore)

// WithSweepEvery define o intervalo do janitor. Padrão: a própria janela.
func WithSweepEvery(d time.Duration) WindowOption {
	return func(s *WindowStore) { s.sweepEvery = d }
}

func WithClock(clock func() time.Time) WindowOption {
	return func(s *WindowStore) { s.clock = clock }
}

func WithLogger(log *zap.Logger) WindowOption {
	return func(s *WindowStore) { s.log = log }
}

func NewWindowStore(cfg WindowConfig, opts ...WindowOption) (*WindowStore, error) {
	if cfg.Window <= 0 {
		return nil, &domain.ConfigError{Field: "window", Value: cfg.Window, Reason: "must be > 0"}
	}
	if cfg.Max <= 0 {
		return nil, &domain.ConfigError{Field: "max", Value: cfg.Max, Reason: "must be > 0"}
	}
	switch cfg.Strategy {
	case "":
		cfg.Strategy = domain.StrategyFixed
	case domain.StrategyFixed, domain.StrategySliding:
	default:
		return nil, &domain.ConfigError{Field: "strategy", Value: cfg.Strategy, Reason: "must be fixed or sliding"}
	}
	if cfg.Escalation.Enabled() && cfg.Escalation.CapFactor < 1 {
		return nil, &domain.ConfigError{Field: "escalation.cap", Value: cfg.Escalation.CapFactor, Reason: "must be >= 1"}
	}

	s := &WindowStore{
		entries:    make(map[domain.Key]*windowEntry),
		window:     cfg.Window,
		max:        cfg.Max,
		strategy:   cfg.Strategy,
		escalation: cfg.Escalation,
		sweepEvery: cfg.Window,
		clock:      time.Now,
		log:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	return s, nil
}

func (s *WindowStore) Max() int                      { return s.max }
func (s *WindowStore) Window() time.Duration         { return s.window }
func (s *WindowStore) Strategy() domain.Strategy     { return s.strategy }
func (s *WindowStore) SweepEvery() time.Duration     { return s.sweepEvery }
func (s *WindowStore) Now() time.Time                { return s.clock() }
func (s *WindowStore) Escalation() domain.Escalation { return s.escalation }

// Check implementa domain.WindowLimiter.
func (s *WindowStore) Check(key domain.Key, now time.Time) domain.Decision {
	if key == "" {
		key = domain.UnknownKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ent := s.live(key, now)
	if s.strategy == domain.StrategySliding {
		return s.checkSliding(key, ent, now)
	}
	return s.checkFixed(key, ent, now)
}

func (s *WindowStore) checkFixed(key domain.Key, ent *windowEntry, now time.Time) domain.Decision {
	if ent == nil {
		s.entries[key] = &windowEntry{WindowRecord: domain.WindowRecord{
			Count:       1,
			WindowStart: now,
			ResetAt:     now.Add(s.window),
		}}
		return domain.Decision{Allowed: true, Remaining: s.max - 1, Reason: domain.ReasonAdmitted}
	}

	if ent.Count < s.max && !ent.Penalized {
		ent.Count++
		return domain.Decision{Allowed: true, Remaining: s.max - ent.Count, Reason: domain.ReasonAdmitted}
	}

	if ent.Penalized || !s.escalation.Enabled() {
		return domain.Decision{RetryAfter: ent.ResetAt.Sub(now), Reason: reasonFor(ent)}
	}

	ent.Violations++
	until := now.Add(s.escalation.Penalty(s.window, ent.Violations))
	if until.After(ent.ResetAt) {
		ent.ResetAt = until
	}
	return domain.Decision{RetryAfter: ent.ResetAt.Sub(now), Reason: domain.ReasonEscalated}
}

func (s *WindowStore) checkSliding(key domain.Key, ent *windowEntry, now time.Time) domain.Decision {
	if ent == nil {
		ent = &windowEntry{WindowRecord: domain.WindowRecord{WindowStart: now}}
		s.entries[key] = ent
	}

	if now.Before(ent.blockedUntil) {
		if ent.Penalized || !s.escalation.Enabled() {
			return domain.Decision{RetryAfter: ent.blockedUntil.Sub(now), Reason: reasonFor(ent)}
		}
		return s.escalateSliding(ent, now)
	}
	ent.Penalized = false

	cutoff := now.Add(-s.window)
	kept := ent.hits[:0]
	for _, h := range ent.hits {
		if h.After(cutoff) {
			kept = append(kept, h)
		}
	}
	ent.hits = kept

	if len(ent.hits) < s.max {
		ent.hits = append(ent.hits, now)
		ent.Count = len(ent.hits)
		ent.Violations = 0
		ent.WindowStart = ent.hits[0]
		ent.ResetAt = now.Add(s.window)
		return domain.Decision{Allowed: true, Remaining: s.max - ent.Count, Reason: domain.ReasonAdmitted}
	}

	if s.escalation.Enabled() {
		return s.escalateSliding(ent, now)
	}
	// libera quando o hit mais antigo sair da janela
	return domain.Decision{RetryAfter: ent.hits[0].Add(s.window).Sub(now), Reason: domain.ReasonLimited}
}

func (s *WindowStore) escalateSliding(ent *windowEntry, now time.Time) domain.Decision {
	ent.Violations++
	ent.blockedUntil = now.Add(s.escalation.Penalty(s.window, ent.Violations))
	if ent.blockedUntil.After(ent.ResetAt) {
		ent.ResetAt = ent.blockedUntil
	}
	return domain.Decision{RetryAfter: ent.blockedUntil.Sub(now), Reason: domain.ReasonEscalated}
}

// Penalize implementa domain.WindowLimiter: o upstream mandou esperar, então o
// próximo Check local rejeita até now+retryAfter (sem escalar), mesmo que a
// janela local terminasse depois.
func (s *WindowStore) Penalize(key domain.Key, retryAfter time.Duration, now time.Time) {
	if key == "" {
		key = domain.UnknownKey
	}
	if retryAfter <= 0 {
		return
	}
	until := now.Add(retryAfter)

	s.mu.Lock()
	defer s.mu.Unlock()

	ent := s.live(key, now)
	if ent == nil {
		ent = &windowEntry{WindowRecord: domain.WindowRecord{WindowStart: now}}
		s.entries[key] = ent
	}
	// o retry do upstream substitui a janela corrente; só uma escalada local
	// ainda mais longa continua valendo
	if ent.Violations > 0 {
		lockout := ent.ResetAt
		if s.strategy == domain.StrategySliding {
			lockout = ent.blockedUntil
		}
		if lockout.After(until) {
			until = lockout
		}
	}
	ent.Penalized = true
	if ent.Count < s.max {
		ent.Count = s.max
	}
	ent.ResetAt = until
	ent.blockedUntil = until

	s.log.Debug("upstream penalty applied",
		zap.String("key", string(key)),
		zap.Duration("retry_after", retryAfter),
		zap.Time("reset_at", ent.ResetAt))
}

// live devolve o registro da chave, tratando expirado como ausente.
func (s *WindowStore) live(key domain.Key, now time.Time) *windowEntry {
	ent, ok := s.entries[key]
	if !ok {
		return nil
	}
	if ent.Expired(now) {
		delete(s.entries, key)
		return nil
	}
	return ent
}

func reasonFor(ent *windowEntry) domain.Reason {
	if ent.Penalized {
		return domain.ReasonUpstream
	}
	if ent.Violations > 0 {
		return domain.ReasonEscalated
	}
	return domain.ReasonLimited
}

// Lookup devolve uma cópia do registro (ok=false se ausente ou expirado).
func (s *WindowStore) Lookup(key domain.Key, now time.Time) (domain.WindowRecord, bool) {
	if key == "" {
		key = domain.UnknownKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ent, ok := s.entries[key]
	if !ok || ent.Expired(now) {
		return domain.WindowRecord{}, false
	}
	return ent.WindowRecord, true
}

func (s *WindowStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Sweep remove registros expirados. Só libera memória: a decisão no Check
// já ignora registros vencidos.
func (s *WindowStore) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for k, ent := range s.entries {
		if ent.Expired(now) {
			delete(s.entries, k)
			removed++
		}
	}
	return removed
}

// StartJanitor inicia uma goroutine que roda Sweep periodicamente.
// Pare cancelando o contexto.
func (s *WindowStore) StartJanitor(ctx context.Context) {
	if s.sweepEvery <= 0 {
		return
	}

	t := time.NewTicker(s.sweepEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if n := s.Sweep(s.clock()); n > 0 {
					s.log.Debug("ratelimit sweep", zap.Int("removed", n), zap.Int("live", s.Len()))
				}
			}
		}
	}()
}
