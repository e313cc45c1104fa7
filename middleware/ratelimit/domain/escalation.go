package domain

import (
	"math"
	"time"
)

// Escalation aumenta o castigo de quem insiste depois de bloqueado.
//
// Na N-ésima violação consecutiva o bloqueio dura
// base × min(Multiplier^(N-1), CapFactor).
// Multiplier <= 1 desliga a escalada.
type Escalation struct {
	Multiplier int
	CapFactor  int
}

func (e Escalation) Enabled() bool { return e.Multiplier > 1 }

// Factor retorna o multiplicador da violação n (n >= 1).
func (e Escalation) Factor(n int) int {
	if !e.Enabled() || n <= 1 {
		return 1
	}
	limit := e.CapFactor
	if limit < 1 {
		limit = 1
	}
	f := 1
	for i := 1; i < n; i++ {
		if f > limit/e.Multiplier {
			return limit
		}
		f *= e.Multiplier
		if f >= limit {
			return limit
		}
	}
	return f
}

// Penalty calcula a duração do bloqueio da violação n; satura em vez de
// estourar time.Duration.
func (e Escalation) Penalty(base time.Duration, n int) time.Duration {
	f := time.Duration(e.Factor(n))
	if base > 0 && f > math.MaxInt64/base {
		return time.Duration(math.MaxInt64)
	}
	return base * f
}
