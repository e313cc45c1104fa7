package domain

// Camada de domínio do rate limit.
//
// Regras e contratos (interfaces/tipos) sem dependência de net/http.

import (
	"math"
	"time"
)

type Key string

// UnknownKey é o bucket compartilhado por todo tráfego sem identificação.
const UnknownKey Key = "unknown"

// Strategy escolhe como a janela é contada.
//
//   - fixed: a janela abre no primeiro request após a anterior expirar e zera inteira.
//     Permite até 2×max requests numa virada de janela.
//   - sliding: conta só os requests dentro de "agora - duração".
type Strategy string

const (
	StrategyFixed   Strategy = "fixed"
	StrategySliding Strategy = "sliding"
)

// Reason explica a decisão (usado em stats e logs).
type Reason string

const (
	ReasonAdmitted  Reason = "admitted"
	ReasonLimited   Reason = "limited"
	ReasonEscalated Reason = "escalated"
	ReasonUpstream  Reason = "upstream"
)

// WindowLimiter decide admissão por chave.
//
// Check nunca bloqueia: é aritmética sobre estado em memória.
// Penalize é o gancho de feedback quando o upstream responde 429.
type WindowLimiter interface {
	Check(key Key, now time.Time) Decision
	Penalize(key Key, retryAfter time.Duration, now time.Time)
}

type Decision struct {
	Allowed bool
	// RetryAfter é o valor a ser retornado em Retry-After quando bloquear.
	// Quando Allowed=false é sempre > 0.
	RetryAfter time.Duration
	// Remaining é quantos requests ainda cabem na janela atual.
	Remaining int
	Reason    Reason
}

// RetryAfterSeconds arredonda para cima, com mínimo de 1s em bloqueios.
func (d Decision) RetryAfterSeconds() int {
	if d.Allowed {
		return 0
	}
	return Seconds(d.RetryAfter)
}

// Seconds converte uma duração em segundos inteiros (teto, mínimo 1).
func Seconds(d time.Duration) int {
	s := int(math.Ceil(d.Seconds()))
	if s < 1 {
		return 1
	}
	return s
}

// WindowRecord é o estado por cliente.
// Existe no máximo um por Key.
type WindowRecord struct {
	Count       int
	WindowStart time.Time
	ResetAt     time.Time
	// Violations conta violações consecutivas (base da escalada).
	Violations int
	// Penalized indica bloqueio imposto pelo upstream (Penalize).
	Penalized bool
}

// Expired: a partir de ResetAt o registro não carrega mais estado.
func (r WindowRecord) Expired(now time.Time) bool {
	return !now.Before(r.ResetAt)
}
