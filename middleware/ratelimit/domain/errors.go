package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidConfig é a raiz de todos os erros de construção do limiter.
var ErrInvalidConfig = errors.New("ratelimit: invalid configuration")

// ConfigError aponta o campo inválido. Só acontece na construção.
type ConfigError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("ratelimit: invalid %s=%v: %s", e.Field, e.Value, e.Reason)
}

func (e *ConfigError) Unwrap() error { return ErrInvalidConfig }

// ExceededError é a forma "erro" de uma rejeição, para quem precisa propagar
// (ex.: o relay quando o upstream responde 429). RetryAfter é sempre > 0.
type ExceededError struct {
	Key        Key
	RetryAfter time.Duration
	Reason     Reason
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("rate limit exceeded: retry after %ds", Seconds(e.RetryAfter))
}

// RetryAfterSeconds segue a mesma regra de Decision.
func (e *ExceededError) RetryAfterSeconds() int { return Seconds(e.RetryAfter) }

// Err retorna nil se admitido, senão um *ExceededError.
func (d Decision) Err(key Key) error {
	if d.Allowed {
		return nil
	}
	return &ExceededError{Key: key, RetryAfter: d.RetryAfter, Reason: d.Reason}
}
