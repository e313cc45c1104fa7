package ratelimit

import (
	"net"
	"net/http"
	"strings"
	"time"

	"homework-gateway/middleware/ratelimit/application"
	"homework-gateway/middleware/ratelimit/domain"

	"go.uber.org/zap"
)

type KeyFunc func(r *http.Request) string

type Options struct {
	Limiter             domain.WindowLimiter
	Stats               domain.StatsStore
	KeyFn               KeyFunc
	KeyHeader           string
	TrustXForwardedFor  bool
	RejectStatus        int
	AddRateLimitHeaders bool
	Clock               func() time.Time
	Logger              *zap.Logger
}

type windowInfo interface {
	Max() int
	Window() time.Duration
}

// DefaultKeyFunc resolve a chave do cliente. Sem validação de IP: o valor é
// usado como veio. Sem nada utilizável, todos caem em "unknown".
func DefaultKeyFunc(keyHeader string, trustXFF bool) KeyFunc {
	return func(r *http.Request) string {
		if keyHeader != "" {
			if v := strings.TrimSpace(r.Header.Get(keyHeader)); v != "" {
				return v
			}
		}

		if trustXFF {
			// primeiro valor do X-Forwarded-For (cliente original)
			if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
				first, _, _ := strings.Cut(xff, ",")
				if ip := strings.TrimSpace(first); ip != "" {
					return ip
				}
			}
			if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
				return ip
			}
		}

		// fallback: RemoteAddr
		remote := strings.TrimSpace(r.RemoteAddr)
		host, _, err := net.SplitHostPort(remote)
		if err == nil && host != "" {
			return host
		}
		if remote != "" {
			return remote
		}
		return string(domain.UnknownKey)
	}
}

func Middleware(opts Options) func(next http.Handler) http.Handler {
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusTooManyRequests
	}
	if opts.KeyFn == nil {
		opts.KeyFn = DefaultKeyFunc(opts.KeyHeader, opts.TrustXForwardedFor)
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	svc := application.Service{
		Limiter: opts.Limiter,
		Clock:   opts.Clock,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := domain.Key(opts.KeyFn(r))
			if key == "" {
				key = domain.UnknownKey
			}

			dec := svc.Decide(key)

			if opts.AddRateLimitHeaders {
				w.Header().Set("X-RateLimit-Key", string(key))
				if wi, ok := opts.Limiter.(windowInfo); ok {
					w.Header().Set("X-RateLimit-Limit", formatInt(wi.Max()))
					w.Header().Set("X-RateLimit-Window", formatInt(int(wi.Window().Seconds())))
				}
				w.Header().Set("X-RateLimit-Remaining", formatInt(dec.Remaining))
			}

			if opts.Stats != nil {
				if err := opts.Stats.Record(r.Context(), domain.StatsEvent{
					Key:        key,
					Allowed:    dec.Allowed,
					Reason:     dec.Reason,
					RetryAfter: dec.RetryAfter,
					Method:     r.Method,
					Path:       r.URL.Path,
					At:         opts.Clock(),
				}); err != nil {
					log.Debug("ratelimit stats record failed", zap.Error(err))
				}
			}

			if !dec.Allowed {
				log.Info("rate limited",
					zap.String("key", string(key)),
					zap.String("reason", string(dec.Reason)),
					zap.Int("retry_after_s", dec.RetryAfterSeconds()))
				WriteRejection(w, opts.RejectStatus, dec.RetryAfterSeconds())
				return
			}

			next.ServeHTTP(w, r.WithContext(WithKey(r.Context(), key)))
		})
	}
}
