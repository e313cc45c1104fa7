package ratelimit

import (
	"errors"
	"net/http"
	"time"

	"homework-gateway/middleware/ratelimit/application"
	"homework-gateway/middleware/ratelimit/infra"

	"go.uber.org/zap"
)

type ConcurrencyOptions struct {
	Max            int
	RejectStatus   int
	AcquireTimeout time.Duration
	Logger         *zap.Logger
}

type errorBody struct {
	Error   string `json:"error"`
	Details string `json:"details"`
}

// ConcurrencyMiddleware limita quantas requisições chegam ao upstream ao mesmo tempo.
// Max <= 0 desliga.
func ConcurrencyMiddleware(opts ConcurrencyOptions) func(next http.Handler) http.Handler {
	if opts.Max <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusServiceUnavailable
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	svc := application.ConcurrencyService{
		Pool:           infra.NewChanPool(opts.Max),
		AcquireTimeout: opts.AcquireTimeout,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			release, err := svc.Acquire(r.Context())
			if err != nil {
				if errors.Is(err, application.ErrClientGone) {
					// ninguém para ler a resposta
					return
				}
				log.Warn("upstream slots exhausted", zap.Int("max", opts.Max), zap.String("path", r.URL.Path))
				WriteJSON(w, opts.RejectStatus, errorBody{
					Error:   http.StatusText(opts.RejectStatus),
					Details: "Too many questions in flight, please try again shortly",
				})
				return
			}
			defer release()

			next.ServeHTTP(w, r)
		})
	}
}
