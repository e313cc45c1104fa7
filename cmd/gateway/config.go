package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"homework-gateway/middleware/ratelimit/domain"

	"github.com/joho/godotenv"
)

// teto do fator de escalada: 2^10 janelas
const maxEscalationCap = 1024

type config struct {
	listenAddr  string
	corsOrigins []string

	apiKey          string
	upstreamURL     string
	upstreamTimeout time.Duration
	upstreamRPS     float64
	upstreamBurst   int
	solverModel     string
	solverAttempts  int

	rateEnabled        bool
	rateWindow         time.Duration
	rateMax            int
	rateStrategy       domain.Strategy
	escalation         domain.Escalation
	rateSweepEvery     time.Duration
	rateKeyHeader      string
	trustXFF           bool
	addHeaders         bool
	concurrencyMax     int
	concurrencyTimeout time.Duration

	rateStatsEnabled       bool
	rateStatsRedisAddr     string
	rateStatsRedisPassword string
	rateStatsRedisDB       int
	rateStatsPrefix        string
	rateStatsTTL           time.Duration
	rateStatsBucket        string
	rateStatsTrackKeys     bool

	logEnv    string
	logLevel  string
	logFormat string
}

// loadDotenv carrega .env se existir; variáveis já exportadas têm prioridade.
func loadDotenv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

func readConfig() (config, error) {
	cfg := config{}
	env := &envReader{}

	cfg.listenAddr = getenvDefault("LISTEN_ADDR", ":3000")
	cfg.corsOrigins = splitList(getenvDefault("CORS_ORIGINS", "*"))

	// mesmo fallback do front (VITE_ prefixado)
	cfg.apiKey = strings.TrimSpace(getenvDefault("ROUTER_API_KEY", os.Getenv("VITE_ROUTER_API_KEY")))
	cfg.upstreamURL = getenvDefault("UPSTREAM_URL", "https://router.requesty.ai/v1")
	cfg.upstreamTimeout = env.durationVar("UPSTREAM_TIMEOUT", 30*time.Second)
	cfg.upstreamRPS = env.floatVar("UPSTREAM_RPS", 0)
	cfg.upstreamBurst = env.intVar("UPSTREAM_BURST", 1)
	cfg.solverModel = getenvDefault("SOLVER_MODEL", "google/gemini-2.5-pro-exp-03-25")
	cfg.solverAttempts = env.intVar("SOLVER_MAX_ATTEMPTS", 3)

	cfg.rateEnabled = env.boolVar("RATE_ENABLED", true)
	cfg.rateWindow = env.durationVar("RATE_WINDOW", time.Minute)
	cfg.rateMax = env.intVar("RATE_MAX", 5)
	cfg.rateStrategy = domain.Strategy(strings.ToLower(getenvDefault("RATE_STRATEGY", string(domain.StrategyFixed))))
	cfg.escalation = domain.Escalation{
		Multiplier: env.intVar("RATE_ESCALATION_MULTIPLIER", 2),
		CapFactor:  env.intVar("RATE_ESCALATION_CAP", 16),
	}
	// intervalo do janitor: por padrão a própria janela (nunca mais apertado que isso)
	cfg.rateSweepEvery = env.durationVar("RATE_SWEEP_EVERY", cfg.rateWindow)
	cfg.rateKeyHeader = os.Getenv("RATE_KEY_HEADER")
	cfg.trustXFF = env.boolVar("TRUST_XFF", true)
	cfg.addHeaders = env.boolVar("ADD_RATELIMIT_HEADERS", false)
	cfg.concurrencyMax = env.intVar("CONCURRENCY_MAX", 20)
	cfg.concurrencyTimeout = env.durationVar("CONCURRENCY_TIMEOUT", 5*time.Second)

	cfg.rateStatsEnabled = env.boolVar("RATE_STATS_ENABLED", false)
	cfg.rateStatsRedisAddr = getenvDefault("RATE_STATS_REDIS_ADDR", "")
	cfg.rateStatsRedisPassword = os.Getenv("RATE_STATS_REDIS_PASSWORD")
	cfg.rateStatsRedisDB = env.intVar("RATE_STATS_REDIS_DB", 0)
	cfg.rateStatsPrefix = getenvDefault("RATE_STATS_PREFIX", "homework:ratelimit:stats")
	cfg.rateStatsTTL = env.durationVar("RATE_STATS_TTL", 24*time.Hour)
	cfg.rateStatsBucket = getenvDefault("RATE_STATS_BUCKET", "minute")
	cfg.rateStatsTrackKeys = env.boolVar("RATE_STATS_TRACK_KEYS", false)

	cfg.logEnv = getenvDefault("LOG_ENV", "development")
	cfg.logLevel = getenvDefault("LOG_LEVEL", "info")
	cfg.logFormat = os.Getenv("LOG_FORMAT")

	if err := errors.Join(env.errs...); err != nil {
		return config{}, err
	}

	if cfg.rateStatsEnabled && strings.TrimSpace(cfg.rateStatsRedisAddr) == "" {
		return config{}, errors.New("RATE_STATS_REDIS_ADDR is required when RATE_STATS_ENABLED=true")
	}
	if cfg.rateWindow <= 0 {
		return config{}, errors.New("RATE_WINDOW must be > 0")
	}
	if cfg.rateMax <= 0 {
		return config{}, errors.New("RATE_MAX must be > 0")
	}
	if cfg.rateStrategy != domain.StrategyFixed && cfg.rateStrategy != domain.StrategySliding {
		return config{}, fmt.Errorf("RATE_STRATEGY must be fixed or sliding, got %q", cfg.rateStrategy)
	}
	if cfg.escalation.Multiplier < 0 {
		return config{}, errors.New("RATE_ESCALATION_MULTIPLIER must be >= 0")
	}
	if cfg.escalation.Enabled() && (cfg.escalation.CapFactor < 1 || cfg.escalation.CapFactor > maxEscalationCap) {
		return config{}, fmt.Errorf("RATE_ESCALATION_CAP must be between 1 and %d", maxEscalationCap)
	}
	if cfg.rateSweepEvery < cfg.rateWindow {
		return config{}, errors.New("RATE_SWEEP_EVERY must be >= RATE_WINDOW")
	}
	if cfg.upstreamRPS < 0 {
		return config{}, errors.New("UPSTREAM_RPS must be >= 0")
	}
	if cfg.upstreamRPS > 0 && cfg.upstreamBurst <= 0 {
		return config{}, errors.New("UPSTREAM_BURST must be > 0")
	}
	if cfg.concurrencyMax < 0 {
		return config{}, errors.New("CONCURRENCY_MAX must be >= 0")
	}
	return cfg, nil
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

// envReader acumula erros de parse para readConfig falhar de uma vez.
type envReader struct{ errs []error }

func (e *envReader) intVar(k string, def int) int {
	v, err := getenvIntDefault(k, def)
	e.add(err)
	return v
}

func (e *envReader) floatVar(k string, def float64) float64 {
	v, err := getenvFloatDefault(k, def)
	e.add(err)
	return v
}

func (e *envReader) boolVar(k string, def bool) bool {
	v, err := getenvBoolDefault(k, def)
	e.add(err)
	return v
}

func (e *envReader) durationVar(k string, def time.Duration) time.Duration {
	v, err := getenvDurationDefault(k, def)
	e.add(err)
	return v
}

func (e *envReader) add(err error) {
	if err != nil {
		e.errs = append(e.errs, err)
	}
}

func getenvIntDefault(k string, def int) (int, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def, fmt.Errorf("%s: invalid integer %q", k, v)
	}
	return i, nil
}

func getenvFloatDefault(k string, def float64) (float64, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def, fmt.Errorf("%s: invalid number %q", k, v)
	}
	return f, nil
}

func getenvBoolDefault(k string, def bool) (bool, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def, fmt.Errorf("%s: invalid boolean %q", k, v)
	}
	return b, nil
}

func getenvDurationDefault(k string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def, fmt.Errorf("%s: invalid duration %q", k, v)
	}
	return d, nil
}
