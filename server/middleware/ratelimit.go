package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/godamri/helix-audit/http/response"
	"github.com/godamri/helix-audit/pkg/contextx"
)

// luaGCRA implements Generic Cell Rate Algorithm.
var luaGCRA = redis.NewScript(`
	local key = KEYS[1]
	local rate = tonumber(ARGV[1])
	local period = tonumber(ARGV[2])
	local burst = tonumber(ARGV[3])

	local emission_interval = period / rate
	local now = redis.call("TIME")
	local now_ts = tonumber(now[1]) + (tonumber(now[2]) / 1000000)

	local tat = redis.call("GET", key)
	if not tat then
		tat = now_ts
	else
		tat = tonumber(tat)
	end
	tat = math.max(now_ts, tat)

	local new_tat = tat + emission_interval
	local allow_at = new_tat - (burst * emission_interval)

	if allow_at <= now_ts then
		redis.call("SET", key, new_tat, "EX", math.ceil(period * 2))
		return -1
	end

	return math.ceil(allow_at - now_ts)
`)

type RateLimitConfig struct {
	Enabled bool          `envconfig:"RATE_LIMIT_ENABLED" default:"false" yaml:"enabled"`
	Rate    int           `envconfig:"RATE_LIMIT_RATE" default:"50" validate:"gte=1" yaml:"rate"`
	Period  time.Duration `envconfig:"RATE_LIMIT_PERIOD" default:"1s" yaml:"period"`
	Burst   int           `envconfig:"RATE_LIMIT_BURST" default:"100" validate:"gte=1" yaml:"burst"`
}

// RateLimitMiddleware uses GCRA to provide smooth, burst-tolerant rate limiting.
// Callers are keyed by principal when authenticated, else by client IP.
// Redis errors let the request through.
func RateLimitMiddleware(rdb redis.Scripter, cfg RateLimitConfig, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	limit := strconv.Itoa(cfg.Rate)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := "ip:" + getRealIP(r)
			if user := contextx.GetAuthPrincipalID(r.Context()); user != "" {
				identity = "user:" + user
			}

			res, err := luaGCRA.Run(r.Context(), rdb, []string{"rl:" + identity}, cfg.Rate, cfg.Period.Seconds(), cfg.Burst).Int64()
			if err != nil {
				logger.WarnContext(r.Context(), "rate limiter unavailable, allowing request", "error", err)
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", limit)
			if res >= 0 {
				w.Header().Set("Retry-After", strconv.FormatInt(res, 10))
				response.ErrorJSON(w, r, http.StatusTooManyRequests, response.ErrRateLimit, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// getRealIP assumes the ingress strips untrusted X-Forwarded-For values.
func getRealIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xRealIP := r.Header.Get("X-Real-Ip"); xRealIP != "" {
		return xRealIP
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
