package httpapi

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/atvirokodosprendimai/desiauth/internal/core/domain"
	"github.com/atvirokodosprendimai/desiauth/internal/core/usecase"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// authenticate resolves the Authorization header and attaches the
// AuthContext to the request.
func (h *Handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth, err := h.svc.Auth.Authenticate(r.Context(), r.Header.Get("Authorization"))
		if err != nil {
			writeError(w, http.StatusUnauthorized, unauthorizedMessage)
			return
		}
		next.ServeHTTP(w, r.WithContext(usecase.WithAuth(r.Context(), auth)))
	})
}

func requireRole(roles ...domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth, ok := usecase.AuthFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, unauthorizedMessage)
				return
			}
			if !auth.HasRole(roles...) {
				writeError(w, http.StatusForbidden, "Insufficient role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// requireScope limits API key callers to keys granting scope. Sessions pass.
func requireScope(scope domain.Scope) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth, ok := usecase.AuthFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, unauthorizedMessage)
				return
			}
			if !auth.HasScope(scope) {
				writeError(w, http.StatusForbidden, "Insufficient scope")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// requireAdminKey accepts a super-admin key from X-Admin-Key or a bearer
// Authorization header.
func (h *Handler) requireAdminKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimSpace(r.Header.Get("X-Admin-Key"))
		if key == "" {
			if token, authErr := usecase.BearerToken(r.Header.Get("Authorization")); authErr == nil {
				key = token
			}
		}
		admin, err := h.svc.Auth.AuthenticateAdmin(r.Context(), key)
		if err != nil {
			writeError(w, http.StatusUnauthorized, unauthorizedMessage)
			return
		}
		if !admin.Key.HasScope(domain.ScopeAdmin) {
			writeError(w, http.StatusForbidden, "Admin scope required")
			return
		}
		next.ServeHTTP(w, r.WithContext(usecase.WithAdmin(r.Context(), admin)))
	})
}

func (h *Handler) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.limiter != nil && !h.limiter.allow(clientIP(r)) {
			h.limiter.logThrottled.Do(func() {
				h.logger.Warn("rate limit exceeded",
					zap.String("ip", clientIP(r)),
					zap.String("path", r.URL.Path),
				)
			})
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "Too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// observe logs and measures every request under its route pattern.
func (h *Handler) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := ""
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			route = rctx.RoutePattern()
		}
		elapsed := time.Since(start)
		if h.observer != nil {
			h.observer.ObserveRequest(r.Method, route, status, elapsed)
		}
		h.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Duration("elapsed", elapsed),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func (h *Handler) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				h.logger.Error("panic serving request",
					zap.Any("panic", rec),
					zap.String("path", r.URL.Path),
					zap.String("request_id", middleware.GetReqID(r.Context())),
				)
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

const (
	limiterIdleTTL    = 10 * time.Minute
	limiterSweepEvery = 1024
)

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ipLimiter keeps one token bucket per client address. Idle buckets are
// swept every limiterSweepEvery calls.
type ipLimiter struct {
	mu      sync.Mutex
	entries map[string]*limiterEntry
	limit   rate.Limit
	burst   int
	calls   int
	now     func() time.Time

	logThrottled rate.Sometimes
}

func newIPLimiter(rps float64, burst int) *ipLimiter {
	return &ipLimiter{
		entries:      make(map[string]*limiterEntry),
		limit:        rate.Limit(rps),
		burst:        burst,
		now:          time.Now,
		logThrottled: rate.Sometimes{Interval: 10 * time.Second},
	}
}

func (l *ipLimiter) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.calls++
	if l.calls%limiterSweepEvery == 0 {
		for key, e := range l.entries {
			if now.Sub(e.lastSeen) > limiterIdleTTL {
				delete(l.entries, key)
			}
		}
	}

	e, ok := l.entries[ip]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.entries[ip] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}
