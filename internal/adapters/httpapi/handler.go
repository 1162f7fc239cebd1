package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/atvirokodosprendimai/desiauth/internal/core/domain"
	"github.com/atvirokodosprendimai/desiauth/internal/core/usecase"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

const (
	timeFormat      = "2006-01-02T15:04:05.999Z07:00"
	maxJSONBodySize = 1 << 20
)

// Services are the use cases served over HTTP.
type Services struct {
	Tenants   *usecase.TenantService
	Accounts  *usecase.AccountService
	Sessions  *usecase.SessionService
	Keys      *usecase.APIKeyService
	Auth      *usecase.AuthService
	Workflows *usecase.WorkflowService
}

// RequestObserver receives one call per served request.
type RequestObserver interface {
	ObserveRequest(method, route string, status int, elapsed time.Duration)
}

type Handler struct {
	svc         Services
	logger      *zap.Logger
	observer    RequestObserver
	metricsPath string
	metrics     http.Handler
	limiter     *ipLimiter
	trustProxy  bool
}

type Option func(*Handler)

func WithLogger(logger *zap.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithMetrics exposes handler at path and reports every request to observer.
func WithMetrics(path string, handler http.Handler, observer RequestObserver) Option {
	return func(h *Handler) {
		h.metricsPath = path
		h.metrics = handler
		h.observer = observer
	}
}

// WithRateLimit throttles the public account routes to rps requests per
// second per client address, with the given burst.
func WithRateLimit(rps float64, burst int) Option {
	return func(h *Handler) {
		h.limiter = newIPLimiter(rps, burst)
	}
}

// WithTrustedProxy keys client addresses on X-Forwarded-For and X-Real-IP.
// Only use it when every request arrives through a proxy that sets them.
func WithTrustedProxy() Option {
	return func(h *Handler) {
		h.trustProxy = true
	}
}

func NewHandler(svc Services, opts ...Option) *Handler {
	h := &Handler{svc: svc, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	if h.trustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(h.recoverer)
	r.Use(h.observe)

	r.Get("/healthz", h.healthz)
	if h.metrics != nil {
		r.Method(http.MethodGet, h.metricsPath, h.metrics)
	}

	r.Route("/v1/tenants/{slug}", func(pr chi.Router) {
		pr.Use(h.rateLimit)
		pr.Post("/register", h.register)
		pr.Post("/verify-email", h.verifyEmail)
		pr.Post("/login", h.login)
		pr.Post("/invites/accept", h.acceptInvite)
		pr.Post("/password-reset", h.requestPasswordReset)
		pr.Post("/password-reset/confirm", h.confirmPasswordReset)
	})

	r.Group(func(pr chi.Router) {
		pr.Use(h.authenticate)
		pr.Post("/v1/auth/logout", h.logout)
		pr.Get("/v1/me", h.me)

		pr.Group(func(rr chi.Router) {
			rr.Use(requireScope(domain.ScopeRead))
			rr.Get("/v1/api-keys", h.listAPIKeys)
			rr.Get("/v1/workflows", h.listResources(domain.ResourceDAG))
			rr.Get("/v1/workflows/{id}", h.getResource(domain.ResourceDAG))
			rr.Get("/v1/executions", h.listResources(domain.ResourceExecution))
			rr.Get("/v1/executions/{id}", h.getResource(domain.ResourceExecution))
		})

		pr.Group(func(kr chi.Router) {
			kr.Use(requireScope(domain.ScopeWrite))
			kr.Post("/v1/api-keys", h.createAPIKey)
			kr.Delete("/v1/api-keys/{id}", h.deleteAPIKey)
		})

		pr.Group(func(ar chi.Router) {
			ar.Use(requireRole(domain.RoleAdmin))
			ar.Use(requireScope(domain.ScopeAdmin))
			ar.Get("/v1/users", h.listUsers)
			ar.Post("/v1/users/invite", h.inviteUser)
			ar.Patch("/v1/users/{id}/role", h.changeRole)
			ar.Delete("/v1/users/{id}", h.deleteUser)
			ar.Get("/v1/auth-logs", h.authLogs)
		})

		pr.Group(func(wr chi.Router) {
			wr.Use(requireRole(domain.RoleAdmin, domain.RoleMember))
			wr.Use(requireScope(domain.ScopeWrite))
			wr.Post("/v1/workflows", h.createWorkflow)
			wr.Post("/v1/workflows/{id}/execute", h.executeWorkflow)
			wr.Post("/v1/executions/{id}/resume", h.resumeExecution)
		})
	})

	r.Route("/admin/v1", func(ar chi.Router) {
		ar.Use(h.requireAdminKey)
		ar.Get("/tenants", h.listTenants)
		ar.Post("/tenants", h.createTenant)
		ar.Get("/tenants/{id}", h.getTenant)
		ar.Patch("/tenants/{id}", h.updateTenant)
		ar.Delete("/tenants/{id}", h.deleteTenant)
		ar.Post("/tenants/{id}/suspend", h.suspendTenant)
		ar.Post("/tenants/{id}/activate", h.activateTenant)
	})

	return r
}

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func parseLimit(w http.ResponseWriter, r *http.Request, def int) (int, bool) {
	limit := def
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return 0, false
		}
		limit = parsed
	}
	return limit, true
}

func parseOffset(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("offset")
	if raw == "" {
		return 0, true
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed < 0 {
		writeError(w, http.StatusBadRequest, "offset must be a non-negative integer")
		return 0, false
	}
	return parsed, true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	data, err := json.Marshal(body)
	if err != nil {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(data, '\n'))
}

type errorResponse struct {
	StatusCode int    `json:"statusCode"`
	Error      string `json:"error"`
	Message    string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{
		StatusCode: status,
		Error:      http.StatusText(status),
		Message:    message,
	})
}

const unauthorizedMessage = "Invalid or missing credentials"

// handleDomainError maps domain sentinels to status codes. Authentication
// failures never carry their internal reason.
func (h *Handler) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, unauthorizedMessage)
	case errors.Is(err, domain.ErrInvalidCredential):
		writeError(w, http.StatusUnauthorized, "Invalid email or password")
	case errors.Is(err, domain.ErrEmailNotVerified):
		writeError(w, http.StatusForbidden, "Email address is not verified")
	case errors.Is(err, domain.ErrQuotaExceeded), errors.Is(err, domain.ErrForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrSelfDelete):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
