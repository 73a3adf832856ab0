package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/internal/logging"
	"github.com/MrEthical07/authcore/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
)

// Service is the engine surface the HTTP layer drives. *authcore.Engine
// satisfies it.
type Service interface {
	middleware.Authenticator

	Register(ctx context.Context, in authcore.RegisterInput) (*authcore.User, error)
	Login(ctx context.Context, email, password, userAgent string) (*authcore.LoginResult, error)
	Refresh(ctx context.Context, refreshToken string) (*authcore.RefreshResult, error)
	VerifyEmail(ctx context.Context, code string) (*authcore.User, error)
	ForgotPassword(ctx context.Context, email string) (*authcore.ForgotPasswordResult, error)
	ResetPassword(ctx context.Context, newPassword, code string) error
	Logout(ctx context.Context, sessionID string) error

	BeginMFASetup(ctx context.Context, p authcore.Principal) (*authcore.MFASetupResult, error)
	ConfirmMFASetup(ctx context.Context, p authcore.Principal, code, secretKey string) (*authcore.MFAStatus, error)
	RevokeMFA(ctx context.Context, p authcore.Principal) (*authcore.MFAStatus, error)
	VerifyMFALogin(ctx context.Context, email, code, userAgent string) (*authcore.LoginResult, error)

	ListSessions(ctx context.Context, p authcore.Principal) ([]authcore.SessionView, error)
	CurrentUser(ctx context.Context, p authcore.Principal) (*authcore.User, error)
	DeleteSession(ctx context.Context, p authcore.Principal, sessionID string) error

	Ping(ctx context.Context) (time.Duration, error)
}

// Options configures the HTTP layer.
type Options struct {
	BasePath   string
	Production bool
	// TrustProxy takes the client IP from X-Forwarded-For.
	TrustProxy bool
	// AllowedOrigin enables credentialed CORS for one origin. Empty disables
	// CORS headers.
	AllowedOrigin string
	Logger        *slog.Logger
}

// OptionsFromConfig derives Options from the engine configuration.
func OptionsFromConfig(cfg authcore.Config) Options {
	return Options{
		BasePath:      cfg.App.BasePath,
		Production:    cfg.App.Production,
		AllowedOrigin: cfg.App.Origin,
	}
}

// Handler serves the auth API.
type Handler struct {
	svc      Service
	opts     Options
	cookies  cookieJar
	log      logging.Logger
	validate *validator.Validate
	root     http.Handler
}

// New builds the router for svc.
func New(svc Service, opts Options) *Handler {
	opts.BasePath = "/" + strings.Trim(opts.BasePath, "/")
	if opts.BasePath == "/" {
		opts.BasePath = ""
	}

	h := &Handler{
		svc:      svc,
		opts:     opts,
		cookies:  newCookieJar(opts.BasePath, opts.Production),
		log:      logging.NewSlogLogger(opts.Logger).With("source", "http"),
		validate: newValidator(),
	}

	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(h.notFound)
	r.MethodNotAllowedHandler = http.HandlerFunc(h.methodNotAllowed)
	r.Use(middleware.RequestContext(opts.TrustProxy))
	r.Use(h.logRequests)

	api := r.PathPrefix(opts.BasePath).Subrouter()
	if opts.BasePath == "" {
		api = r
	}
	h.routes(api)

	h.root = r
	if opts.AllowedOrigin != "" {
		h.root = cors(opts.AllowedOrigin, r)
	}
	return h
}

func (h *Handler) routes(r *mux.Router) {
	guard := middleware.Guard(h.svc, h.writeGuardError)
	protected := func(fn http.HandlerFunc) http.Handler {
		return guard(fn)
	}

	r.HandleFunc("/healthz", h.healthz).Methods(http.MethodGet)

	r.HandleFunc("/auth/register", h.register).Methods(http.MethodPost)
	r.HandleFunc("/auth/login", h.login).Methods(http.MethodPost)
	r.HandleFunc("/auth/refresh", h.refresh).Methods(http.MethodGet)
	r.HandleFunc("/auth/verify/email", h.verifyEmail).Methods(http.MethodPost)
	r.HandleFunc("/auth/password/forgot", h.forgotPassword).Methods(http.MethodPost)
	r.HandleFunc("/auth/password/reset", h.resetPassword).Methods(http.MethodPost)
	r.Handle("/auth/logout", protected(h.logout)).Methods(http.MethodPost)

	r.Handle("/mfa/setup", protected(h.mfaSetup)).Methods(http.MethodGet)
	r.Handle("/mfa/verify", protected(h.mfaVerify)).Methods(http.MethodPost)
	r.Handle("/mfa/revoke", protected(h.mfaRevoke)).Methods(http.MethodPut)
	r.HandleFunc("/mfa/verify-login", h.mfaVerifyLogin).Methods(http.MethodPost)

	r.Handle("/session/all", protected(h.listSessions)).Methods(http.MethodGet)
	r.Handle("/session", protected(h.currentSession)).Methods(http.MethodGet)
	r.Handle("/session/{id}", protected(h.deleteSession)).Methods(http.MethodDelete)
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.root.ServeHTTP(w, r)
}

func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	latency, err := h.svc.Ping(r.Context())
	if err != nil {
		h.log.Error(r.Context(), "health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"redisLatencyMs": float64(latency.Microseconds()) / 1000,
	})
}

func (h *Handler) notFound(w http.ResponseWriter, _ *http.Request) {
	writeMessage(w, http.StatusNotFound, "NOT_FOUND", "Route not found")
}

func (h *Handler) methodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	writeMessage(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed")
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		h.log.Debug(r.Context(), "request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

// cors answers preflight requests and adds credentialed CORS headers for
// origin.
func cors(origin string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Origin") == origin {
			hdr := w.Header()
			hdr.Set("Access-Control-Allow-Origin", origin)
			hdr.Set("Access-Control-Allow-Credentials", "true")
			hdr.Add("Vary", "Origin")
			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				hdr.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
				hdr.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
				hdr.Set("Access-Control-Max-Age", "600")
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
