package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/netip"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"caixa/backend/internal/auth"
	"caixa/backend/internal/ledger"
	"caixa/backend/internal/metrics"
	"caixa/backend/internal/report"
	"caixa/backend/internal/service"
	"caixa/backend/internal/store"
)

const maxBodyBytes = 1 << 20

type Options struct {
	AllowedOrigins []string
	// CookieSecure forces the Secure cookie flag even when the request
	// arrived over plain HTTP (TLS terminated upstream).
	CookieSecure bool
	// Ready reports storage health for /healthz. Nil means always ready.
	Ready func(ctx context.Context) error
}

type API struct {
	service      *service.Service
	auth         *auth.AuthManager
	opts         Options
	loginLimiter *attemptLimiter
	now          func() time.Time
}

func New(svc *service.Service, authManager *auth.AuthManager, opts Options) *API {
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	return &API{
		service:      svc,
		auth:         authManager,
		opts:         opts,
		loginLimiter: newAttemptLimiter(5, time.Minute),
		now:          time.Now,
	}
}

func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(a.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(a.securityHeaders)
	r.Use(a.corsHandler())

	r.Get("/healthz", a.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/login", a.handleLoginPage)
	r.Post("/login", a.handleLogin)
	r.Get("/logout", a.handleLogout)

	r.Group(func(r chi.Router) {
		r.Use(a.requireSession)
		r.Use(a.sameSiteOnly)

		r.Get("/", a.handleIndex)
		r.Post("/sale", a.handleSale)
		r.Post("/expense", a.handleExpense)
		r.Get("/export", a.handleExport)
		r.Get("/edit/sale/{id}", a.handleGetSale)
		r.Post("/edit/sale/{id}", a.handleEditSale)
		r.Get("/delete/sale/{id}", a.handleDeleteSale)
		r.Get("/delete/expense/{id}", a.handleDeleteExpense)

		// Paths used by the older form pages.
		r.Post("/venda", a.handleSale)
		r.Post("/gasto", a.handleExpense)
		r.Get("/pdf", a.handleExport)
	})

	return r
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if a.opts.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := a.opts.Ready(ctx); err != nil {
			log.Warn().Err(err).Msg("health check failed")
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ok": false})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":   true,
		"time": a.now().UTC().Format(time.RFC3339),
	})
}

// fail maps an error from the core onto the response. Input problems go back
// to the register page with an error code; storage problems are 500s.
func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		redirectWithError(w, r, verr.Code)
	case errors.Is(err, ledger.ErrInvalidDate):
		redirectWithError(w, r, "data_invalida")
	case errors.Is(err, report.ErrUnsupportedFormat):
		redirectWithError(w, r, "formato_invalido")
	case errors.Is(err, store.ErrInvalidInput):
		redirectWithError(w, r, "entrada_invalida")
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, errors.New("not found"))
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

func redirectWithError(w http.ResponseWriter, r *http.Request, code string) {
	http.Redirect(w, r, "/?erro="+url.QueryEscape(code), http.StatusSeeOther)
}

func (a *API) securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")

		if r.Method == http.MethodPost {
			r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		}
		next.ServeHTTP(w, r)
	})
}

func (a *API) corsHandler() func(http.Handler) http.Handler {
	wildcard := len(a.opts.AllowedOrigins) == 1 && a.opts.AllowedOrigins[0] == "*"
	return cors.Handler(cors.Options{
		AllowedOrigins:   a.opts.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
		AllowCredentials: !wildcard,
		MaxAge:           300,
	})
}

// sameSiteOnly rejects state-changing requests a browser marks as coming
// from another site. The delete routes are GETs, so they are covered too.
func (a *API) sameSiteOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isStateChanging(r) && strings.EqualFold(r.Header.Get("Sec-Fetch-Site"), "cross-site") {
			writeError(w, http.StatusForbidden, errors.New("cross-site request rejected"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func isStateChanging(r *http.Request) bool {
	return r.Method == http.MethodPost || strings.HasPrefix(r.URL.Path, "/delete/")
}

func (a *API) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		startedAt := time.Now()
		next.ServeHTTP(ww, r)

		elapsed := time.Since(startedAt)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}

		metrics.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		metrics.HTTPDuration.WithLabelValues(route).Observe(elapsed.Seconds())

		log.Info().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Dur("duration", elapsed).
			Msg("request")
	})
}

type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.entries[key]
	kept := make([]time.Time, 0, len(history)+1)
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	l.entries[key] = append(kept, now)
	return true
}

// Prune drops keys with no attempts inside the window.
func (l *attemptLimiter) Prune() int {
	cutoff := time.Now().Add(-l.window)
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, history := range l.entries {
		if len(history) == 0 || !history[len(history)-1].After(cutoff) {
			delete(l.entries, key)
			removed++
		}
	}
	return removed
}

// PruneLimiter is run periodically by the scheduler.
func (a *API) PruneLimiter() int {
	return a.loginLimiter.Prune()
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

func writeError(w http.ResponseWriter, status int, err error) {
	// 5xx bodies stay generic; the cause only goes to the log.
	msg := err.Error()
	if status >= 500 {
		log.Error().Err(err).Int("status", status).Msg("internal error")
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
