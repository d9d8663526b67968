package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"time"

	"khatabook/internal/log"
	"khatabook/internal/middleware/ratelimit"
	"khatabook/internal/middleware/security"
	"khatabook/internal/middleware/trace"
	"khatabook/internal/services"
	"khatabook/internal/session"
	appweb "khatabook/web"
)

// Pinger is satisfied by every store backend.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependencies groups what NewServer wires into the handlers.
type Dependencies struct {
	Auth     *services.AuthService
	Ledger   *services.LedgerService
	Sessions *session.Manager
	Store    Pinger
	Logger   *log.Logger

	// SecureCookies marks the session cookie Secure. Enable behind TLS.
	SecureCookies  bool
	RateLimit      ratelimit.Config
	TrustedProxies []string
}

// Server is the khatabook web front end.
type Server struct {
	http.Server
	templates     *template.Template
	auth          *services.AuthService
	ledger        *services.LedgerService
	sessions      *session.Manager
	store         Pinger
	rateLimiter   *ratelimit.Limiter
	detector      *security.Detector
	tracer        *trace.Middleware
	secureCookies bool
}

// Stats are the request counters kept by the middleware chain.
type Stats struct {
	Requests       int64
	RateLimited    int64
	TrackedClients int64
	Suspicious     int64
	Blocked        int64
}

// NewServer parses the embedded templates and builds the route table.
func NewServer(addr string, deps Dependencies) (*Server, error) {
	if deps.Auth == nil || deps.Ledger == nil || deps.Sessions == nil || deps.Store == nil {
		return nil, errors.New("http server: auth, ledger, sessions and store are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = log.FromContext(context.Background())
	}

	t, err := template.New("").Funcs(templateFuncs).ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	detector, err := security.NewDetector(deps.TrustedProxies...)
	if err != nil {
		return nil, fmt.Errorf("trusted proxies: %w", err)
	}

	mux := http.NewServeMux()
	s := &Server{
		Server: http.Server{
			Addr:              addr,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		templates:     t,
		auth:          deps.Auth,
		ledger:        deps.Ledger,
		sessions:      deps.Sessions,
		store:         deps.Store,
		rateLimiter:   ratelimit.NewLimiter(deps.RateLimit),
		detector:      detector,
		secureCookies: deps.SecureCookies,
	}

	// Static assets (served from embedded FS)
	sub, err := fs.Sub(appweb.StaticFS, "static")
	if err != nil {
		s.rateLimiter.Stop()
		return nil, fmt.Errorf("mount static assets: %w", err)
	}
	static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
	mux.Handle("/static/", security.StaticAssetMiddleware(3600)(static))

	limited := s.rateLimiter.Middleware(detector.ExtractClientIP, s.onRateLimited)

	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/healthz", handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)

	mux.Handle("/register", limited(http.HandlerFunc(s.handleRegister)))
	mux.Handle("/login", limited(http.HandlerFunc(s.handleLogin)))
	mux.HandleFunc("/logout", s.handleLogout)

	mux.Handle("/transactions", limited(s.requireSession(s.handleSaveTransactions)))
	mux.Handle("/ui/summary", s.requireSession(s.handleSummary))
	mux.Handle("/api/charts", s.requireSession(s.handleCharts))
	mux.Handle("/export/transactions.csv", s.requireSession(s.handleExportCSV))
	mux.Handle("/export/transactions.xlsx", s.requireSession(s.handleExportXLSX))

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	s.tracer = trace.NewMiddleware(logger, detector.ExtractClientIP)
	s.Handler = s.tracer.Middleware(detector.Middleware(headers.Middleware(mux)))

	return s, nil
}

func (s *Server) onRateLimited(w http.ResponseWriter, r *http.Request) {
	log.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldComponent, log.ComponentRateLimit,
		log.FieldClientIP, s.detector.ExtractClientIP(r),
		log.FieldPath, r.URL.Path)
	if wantsJSON(r) {
		writeJSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}
	ErrorResponse(http.StatusTooManyRequests, "Too many requests. Please try again in a minute.").Write(w)
}

// Stats snapshots the middleware counters.
func (s *Server) Stats() Stats {
	traced := s.tracer.GetMetrics()
	limited := s.rateLimiter.GetMetrics()
	detected := s.detector.GetMetrics()
	return Stats{
		Requests:       traced.TotalRequests,
		RateLimited:    limited.Rejected,
		TrackedClients: limited.ClientCount,
		Suspicious:     detected.SuspiciousRequests,
		Blocked:        detected.BlockedRequests,
	}
}

// Shutdown stops accepting requests and releases background resources.
func (s *Server) Shutdown(ctx context.Context) error {
	s.rateLimiter.Stop()
	return s.Server.Shutdown(ctx)
}

// handleHealth is the liveness probe.
func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReady reports whether the store answers.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := map[string]string{"store": "ok"}
	status := http.StatusOK
	if err := s.store.Ping(ctx); err != nil {
		checks["store"] = err.Error()
		status = http.StatusServiceUnavailable
		log.FromContext(ctx).WarnContext(ctx, "Readiness check failed", log.FieldError, err.Error())
	}

	state := "ready"
	if status != http.StatusOK {
		state = "not_ready"
	}
	writeJSON(w, status, map[string]any{"status": state, "checks": checks})
}

// render executes a named template into a buffer so that template errors
// still produce a clean 500.
func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name string, data any) {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Template render failed",
			log.FieldComponent, log.ComponentTemplate,
			log.FieldOperation, log.OpRender,
			"template", name,
			log.FieldError, err.Error())
		InternalServerError("Something went wrong. Please try again.").Write(w)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}
