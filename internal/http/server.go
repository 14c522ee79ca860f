package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"feeledger/internal/intake"
	"feeledger/internal/log"
	"feeledger/internal/middleware/ratelimit"
	"feeledger/internal/middleware/security"
	"feeledger/internal/middleware/trace"
	"feeledger/internal/services"
)

// Deps are the use cases the API exposes.
type Deps struct {
	Ledger     *services.Ledger
	Projection *services.Projection
	Reconciler *services.Reconciler
	Importer   *intake.Importer
	BillingDay int
	// Ready reports whether the store is reachable; nil means always ready.
	Ready  func(ctx context.Context) error
	Logger *log.Logger
	Now    func() time.Time
}

type Server struct {
	http.Server
	ledger     *services.Ledger
	projection *services.Projection
	reconciler *services.Reconciler
	importer   *intake.Importer
	billingDay int
	ready      func(ctx context.Context) error
	logger     *log.Logger
	now        func() time.Time
	started    time.Time

	rateLimiter  *ratelimit.Limiter
	shutdownOnce sync.Once
}

// NewServer wires routes and middleware, returning a ready-to-run server.
func NewServer(addr string, deps Deps) *Server {
	mux := http.NewServeMux()

	logger := deps.Logger
	if logger == nil {
		logger = log.New(log.DefaultConfig()).WithComponent(log.ComponentHTTP)
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	billingDay := deps.BillingDay
	if billingDay < 1 {
		billingDay = 1
	}

	s := &Server{
		ledger:      deps.Ledger,
		projection:  deps.Projection,
		reconciler:  deps.Reconciler,
		importer:    deps.Importer,
		billingDay:  billingDay,
		ready:       deps.Ready,
		logger:      logger,
		now:         now,
		started:     now(),
		rateLimiter: ratelimit.NewLimiter(ratelimit.DefaultConfig()),
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("POST /api/students", s.handleRegisterStudent)
	mux.HandleFunc("GET /api/students", s.handleListStudents)
	mux.HandleFunc("GET /api/students/{id}", s.handleGetStudent)
	mux.HandleFunc("PATCH /api/students/{id}/fee", s.handleUpdateFee)
	mux.HandleFunc("DELETE /api/students/{id}", s.handleRemoveStudent)
	mux.HandleFunc("GET /api/students/{id}/status", s.handleGetStatus)
	mux.HandleFunc("GET /api/students/{id}/payments", s.handleListPayments)

	mux.HandleFunc("POST /api/payments", s.handleApplyPayment)
	mux.HandleFunc("DELETE /api/payments/{id}", s.handleRemovePayment)

	mux.HandleFunc("POST /api/reconciliations", s.handleReconcile)

	mux.HandleFunc("GET /api/status", s.handleSnapshot)
	mux.HandleFunc("GET /api/status/counts", s.handleStatusCounts)
	mux.HandleFunc("GET /api/reminders", s.handleReminders)

	mux.HandleFunc("POST /api/imports", s.handleImport)
	mux.HandleFunc("GET /api/reports/status.xlsx", s.handleStatusXLSX)
	mux.HandleFunc("GET /api/reports/status.pdf", s.handleStatusPDF)

	detector := security.NewDetector()
	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	tracer := trace.NewMiddleware(detector.ExtractClientIP)

	var handler http.Handler = mux
	handler = s.rateLimiter.Middleware(detector.ExtractClientIP)(handler)
	handler = detector.Middleware(handler)
	handler = headers.Middleware(handler)
	handler = tracer.Middleware(handler)
	handler = log.Middleware(logger)(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Shutdown gracefully shuts down the server and its background routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Body(map[string]any{
		"status":    "ok",
		"timestamp": s.now().UTC().Format(time.RFC3339),
		"uptime":    s.now().Sub(s.started).Round(time.Second).String(),
	}).Write(w)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := map[string]string{"store": "ok"}
	status, code := "ready", http.StatusOK
	if s.ready != nil {
		if err := s.ready(ctx); err != nil {
			checks["store"] = "failed: " + err.Error()
			status, code = "not_ready", http.StatusServiceUnavailable
		}
	}
	NewJSONResponse().Status(code).Body(map[string]any{
		"status":    status,
		"timestamp": s.now().UTC().Format(time.RFC3339),
		"checks":    checks,
	}).Write(w)
}
