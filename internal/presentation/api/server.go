// Package api serves agentmon's read API, execution ingestion and the live alert
// stream over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jbctechsolutions/agentmon/internal/application/observability"
	"github.com/jbctechsolutions/agentmon/internal/domain/alert"
	"github.com/jbctechsolutions/agentmon/internal/domain/cost"
	"github.com/jbctechsolutions/agentmon/internal/domain/metrics"
	"github.com/jbctechsolutions/agentmon/internal/infrastructure/logging"
)

const (
	DefaultAddr        = "127.0.0.1:9464"
	DefaultMetricsPath = "/metrics"

	// DefaultStreamKeepAlive is how often an idle alert stream gets a comment line.
	DefaultStreamKeepAlive = 15 * time.Second

	requestIDHeader = "X-Request-ID"
	shutdownTimeout = 10 * time.Second
)

// MetricsReader is satisfied by the metrics aggregator.
type MetricsReader interface {
	GetSystemMetrics() metrics.SystemMetrics
	GetAgentMetrics(name string) (metrics.AgentMetrics, bool)
	GetAllMetrics() metrics.AllMetrics
}

// CostReader is satisfied by the cost ledger.
type CostReader interface {
	GetAllCosts() cost.Snapshot
	GetCostOptimizations() []cost.Optimization
	GetDepartmentMonthlyCost(department, month string) float64
	DepartmentBudget(department string) float64
}

// AlertReader is satisfied by the alert manager.
type AlertReader interface {
	GetAlerts(f alert.Filter) []alert.Alert
	GetAlert(id string) (alert.Alert, bool)
	GetAlertStats(p alert.Period) alert.Stats
	AcknowledgeAlert(id string) bool
}

// MonitorProvider hands out execution monitors. *observability.Registry satisfies it.
type MonitorProvider interface {
	Monitor(agent, department string) (*observability.Monitor, error)
}

// AlertStream is satisfied by the dashboard broadcaster.
type AlertStream interface {
	Subscribe() (<-chan alert.Alert, func())
}

// Config wires the server. Nil sources disable their routes.
type Config struct {
	Addr           string
	MetricsPath    string
	Logger         *logging.Logger
	Metrics        MetricsReader
	Costs          CostReader
	Alerts         AlertReader
	Monitors       MonitorProvider
	Stream         AlertStream
	MetricsHandler http.Handler
	Now            func() time.Time

	StreamKeepAlive time.Duration
}

// Server is the HTTP API.
type Server struct {
	cfg    Config
	logger *logging.Logger
	engine *gin.Engine
	now    func() time.Time
}

// NewServer builds the router.
func NewServer(cfg Config) *Server {
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = DefaultMetricsPath
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.StreamKeepAlive <= 0 {
		cfg.StreamKeepAlive = DefaultStreamKeepAlive
	}

	s := &Server{
		cfg:    cfg,
		logger: cfg.Logger.With("component", "api"),
		now:    cfg.Now,
	}
	s.engine = s.routes()
	return s
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestContext())

	r.GET("/healthz", s.health)
	if s.cfg.MetricsHandler != nil {
		r.GET(s.cfg.MetricsPath, gin.WrapH(s.cfg.MetricsHandler))
	}

	v1 := r.Group("/api/v1")
	if s.cfg.Metrics != nil {
		v1.GET("/system", s.getSystem)
		v1.GET("/agents", s.listAgents)
		v1.GET("/agents/:name", s.getAgent)
	}
	if s.cfg.Costs != nil {
		v1.GET("/costs", s.getCosts)
		v1.GET("/costs/optimizations", s.getOptimizations)
		v1.GET("/costs/departments/:dept", s.getDepartmentCost)
	}
	if s.cfg.Alerts != nil {
		v1.GET("/alerts", s.listAlerts)
		v1.GET("/alerts/stats", s.alertStats)
		v1.POST("/alerts/:id/ack", s.ackAlert)
	}
	if s.cfg.Stream != nil {
		v1.GET("/alerts/stream", s.streamAlerts)
	}
	if s.cfg.Monitors != nil {
		v1.POST("/executions", s.ingestExecution)
	}
	return r
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.cfg.Addr
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", s.cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info("http server stopped")
	return nil
}

// requestContext attaches a correlation id and logs each request at debug level.
func (s *Server) requestContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(requestIDHeader, id)
		c.Request = c.Request.WithContext(logging.WithCorrelationID(c.Request.Context(), id))

		start := time.Now()
		c.Next()

		s.logger.DebugContext(c.Request.Context(), "http request",
			"method", c.Request.Method,
			"route", c.FullPath(),
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": s.now().UTC()})
}
