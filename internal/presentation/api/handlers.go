package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jbctechsolutions/agentmon/internal/application/observability"
	"github.com/jbctechsolutions/agentmon/internal/domain/alert"
	"github.com/jbctechsolutions/agentmon/internal/domain/cost"
	domainerrors "github.com/jbctechsolutions/agentmon/internal/domain/errors"
	"github.com/jbctechsolutions/agentmon/internal/domain/metrics"
)

func respondError(c *gin.Context, status int, err error) {
	c.JSON(status, gin.H{"error": err.Error()})
}

func (s *Server) getSystem(c *gin.Context) {
	c.JSON(http.StatusOK, s.cfg.Metrics.GetSystemMetrics())
}

func (s *Server) listAgents(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"agents": s.cfg.Metrics.GetAllMetrics().Agents})
}

func (s *Server) getAgent(c *gin.Context) {
	m, ok := s.cfg.Metrics.GetAgentMetrics(c.Param("name"))
	if !ok {
		respondError(c, http.StatusNotFound, domainerrors.ErrAgentNotFound)
		return
	}
	c.JSON(http.StatusOK, m)
}

func (s *Server) getCosts(c *gin.Context) {
	c.JSON(http.StatusOK, s.cfg.Costs.GetAllCosts())
}

func (s *Server) getOptimizations(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"optimizations": s.cfg.Costs.GetCostOptimizations()})
}

// DepartmentCost is the monthly spend of one department against its budget.
type DepartmentCost struct {
	Department  string   `json:"department"`
	Month       string   `json:"month"`
	Cost        float64  `json:"cost"`
	Budget      float64  `json:"budget"`
	PercentUsed *float64 `json:"percentUsed,omitempty"`
}

func (s *Server) getDepartmentCost(c *gin.Context) {
	dept := c.Param("dept")
	month := c.Query("month")
	if month == "" {
		month = cost.MonthKey(s.now())
	} else if _, err := time.Parse("2006-01", month); err != nil {
		respondError(c, http.StatusBadRequest, fmt.Errorf("invalid month %q: want YYYY-MM", month))
		return
	}

	out := DepartmentCost{
		Department: dept,
		Month:      month,
		Cost:       s.cfg.Costs.GetDepartmentMonthlyCost(dept, month),
		Budget:     s.cfg.Costs.DepartmentBudget(dept),
	}
	if out.Budget > 0 {
		pct := out.Cost / out.Budget * 100
		out.PercentUsed = &pct
	}
	c.JSON(http.StatusOK, out)
}

func parseFilter(c *gin.Context) (alert.Filter, error) {
	var f alert.Filter

	if v := c.Query("level"); v != "" {
		level, err := alert.ParseLevel(v)
		if err != nil {
			return f, err
		}
		f.Level = level
	}
	f.Type = c.Query("type")
	if v := c.Query("acknowledged"); v != "" {
		ack, err := strconv.ParseBool(v)
		if err != nil {
			return f, fmt.Errorf("invalid acknowledged %q", v)
		}
		f.Acknowledged = &ack
	}
	if v := c.Query("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, fmt.Errorf("invalid since %q: want RFC3339", v)
		}
		f.Since = since
	}
	if v := c.Query("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			return f, fmt.Errorf("invalid limit %q", v)
		}
		f.Limit = limit
	}
	return f, nil
}

func (s *Server) listAlerts(c *gin.Context) {
	f, err := parseFilter(c)
	if err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"alerts": s.cfg.Alerts.GetAlerts(f)})
}

func (s *Server) alertStats(c *gin.Context) {
	p, err := alert.ParsePeriod(c.Query("period"))
	if err != nil {
		respondError(c, http.StatusBadRequest, errors.Join(domainerrors.ErrInvalidPeriod, err))
		return
	}
	c.JSON(http.StatusOK, s.cfg.Alerts.GetAlertStats(p))
}

func (s *Server) ackAlert(c *gin.Context) {
	id := c.Param("id")
	if !s.cfg.Alerts.AcknowledgeAlert(id) {
		respondError(c, http.StatusNotFound, domainerrors.ErrAlertNotFound)
		return
	}
	a, _ := s.cfg.Alerts.GetAlert(id)
	c.JSON(http.StatusOK, a)
}

func (s *Server) streamAlerts(c *gin.Context) {
	ch, cancel := s.cfg.Stream.Subscribe()
	defer cancel()

	ctx := c.Request.Context()
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	// Send the headers now; the first alert may be a long way off.
	c.Status(http.StatusOK)
	c.Writer.WriteHeaderNow()
	c.Writer.Flush()

	keepAlive := time.NewTicker(s.cfg.StreamKeepAlive)
	defer keepAlive.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case <-keepAlive.C:
			_, err := io.WriteString(w, ": keep-alive\n\n")
			return err == nil
		case a, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent("alert", a)
			return true
		}
	})
}

// ExecutionRequest reports a completed execution timed by the caller.
type ExecutionRequest struct {
	Agent        string `json:"agent" binding:"required"`
	Department   string `json:"department"`
	Status       string `json:"status"`
	DurationMs   int64  `json:"durationMs" binding:"gte=0"`
	Model        string `json:"model"`
	InputTokens  int    `json:"inputTokens" binding:"gte=0"`
	OutputTokens int    `json:"outputTokens" binding:"gte=0"`
	TokensUsed   int    `json:"tokensUsed" binding:"gte=0"`
	Prompt       string `json:"prompt"`
	Completion   string `json:"completion"`
	APICalls     int    `json:"apiCalls" binding:"gte=0"`
	Error        string `json:"error"`
}

func parseStatus(s string) (metrics.Status, error) {
	switch st := metrics.Status(s); st {
	case "":
		return metrics.StatusCompleted, nil
	case metrics.StatusCompleted, metrics.StatusError, metrics.StatusFailed, metrics.StatusTimeout:
		return st, nil
	default:
		return "", fmt.Errorf("invalid status %q", s)
	}
}

func (s *Server) ingestExecution(c *gin.Context) {
	var req ExecutionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}
	status, err := parseStatus(req.Status)
	if err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}

	m, err := s.cfg.Monitors.Monitor(req.Agent, req.Department)
	if err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}

	usage := observability.Usage{
		Model:        req.Model,
		InputTokens:  req.InputTokens,
		OutputTokens: req.OutputTokens,
		TokensUsed:   req.TokensUsed,
		Prompt:       req.Prompt,
		Completion:   req.Completion,
		APICalls:     req.APICalls,
	}
	if req.Error != "" {
		usage.Err = errors.New(req.Error)
	}

	report := m.Record(c.Request.Context(), status, time.Duration(req.DurationMs)*time.Millisecond, usage)
	c.JSON(http.StatusCreated, report)
}
