package handler

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	billingapp "github.com/waterbill/backend/internal/application/billing"
	"github.com/waterbill/backend/internal/infrastructure/scheduler"
)

// SweepRunner runs and reports on the overdue sweep
type SweepRunner interface {
	RunNow(ctx context.Context) (*billingapp.SweepResult, error)
	LastRun() *scheduler.RunRecord
	NextRun() time.Time
}

// SummaryProvider aggregates bills by status
type SummaryProvider interface {
	Summary(ctx context.Context) (*billingapp.BillSummary, error)
}

// OpsHandler serves operator endpoints
type OpsHandler struct {
	BaseHandler
	sweeps  SweepRunner
	summary SummaryProvider
}

// NewOpsHandler creates a new OpsHandler
func NewOpsHandler(sweeps SweepRunner, summary SummaryProvider) *OpsHandler {
	return &OpsHandler{sweeps: sweeps, summary: summary}
}

// SweepStatusResponse describes the sweep schedule
type SweepStatusResponse struct {
	LastRun *scheduler.RunRecord `json:"last_run,omitempty"`
	NextRun *time.Time           `json:"next_run,omitempty"`
}

// TriggerOverdueSweep runs the overdue sweep now.
// The sweep is detached from the request so a dropped client does not abort it.
func (h *OpsHandler) TriggerOverdueSweep(c *gin.Context) {
	result, err := h.sweeps.RunNow(context.WithoutCancel(c.Request.Context()))
	if errors.Is(err, scheduler.ErrSweepInProgress) {
		h.Conflict(c, "An overdue sweep is already running")
		return
	}
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// GetOverdueSweepStatus returns the last run and the next scheduled run
func (h *OpsHandler) GetOverdueSweepStatus(c *gin.Context) {
	resp := SweepStatusResponse{LastRun: h.sweeps.LastRun()}
	if next := h.sweeps.NextRun(); !next.IsZero() {
		resp.NextRun = &next
	}
	h.Success(c, resp)
}

// GetBillSummary returns bill counts and amounts per status
func (h *OpsHandler) GetBillSummary(c *gin.Context) {
	summary, err := h.summary.Summary(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, summary)
}

// RegisterRoutes implements router.RouteRegistrar
func (h *OpsHandler) RegisterRoutes(rg *gin.RouterGroup) {
	ops := rg.Group("/ops")
	ops.POST("/sweeps/overdue", h.TriggerOverdueSweep)
	ops.GET("/sweeps/overdue", h.GetOverdueSweepStatus)
	ops.GET("/bills/summary", h.GetBillSummary)
}
