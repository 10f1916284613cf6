package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	billingapp "github.com/waterbill/backend/internal/application/billing"
	"github.com/waterbill/backend/internal/domain/billing"
	"github.com/waterbill/backend/internal/domain/shared"
	"github.com/waterbill/backend/internal/infrastructure/logger"
	"github.com/waterbill/backend/internal/infrastructure/scheduler"
	"github.com/waterbill/backend/internal/interfaces/http/dto"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type mockPinger struct{ err error }

func (m mockPinger) Ping(context.Context) error { return m.err }

type mockSweeps struct {
	mock.Mock
}

func (m *mockSweeps) RunNow(ctx context.Context) (*billingapp.SweepResult, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billingapp.SweepResult), args.Error(1)
}

func (m *mockSweeps) LastRun() *scheduler.RunRecord {
	args := m.Called()
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).(*scheduler.RunRecord)
}

func (m *mockSweeps) NextRun() time.Time {
	return m.Called().Get(0).(time.Time)
}

type mockSummary struct {
	summary *billingapp.BillSummary
	err     error
}

func (m mockSummary) Summary(context.Context) (*billingapp.BillSummary, error) {
	return m.summary, m.err
}

func newEngine(registrars ...interface{ RegisterRoutes(*gin.RouterGroup) }) *gin.Engine {
	engine := gin.New()
	engine.Use(logger.RequestID(zap.NewNop()), logger.GinMiddleware(zap.NewNop()))
	for _, r := range registrars {
		r.RegisterRoutes(engine.Group(""))
	}
	return engine
}

func do(engine *gin.Engine, method, path string) (*httptest.ResponseRecorder, map[string]any) {
	req := httptest.NewRequest(method, path, nil)
	req.Header.Set(logger.RequestIDHeader, "req-1")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	var body map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	return w, body
}

func TestHealthHandler_Health(t *testing.T) {
	engine := newEngine(NewHealthHandler("waterbill", mockPinger{}))

	w, body := do(engine, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, w.Code)
	data := body["data"].(map[string]any)
	assert.Equal(t, "ok", data["status"])
	assert.Equal(t, "waterbill", data["name"])
}

func TestHealthHandler_Ready(t *testing.T) {
	engine := newEngine(NewHealthHandler("waterbill", mockPinger{}))
	w, body := do(engine, http.MethodGet, "/ready")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ready", body["data"].(map[string]any)["status"])

	engine = newEngine(NewHealthHandler("waterbill", mockPinger{err: errors.New("connection refused")}))
	w, body = do(engine, http.MethodGet, "/ready")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	data := body["data"].(map[string]any)
	assert.Equal(t, "not_ready", data["status"])
	assert.Equal(t, "connection refused", data["checks"].(map[string]any)["database"])
}

func TestOpsHandler_TriggerOverdueSweep(t *testing.T) {
	sweeps := new(mockSweeps)
	sweeps.On("RunNow", mock.Anything).Return(&billingapp.SweepResult{
		Examined:     4,
		Transitioned: 3,
		Failed:       1,
		OverdueIDs:   []uuid.UUID{uuid.New(), uuid.New(), uuid.New()},
	}, nil).Once()

	engine := newEngine(NewOpsHandler(sweeps, mockSummary{}))
	w, body := do(engine, http.MethodPost, "/ops/sweeps/overdue")

	assert.Equal(t, http.StatusOK, w.Code)
	data := body["data"].(map[string]any)
	assert.Equal(t, float64(3), data["transitioned"])
	assert.Len(t, data["overdue_ids"], 3)
	sweeps.AssertExpectations(t)
}

func TestOpsHandler_TriggerOverdueSweepInProgress(t *testing.T) {
	sweeps := new(mockSweeps)
	sweeps.On("RunNow", mock.Anything).Return(nil, scheduler.ErrSweepInProgress)

	engine := newEngine(NewOpsHandler(sweeps, mockSummary{}))
	w, body := do(engine, http.MethodPost, "/ops/sweeps/overdue")

	assert.Equal(t, http.StatusConflict, w.Code)
	errInfo := body["error"].(map[string]any)
	assert.Equal(t, dto.ErrCodeConflict, errInfo["code"])
	assert.Equal(t, "req-1", errInfo["request_id"])
}

func TestOpsHandler_TriggerOverdueSweepFailure(t *testing.T) {
	sweeps := new(mockSweeps)
	sweeps.On("RunNow", mock.Anything).Return(nil, errors.New("database unavailable"))

	engine := newEngine(NewOpsHandler(sweeps, mockSummary{}))
	w, body := do(engine, http.MethodPost, "/ops/sweeps/overdue")

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, dto.ErrCodeInternal, body["error"].(map[string]any)["code"])
}

func TestOpsHandler_GetOverdueSweepStatus(t *testing.T) {
	next := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	sweeps := new(mockSweeps)
	sweeps.On("LastRun").Return(&scheduler.RunRecord{Trigger: scheduler.TriggerCron})
	sweeps.On("NextRun").Return(next)

	engine := newEngine(NewOpsHandler(sweeps, mockSummary{}))
	w, body := do(engine, http.MethodGet, "/ops/sweeps/overdue")

	require.Equal(t, http.StatusOK, w.Code)
	data := body["data"].(map[string]any)
	assert.Equal(t, scheduler.TriggerCron, data["last_run"].(map[string]any)["trigger"])
	assert.Equal(t, "2024-03-15T12:00:00Z", data["next_run"])
}

func TestOpsHandler_GetOverdueSweepStatusNotScheduled(t *testing.T) {
	sweeps := new(mockSweeps)
	sweeps.On("LastRun").Return(nil)
	sweeps.On("NextRun").Return(time.Time{})

	engine := newEngine(NewOpsHandler(sweeps, mockSummary{}))
	w, body := do(engine, http.MethodGet, "/ops/sweeps/overdue")

	require.Equal(t, http.StatusOK, w.Code)
	data := body["data"].(map[string]any)
	assert.NotContains(t, data, "last_run")
	assert.NotContains(t, data, "next_run")
}

func TestOpsHandler_GetBillSummary(t *testing.T) {
	summary := &billingapp.BillSummary{
		TotalBills:  2,
		TotalAmount: decimal.NewFromInt(80),
		Outstanding: decimal.NewFromInt(40),
		ByStatus: map[billing.BillStatus]billingapp.StatusLine{
			billing.BillStatusPending: {Count: 1, Amount: decimal.NewFromInt(40)},
			billing.BillStatusPaid:    {Count: 1, Amount: decimal.NewFromInt(40)},
		},
	}
	engine := newEngine(NewOpsHandler(new(mockSweeps), mockSummary{summary: summary}))

	w, body := do(engine, http.MethodGet, "/ops/bills/summary")
	require.Equal(t, http.StatusOK, w.Code)
	data := body["data"].(map[string]any)
	assert.Equal(t, float64(2), data["total_bills"])
	assert.Equal(t, "40", data["outstanding"])
}

func TestBaseHandler_HandleDomainError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"bill not found", billing.NewBillNotFoundError(uuid.New()), http.StatusNotFound, billing.CodeBillNotFound},
		{"shared conflict", shared.ErrConcurrencyConflict, http.StatusConflict, dto.ErrCodeConcurrencyConflict},
		{"wrapped", errors.Join(errors.New("ctx"), billing.NewBillAlreadyPaidError(uuid.New())), http.StatusUnprocessableEntity, billing.CodeBillAlreadyPaid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := newEngine(NewOpsHandler(new(mockSweeps), mockSummary{err: tt.err}))
			w, body := do(engine, http.MethodGet, "/ops/bills/summary")
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.code, body["error"].(map[string]any)["code"])
		})
	}
}
