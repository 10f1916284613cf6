package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/waterbill/backend/internal/domain/billing"
	"github.com/waterbill/backend/internal/domain/shared"
	"github.com/waterbill/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// BillingServiceConfig contains configuration for BillingService
type BillingServiceConfig struct {
	Tariff    billing.Tariff
	GraceDays int
}

// DefaultBillingServiceConfig returns the standard tariff with a 30 day grace period
func DefaultBillingServiceConfig() BillingServiceConfig {
	return BillingServiceConfig{
		Tariff:    billing.DefaultTariff(),
		GraceDays: 30,
	}
}

// BillingService issues bills and drives their lifecycle
type BillingService struct {
	readings  billing.ReadingStore
	bills     billing.BillStore
	tariff    billing.Tariff
	graceDays int
	deps      Dependencies
}

// NewBillingService creates a new BillingService
func NewBillingService(
	readings billing.ReadingStore,
	bills billing.BillStore,
	config BillingServiceConfig,
	deps Dependencies,
) *BillingService {
	if len(config.Tariff.Tiers) == 0 {
		config.Tariff = billing.DefaultTariff()
	}
	if config.GraceDays < 0 {
		config.GraceDays = 30
	}
	return &BillingService{
		readings:  readings,
		bills:     bills,
		tariff:    config.Tariff,
		graceDays: config.GraceDays,
		deps:      deps.withDefaults(),
	}
}

// Tariff returns the tariff bills are priced with
func (s *BillingService) Tariff() billing.Tariff {
	return s.tariff
}

// Calculate prices a consumption figure without issuing a bill
func (s *BillingService) Calculate(consumption uint64) billing.Calculation {
	return s.tariff.Calculate(consumption)
}

// GenerateFromReading issues a pending bill for a stored reading.
// A reading can be billed once; a second attempt yields *billing.ReadingAlreadyBilledError.
func (s *BillingService) GenerateFromReading(ctx context.Context, reading billing.MeterReading) (*billing.Bill, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "bill", "generate")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrReadingID, reading.ID.String(),
		telemetry.SpanAttrCustomerID, reading.CustomerID.String(),
	)

	unlock, err := s.deps.Locker.Lock(ctx, readingLockKey(reading.ID))
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to lock reading: %w", err)
	}
	defer unlock()

	existing, err := s.bills.FindByReadingID(ctx, reading.ID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to check existing bill: %w", err)
	}
	if existing != nil {
		err := billing.NewReadingAlreadyBilledError(reading.ID, existing.ID)
		telemetry.RecordError(span, err)
		return nil, err
	}

	bill, err := s.IssueBill(reading)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	if err := s.bills.Save(ctx, bill); err != nil {
		telemetry.RecordError(span, err)
		var already *billing.ReadingAlreadyBilledError
		if errors.As(err, &already) {
			return nil, already
		}
		return nil, fmt.Errorf("failed to save bill: %w", err)
	}

	telemetry.SetAttributes(span, telemetry.SpanAttrBillID, bill.ID.String(), telemetry.SpanAttrAmount, bill.TotalAmount.String())
	s.BillStored(ctx, bill)

	return &bill, nil
}

// IssueBill prices reading with the tariff into a new pending bill. Nothing is stored.
func (s *BillingService) IssueBill(reading billing.MeterReading) (billing.Bill, error) {
	calc := s.tariff.Calculate(reading.Consumption)
	return billing.GenerateBill(reading, calc, s.graceDays, s.deps.Clock())
}

// BillStored logs, counts and announces a bill that has been committed
func (s *BillingService) BillStored(ctx context.Context, bill billing.Bill) {
	s.deps.Logger.Info("Bill generated",
		zap.String("bill_id", bill.ID.String()),
		zap.String("reading_id", readingIDOf(bill)),
		zap.String("billing_period", bill.BillingPeriod),
		zap.Uint64("consumption", bill.Consumption),
		zap.String("total_amount", bill.TotalAmount.StringFixed(2)))
	s.deps.Metrics.RecordBillGenerated(ctx, bill.TotalAmount)
	publish(ctx, s.deps.Events, s.deps.Logger, billing.NewBillGeneratedEvent(bill))
}

func readingIDOf(bill billing.Bill) string {
	if bill.MeterReadingID == nil {
		return ""
	}
	return bill.MeterReadingID.String()
}

// GenerateFromReadingID loads a reading and issues its bill
func (s *BillingService) GenerateFromReadingID(ctx context.Context, readingID uuid.UUID) (*billing.Bill, error) {
	reading, err := s.readings.FindByID(ctx, readingID)
	if err != nil {
		return nil, err
	}
	return s.GenerateFromReading(ctx, *reading)
}

// CancelBill voids a pending or overdue bill
func (s *BillingService) CancelBill(ctx context.Context, billID uuid.UUID) (*billing.Bill, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "bill", "cancel")
	defer span.End()
	telemetry.SetAttributes(span, telemetry.SpanAttrBillID, billID.String())

	unlock, err := s.deps.Locker.Lock(ctx, billLockKey(billID))
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to lock bill: %w", err)
	}
	defer unlock()

	bill, err := s.bills.FindByID(ctx, billID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	cancelled, err := bill.Cancel(s.deps.Clock())
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if err := s.bills.UpdateStatus(ctx, cancelled, bill.Version); err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to cancel bill: %w", err)
	}

	s.deps.Logger.Info("Bill cancelled",
		zap.String("bill_id", billID.String()),
		zap.String("from", bill.Status.String()))
	s.deps.Metrics.RecordBillTransition(ctx, cancelled.Status.String())
	publish(ctx, s.deps.Events, s.deps.Logger, billing.NewBillStatusChangedEvent(bill.Status, cancelled))

	return &cancelled, nil
}

// SweepResult summarizes one overdue sweep
type SweepResult struct {
	Examined     int         `json:"examined"`
	Transitioned int         `json:"transitioned"`
	Failed       int         `json:"failed"`
	OverdueIDs   []uuid.UUID `json:"overdue_ids"`
}

// SweepOverdue moves every pending bill past its due date to overdue.
// Each bill is written with a version check; a bill that fails is logged and
// counted without stopping the sweep. Running it twice is harmless.
func (s *BillingService) SweepOverdue(ctx context.Context) (*SweepResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "bill", "sweep_overdue")
	defer span.End()

	pending, err := s.bills.ListByStatus(ctx, billing.BillStatusPending)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to list pending bills: %w", err)
	}

	now := s.deps.Clock()
	result := &SweepResult{Examined: len(pending), OverdueIDs: []uuid.UUID{}}
	for _, bill := range pending {
		if err := ctx.Err(); err != nil {
			telemetry.RecordError(span, err)
			return result, err
		}
		if !bill.IsPastDue(now) {
			continue
		}

		overdue, err := bill.MarkOverdue(now)
		if err != nil {
			result.Failed++
			s.deps.Logger.Warn("Overdue transition rejected",
				zap.String("bill_id", bill.ID.String()),
				zap.Error(err))
			continue
		}
		if err := s.bills.UpdateStatus(ctx, overdue, bill.Version); err != nil {
			result.Failed++
			if errors.Is(err, shared.ErrConcurrencyConflict) {
				s.deps.Logger.Info("Bill changed during overdue sweep, skipped",
					zap.String("bill_id", bill.ID.String()))
			} else {
				s.deps.Logger.Error("Failed to mark bill overdue",
					zap.String("bill_id", bill.ID.String()),
					zap.Error(err))
			}
			continue
		}

		result.Transitioned++
		result.OverdueIDs = append(result.OverdueIDs, overdue.ID)
		s.deps.Metrics.RecordBillTransition(ctx, overdue.Status.String())
		publish(ctx, s.deps.Events, s.deps.Logger, billing.NewBillStatusChangedEvent(bill.Status, overdue))
	}

	telemetry.SetAttributes(span,
		"examined", result.Examined,
		"transitioned", result.Transitioned,
		"failed", result.Failed,
	)
	s.deps.Metrics.RecordSweep(ctx, result.Transitioned, result.Failed)
	s.deps.Logger.Info("Overdue sweep finished",
		zap.Int("examined", result.Examined),
		zap.Int("transitioned", result.Transitioned),
		zap.Int("failed", result.Failed))

	return result, nil
}

// GetBill returns a bill by ID
func (s *BillingService) GetBill(ctx context.Context, billID uuid.UUID) (*billing.Bill, error) {
	return s.bills.FindByID(ctx, billID)
}

// ListBills returns a page of bills
func (s *BillingService) ListBills(ctx context.Context, filter billing.BillFilter) (shared.Paginated[billing.Bill], error) {
	bills, total, err := s.bills.List(ctx, filter)
	if err != nil {
		return shared.Paginated[billing.Bill]{}, fmt.Errorf("failed to list bills: %w", err)
	}
	return shared.NewPaginated(bills, total, filter.Page, filter.Limit()), nil
}

// BillSummary holds bill counts and amounts per status
type BillSummary struct {
	TotalBills  int64                             `json:"total_bills"`
	TotalAmount decimal.Decimal                   `json:"total_amount"`
	ByStatus    map[billing.BillStatus]StatusLine `json:"by_status"`
	Outstanding decimal.Decimal                   `json:"outstanding"`
}

// StatusLine is one status row of a BillSummary
type StatusLine struct {
	Count  int64           `json:"count"`
	Amount decimal.Decimal `json:"amount"`
}

// Summary aggregates bills by status. Outstanding is the amount of pending and overdue bills.
func (s *BillingService) Summary(ctx context.Context) (*BillSummary, error) {
	totals, err := s.bills.Totals(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate bills: %w", err)
	}

	summary := &BillSummary{
		TotalAmount: decimal.Zero,
		Outstanding: decimal.Zero,
		ByStatus:    make(map[billing.BillStatus]StatusLine, len(billing.AllBillStatuses)),
	}
	for _, status := range billing.AllBillStatuses {
		summary.ByStatus[status] = StatusLine{Amount: decimal.Zero}
	}
	for _, t := range totals {
		summary.ByStatus[t.Status] = StatusLine{Count: t.Count, Amount: t.Amount}
		summary.TotalBills += t.Count
		summary.TotalAmount = summary.TotalAmount.Add(t.Amount)
		if t.Status.CanAcceptPayment() {
			summary.Outstanding = summary.Outstanding.Add(t.Amount)
		}
	}
	return summary, nil
}
