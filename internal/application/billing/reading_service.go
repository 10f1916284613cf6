package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/waterbill/backend/internal/domain/billing"
	"github.com/waterbill/backend/internal/domain/shared"
	"github.com/waterbill/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// ReadingService records and validates meter readings
type ReadingService struct {
	readings billing.ReadingStore
	meters   billing.MeterDirectory
	tx       billing.Transactor
	deps     Dependencies
}

// NewReadingService creates a new ReadingService
func NewReadingService(
	readings billing.ReadingStore,
	meters billing.MeterDirectory,
	tx billing.Transactor,
	deps Dependencies,
) *ReadingService {
	return &ReadingService{
		readings: readings,
		meters:   meters,
		tx:       tx,
		deps:     deps.withDefaults(),
	}
}

// BillIssuer prices a reading into a bill and reports bills once committed.
// Implemented by BillingService.
type BillIssuer interface {
	IssueBill(reading billing.MeterReading) (billing.Bill, error)
	BillStored(ctx context.Context, bill billing.Bill)
}

// RecordReadingRequest represents a request to record a meter reading
type RecordReadingRequest struct {
	MeterID        uuid.UUID
	CurrentReading uint64
	ReadingDate    time.Time // zero means now
	ImageURL       string    // optional
	Notes          string    // optional
}

// BulkImportResult summarizes a bulk reading import
type BulkImportResult struct {
	Succeeded int      `json:"succeeded"`
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors"`
}

// RecordReading validates and stores a reading. The previous value is the
// meter's latest stored reading, or 0 for a meter's first reading.
func (s *ReadingService) RecordReading(ctx context.Context, req RecordReadingRequest) (*billing.MeterReading, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "reading", "record")
	defer span.End()
	telemetry.SetAttributes(span, telemetry.SpanAttrMeterID, req.MeterID.String())

	unlock, err := s.deps.Locker.Lock(ctx, meterLockKey(req.MeterID))
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to lock meter: %w", err)
	}
	defer unlock()

	reading, err := s.nextReading(ctx, req)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if err := s.readings.Save(ctx, reading); err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to save reading: %w", err)
	}

	s.readingStored(ctx, reading)
	return &reading, nil
}

// RecordAndBill records a reading and issues its bill in one transaction.
// Either both are stored or neither is, so a failed call can be repeated as is.
func (s *ReadingService) RecordAndBill(ctx context.Context, req RecordReadingRequest, issuer BillIssuer) (*billing.MeterReading, *billing.Bill, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "reading", "record_and_bill")
	defer span.End()
	telemetry.SetAttributes(span, telemetry.SpanAttrMeterID, req.MeterID.String())

	unlock, err := s.deps.Locker.Lock(ctx, meterLockKey(req.MeterID))
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, nil, fmt.Errorf("failed to lock meter: %w", err)
	}
	defer unlock()

	reading, err := s.nextReading(ctx, req)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, nil, err
	}
	bill, err := issuer.IssueBill(reading)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, nil, err
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context, stores billing.TxStores) error {
		if err := stores.Readings.Save(ctx, reading); err != nil {
			return fmt.Errorf("failed to save reading: %w", err)
		}
		if err := stores.Bills.Save(ctx, bill); err != nil {
			return fmt.Errorf("failed to save bill: %w", err)
		}
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, nil, err
	}

	telemetry.SetAttributes(span, telemetry.SpanAttrBillID, bill.ID.String())
	s.readingStored(ctx, reading)
	issuer.BillStored(ctx, bill)
	return &reading, &bill, nil
}

// nextReading builds the meter's next reading. The caller holds the meter lock.
func (s *ReadingService) nextReading(ctx context.Context, req RecordReadingRequest) (billing.MeterReading, error) {
	customerID, err := s.meters.CustomerIDFor(ctx, req.MeterID)
	if err != nil {
		return billing.MeterReading{}, err
	}

	var previous uint64
	latest, err := s.readings.FindLatestByMeter(ctx, req.MeterID)
	if err != nil {
		return billing.MeterReading{}, fmt.Errorf("failed to get latest reading: %w", err)
	}
	if latest != nil {
		previous = latest.CurrentReading
	}

	reading, err := billing.NewMeterReading(req.MeterID, customerID, req.ReadingDate, previous, req.CurrentReading, s.deps.Clock())
	if err != nil {
		return billing.MeterReading{}, err
	}
	return reading.WithImageURL(req.ImageURL).WithNotes(req.Notes), nil
}

func (s *ReadingService) readingStored(ctx context.Context, reading billing.MeterReading) {
	s.deps.Logger.Info("Meter reading recorded",
		zap.String("reading_id", reading.ID.String()),
		zap.String("meter_id", reading.MeterID.String()),
		zap.Uint64("previous", reading.PreviousReading),
		zap.Uint64("current", reading.CurrentReading),
		zap.Uint64("consumption", reading.Consumption))
	s.deps.Metrics.RecordReading(ctx, reading.Consumption)
	publish(ctx, s.deps.Events, s.deps.Logger, billing.NewReadingRecordedEvent(reading))
}

// BulkImport records each reading independently. A failing row is counted
// and described in the result; it never stops the rest of the batch.
func (s *ReadingService) BulkImport(ctx context.Context, reqs []RecordReadingRequest) *BulkImportResult {
	result := &BulkImportResult{Errors: []string{}}
	for _, req := range reqs {
		if _, err := s.RecordReading(ctx, req); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("Meter %s: %s", req.MeterID, err.Error()))
			s.deps.Logger.Warn("Bulk reading import row failed",
				zap.String("meter_id", req.MeterID.String()),
				zap.Error(err))
			continue
		}
		result.Succeeded++
	}

	s.deps.Logger.Info("Bulk reading import finished",
		zap.Int("succeeded", result.Succeeded),
		zap.Int("failed", result.Failed))
	return result
}

// GetReading returns a reading by ID
func (s *ReadingService) GetReading(ctx context.Context, id uuid.UUID) (*billing.MeterReading, error) {
	return s.readings.FindByID(ctx, id)
}

// ListByMeter returns a meter's readings, newest first
func (s *ReadingService) ListByMeter(ctx context.Context, meterID uuid.UUID, filter shared.Filter) ([]billing.MeterReading, error) {
	return s.readings.ListByMeter(ctx, meterID, filter)
}
