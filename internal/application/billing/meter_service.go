package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/waterbill/backend/internal/domain/billing"
	"github.com/waterbill/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// MeterService manages the meter registry
type MeterService struct {
	meters    billing.MeterRepository
	customers billing.CustomerFinder
	deps      Dependencies
}

// NewMeterService creates a new MeterService
func NewMeterService(meters billing.MeterRepository, customers billing.CustomerFinder, deps Dependencies) *MeterService {
	return &MeterService{
		meters:    meters,
		customers: customers,
		deps:      deps.withDefaults(),
	}
}

// RegisterMeterRequest represents a request to register a meter
type RegisterMeterRequest struct {
	MeterNumber      string
	Location         string
	InstallationDate time.Time
}

// RegisterMeter adds a new active, unassigned meter. Meter numbers are unique.
func (s *MeterService) RegisterMeter(ctx context.Context, req RegisterMeterRequest) (*billing.Meter, error) {
	meter, err := billing.NewMeter(req.MeterNumber, req.Location, req.InstallationDate, s.deps.Clock())
	if err != nil {
		return nil, err
	}

	existing, err := s.meters.FindByNumber(ctx, meter.MeterNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to check meter number: %w", err)
	}
	if existing != nil {
		return nil, shared.DomainErrorf(billing.CodeMeterNumberExists, "Meter number %s is already registered", meter.MeterNumber)
	}

	if err := s.meters.Save(ctx, meter); err != nil {
		return nil, fmt.Errorf("failed to save meter: %w", err)
	}

	s.deps.Logger.Info("Meter registered",
		zap.String("meter_id", meter.ID.String()),
		zap.String("meter_number", meter.MeterNumber))
	return &meter, nil
}

// AssignToCustomer assigns an unassigned meter to an active, registered customer
func (s *MeterService) AssignToCustomer(ctx context.Context, meterID, customerID uuid.UUID) (*billing.Meter, error) {
	unlock, err := s.deps.Locker.Lock(ctx, meterLockKey(meterID))
	if err != nil {
		return nil, fmt.Errorf("failed to lock meter: %w", err)
	}
	defer unlock()

	meter, err := s.meters.FindByID(ctx, meterID)
	if err != nil {
		return nil, err
	}
	assigned, err := meter.AssignTo(customerID, s.deps.Clock())
	if err != nil {
		return nil, err
	}
	customer, err := s.customers.FindByID(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if !customer.IsActive() {
		return nil, shared.DomainErrorf(billing.CodeCustomerInactive, "Customer %s is inactive and cannot be assigned meters", customer.AccountNumber)
	}
	if err := s.meters.Save(ctx, assigned); err != nil {
		return nil, fmt.Errorf("failed to save meter: %w", err)
	}

	s.deps.Logger.Info("Meter assigned",
		zap.String("meter_id", meterID.String()),
		zap.String("customer_id", customerID.String()))
	publish(ctx, s.deps.Events, s.deps.Logger, billing.NewMeterAssignedEvent(assigned))
	return &assigned, nil
}

// Deactivate takes a meter out of service
func (s *MeterService) Deactivate(ctx context.Context, meterID uuid.UUID) (*billing.Meter, error) {
	unlock, err := s.deps.Locker.Lock(ctx, meterLockKey(meterID))
	if err != nil {
		return nil, fmt.Errorf("failed to lock meter: %w", err)
	}
	defer unlock()

	meter, err := s.meters.FindByID(ctx, meterID)
	if err != nil {
		return nil, err
	}
	deactivated := meter.Deactivate(s.deps.Clock())
	if err := s.meters.Save(ctx, deactivated); err != nil {
		return nil, fmt.Errorf("failed to save meter: %w", err)
	}

	s.deps.Logger.Info("Meter deactivated", zap.String("meter_id", meterID.String()))
	return &deactivated, nil
}

// Unassign detaches a meter from its customer. Readings stay with the customer
// they were recorded for.
func (s *MeterService) Unassign(ctx context.Context, meterID uuid.UUID) (*billing.Meter, error) {
	unlock, err := s.deps.Locker.Lock(ctx, meterLockKey(meterID))
	if err != nil {
		return nil, fmt.Errorf("failed to lock meter: %w", err)
	}
	defer unlock()

	meter, err := s.meters.FindByID(ctx, meterID)
	if err != nil {
		return nil, err
	}
	if !meter.IsAssigned() {
		return nil, billing.NewMeterNotAssignedError(meterID)
	}
	previous := *meter.CustomerID
	unassigned := meter.Unassign(s.deps.Clock())
	if err := s.meters.Save(ctx, unassigned); err != nil {
		return nil, fmt.Errorf("failed to save meter: %w", err)
	}

	s.deps.Logger.Info("Meter unassigned",
		zap.String("meter_id", meterID.String()),
		zap.String("customer_id", previous.String()))
	return &unassigned, nil
}

// Activate puts a deactivated meter back into service
func (s *MeterService) Activate(ctx context.Context, meterID uuid.UUID) (*billing.Meter, error) {
	unlock, err := s.deps.Locker.Lock(ctx, meterLockKey(meterID))
	if err != nil {
		return nil, fmt.Errorf("failed to lock meter: %w", err)
	}
	defer unlock()

	meter, err := s.meters.FindByID(ctx, meterID)
	if err != nil {
		return nil, err
	}
	activated := meter.Activate(s.deps.Clock())
	if err := s.meters.Save(ctx, activated); err != nil {
		return nil, fmt.Errorf("failed to save meter: %w", err)
	}

	s.deps.Logger.Info("Meter activated", zap.String("meter_id", meterID.String()))
	return &activated, nil
}

// GetMeter returns a meter by ID
func (s *MeterService) GetMeter(ctx context.Context, meterID uuid.UUID) (*billing.Meter, error) {
	return s.meters.FindByID(ctx, meterID)
}

// ListByCustomer returns the meters assigned to a customer
func (s *MeterService) ListByCustomer(ctx context.Context, customerID uuid.UUID) ([]billing.Meter, error) {
	return s.meters.ListByCustomer(ctx, customerID)
}
