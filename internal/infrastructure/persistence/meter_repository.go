package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/waterbill/backend/internal/domain/billing"
	"github.com/waterbill/backend/internal/domain/shared"
	"github.com/waterbill/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormMeterRepository implements billing.MeterRepository using GORM
type GormMeterRepository struct {
	db *gorm.DB
}

// NewGormMeterRepository creates a new GormMeterRepository
func NewGormMeterRepository(db *gorm.DB) *GormMeterRepository {
	return &GormMeterRepository{db: db}
}

// FindByID finds a meter by its ID
func (r *GormMeterRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.Meter, error) {
	var model models.MeterModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, billing.NewMeterNotFoundError(id)
		}
		return nil, err
	}
	meter := model.ToDomain()
	return &meter, nil
}

// FindByNumber finds a meter by its number, nil when none is registered
func (r *GormMeterRepository) FindByNumber(ctx context.Context, meterNumber string) (*billing.Meter, error) {
	var model models.MeterModel
	if err := r.db.WithContext(ctx).First(&model, "meter_number = ?", meterNumber).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	meter := model.ToDomain()
	return &meter, nil
}

// Save creates or updates a meter
func (r *GormMeterRepository) Save(ctx context.Context, meter billing.Meter) error {
	err := r.db.WithContext(ctx).Save(models.MeterModelFromDomain(meter)).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("meter number %s: %w", meter.MeterNumber, shared.ErrAlreadyExists)
	}
	return err
}

// ListByCustomer returns the meters assigned to a customer
func (r *GormMeterRepository) ListByCustomer(ctx context.Context, customerID uuid.UUID) ([]billing.Meter, error) {
	var meterModels []models.MeterModel
	if err := r.db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Order("meter_number ASC").
		Find(&meterModels).Error; err != nil {
		return nil, err
	}

	meters := make([]billing.Meter, len(meterModels))
	for i := range meterModels {
		meters[i] = meterModels[i].ToDomain()
	}
	return meters, nil
}

// IsAssigned reports whether the meter exists and belongs to a customer
func (r *GormMeterRepository) IsAssigned(ctx context.Context, meterID uuid.UUID) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.MeterModel{}).
		Where("id = ? AND customer_id IS NOT NULL", meterID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// CustomerIDFor returns the owning customer of a meter
func (r *GormMeterRepository) CustomerIDFor(ctx context.Context, meterID uuid.UUID) (uuid.UUID, error) {
	var model models.MeterModel
	if err := r.db.WithContext(ctx).Select("id", "customer_id").First(&model, "id = ?", meterID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return uuid.Nil, billing.NewMeterNotAssignedError(meterID)
		}
		return uuid.Nil, err
	}
	if model.CustomerID == nil {
		return uuid.Nil, billing.NewMeterNotAssignedError(meterID)
	}
	return *model.CustomerID, nil
}

var _ billing.MeterRepository = (*GormMeterRepository)(nil)
