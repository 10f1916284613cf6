package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/waterbill/backend/internal/domain/billing"
	"github.com/waterbill/backend/internal/domain/shared"
	"github.com/waterbill/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormReadingRepository implements billing.ReadingStore using GORM
type GormReadingRepository struct {
	db *gorm.DB
}

// NewGormReadingRepository creates a new GormReadingRepository
func NewGormReadingRepository(db *gorm.DB) *GormReadingRepository {
	return &GormReadingRepository{db: db}
}

// FindByID finds a reading by its ID
func (r *GormReadingRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.MeterReading, error) {
	var model models.MeterReadingModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, billing.NewReadingNotFoundError(id)
		}
		return nil, err
	}
	reading := model.ToDomain()
	return &reading, nil
}

// FindLatestByMeter returns the newest reading for a meter, nil when the meter has none
func (r *GormReadingRepository) FindLatestByMeter(ctx context.Context, meterID uuid.UUID) (*billing.MeterReading, error) {
	var model models.MeterReadingModel
	err := r.db.WithContext(ctx).
		Where("meter_id = ?", meterID).
		Order("reading_date DESC").
		Order("created_at DESC").
		Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	reading := model.ToDomain()
	return &reading, nil
}

// Save stores a new reading
func (r *GormReadingRepository) Save(ctx context.Context, reading billing.MeterReading) error {
	return r.db.WithContext(ctx).Create(models.MeterReadingModelFromDomain(reading)).Error
}

// ListByMeter returns a page of a meter's readings
func (r *GormReadingRepository) ListByMeter(ctx context.Context, meterID uuid.UUID, filter shared.Filter) ([]billing.MeterReading, error) {
	var readingModels []models.MeterReadingModel
	if err := r.db.WithContext(ctx).
		Where("meter_id = ?", meterID).
		Order(orderClause(filter.OrderBy, filter.OrderDir, ReadingSortFields, "reading_date")).
		Offset(filter.Offset()).
		Limit(filter.Limit()).
		Find(&readingModels).Error; err != nil {
		return nil, err
	}

	readings := make([]billing.MeterReading, len(readingModels))
	for i := range readingModels {
		readings[i] = readingModels[i].ToDomain()
	}
	return readings, nil
}

var _ billing.ReadingStore = (*GormReadingRepository)(nil)
