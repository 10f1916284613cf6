package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/waterbill/backend/internal/domain/billing"
	"github.com/waterbill/backend/internal/domain/shared"
	"github.com/waterbill/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormBillRepository implements billing.BillStore using GORM
type GormBillRepository struct {
	db *gorm.DB
}

// NewGormBillRepository creates a new GormBillRepository
func NewGormBillRepository(db *gorm.DB) *GormBillRepository {
	return &GormBillRepository{db: db}
}

// FindByID finds a bill by its ID
func (r *GormBillRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.Bill, error) {
	var model models.BillModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, billing.NewBillNotFoundError(id)
		}
		return nil, err
	}
	bill := model.ToDomain()
	return &bill, nil
}

// FindByReadingID returns the bill issued for a reading, nil when the reading is unbilled
func (r *GormBillRepository) FindByReadingID(ctx context.Context, readingID uuid.UUID) (*billing.Bill, error) {
	var model models.BillModel
	if err := r.db.WithContext(ctx).Take(&model, "meter_reading_id = ?", readingID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	bill := model.ToDomain()
	return &bill, nil
}

// Save stores a new bill. The unique index on meter_reading_id rejects a second bill for a reading.
func (r *GormBillRepository) Save(ctx context.Context, bill billing.Bill) error {
	err := r.db.WithContext(ctx).Create(models.BillModelFromDomain(bill)).Error
	if err == nil || !errors.Is(err, gorm.ErrDuplicatedKey) || bill.MeterReadingID == nil {
		return err
	}

	existing, findErr := r.FindByReadingID(ctx, *bill.MeterReadingID)
	if findErr != nil || existing == nil {
		return err
	}
	return billing.NewReadingAlreadyBilledError(*bill.MeterReadingID, existing.ID)
}

// UpdateStatus writes the bill's status, version and timestamp when the stored
// version still equals expectedVersion.
func (r *GormBillRepository) UpdateStatus(ctx context.Context, updated billing.Bill, expectedVersion int) error {
	result := r.db.WithContext(ctx).Model(&models.BillModel{}).
		Where("id = ? AND version = ?", updated.ID, expectedVersion).
		Updates(map[string]any{
			"status":     updated.Status,
			"version":    updated.Version,
			"updated_at": updated.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		return nil
	}

	var count int64
	if err := r.db.WithContext(ctx).Model(&models.BillModel{}).Where("id = ?", updated.ID).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return billing.NewBillNotFoundError(updated.ID)
	}
	return shared.ErrConcurrencyConflict
}

// ListByStatus returns every bill in a status, earliest due date first
func (r *GormBillRepository) ListByStatus(ctx context.Context, status billing.BillStatus) ([]billing.Bill, error) {
	var billModels []models.BillModel
	if err := r.db.WithContext(ctx).
		Where("status = ?", status).
		Order("due_date ASC").
		Find(&billModels).Error; err != nil {
		return nil, err
	}
	return toBills(billModels), nil
}

// List returns one page of bills matching filter and the total number of matches
func (r *GormBillRepository) List(ctx context.Context, filter billing.BillFilter) ([]billing.Bill, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.BillModel{})
	if filter.CustomerID != nil {
		query = query.Where("customer_id = ?", *filter.CustomerID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.BillingPeriod != "" {
		query = query.Where("billing_period = ?", filter.BillingPeriod)
	}
	query = query.Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var billModels []models.BillModel
	if err := query.
		Order(orderClause(filter.OrderBy, filter.OrderDir, BillSortFields, "created_at")).
		Offset(filter.Offset()).
		Limit(filter.Limit()).
		Find(&billModels).Error; err != nil {
		return nil, 0, err
	}
	return toBills(billModels), total, nil
}

type statusTotalsRow struct {
	Status string
	Count  int64
	Amount decimal.Decimal
}

// Totals returns bill counts and summed amounts grouped by status
func (r *GormBillRepository) Totals(ctx context.Context) ([]billing.StatusTotals, error) {
	var rows []statusTotalsRow
	if err := r.db.WithContext(ctx).Model(&models.BillModel{}).
		Select("status, COUNT(*) AS count, COALESCE(SUM(total_amount), 0) AS amount").
		Group("status").
		Order("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	totals := make([]billing.StatusTotals, len(rows))
	for i, row := range rows {
		totals[i] = billing.StatusTotals{
			Status: billing.BillStatus(row.Status),
			Count:  row.Count,
			Amount: row.Amount.Round(2),
		}
	}
	return totals, nil
}

func toBills(billModels []models.BillModel) []billing.Bill {
	bills := make([]billing.Bill, len(billModels))
	for i := range billModels {
		bills[i] = billModels[i].ToDomain()
	}
	return bills
}

var _ billing.BillStore = (*GormBillRepository)(nil)
