package persistence

import (
	"context"

	"github.com/waterbill/backend/internal/domain/billing"
	"gorm.io/gorm"
)

// GormTransactor implements billing.Transactor on a database transaction
type GormTransactor struct {
	db *Database
}

// NewGormTransactor creates a new GormTransactor
func NewGormTransactor(db *Database) *GormTransactor {
	return &GormTransactor{db: db}
}

// WithinTx runs fn with stores bound to one transaction. The transaction
// commits when fn returns nil and rolls back otherwise.
func (t *GormTransactor) WithinTx(ctx context.Context, fn func(ctx context.Context, stores billing.TxStores) error) error {
	return t.db.Transaction(ctx, func(tx *gorm.DB) error {
		return fn(ctx, billing.TxStores{
			Readings: NewGormReadingRepository(tx),
			Bills:    NewGormBillRepository(tx),
			Payments: NewGormPaymentRepository(tx),
		})
	})
}

var _ billing.Transactor = (*GormTransactor)(nil)
