package persistence

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/waterbill/backend/internal/domain/billing"
	"github.com/waterbill/backend/internal/domain/shared"
)

func TestGormTransactor(t *testing.T) {
	db := setupTestDB(t)
	tx := NewGormTransactor(&Database{DB: db, driver: "sqlite"})
	readings := NewGormReadingRepository(db)
	bills := NewGormBillRepository(db)
	payments := NewGormPaymentRepository(db)
	ctx := context.Background()
	meter := newAssignedMeter(t, "WM-TX")

	t.Run("commits the reading with its bill", func(t *testing.T) {
		reading := newReading(t, meter, 0, 15, testNow)
		bill := newBill(t, reading)

		err := tx.WithinTx(ctx, func(ctx context.Context, stores billing.TxStores) error {
			if err := stores.Readings.Save(ctx, reading); err != nil {
				return err
			}
			return stores.Bills.Save(ctx, bill)
		})
		require.NoError(t, err)

		_, err = readings.FindByID(ctx, reading.ID)
		assert.NoError(t, err)
		stored, err := bills.FindByReadingID(ctx, reading.ID)
		require.NoError(t, err)
		require.NotNil(t, stored)
		assert.Equal(t, bill.ID, stored.ID)
	})

	t.Run("a failed bill write discards the reading", func(t *testing.T) {
		billed := newReading(t, meter, 15, 20, testNow.AddDate(0, 1, 0))
		require.NoError(t, readings.Save(ctx, billed))
		require.NoError(t, bills.Save(ctx, newBill(t, billed)))

		orphan := newReading(t, meter, 20, 30, testNow.AddDate(0, 2, 0))
		err := tx.WithinTx(ctx, func(ctx context.Context, stores billing.TxStores) error {
			if err := stores.Readings.Save(ctx, orphan); err != nil {
				return err
			}
			return stores.Bills.Save(ctx, newBill(t, billed))
		})
		var already *billing.ReadingAlreadyBilledError
		require.ErrorAs(t, err, &already)

		_, err = readings.FindByID(ctx, orphan.ID)
		var notFound *billing.ReadingNotFoundError
		assert.ErrorAs(t, err, &notFound)
	})

	t.Run("a lost version race discards the payment", func(t *testing.T) {
		reading := newReading(t, meter, 30, 45, testNow.AddDate(0, 3, 0))
		require.NoError(t, readings.Save(ctx, reading))
		bill := newBill(t, reading)
		require.NoError(t, bills.Save(ctx, bill))

		payment, err := billing.NewPayment(bill, bill.TotalAmount, billing.PaymentMethodCard, "", testNow)
		require.NoError(t, err)
		paid, err := bill.MarkPaid(testNow)
		require.NoError(t, err)

		err = tx.WithinTx(ctx, func(ctx context.Context, stores billing.TxStores) error {
			if err := stores.Payments.Save(ctx, payment); err != nil {
				return err
			}
			return stores.Bills.UpdateStatus(ctx, paid, bill.Version+1)
		})
		require.True(t, errors.Is(err, shared.ErrConcurrencyConflict))

		stored, err := payments.FindByBillID(ctx, bill.ID)
		require.NoError(t, err)
		assert.Empty(t, stored)
		current, err := bills.FindByID(ctx, bill.ID)
		require.NoError(t, err)
		assert.Equal(t, billing.BillStatusPending, current.Status)

		err = tx.WithinTx(ctx, func(ctx context.Context, stores billing.TxStores) error {
			if err := stores.Payments.Save(ctx, payment); err != nil {
				return err
			}
			return stores.Bills.UpdateStatus(ctx, paid, bill.Version)
		})
		require.NoError(t, err)
		stored, err = payments.FindByBillID(ctx, bill.ID)
		require.NoError(t, err)
		require.Len(t, stored, 1)
		assert.True(t, decimal.NewFromInt(40).Equal(billing.SettledAmount(stored)))
	})
}
