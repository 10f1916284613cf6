package persistence

import (
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/waterbill/backend/internal/domain/billing"
	"github.com/waterbill/backend/internal/infrastructure/persistence/models"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var testNow = time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)

// setupTestDB opens a private in-memory sqlite database with the billing tables
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(models.All()...))
	return db
}

// newMockDB returns a gorm postgres handle backed by sqlmock
func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	dialector := postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	})

	gormDB, err := gorm.Open(dialector, &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	return gormDB, mock, mockDB
}

func newAssignedMeter(t *testing.T, number string) billing.Meter {
	t.Helper()
	meter, err := billing.NewMeter(number, "Block A", testNow.AddDate(-1, 0, 0), testNow)
	require.NoError(t, err)
	meter, err = meter.AssignTo(uuid.New(), testNow)
	require.NoError(t, err)
	return meter
}

func newReading(t *testing.T, meter billing.Meter, previous, current uint64, at time.Time) billing.MeterReading {
	t.Helper()
	reading, err := billing.NewMeterReading(meter.ID, *meter.CustomerID, at, previous, current, at)
	require.NoError(t, err)
	return reading
}

func newBill(t *testing.T, reading billing.MeterReading) billing.Bill {
	t.Helper()
	calc := billing.DefaultTariff().Calculate(reading.Consumption)
	bill, err := billing.GenerateBill(reading, calc, 30, reading.ReadingDate)
	require.NoError(t, err)
	return bill
}
