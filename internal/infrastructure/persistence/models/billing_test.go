package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/waterbill/backend/internal/domain/billing"
	"github.com/waterbill/backend/internal/domain/shared"
)

func TestBillModel_RoundTrip(t *testing.T) {
	now := time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)
	readingID := uuid.New()
	bill := billing.Bill{
		BaseEntity:      shared.NewBaseEntity(now),
		CustomerID:      uuid.New(),
		MeterReadingID:  &readingID,
		BillingPeriod:   "2024-03",
		PreviousReading: 100,
		CurrentReading:  115,
		Consumption:     15,
		RatePerUnit:     decimal.NewFromInt(2),
		BaseCharge:      decimal.NewFromInt(5),
		TotalAmount:     decimal.NewFromInt(40),
		DueDate:         now.AddDate(0, 0, 30),
		Status:          billing.BillStatusPending,
		Version:         1,
	}

	model := BillModelFromDomain(bill)

	assert.Equal(t, "bills", model.TableName())
	assert.Equal(t, bill, model.ToDomain())
}

func TestMeterModel_Unassigned(t *testing.T) {
	now := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	meter, err := billing.NewMeter("WM-001", "Plot 4", now, now)
	assert.NoError(t, err)

	model := MeterModelFromDomain(meter)

	assert.Nil(t, model.CustomerID)
	assert.Equal(t, meter, model.ToDomain())
}

func TestAll_CoversEveryTable(t *testing.T) {
	names := make([]string, 0)
	for _, m := range All() {
		names = append(names, m.(interface{ TableName() string }).TableName())
	}
	assert.Equal(t, []string{"meters", "meter_readings", "bills", "payments"}, names)
}

func TestCustomerModel_RoundTrip(t *testing.T) {
	now := time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)
	customer := billing.Customer{
		BaseEntity:    shared.NewBaseEntity(now),
		AccountNumber: "WB10928800123",
		Name:          "Amina Otieno",
		Email:         "amina@example.com",
		Phone:         "+254700000001",
		Address:       "4 Lake View",
		Status:        billing.CustomerStatusInactive,
	}

	model := CustomerModelFromDomain(customer)

	assert.Equal(t, "customers", model.TableName())
	assert.Equal(t, customer, model.ToDomain())
}
