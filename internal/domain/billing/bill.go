package billing

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/waterbill/backend/internal/domain/shared"
)

// BillingPeriodLayout is the time layout of a bill's billing period (YYYY-MM)
const BillingPeriodLayout = "2006-01"

// BillStatus represents the lifecycle status of a bill
type BillStatus string

const (
	// BillStatusPending is an issued bill awaiting payment
	BillStatusPending BillStatus = "pending"
	// BillStatusPaid is a bill fully settled by payments
	BillStatusPaid BillStatus = "paid"
	// BillStatusOverdue is a pending bill whose due date has passed
	BillStatusOverdue BillStatus = "overdue"
	// BillStatusCancelled is a bill voided before settlement
	BillStatusCancelled BillStatus = "cancelled"
)

// AllBillStatuses lists every bill status in lifecycle order
var AllBillStatuses = []BillStatus{
	BillStatusPending,
	BillStatusOverdue,
	BillStatusPaid,
	BillStatusCancelled,
}

// String returns the string representation of BillStatus
func (s BillStatus) String() string {
	return string(s)
}

// IsValid returns true if the status is valid
func (s BillStatus) IsValid() bool {
	switch s {
	case BillStatusPending, BillStatusPaid, BillStatusOverdue, BillStatusCancelled:
		return true
	}
	return false
}

// IsTerminal returns true if no further transition is possible
func (s BillStatus) IsTerminal() bool {
	return s == BillStatusPaid || s == BillStatusCancelled
}

// CanAcceptPayment returns true if payments may be recorded against the bill
func (s BillStatus) CanAcceptPayment() bool {
	return s == BillStatusPending || s == BillStatusOverdue
}

// CanBeCancelled returns true if the bill may still be voided
func (s BillStatus) CanBeCancelled() bool {
	return s == BillStatusPending || s == BillStatusOverdue
}

// Bill is an amount owed by a customer for one meter reading.
// Bills are value records: transitions return a new Bill with Version bumped.
type Bill struct {
	shared.BaseEntity
	CustomerID      uuid.UUID
	MeterReadingID  *uuid.UUID
	BillingPeriod   string
	PreviousReading uint64
	CurrentReading  uint64
	Consumption     uint64
	RatePerUnit     decimal.Decimal // first charged tier's rate, not a blended rate
	BaseCharge      decimal.Decimal
	TotalAmount     decimal.Decimal
	DueDate         time.Time
	Status          BillStatus
	Version         int
}

// DueDate returns the payment deadline: billingDate plus graceDays calendar days
func DueDate(billingDate time.Time, graceDays int) time.Time {
	return billingDate.AddDate(0, 0, graceDays)
}

// BillingPeriodOf formats the billing period (YYYY-MM) a date falls into
func BillingPeriodOf(date time.Time) string {
	return date.Format(BillingPeriodLayout)
}

// GenerateBill creates a pending bill for a priced reading
func GenerateBill(reading MeterReading, calc Calculation, graceDays int, now time.Time) (Bill, error) {
	if reading.ID == uuid.Nil {
		return Bill{}, shared.NewDomainError(CodeInvalidReading, "Meter reading has no ID")
	}
	if reading.CustomerID == uuid.Nil {
		return Bill{}, NewMeterNotAssignedError(reading.MeterID)
	}
	if calc.Consumption != reading.Consumption {
		return Bill{}, shared.NewDomainError(CodeInvalidReading, "Calculation does not match reading consumption")
	}
	if graceDays < 0 {
		return Bill{}, shared.NewDomainError(CodeInvalidGracePeriod, "Grace period cannot be negative")
	}

	readingID := reading.ID
	return Bill{
		BaseEntity:      shared.NewBaseEntity(now),
		CustomerID:      reading.CustomerID,
		MeterReadingID:  &readingID,
		BillingPeriod:   BillingPeriodOf(reading.ReadingDate),
		PreviousReading: reading.PreviousReading,
		CurrentReading:  reading.CurrentReading,
		Consumption:     reading.Consumption,
		RatePerUnit:     calc.ReferenceRate(),
		BaseCharge:      calc.BaseCharge,
		TotalAmount:     calc.Total,
		DueDate:         DueDate(reading.ReadingDate, graceDays),
		Status:          BillStatusPending,
		Version:         1,
	}, nil
}

// IsPastDue returns true if now is strictly after the due date
func (b Bill) IsPastDue(now time.Time) bool {
	return now.After(b.DueDate)
}

// MarkOverdue moves a pending bill past its due date to overdue
func (b Bill) MarkOverdue(now time.Time) (Bill, error) {
	if b.Status != BillStatusPending || !b.IsPastDue(now) {
		return Bill{}, NewInvalidTransitionError(b.ID, b.Status, BillStatusOverdue)
	}
	return b.transition(BillStatusOverdue, now), nil
}

// MarkPaid moves a pending or overdue bill to paid
func (b Bill) MarkPaid(now time.Time) (Bill, error) {
	if !b.Status.CanAcceptPayment() {
		return Bill{}, NewInvalidTransitionError(b.ID, b.Status, BillStatusPaid)
	}
	return b.transition(BillStatusPaid, now), nil
}

// Cancel voids a pending or overdue bill
func (b Bill) Cancel(now time.Time) (Bill, error) {
	if !b.Status.CanBeCancelled() {
		return Bill{}, NewInvalidTransitionError(b.ID, b.Status, BillStatusCancelled)
	}
	return b.transition(BillStatusCancelled, now), nil
}

func (b Bill) transition(to BillStatus, now time.Time) Bill {
	b.Status = to
	b.Version++
	b.UpdatedAt = now
	return b
}

// Outstanding returns the amount still owed after settled payments
func (b Bill) Outstanding(settled decimal.Decimal) decimal.Decimal {
	remaining := b.TotalAmount.Sub(settled)
	if remaining.IsNegative() {
		return decimal.Zero
	}
	return remaining
}
