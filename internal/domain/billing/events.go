package billing

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/waterbill/backend/internal/domain/shared"
)

// Aggregate type names used on billing events
const (
	AggregateTypeMeterReading = "MeterReading"
	AggregateTypeBill         = "Bill"
	AggregateTypePayment      = "Payment"
	AggregateTypeMeter        = "Meter"
)

// Event type names
const (
	EventTypeReadingRecorded = "ReadingRecorded"
	EventTypeBillGenerated   = "BillGenerated"
	EventTypeBillPaid        = "BillPaid"
	EventTypeBillOverdue     = "BillOverdue"
	EventTypeBillCancelled   = "BillCancelled"
	EventTypePaymentRecorded = "PaymentRecorded"
	EventTypeMeterAssigned   = "MeterAssigned"
)

// ReadingRecordedEvent is raised when a validated reading is stored
type ReadingRecordedEvent struct {
	shared.BaseDomainEvent
	ReadingID       uuid.UUID `json:"reading_id"`
	MeterID         uuid.UUID `json:"meter_id"`
	CustomerID      uuid.UUID `json:"customer_id"`
	PreviousReading uint64    `json:"previous_reading"`
	CurrentReading  uint64    `json:"current_reading"`
	Consumption     uint64    `json:"consumption"`
	ReadingDate     time.Time `json:"reading_date"`
}

// NewReadingRecordedEvent creates a new ReadingRecordedEvent
func NewReadingRecordedEvent(r MeterReading) *ReadingRecordedEvent {
	return &ReadingRecordedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeReadingRecorded, AggregateTypeMeterReading, r.ID, r.CreatedAt),
		ReadingID:       r.ID,
		MeterID:         r.MeterID,
		CustomerID:      r.CustomerID,
		PreviousReading: r.PreviousReading,
		CurrentReading:  r.CurrentReading,
		Consumption:     r.Consumption,
		ReadingDate:     r.ReadingDate,
	}
}

// BillGeneratedEvent is raised when a bill is issued for a reading
type BillGeneratedEvent struct {
	shared.BaseDomainEvent
	BillID        uuid.UUID       `json:"bill_id"`
	CustomerID    uuid.UUID       `json:"customer_id"`
	ReadingID     *uuid.UUID      `json:"reading_id,omitempty"`
	BillingPeriod string          `json:"billing_period"`
	Consumption   uint64          `json:"consumption"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	DueDate       time.Time       `json:"due_date"`
}

// NewBillGeneratedEvent creates a new BillGeneratedEvent
func NewBillGeneratedEvent(b Bill) *BillGeneratedEvent {
	return &BillGeneratedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeBillGenerated, AggregateTypeBill, b.ID, b.CreatedAt),
		BillID:          b.ID,
		CustomerID:      b.CustomerID,
		ReadingID:       b.MeterReadingID,
		BillingPeriod:   b.BillingPeriod,
		Consumption:     b.Consumption,
		TotalAmount:     b.TotalAmount,
		DueDate:         b.DueDate,
	}
}

// BillStatusChangedEvent is raised when a bill moves between statuses.
// Its event type is BillPaid, BillOverdue or BillCancelled depending on the target status.
type BillStatusChangedEvent struct {
	shared.BaseDomainEvent
	BillID      uuid.UUID       `json:"bill_id"`
	CustomerID  uuid.UUID       `json:"customer_id"`
	From        BillStatus      `json:"from"`
	To          BillStatus      `json:"to"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Version     int             `json:"version"`
}

// NewBillStatusChangedEvent creates the event for a bill that moved from one status to updated.Status
func NewBillStatusChangedEvent(from BillStatus, updated Bill) *BillStatusChangedEvent {
	return &BillStatusChangedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(statusEventType(updated.Status), AggregateTypeBill, updated.ID, updated.UpdatedAt),
		BillID:          updated.ID,
		CustomerID:      updated.CustomerID,
		From:            from,
		To:              updated.Status,
		TotalAmount:     updated.TotalAmount,
		Version:         updated.Version,
	}
}

func statusEventType(status BillStatus) string {
	switch status {
	case BillStatusPaid:
		return EventTypeBillPaid
	case BillStatusOverdue:
		return EventTypeBillOverdue
	case BillStatusCancelled:
		return EventTypeBillCancelled
	}
	return "BillStatusChanged"
}

// PaymentRecordedEvent is raised when a payment is stored against a bill
type PaymentRecordedEvent struct {
	shared.BaseDomainEvent
	PaymentID            uuid.UUID       `json:"payment_id"`
	BillID               uuid.UUID       `json:"bill_id"`
	CustomerID           uuid.UUID       `json:"customer_id"`
	Amount               decimal.Decimal `json:"amount"`
	PaymentMethod        PaymentMethod   `json:"payment_method"`
	TransactionReference string          `json:"transaction_reference"`
}

// NewPaymentRecordedEvent creates a new PaymentRecordedEvent
func NewPaymentRecordedEvent(p Payment) *PaymentRecordedEvent {
	return &PaymentRecordedEvent{
		BaseDomainEvent:      shared.NewBaseDomainEvent(EventTypePaymentRecorded, AggregateTypePayment, p.ID, p.CreatedAt),
		PaymentID:            p.ID,
		BillID:               p.BillID,
		CustomerID:           p.CustomerID,
		Amount:               p.Amount,
		PaymentMethod:        p.PaymentMethod,
		TransactionReference: p.TransactionReference,
	}
}

// MeterAssignedEvent is raised when a meter is assigned to a customer
type MeterAssignedEvent struct {
	shared.BaseDomainEvent
	MeterID     uuid.UUID `json:"meter_id"`
	MeterNumber string    `json:"meter_number"`
	CustomerID  uuid.UUID `json:"customer_id"`
}

// NewMeterAssignedEvent creates a new MeterAssignedEvent
func NewMeterAssignedEvent(m Meter) *MeterAssignedEvent {
	var customerID uuid.UUID
	if m.CustomerID != nil {
		customerID = *m.CustomerID
	}
	return &MeterAssignedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeMeterAssigned, AggregateTypeMeter, m.ID, m.UpdatedAt),
		MeterID:         m.ID,
		MeterNumber:     m.MeterNumber,
		CustomerID:      customerID,
	}
}
