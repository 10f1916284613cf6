package billing

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/waterbill/backend/internal/domain/shared"
)

// Error codes carried by the billing domain errors
const (
	CodeInvalidReading       = "INVALID_READING"
	CodeMeterNotAssigned     = "METER_NOT_ASSIGNED"
	CodeMeterAlreadyAssigned = "METER_ALREADY_ASSIGNED"
	CodeMeterNotFound        = "METER_NOT_FOUND"
	CodeReadingNotFound      = "READING_NOT_FOUND"
	CodeBillNotFound         = "BILL_NOT_FOUND"
	CodeBillCancelled        = "BILL_CANCELLED"
	CodeBillAlreadyPaid      = "BILL_ALREADY_PAID"
	CodeOverpayment          = "OVERPAYMENT"
	CodeInvalidTransition    = "INVALID_TRANSITION"
	CodeReadingAlreadyBilled = "READING_ALREADY_BILLED"
	CodeInvalidPaymentAmount = "INVALID_PAYMENT_AMOUNT"
	CodeInvalidPaymentMethod = "INVALID_PAYMENT_METHOD"
	CodeInvalidTariff        = "INVALID_TARIFF"
	CodePaymentNotFound      = "PAYMENT_NOT_FOUND"
	CodeInvalidMeter         = "INVALID_METER"
	CodeMeterInactive        = "METER_INACTIVE"
	CodeMeterNumberExists    = "METER_NUMBER_EXISTS"
	CodeInvalidGracePeriod   = "INVALID_GRACE_PERIOD"
	CodeInvalidCustomer      = "INVALID_CUSTOMER"
	CodeCustomerNotFound     = "CUSTOMER_NOT_FOUND"
	CodeCustomerInactive     = "CUSTOMER_INACTIVE"
	CodeCustomerEmailExists  = "CUSTOMER_EMAIL_EXISTS"
)

// InvalidReadingError is returned when a current reading is below the previous one
type InvalidReadingError struct {
	*shared.DomainError
	MeterID         uuid.UUID
	PreviousReading uint64
	CurrentReading  uint64
}

// NewInvalidReadingError creates an InvalidReadingError
func NewInvalidReadingError(meterID uuid.UUID, previous, current uint64) *InvalidReadingError {
	return &InvalidReadingError{
		DomainError: shared.DomainErrorf(CodeInvalidReading, "Current reading %d cannot be less than previous reading %d for meter %s", current, previous, meterID),
		MeterID:         meterID,
		PreviousReading: previous,
		CurrentReading:  current,
	}
}

// Unwrap exposes the underlying domain error
func (e *InvalidReadingError) Unwrap() error { return e.DomainError }

// MeterNotAssignedError is returned when a reading targets a meter with no customer
type MeterNotAssignedError struct {
	*shared.DomainError
	MeterID uuid.UUID
}

// NewMeterNotAssignedError creates a MeterNotAssignedError
func NewMeterNotAssignedError(meterID uuid.UUID) *MeterNotAssignedError {
	return &MeterNotAssignedError{
		DomainError: shared.DomainErrorf(CodeMeterNotAssigned, "Meter %s is not assigned to any customer", meterID),
		MeterID: meterID,
	}
}

// Unwrap exposes the underlying domain error
func (e *MeterNotAssignedError) Unwrap() error { return e.DomainError }

// MeterAlreadyAssignedError is returned when assigning a meter that already has a customer
type MeterAlreadyAssignedError struct {
	*shared.DomainError
	MeterID    uuid.UUID
	CustomerID uuid.UUID
}

// NewMeterAlreadyAssignedError creates a MeterAlreadyAssignedError
func NewMeterAlreadyAssignedError(meterID, customerID uuid.UUID) *MeterAlreadyAssignedError {
	return &MeterAlreadyAssignedError{
		DomainError: shared.DomainErrorf(CodeMeterAlreadyAssigned, "Meter %s is already assigned to customer %s", meterID, customerID),
		MeterID:    meterID,
		CustomerID: customerID,
	}
}

// Unwrap exposes the underlying domain error
func (e *MeterAlreadyAssignedError) Unwrap() error { return e.DomainError }

// MeterNotFoundError is returned when a meter does not exist
type MeterNotFoundError struct {
	*shared.DomainError
	MeterID uuid.UUID
}

// NewMeterNotFoundError creates a MeterNotFoundError
func NewMeterNotFoundError(meterID uuid.UUID) *MeterNotFoundError {
	return &MeterNotFoundError{
		DomainError: shared.DomainErrorf(CodeMeterNotFound, "Meter %s not found", meterID),
		MeterID:     meterID,
	}
}

// Unwrap exposes the underlying domain error
func (e *MeterNotFoundError) Unwrap() error { return e.DomainError }

// ReadingNotFoundError is returned when a meter reading does not exist
type ReadingNotFoundError struct {
	*shared.DomainError
	ReadingID uuid.UUID
}

// NewReadingNotFoundError creates a ReadingNotFoundError
func NewReadingNotFoundError(readingID uuid.UUID) *ReadingNotFoundError {
	return &ReadingNotFoundError{
		DomainError: shared.DomainErrorf(CodeReadingNotFound, "Meter reading %s not found", readingID),
		ReadingID:   readingID,
	}
}

// Unwrap exposes the underlying domain error
func (e *ReadingNotFoundError) Unwrap() error { return e.DomainError }

// BillNotFoundError is returned when a bill does not exist
type BillNotFoundError struct {
	*shared.DomainError
	BillID uuid.UUID
}

// NewBillNotFoundError creates a BillNotFoundError
func NewBillNotFoundError(billID uuid.UUID) *BillNotFoundError {
	return &BillNotFoundError{
		DomainError: shared.DomainErrorf(CodeBillNotFound, "Bill %s not found", billID),
		BillID:      billID,
	}
}

// Unwrap exposes the underlying domain error
func (e *BillNotFoundError) Unwrap() error { return e.DomainError }

// BillCancelledError is returned when paying a cancelled bill
type BillCancelledError struct {
	*shared.DomainError
	BillID uuid.UUID
}

// NewBillCancelledError creates a BillCancelledError
func NewBillCancelledError(billID uuid.UUID) *BillCancelledError {
	return &BillCancelledError{
		DomainError: shared.DomainErrorf(CodeBillCancelled, "Cannot pay cancelled bill %s", billID),
		BillID:      billID,
	}
}

// Unwrap exposes the underlying domain error
func (e *BillCancelledError) Unwrap() error { return e.DomainError }

// BillAlreadyPaidError is returned when paying a bill that is already settled
type BillAlreadyPaidError struct {
	*shared.DomainError
	BillID uuid.UUID
}

// NewBillAlreadyPaidError creates a BillAlreadyPaidError
func NewBillAlreadyPaidError(billID uuid.UUID) *BillAlreadyPaidError {
	return &BillAlreadyPaidError{
		DomainError: shared.DomainErrorf(CodeBillAlreadyPaid, "Bill %s is already paid", billID),
		BillID:      billID,
	}
}

// Unwrap exposes the underlying domain error
func (e *BillAlreadyPaidError) Unwrap() error { return e.DomainError }

// OverpaymentError is returned when a single payment exceeds the bill total
type OverpaymentError struct {
	*shared.DomainError
	BillID      uuid.UUID
	Amount      decimal.Decimal
	TotalAmount decimal.Decimal
}

// NewOverpaymentError creates an OverpaymentError
func NewOverpaymentError(billID uuid.UUID, amount, total decimal.Decimal) *OverpaymentError {
	return &OverpaymentError{
		DomainError: shared.DomainErrorf(CodeOverpayment, "Payment amount %s exceeds bill total %s", amount.StringFixed(2), total.StringFixed(2)),
		BillID:      billID,
		Amount:      amount,
		TotalAmount: total,
	}
}

// Unwrap exposes the underlying domain error
func (e *OverpaymentError) Unwrap() error { return e.DomainError }

// InvalidTransitionError is returned when a bill cannot move between two statuses
type InvalidTransitionError struct {
	*shared.DomainError
	BillID uuid.UUID
	From   BillStatus
	To     BillStatus
}

// NewInvalidTransitionError creates an InvalidTransitionError
func NewInvalidTransitionError(billID uuid.UUID, from, to BillStatus) *InvalidTransitionError {
	return &InvalidTransitionError{
		DomainError: shared.DomainErrorf(CodeInvalidTransition, "Bill %s cannot transition from %s to %s", billID, from, to),
		BillID: billID,
		From:   from,
		To:     to,
	}
}

// Unwrap exposes the underlying domain error
func (e *InvalidTransitionError) Unwrap() error { return e.DomainError }

// ReadingAlreadyBilledError is returned when a reading already has a bill
type ReadingAlreadyBilledError struct {
	*shared.DomainError
	ReadingID uuid.UUID
	BillID    uuid.UUID
}

// NewReadingAlreadyBilledError creates a ReadingAlreadyBilledError.
// billID may be uuid.Nil when the conflicting bill is not known.
func NewReadingAlreadyBilledError(readingID, billID uuid.UUID) *ReadingAlreadyBilledError {
	return &ReadingAlreadyBilledError{
		DomainError: shared.DomainErrorf(CodeReadingAlreadyBilled, "Meter reading %s has already been billed", readingID),
		ReadingID: readingID,
		BillID:    billID,
	}
}

// Unwrap exposes the underlying domain error
func (e *ReadingAlreadyBilledError) Unwrap() error { return e.DomainError }

// PaymentNotFoundError is returned when a payment does not exist
type PaymentNotFoundError struct {
	*shared.DomainError
	PaymentID uuid.UUID
}

// NewPaymentNotFoundError creates a PaymentNotFoundError
func NewPaymentNotFoundError(paymentID uuid.UUID) *PaymentNotFoundError {
	return &PaymentNotFoundError{
		DomainError: shared.DomainErrorf(CodePaymentNotFound, "Payment %s not found", paymentID),
		PaymentID:   paymentID,
	}
}

// Unwrap exposes the underlying domain error
func (e *PaymentNotFoundError) Unwrap() error { return e.DomainError }

// CustomerNotFoundError is returned when a customer ID or account number is unknown
type CustomerNotFoundError struct {
	*shared.DomainError
	Key string
}

// NewCustomerNotFoundError creates a CustomerNotFoundError for an ID or account number
func NewCustomerNotFoundError(key string) *CustomerNotFoundError {
	return &CustomerNotFoundError{
		DomainError: shared.DomainErrorf(CodeCustomerNotFound, "Customer %s not found", key),
		Key:         key,
	}
}

// Unwrap exposes the underlying domain error
func (e *CustomerNotFoundError) Unwrap() error { return e.DomainError }
