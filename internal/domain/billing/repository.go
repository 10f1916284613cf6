package billing

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/waterbill/backend/internal/domain/shared"
)

// ReadingStore persists meter readings
type ReadingStore interface {
	// FindByID returns the reading or *ReadingNotFoundError
	FindByID(ctx context.Context, id uuid.UUID) (*MeterReading, error)

	// FindLatestByMeter returns the most recent reading for a meter, or nil when there is none
	FindLatestByMeter(ctx context.Context, meterID uuid.UUID) (*MeterReading, error)

	// Save stores a new reading
	Save(ctx context.Context, reading MeterReading) error

	// ListByMeter returns a meter's readings, newest first
	ListByMeter(ctx context.Context, meterID uuid.UUID, filter shared.Filter) ([]MeterReading, error)
}

// BillFilter defines filtering options for bill queries
type BillFilter struct {
	shared.Filter
	CustomerID    *uuid.UUID  // Filter by customer
	Status        *BillStatus // Filter by status
	BillingPeriod string      // Filter by billing period (YYYY-MM)
}

// StatusTotals aggregates the bills in one status
type StatusTotals struct {
	Status BillStatus
	Count  int64
	Amount decimal.Decimal
}

// BillStore persists bills
type BillStore interface {
	// FindByID returns the bill or *BillNotFoundError
	FindByID(ctx context.Context, id uuid.UUID) (*Bill, error)

	// FindByReadingID returns the bill issued for a reading, or nil when there is none
	FindByReadingID(ctx context.Context, readingID uuid.UUID) (*Bill, error)

	// Save stores a new bill. A second bill for the same reading yields *ReadingAlreadyBilledError.
	Save(ctx context.Context, bill Bill) error

	// UpdateStatus writes updated only if the stored version is expectedVersion.
	// A stale version yields shared.ErrConcurrencyConflict.
	UpdateStatus(ctx context.Context, updated Bill, expectedVersion int) error

	// ListByStatus returns every bill in the given status
	ListByStatus(ctx context.Context, status BillStatus) ([]Bill, error)

	// List returns a filtered page of bills and the total match count
	List(ctx context.Context, filter BillFilter) ([]Bill, int64, error)

	// Totals returns bill counts and amounts grouped by status
	Totals(ctx context.Context) ([]StatusTotals, error)
}

// PaymentStore persists payments
type PaymentStore interface {
	// FindByID returns the payment or *PaymentNotFoundError
	FindByID(ctx context.Context, id uuid.UUID) (*Payment, error)

	// FindByBillID returns all payments for a bill, oldest first
	FindByBillID(ctx context.Context, billID uuid.UUID) ([]Payment, error)

	// Save stores a new payment
	Save(ctx context.Context, payment Payment) error
}

// MeterDirectory answers meter ownership questions
type MeterDirectory interface {
	// IsAssigned reports whether the meter belongs to a customer
	IsAssigned(ctx context.Context, meterID uuid.UUID) (bool, error)

	// CustomerIDFor returns the owning customer, or *MeterNotAssignedError when the
	// meter is unknown or unassigned
	CustomerIDFor(ctx context.Context, meterID uuid.UUID) (uuid.UUID, error)
}

// MeterRepository persists the meter registry
type MeterRepository interface {
	MeterDirectory

	// FindByID returns the meter or *MeterNotFoundError
	FindByID(ctx context.Context, id uuid.UUID) (*Meter, error)

	// FindByNumber returns the meter with the given number, or nil when there is none
	FindByNumber(ctx context.Context, meterNumber string) (*Meter, error)

	// Save creates or updates a meter
	Save(ctx context.Context, meter Meter) error

	// ListByCustomer returns the meters assigned to a customer
	ListByCustomer(ctx context.Context, customerID uuid.UUID) ([]Meter, error)
}

// CustomerFilter defines filtering options for customer queries
type CustomerFilter struct {
	shared.Filter
	Status *CustomerStatus // Filter by status
	// Query matches a name fragment, an account number prefix or a phone fragment
	Query string
}

// CustomerFinder resolves customers by ID
type CustomerFinder interface {
	// FindByID returns the customer or *CustomerNotFoundError
	FindByID(ctx context.Context, id uuid.UUID) (*Customer, error)
}

// CustomerRepository persists the customer registry
type CustomerRepository interface {
	CustomerFinder

	// FindByAccountNumber returns the customer or *CustomerNotFoundError
	FindByAccountNumber(ctx context.Context, accountNumber string) (*Customer, error)

	// FindByEmail returns the customer with the given email, or nil when there is none
	FindByEmail(ctx context.Context, email string) (*Customer, error)

	// Save creates or updates a customer
	Save(ctx context.Context, customer Customer) error

	// List returns a filtered page of customers and the total match count
	List(ctx context.Context, filter CustomerFilter) ([]Customer, int64, error)
}

// TxStores are the stores bound to one unit of work
type TxStores struct {
	Readings ReadingStore
	Bills    BillStore
	Payments PaymentStore
}

// Transactor runs fn as a single unit of work. Writes made through the given
// stores commit together when fn returns nil and are discarded otherwise.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, stores TxStores) error) error
}
