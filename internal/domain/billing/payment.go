package billing

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/waterbill/backend/internal/domain/shared"
)

// PaymentMethod represents how a payment was made
type PaymentMethod string

const (
	// PaymentMethodCash is a cash payment at a counter
	PaymentMethodCash PaymentMethod = "cash"
	// PaymentMethodCard is a debit or credit card payment
	PaymentMethodCard PaymentMethod = "card"
	// PaymentMethodBankTransfer is a direct bank transfer
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
	// PaymentMethodMobileMoney is a mobile wallet payment
	PaymentMethodMobileMoney PaymentMethod = "mobile_money"
)

// String returns the string representation of PaymentMethod
func (m PaymentMethod) String() string {
	return string(m)
}

// IsValid returns true if the method is valid
func (m PaymentMethod) IsValid() bool {
	switch m {
	case PaymentMethodCash, PaymentMethodCard, PaymentMethodBankTransfer, PaymentMethodMobileMoney:
		return true
	}
	return false
}

// DisplayName returns a human-readable name for receipts
func (m PaymentMethod) DisplayName() string {
	switch m {
	case PaymentMethodCash:
		return "Cash"
	case PaymentMethodCard:
		return "Card"
	case PaymentMethodBankTransfer:
		return "Bank Transfer"
	case PaymentMethodMobileMoney:
		return "Mobile Money"
	}
	return string(m)
}

// PaymentStatus represents the settlement status of a payment
type PaymentStatus string

const (
	// PaymentStatusSuccess is a settled payment
	PaymentStatusSuccess PaymentStatus = "success"
	// PaymentStatusPending is a payment awaiting confirmation
	PaymentStatusPending PaymentStatus = "pending"
	// PaymentStatusFailed is a rejected payment
	PaymentStatusFailed PaymentStatus = "failed"
)

// String returns the string representation of PaymentStatus
func (s PaymentStatus) String() string {
	return string(s)
}

// IsValid returns true if the status is valid
func (s PaymentStatus) IsValid() bool {
	switch s {
	case PaymentStatusSuccess, PaymentStatusPending, PaymentStatusFailed:
		return true
	}
	return false
}

// Payment is a settlement recorded against a bill
type Payment struct {
	shared.BaseEntity
	BillID               uuid.UUID
	CustomerID           uuid.UUID
	Amount               decimal.Decimal
	PaymentDate          time.Time
	PaymentMethod        PaymentMethod
	TransactionReference string
	Status               PaymentStatus
}

// ValidatePaymentInput checks the caller-supplied parts of a payment
func ValidatePaymentInput(amount decimal.Decimal, method PaymentMethod) error {
	if !amount.IsPositive() {
		return shared.NewDomainError(CodeInvalidPaymentAmount, "Payment amount must be positive")
	}
	if !method.IsValid() {
		return shared.DomainErrorf(CodeInvalidPaymentMethod, "Invalid payment method: %s", method)
	}
	return nil
}

// NewPayment creates a successful payment against bill. An empty reference is
// replaced with a generated transaction token.
func NewPayment(
	bill Bill,
	amount decimal.Decimal,
	method PaymentMethod,
	reference string,
	now time.Time,
) (Payment, error) {
	if err := ValidatePaymentInput(amount, method); err != nil {
		return Payment{}, err
	}
	reference = strings.TrimSpace(reference)
	if reference == "" {
		reference = NewTransactionReference(now)
	}

	return Payment{
		BaseEntity:           shared.NewBaseEntity(now),
		BillID:               bill.ID,
		CustomerID:           bill.CustomerID,
		Amount:               amount,
		PaymentDate:          now,
		PaymentMethod:        method,
		TransactionReference: reference,
		Status:               PaymentStatusSuccess,
	}, nil
}

// NewTransactionReference generates a reference of the form TXN-<unix-millis>-<8 hex>
func NewTransactionReference(now time.Time) string {
	return fmt.Sprintf("TXN-%d-%s", now.UnixMilli(), uuid.NewString()[:8])
}

// SettledAmount sums the successful payments in payments
func SettledAmount(payments []Payment) decimal.Decimal {
	total := decimal.Zero
	for _, p := range payments {
		if p.Status == PaymentStatusSuccess {
			total = total.Add(p.Amount)
		}
	}
	return total
}
