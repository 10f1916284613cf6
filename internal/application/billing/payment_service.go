package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/waterbill/backend/internal/domain/billing"
	"github.com/waterbill/backend/internal/domain/shared"
	"github.com/waterbill/backend/internal/domain/shared/valueobject"
	"github.com/waterbill/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// maxSettleAttempts bounds how often a payment is retried after the bill's version moved
const maxSettleAttempts = 3

// PaymentService records payments and settles bills
type PaymentService struct {
	bills    billing.BillStore
	payments billing.PaymentStore
	tx       billing.Transactor
	currency valueobject.Currency
	deps     Dependencies
}

// NewPaymentService creates a new PaymentService
func NewPaymentService(
	bills billing.BillStore,
	payments billing.PaymentStore,
	tx billing.Transactor,
	currency valueobject.Currency,
	deps Dependencies,
) *PaymentService {
	if currency == "" {
		currency = valueobject.DefaultCurrency
	}
	return &PaymentService{
		bills:    bills,
		payments: payments,
		tx:       tx,
		currency: currency,
		deps:     deps.withDefaults(),
	}
}

// RecordPaymentRequest represents a request to pay towards a bill
type RecordPaymentRequest struct {
	BillID    uuid.UUID
	Amount    decimal.Decimal
	Method    billing.PaymentMethod
	Reference string // optional, generated when empty
}

// RecordPayment stores a payment against a bill and marks the bill paid once
// successful payments cover its total. Payments on the same bill are serialized.
//
// Preconditions are checked in order and the first failure is returned:
// bill exists, bill not cancelled, bill not paid, amount not above the bill total.
// Nothing is written until all of them pass. The payment and the paid
// transition commit in one transaction: when either write fails neither is kept.
func (s *PaymentService) RecordPayment(ctx context.Context, req RecordPaymentRequest) (*billing.Payment, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "payment", "record")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrBillID, req.BillID.String(),
		telemetry.SpanAttrAmount, req.Amount.String(),
		telemetry.SpanAttrPaymentMethod, req.Method.String(),
	)

	if err := billing.ValidatePaymentInput(req.Amount, req.Method); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	unlock, err := s.deps.Locker.Lock(ctx, billLockKey(req.BillID))
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to lock bill: %w", err)
	}
	defer unlock()

	var (
		payment *billing.Payment
		settled *settlement
	)
	for attempt := 1; ; attempt++ {
		bill, err := s.bills.FindByID(ctx, req.BillID)
		if err != nil {
			telemetry.RecordError(span, err)
			return nil, err
		}
		if err := checkPayable(*bill, req.Amount); err != nil {
			telemetry.RecordError(span, err)
			return nil, err
		}

		if payment == nil {
			p, err := billing.NewPayment(*bill, req.Amount, req.Method, req.Reference, s.deps.Clock())
			if err != nil {
				telemetry.RecordError(span, err)
				return nil, err
			}
			payment = &p
		}

		settled, err = s.applyPayment(ctx, *bill, *payment)
		if err == nil {
			break
		}
		if !errors.Is(err, shared.ErrConcurrencyConflict) || attempt >= maxSettleAttempts {
			telemetry.RecordError(span, err)
			return nil, fmt.Errorf("failed to record payment: %w", err)
		}
		s.deps.Logger.Debug("Bill changed while recording payment, retrying",
			zap.String("bill_id", req.BillID.String()),
			zap.Int("attempt", attempt))
	}

	s.deps.Logger.Info("Payment recorded",
		zap.String("payment_id", payment.ID.String()),
		zap.String("bill_id", payment.BillID.String()),
		zap.String("amount", payment.Amount.StringFixed(2)),
		zap.String("method", payment.PaymentMethod.String()),
		zap.String("reference", payment.TransactionReference))
	s.deps.Metrics.RecordPayment(ctx, payment.PaymentMethod.String(), payment.Amount)
	publish(ctx, s.deps.Events, s.deps.Logger, billing.NewPaymentRecordedEvent(*payment))

	if settled != nil {
		s.deps.Logger.Info("Bill paid",
			zap.String("bill_id", settled.paid.ID.String()),
			zap.String("settled", settled.total.StringFixed(2)))
		s.deps.Metrics.RecordBillTransition(ctx, settled.paid.Status.String())
		publish(ctx, s.deps.Events, s.deps.Logger, billing.NewBillStatusChangedEvent(settled.from, settled.paid))
	}

	return payment, nil
}

func checkPayable(bill billing.Bill, amount decimal.Decimal) error {
	switch bill.Status {
	case billing.BillStatusCancelled:
		return billing.NewBillCancelledError(bill.ID)
	case billing.BillStatusPaid:
		return billing.NewBillAlreadyPaidError(bill.ID)
	}
	if amount.GreaterThan(bill.TotalAmount) {
		return billing.NewOverpaymentError(bill.ID, amount, bill.TotalAmount)
	}
	return nil
}

// settlement is a paid transition committed together with a payment
type settlement struct {
	from  billing.BillStatus
	paid  billing.Bill
	total decimal.Decimal
}

// applyPayment saves payment and, when the bill's successful payments now
// cover its total, moves bill to paid. Both writes share one transaction.
// A nil settlement means the bill is still partly paid.
func (s *PaymentService) applyPayment(ctx context.Context, bill billing.Bill, payment billing.Payment) (*settlement, error) {
	var settled *settlement
	err := s.tx.WithinTx(ctx, func(ctx context.Context, stores billing.TxStores) error {
		settled = nil
		if err := stores.Payments.Save(ctx, payment); err != nil {
			return fmt.Errorf("failed to save payment: %w", err)
		}

		payments, err := stores.Payments.FindByBillID(ctx, bill.ID)
		if err != nil {
			return fmt.Errorf("failed to load payments: %w", err)
		}
		total := billing.SettledAmount(payments)
		if total.LessThan(bill.TotalAmount) {
			return nil
		}

		paid, err := bill.MarkPaid(s.deps.Clock())
		if err != nil {
			return err
		}
		if err := stores.Bills.UpdateStatus(ctx, paid, bill.Version); err != nil {
			return err
		}
		settled = &settlement{from: bill.Status, paid: paid, total: total}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return settled, nil
}

// GetPayment returns a payment by ID
func (s *PaymentService) GetPayment(ctx context.Context, paymentID uuid.UUID) (*billing.Payment, error) {
	return s.payments.FindByID(ctx, paymentID)
}

// ListByBill returns all payments for a bill
func (s *PaymentService) ListByBill(ctx context.Context, billID uuid.UUID) ([]billing.Payment, error) {
	return s.payments.FindByBillID(ctx, billID)
}

// TotalPaid returns the sum of successful payments on a bill
func (s *PaymentService) TotalPaid(ctx context.Context, billID uuid.UUID) (decimal.Decimal, error) {
	payments, err := s.payments.FindByBillID(ctx, billID)
	if err != nil {
		return decimal.Zero, err
	}
	return billing.SettledAmount(payments), nil
}

// Receipt describes a payment and the state of its bill
type Receipt struct {
	Payment     billing.Payment   `json:"payment"`
	Bill        billing.Bill      `json:"bill"`
	MethodName  string            `json:"method_name"`
	AmountPaid  valueobject.Money `json:"amount_paid"`
	TotalPaid   valueobject.Money `json:"total_paid"`
	Outstanding valueobject.Money `json:"outstanding"`
}

// Receipt builds the receipt for a payment
func (s *PaymentService) Receipt(ctx context.Context, paymentID uuid.UUID) (*Receipt, error) {
	payment, err := s.payments.FindByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	bill, err := s.bills.FindByID(ctx, payment.BillID)
	if err != nil {
		return nil, err
	}
	totalPaid, err := s.TotalPaid(ctx, bill.ID)
	if err != nil {
		return nil, err
	}

	return &Receipt{
		Payment:     *payment,
		Bill:        *bill,
		MethodName:  payment.PaymentMethod.DisplayName(),
		AmountPaid:  valueobject.NewMoneyFrom(payment.Amount, s.currency),
		TotalPaid:   valueobject.NewMoneyFrom(totalPaid, s.currency),
		Outstanding: valueobject.NewMoneyFrom(bill.Outstanding(totalPaid), s.currency),
	}, nil
}
