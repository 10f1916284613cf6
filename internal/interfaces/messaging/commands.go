// Package messaging consumes billing commands from Kafka and dispatches them
// to the application services.
package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	billingapp "github.com/waterbill/backend/internal/application/billing"
	"github.com/waterbill/backend/internal/domain/billing"
	"github.com/waterbill/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// Command names accepted on the commands topic
const (
	CommandRegisterCustomer   = "register_customer"
	CommandUpdateCustomer     = "update_customer"
	CommandActivateCustomer   = "activate_customer"
	CommandDeactivateCustomer = "deactivate_customer"
	CommandRegisterMeter      = "register_meter"
	CommandAssignMeter        = "assign_meter"
	CommandUnassignMeter      = "unassign_meter"
	CommandActivateMeter      = "activate_meter"
	CommandDeactivateMeter    = "deactivate_meter"
	CommandRecordReading      = "record_reading"
	CommandGenerateBill       = "generate_bill"
	CommandCancelBill         = "cancel_bill"
	CommandRecordPayment      = "record_payment"
)

// ErrUnknownCommand is returned for a command name with no handler
var ErrUnknownCommand = errors.New("unknown command")

// ErrMalformedCommand is returned when a message cannot be decoded
var ErrMalformedCommand = errors.New("malformed command")

// Command is the wire format of one inbound message.
// Only the fields relevant to Name are read.
type Command struct {
	Name string `json:"command"`
	// ID is set by the producer; redeliveries of an applied ID are dropped
	ID string `json:"command_id,omitempty"`

	CustomerName string `json:"customer_name,omitempty"`
	Email        string `json:"email,omitempty"`
	Phone        string `json:"phone,omitempty"`
	Address      string `json:"address,omitempty"`

	MeterID          uuid.UUID `json:"meter_id,omitempty"`
	MeterNumber      string    `json:"meter_number,omitempty"`
	Location         string    `json:"location,omitempty"`
	InstallationDate time.Time `json:"installation_date,omitempty"`
	CustomerID       uuid.UUID `json:"customer_id,omitempty"`

	CurrentReading uint64    `json:"current_reading,omitempty"`
	ReadingDate    time.Time `json:"reading_date,omitempty"`
	ImageURL       string    `json:"image_url,omitempty"`
	Notes          string    `json:"notes,omitempty"`
	// GenerateBill stores the reading and its bill together
	GenerateBill bool `json:"generate_bill,omitempty"`

	ReadingID uuid.UUID       `json:"reading_id,omitempty"`
	BillID    uuid.UUID       `json:"bill_id,omitempty"`
	Amount    decimal.Decimal `json:"amount,omitempty"`
	Method    string          `json:"method,omitempty"`
	Reference string          `json:"reference,omitempty"`
}

// CustomerCommands is the customer registry surface used by the consumer
type CustomerCommands interface {
	RegisterCustomer(ctx context.Context, req billingapp.CustomerRequest) (*billing.Customer, error)
	UpdateCustomer(ctx context.Context, customerID uuid.UUID, req billingapp.CustomerRequest) (*billing.Customer, error)
	Activate(ctx context.Context, customerID uuid.UUID) (*billing.Customer, error)
	Deactivate(ctx context.Context, customerID uuid.UUID) (*billing.Customer, error)
}

// MeterCommands is the meter registry surface used by the consumer
type MeterCommands interface {
	RegisterMeter(ctx context.Context, req billingapp.RegisterMeterRequest) (*billing.Meter, error)
	AssignToCustomer(ctx context.Context, meterID, customerID uuid.UUID) (*billing.Meter, error)
	Unassign(ctx context.Context, meterID uuid.UUID) (*billing.Meter, error)
	Activate(ctx context.Context, meterID uuid.UUID) (*billing.Meter, error)
	Deactivate(ctx context.Context, meterID uuid.UUID) (*billing.Meter, error)
}

// ReadingCommands records meter readings
type ReadingCommands interface {
	RecordReading(ctx context.Context, req billingapp.RecordReadingRequest) (*billing.MeterReading, error)
	RecordAndBill(ctx context.Context, req billingapp.RecordReadingRequest, issuer billingapp.BillIssuer) (*billing.MeterReading, *billing.Bill, error)
}

// BillCommands issues and cancels bills
type BillCommands interface {
	billingapp.BillIssuer
	GenerateFromReadingID(ctx context.Context, readingID uuid.UUID) (*billing.Bill, error)
	CancelBill(ctx context.Context, billID uuid.UUID) (*billing.Bill, error)
}

// PaymentCommands records payments
type PaymentCommands interface {
	RecordPayment(ctx context.Context, req billingapp.RecordPaymentRequest) (*billing.Payment, error)
}

// CommandHandler decodes commands and calls the matching service
type CommandHandler struct {
	customers CustomerCommands
	meters    MeterCommands
	readings  ReadingCommands
	bills     BillCommands
	payments  PaymentCommands
	logger    *zap.Logger
}

// NewCommandHandler creates a new CommandHandler
func NewCommandHandler(
	customers CustomerCommands,
	meters MeterCommands,
	readings ReadingCommands,
	bills BillCommands,
	payments PaymentCommands,
	logger *zap.Logger,
) *CommandHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CommandHandler{
		customers: customers,
		meters:    meters,
		readings:  readings,
		bills:     bills,
		payments:  payments,
		logger:    logger,
	}
}

// Decode parses a message value into a Command
func Decode(value []byte) (Command, error) {
	var cmd Command
	if err := json.Unmarshal(value, &cmd); err != nil {
		return Command{}, fmt.Errorf("%w: %v", ErrMalformedCommand, err)
	}
	if cmd.Name == "" {
		return Command{}, fmt.Errorf("%w: missing command name", ErrMalformedCommand)
	}
	return cmd, nil
}

// Handle executes one command
func (h *CommandHandler) Handle(ctx context.Context, cmd Command) error {
	switch cmd.Name {
	case CommandRegisterCustomer:
		customer, err := h.customers.RegisterCustomer(ctx, cmd.customerRequest())
		if err != nil {
			return err
		}
		h.logger.Info("Customer registered",
			zap.String("customer_id", customer.ID.String()),
			zap.String("account_number", customer.AccountNumber))
		return nil

	case CommandUpdateCustomer:
		_, err := h.customers.UpdateCustomer(ctx, cmd.CustomerID, cmd.customerRequest())
		return err

	case CommandActivateCustomer:
		_, err := h.customers.Activate(ctx, cmd.CustomerID)
		return err

	case CommandDeactivateCustomer:
		_, err := h.customers.Deactivate(ctx, cmd.CustomerID)
		return err

	case CommandRegisterMeter:
		meter, err := h.meters.RegisterMeter(ctx, billingapp.RegisterMeterRequest{
			MeterNumber:      cmd.MeterNumber,
			Location:         cmd.Location,
			InstallationDate: cmd.InstallationDate,
		})
		if err != nil {
			return err
		}
		h.logger.Info("Meter registered", zap.String("meter_id", meter.ID.String()))
		return nil

	case CommandAssignMeter:
		_, err := h.meters.AssignToCustomer(ctx, cmd.MeterID, cmd.CustomerID)
		return err

	case CommandUnassignMeter:
		_, err := h.meters.Unassign(ctx, cmd.MeterID)
		return err

	case CommandActivateMeter:
		_, err := h.meters.Activate(ctx, cmd.MeterID)
		return err

	case CommandDeactivateMeter:
		_, err := h.meters.Deactivate(ctx, cmd.MeterID)
		return err

	case CommandRecordReading:
		req := billingapp.RecordReadingRequest{
			MeterID:        cmd.MeterID,
			CurrentReading: cmd.CurrentReading,
			ReadingDate:    cmd.ReadingDate,
			ImageURL:       cmd.ImageURL,
			Notes:          cmd.Notes,
		}
		if !cmd.GenerateBill {
			_, err := h.readings.RecordReading(ctx, req)
			return err
		}
		// reading and bill commit together; a retry starts from a clean slate
		_, _, err := h.readings.RecordAndBill(ctx, req, h.bills)
		return err

	case CommandGenerateBill:
		_, err := h.bills.GenerateFromReadingID(ctx, cmd.ReadingID)
		return err

	case CommandCancelBill:
		_, err := h.bills.CancelBill(ctx, cmd.BillID)
		return err

	case CommandRecordPayment:
		_, err := h.payments.RecordPayment(ctx, billingapp.RecordPaymentRequest{
			BillID:    cmd.BillID,
			Amount:    cmd.Amount,
			Method:    billing.PaymentMethod(cmd.Method),
			Reference: cmd.Reference,
		})
		return err

	default:
		return fmt.Errorf("%w: %s", ErrUnknownCommand, cmd.Name)
	}
}

func (c Command) customerRequest() billingapp.CustomerRequest {
	return billingapp.CustomerRequest{
		Name:    c.CustomerName,
		Email:   c.Email,
		Phone:   c.Phone,
		Address: c.Address,
	}
}

// IsPermanent reports whether retrying err cannot succeed: business rule
// rejections and undecodable or unknown commands.
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrMalformedCommand) || errors.Is(err, ErrUnknownCommand) {
		return true
	}
	switch shared.CodeOf(err) {
	case "":
		return false
	case shared.CodeConcurrencyConflict:
		// a lost version race is worth another attempt
		return false
	}
	return true
}
