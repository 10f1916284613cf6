package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/waterbill/backend/internal/domain/billing"
	"github.com/waterbill/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// maxAccountNumberAttempts bounds account number regeneration on a collision
const maxAccountNumberAttempts = 3

// CustomerService manages the customer registry
type CustomerService struct {
	customers billing.CustomerRepository
	deps      Dependencies
}

// NewCustomerService creates a new CustomerService
func NewCustomerService(customers billing.CustomerRepository, deps Dependencies) *CustomerService {
	return &CustomerService{
		customers: customers,
		deps:      deps.withDefaults(),
	}
}

// CustomerRequest carries a customer's contact details
type CustomerRequest struct {
	Name    string
	Email   string
	Phone   string
	Address string
}

func (r CustomerRequest) details() billing.ContactDetails {
	return billing.ContactDetails{Name: r.Name, Email: r.Email, Phone: r.Phone, Address: r.Address}
}

// RegisterCustomer opens a new active account. Emails are unique.
func (s *CustomerService) RegisterCustomer(ctx context.Context, req CustomerRequest) (*billing.Customer, error) {
	customer, err := billing.NewCustomer(req.details(), s.deps.Clock())
	if err != nil {
		return nil, err
	}
	if err := s.ensureEmailFree(ctx, customer.Email, uuid.Nil); err != nil {
		return nil, err
	}

	for attempt := 1; ; attempt++ {
		_, err := s.customers.FindByAccountNumber(ctx, customer.AccountNumber)
		var notFound *billing.CustomerNotFoundError
		if errors.As(err, &notFound) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to check account number: %w", err)
		}
		if attempt >= maxAccountNumberAttempts {
			return nil, fmt.Errorf("account number %s: %w", customer.AccountNumber, shared.ErrAlreadyExists)
		}
		customer.AccountNumber = billing.NewAccountNumber(s.deps.Clock())
	}

	if err := s.customers.Save(ctx, customer); err != nil {
		return nil, fmt.Errorf("failed to save customer: %w", err)
	}

	s.deps.Logger.Info("Customer registered",
		zap.String("customer_id", customer.ID.String()),
		zap.String("account_number", customer.AccountNumber))
	return &customer, nil
}

// UpdateCustomer replaces a customer's contact details. Empty fields keep their current value.
func (s *CustomerService) UpdateCustomer(ctx context.Context, customerID uuid.UUID, req CustomerRequest) (*billing.Customer, error) {
	unlock, err := s.deps.Locker.Lock(ctx, customerLockKey(customerID))
	if err != nil {
		return nil, fmt.Errorf("failed to lock customer: %w", err)
	}
	defer unlock()

	customer, err := s.customers.FindByID(ctx, customerID)
	if err != nil {
		return nil, err
	}

	details := customer.Contact()
	if strings.TrimSpace(req.Name) != "" {
		details.Name = req.Name
	}
	if strings.TrimSpace(req.Email) != "" {
		details.Email = req.Email
	}
	if strings.TrimSpace(req.Phone) != "" {
		details.Phone = req.Phone
	}
	if strings.TrimSpace(req.Address) != "" {
		details.Address = req.Address
	}

	updated, err := customer.UpdateContact(details, s.deps.Clock())
	if err != nil {
		return nil, err
	}
	if updated.Email != customer.Email {
		if err := s.ensureEmailFree(ctx, updated.Email, customer.ID); err != nil {
			return nil, err
		}
	}
	if err := s.customers.Save(ctx, updated); err != nil {
		return nil, fmt.Errorf("failed to save customer: %w", err)
	}

	s.deps.Logger.Info("Customer updated", zap.String("customer_id", customerID.String()))
	return &updated, nil
}

// Activate reopens a customer account
func (s *CustomerService) Activate(ctx context.Context, customerID uuid.UUID) (*billing.Customer, error) {
	return s.setStatus(ctx, customerID, billing.CustomerStatusActive)
}

// Deactivate closes a customer account. Meters already assigned stay assigned;
// no new meters can be assigned until the account is reopened.
func (s *CustomerService) Deactivate(ctx context.Context, customerID uuid.UUID) (*billing.Customer, error) {
	return s.setStatus(ctx, customerID, billing.CustomerStatusInactive)
}

func (s *CustomerService) setStatus(ctx context.Context, customerID uuid.UUID, status billing.CustomerStatus) (*billing.Customer, error) {
	unlock, err := s.deps.Locker.Lock(ctx, customerLockKey(customerID))
	if err != nil {
		return nil, fmt.Errorf("failed to lock customer: %w", err)
	}
	defer unlock()

	customer, err := s.customers.FindByID(ctx, customerID)
	if err != nil {
		return nil, err
	}

	now := s.deps.Clock()
	changed := customer.Activate(now)
	if status == billing.CustomerStatusInactive {
		changed = customer.Deactivate(now)
	}
	if err := s.customers.Save(ctx, changed); err != nil {
		return nil, fmt.Errorf("failed to save customer: %w", err)
	}

	s.deps.Logger.Info("Customer status changed",
		zap.String("customer_id", customerID.String()),
		zap.String("status", status.String()))
	return &changed, nil
}

// GetCustomer returns a customer by ID
func (s *CustomerService) GetCustomer(ctx context.Context, customerID uuid.UUID) (*billing.Customer, error) {
	return s.customers.FindByID(ctx, customerID)
}

// GetByAccountNumber returns a customer by account number
func (s *CustomerService) GetByAccountNumber(ctx context.Context, accountNumber string) (*billing.Customer, error) {
	return s.customers.FindByAccountNumber(ctx, strings.ToUpper(strings.TrimSpace(accountNumber)))
}

// ListCustomers returns a page of customers. filter.Query searches by name,
// account number or phone.
func (s *CustomerService) ListCustomers(ctx context.Context, filter billing.CustomerFilter) (shared.Paginated[billing.Customer], error) {
	filter.Query = strings.TrimSpace(filter.Query)
	customers, total, err := s.customers.List(ctx, filter)
	if err != nil {
		return shared.Paginated[billing.Customer]{}, fmt.Errorf("failed to list customers: %w", err)
	}
	return shared.NewPaginated(customers, total, filter.Page, filter.Limit()), nil
}

func (s *CustomerService) ensureEmailFree(ctx context.Context, email string, self uuid.UUID) error {
	existing, err := s.customers.FindByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("failed to check email: %w", err)
	}
	if existing != nil && existing.ID != self {
		return shared.DomainErrorf(billing.CodeCustomerEmailExists, "Email %s is already registered", email)
	}
	return nil
}
