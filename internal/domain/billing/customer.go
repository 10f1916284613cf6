package billing

import (
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/waterbill/backend/internal/domain/shared"
)

// CustomerStatus represents whether a customer account is open
type CustomerStatus string

const (
	// CustomerStatusActive is an account that can own meters
	CustomerStatusActive CustomerStatus = "active"
	// CustomerStatusInactive is a closed or suspended account
	CustomerStatusInactive CustomerStatus = "inactive"
)

// String returns the string representation of CustomerStatus
func (s CustomerStatus) String() string {
	return string(s)
}

// IsValid returns true if the status is valid
func (s CustomerStatus) IsValid() bool {
	return s == CustomerStatusActive || s == CustomerStatusInactive
}

// accountNumberPrefix starts every generated account number
const accountNumberPrefix = "WB"

// Customer is a billed account holder
type Customer struct {
	shared.BaseEntity
	AccountNumber string
	Name          string
	Email         string
	Phone         string
	Address       string
	Status        CustomerStatus
}

// ContactDetails are the editable fields of a customer
type ContactDetails struct {
	Name    string
	Email   string
	Phone   string
	Address string
}

func (d ContactDetails) normalized() ContactDetails {
	return ContactDetails{
		Name:    strings.TrimSpace(d.Name),
		Email:   strings.ToLower(strings.TrimSpace(d.Email)),
		Phone:   strings.TrimSpace(d.Phone),
		Address: strings.TrimSpace(d.Address),
	}
}

func (d ContactDetails) validate() error {
	if d.Name == "" {
		return shared.NewDomainError(CodeInvalidCustomer, "Customer name is required")
	}
	if len(d.Name) > 200 {
		return shared.NewDomainError(CodeInvalidCustomer, "Customer name cannot exceed 200 characters")
	}
	if d.Email == "" {
		return shared.NewDomainError(CodeInvalidCustomer, "Customer email is required")
	}
	if addr, err := mail.ParseAddress(d.Email); err != nil || addr.Address != d.Email {
		return shared.DomainErrorf(CodeInvalidCustomer, "Email %q is not a valid address", d.Email)
	}
	if d.Phone == "" {
		return shared.NewDomainError(CodeInvalidCustomer, "Customer phone is required")
	}
	if d.Address == "" {
		return shared.NewDomainError(CodeInvalidCustomer, "Customer address is required")
	}
	return nil
}

// NewCustomer opens an active account with a freshly generated account number
func NewCustomer(details ContactDetails, now time.Time) (Customer, error) {
	details = details.normalized()
	if err := details.validate(); err != nil {
		return Customer{}, err
	}

	return Customer{
		BaseEntity:    shared.NewBaseEntity(now),
		AccountNumber: NewAccountNumber(now),
		Name:          details.Name,
		Email:         details.Email,
		Phone:         details.Phone,
		Address:       details.Address,
		Status:        CustomerStatusActive,
	}, nil
}

// NewAccountNumber returns WB followed by the last 8 digits of the unix
// millisecond clock and 3 random digits.
func NewAccountNumber(now time.Time) string {
	millis := fmt.Sprintf("%08d", now.UnixMilli()%100_000_000)
	id := uuid.New()
	random := (int(id[0])<<8 | int(id[1])) % 1000
	return fmt.Sprintf("%s%s%03d", accountNumberPrefix, millis, random)
}

// IsActive returns true if the account is open
func (c Customer) IsActive() bool {
	return c.Status == CustomerStatusActive
}

// Contact returns the customer's editable fields
func (c Customer) Contact() ContactDetails {
	return ContactDetails{Name: c.Name, Email: c.Email, Phone: c.Phone, Address: c.Address}
}

// UpdateContact returns a copy with new contact details. The account number never changes.
func (c Customer) UpdateContact(details ContactDetails, now time.Time) (Customer, error) {
	details = details.normalized()
	if err := details.validate(); err != nil {
		return Customer{}, err
	}
	c.Name = details.Name
	c.Email = details.Email
	c.Phone = details.Phone
	c.Address = details.Address
	c.UpdatedAt = now
	return c, nil
}

// Activate returns a copy of the customer with the account reopened
func (c Customer) Activate(now time.Time) Customer {
	c.Status = CustomerStatusActive
	c.UpdatedAt = now
	return c
}

// Deactivate returns a copy of the customer with the account closed
func (c Customer) Deactivate(now time.Time) Customer {
	c.Status = CustomerStatusInactive
	c.UpdatedAt = now
	return c
}
