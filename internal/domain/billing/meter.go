package billing

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/waterbill/backend/internal/domain/shared"
)

// MeterStatus represents whether a meter is in service
type MeterStatus string

const (
	// MeterStatusActive is a meter in service
	MeterStatusActive MeterStatus = "active"
	// MeterStatusInactive is a meter taken out of service
	MeterStatusInactive MeterStatus = "inactive"
)

// String returns the string representation of MeterStatus
func (s MeterStatus) String() string {
	return string(s)
}

// IsValid returns true if the status is valid
func (s MeterStatus) IsValid() bool {
	switch s {
	case MeterStatusActive, MeterStatusInactive:
		return true
	}
	return false
}

// Meter is a registered water meter
type Meter struct {
	shared.BaseEntity
	MeterNumber      string
	CustomerID       *uuid.UUID
	Location         string
	InstallationDate time.Time
	Status           MeterStatus
}

// NewMeter registers a new, unassigned, active meter
func NewMeter(meterNumber, location string, installationDate, now time.Time) (Meter, error) {
	meterNumber = strings.TrimSpace(meterNumber)
	location = strings.TrimSpace(location)
	if meterNumber == "" {
		return Meter{}, shared.NewDomainError(CodeInvalidMeter, "Meter number is required")
	}
	if len(meterNumber) > 50 {
		return Meter{}, shared.NewDomainError(CodeInvalidMeter, "Meter number cannot exceed 50 characters")
	}
	if location == "" {
		return Meter{}, shared.NewDomainError(CodeInvalidMeter, "Location is required")
	}
	if installationDate.IsZero() {
		return Meter{}, shared.NewDomainError(CodeInvalidMeter, "Installation date is required")
	}

	return Meter{
		BaseEntity:       shared.NewBaseEntity(now),
		MeterNumber:      meterNumber,
		Location:         location,
		InstallationDate: installationDate,
		Status:           MeterStatusActive,
	}, nil
}

// IsAssigned returns true if the meter belongs to a customer
func (m Meter) IsAssigned() bool {
	return m.CustomerID != nil
}

// IsActive returns true if the meter is in service
func (m Meter) IsActive() bool {
	return m.Status == MeterStatusActive
}

// AssignTo returns a copy of the meter assigned to customerID
func (m Meter) AssignTo(customerID uuid.UUID, now time.Time) (Meter, error) {
	if customerID == uuid.Nil {
		return Meter{}, shared.NewDomainError(CodeInvalidMeter, "Customer ID cannot be empty")
	}
	if m.IsAssigned() {
		return Meter{}, NewMeterAlreadyAssignedError(m.ID, *m.CustomerID)
	}
	if !m.IsActive() {
		return Meter{}, shared.NewDomainError(CodeMeterInactive, "Cannot assign an inactive meter")
	}
	m.CustomerID = &customerID
	m.UpdatedAt = now
	return m, nil
}

// Unassign returns a copy of the meter with no customer
func (m Meter) Unassign(now time.Time) Meter {
	m.CustomerID = nil
	m.UpdatedAt = now
	return m
}

// Deactivate returns a copy of the meter taken out of service
func (m Meter) Deactivate(now time.Time) Meter {
	m.Status = MeterStatusInactive
	m.UpdatedAt = now
	return m
}

// Activate returns a copy of the meter put back into service
func (m Meter) Activate(now time.Time) Meter {
	m.Status = MeterStatusActive
	m.UpdatedAt = now
	return m
}
