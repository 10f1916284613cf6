package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/waterbill/backend/internal/domain/billing"
)

// CustomerModel is the persistence model for a customer account
type CustomerModel struct {
	BaseModel
	AccountNumber string                 `gorm:"type:varchar(20);not null;uniqueIndex"`
	Name          string                 `gorm:"type:varchar(200);not null;index"`
	Email         string                 `gorm:"type:varchar(254);not null;uniqueIndex"`
	Phone         string                 `gorm:"type:varchar(30);not null"`
	Address       string                 `gorm:"type:text;not null"`
	Status        billing.CustomerStatus `gorm:"type:varchar(20);not null;default:'active';index"`
}

// TableName returns the table name for GORM
func (CustomerModel) TableName() string {
	return "customers"
}

// ToDomain converts the persistence model to a domain Customer
func (m *CustomerModel) ToDomain() billing.Customer {
	return billing.Customer{
		BaseEntity:    m.BaseModel.ToDomain(),
		AccountNumber: m.AccountNumber,
		Name:          m.Name,
		Email:         m.Email,
		Phone:         m.Phone,
		Address:       m.Address,
		Status:        m.Status,
	}
}

// CustomerModelFromDomain creates a persistence model from a domain Customer
func CustomerModelFromDomain(c billing.Customer) *CustomerModel {
	m := &CustomerModel{
		AccountNumber: c.AccountNumber,
		Name:          c.Name,
		Email:         c.Email,
		Phone:         c.Phone,
		Address:       c.Address,
		Status:        c.Status,
	}
	m.FromDomainBaseEntity(c.BaseEntity)
	return m
}

// MeterModel is the persistence model for a registered meter
type MeterModel struct {
	BaseModel
	MeterNumber      string              `gorm:"type:varchar(50);not null;uniqueIndex"`
	CustomerID       *uuid.UUID          `gorm:"type:uuid;index"`
	Location         string              `gorm:"type:text"`
	InstallationDate time.Time           `gorm:"not null"`
	Status           billing.MeterStatus `gorm:"type:varchar(20);not null;default:'active'"`
}

// TableName returns the table name for GORM
func (MeterModel) TableName() string {
	return "meters"
}

// ToDomain converts the persistence model to a domain Meter
func (m *MeterModel) ToDomain() billing.Meter {
	return billing.Meter{
		BaseEntity:       m.BaseModel.ToDomain(),
		MeterNumber:      m.MeterNumber,
		CustomerID:       m.CustomerID,
		Location:         m.Location,
		InstallationDate: m.InstallationDate,
		Status:           m.Status,
	}
}

// MeterModelFromDomain creates a persistence model from a domain Meter
func MeterModelFromDomain(meter billing.Meter) *MeterModel {
	m := &MeterModel{
		MeterNumber:      meter.MeterNumber,
		CustomerID:       meter.CustomerID,
		Location:         meter.Location,
		InstallationDate: meter.InstallationDate,
		Status:           meter.Status,
	}
	m.FromDomainBaseEntity(meter.BaseEntity)
	return m
}

// MeterReadingModel is the persistence model for a meter reading
type MeterReadingModel struct {
	BaseModel
	MeterID         uuid.UUID `gorm:"type:uuid;not null;index:idx_meter_readings_meter_date,priority:1"`
	CustomerID      uuid.UUID `gorm:"type:uuid;not null;index"`
	ReadingDate     time.Time `gorm:"not null;index:idx_meter_readings_meter_date,priority:2"`
	PreviousReading uint64    `gorm:"type:bigint;not null"`
	CurrentReading  uint64    `gorm:"type:bigint;not null"`
	Consumption     uint64    `gorm:"type:bigint;not null"`
	ImageURL        *string   `gorm:"type:text"`
	Notes           *string   `gorm:"type:text"`
}

// TableName returns the table name for GORM
func (MeterReadingModel) TableName() string {
	return "meter_readings"
}

// ToDomain converts the persistence model to a domain MeterReading
func (m *MeterReadingModel) ToDomain() billing.MeterReading {
	return billing.MeterReading{
		BaseEntity:      m.BaseModel.ToDomain(),
		MeterID:         m.MeterID,
		CustomerID:      m.CustomerID,
		ReadingDate:     m.ReadingDate,
		PreviousReading: m.PreviousReading,
		CurrentReading:  m.CurrentReading,
		Consumption:     m.Consumption,
		ImageURL:        m.ImageURL,
		Notes:           m.Notes,
	}
}

// MeterReadingModelFromDomain creates a persistence model from a domain MeterReading
func MeterReadingModelFromDomain(r billing.MeterReading) *MeterReadingModel {
	m := &MeterReadingModel{
		MeterID:         r.MeterID,
		CustomerID:      r.CustomerID,
		ReadingDate:     r.ReadingDate,
		PreviousReading: r.PreviousReading,
		CurrentReading:  r.CurrentReading,
		Consumption:     r.Consumption,
		ImageURL:        r.ImageURL,
		Notes:           r.Notes,
	}
	m.FromDomainBaseEntity(r.BaseEntity)
	return m
}

// BillModel is the persistence model for a bill.
// MeterReadingID is unique so a reading can be billed only once.
type BillModel struct {
	BaseModel
	CustomerID      uuid.UUID          `gorm:"type:uuid;not null;index"`
	MeterReadingID  *uuid.UUID         `gorm:"type:uuid;uniqueIndex"`
	BillingPeriod   string             `gorm:"type:varchar(7);not null;index"`
	PreviousReading uint64             `gorm:"type:bigint;not null"`
	CurrentReading  uint64             `gorm:"type:bigint;not null"`
	Consumption     uint64             `gorm:"type:bigint;not null"`
	RatePerUnit     decimal.Decimal    `gorm:"type:decimal(10,4);not null"`
	BaseCharge      decimal.Decimal    `gorm:"type:decimal(12,2);not null"`
	TotalAmount     decimal.Decimal    `gorm:"type:decimal(12,2);not null"`
	DueDate         time.Time          `gorm:"not null;index"`
	Status          billing.BillStatus `gorm:"type:varchar(20);not null;index"`
	Version         int                `gorm:"not null;default:1"`
}

// TableName returns the table name for GORM
func (BillModel) TableName() string {
	return "bills"
}

// ToDomain converts the persistence model to a domain Bill
func (m *BillModel) ToDomain() billing.Bill {
	return billing.Bill{
		BaseEntity:      m.BaseModel.ToDomain(),
		CustomerID:      m.CustomerID,
		MeterReadingID:  m.MeterReadingID,
		BillingPeriod:   m.BillingPeriod,
		PreviousReading: m.PreviousReading,
		CurrentReading:  m.CurrentReading,
		Consumption:     m.Consumption,
		RatePerUnit:     m.RatePerUnit,
		BaseCharge:      m.BaseCharge,
		TotalAmount:     m.TotalAmount,
		DueDate:         m.DueDate,
		Status:          m.Status,
		Version:         m.Version,
	}
}

// BillModelFromDomain creates a persistence model from a domain Bill
func BillModelFromDomain(b billing.Bill) *BillModel {
	m := &BillModel{
		CustomerID:      b.CustomerID,
		MeterReadingID:  b.MeterReadingID,
		BillingPeriod:   b.BillingPeriod,
		PreviousReading: b.PreviousReading,
		CurrentReading:  b.CurrentReading,
		Consumption:     b.Consumption,
		RatePerUnit:     b.RatePerUnit,
		BaseCharge:      b.BaseCharge,
		TotalAmount:     b.TotalAmount,
		DueDate:         b.DueDate,
		Status:          b.Status,
		Version:         b.Version,
	}
	m.FromDomainBaseEntity(b.BaseEntity)
	return m
}

// PaymentModel is the persistence model for a payment
type PaymentModel struct {
	BaseModel
	BillID               uuid.UUID             `gorm:"type:uuid;not null;index"`
	CustomerID           uuid.UUID             `gorm:"type:uuid;not null;index"`
	Amount               decimal.Decimal       `gorm:"type:decimal(12,2);not null"`
	PaymentDate          time.Time             `gorm:"not null"`
	PaymentMethod        billing.PaymentMethod `gorm:"type:varchar(20);not null"`
	TransactionReference string                `gorm:"type:varchar(64);not null;uniqueIndex"`
	Status               billing.PaymentStatus `gorm:"type:varchar(20);not null"`
}

// TableName returns the table name for GORM
func (PaymentModel) TableName() string {
	return "payments"
}

// ToDomain converts the persistence model to a domain Payment
func (m *PaymentModel) ToDomain() billing.Payment {
	return billing.Payment{
		BaseEntity:           m.BaseModel.ToDomain(),
		BillID:               m.BillID,
		CustomerID:           m.CustomerID,
		Amount:               m.Amount,
		PaymentDate:          m.PaymentDate,
		PaymentMethod:        m.PaymentMethod,
		TransactionReference: m.TransactionReference,
		Status:               m.Status,
	}
}

// PaymentModelFromDomain creates a persistence model from a domain Payment
func PaymentModelFromDomain(p billing.Payment) *PaymentModel {
	m := &PaymentModel{
		BillID:               p.BillID,
		CustomerID:           p.CustomerID,
		Amount:               p.Amount,
		PaymentDate:          p.PaymentDate,
		PaymentMethod:        p.PaymentMethod,
		TransactionReference: p.TransactionReference,
		Status:               p.Status,
	}
	m.FromDomainBaseEntity(p.BaseEntity)
	return m
}

// All lists every billing model, in creation order
func All() []any {
	return []any{
		&CustomerModel{},
		&MeterModel{},
		&MeterReadingModel{},
		&BillModel{},
		&PaymentModel{},
	}
}
