package billing

import (
	"time"

	"github.com/google/uuid"
	"github.com/waterbill/backend/internal/domain/shared"
)

// MeterReading is a validated meter reading with its derived consumption
type MeterReading struct {
	shared.BaseEntity
	MeterID         uuid.UUID
	CustomerID      uuid.UUID
	ReadingDate     time.Time
	PreviousReading uint64
	CurrentReading  uint64
	Consumption     uint64
	ImageURL        *string
	Notes           *string
}

// ComputeConsumption derives consumption from two cumulative readings.
// Meters never run backwards, so current below previous is rejected.
func ComputeConsumption(meterID uuid.UUID, previous, current uint64) (uint64, error) {
	if current < previous {
		return 0, NewInvalidReadingError(meterID, previous, current)
	}
	return current - previous, nil
}

// NewMeterReading creates a validated meter reading stamped at now
func NewMeterReading(
	meterID uuid.UUID,
	customerID uuid.UUID,
	readingDate time.Time,
	previous uint64,
	current uint64,
	now time.Time,
) (MeterReading, error) {
	if meterID == uuid.Nil {
		return MeterReading{}, shared.NewDomainError(CodeInvalidReading, "Meter ID cannot be empty")
	}
	if customerID == uuid.Nil {
		return MeterReading{}, NewMeterNotAssignedError(meterID)
	}
	consumption, err := ComputeConsumption(meterID, previous, current)
	if err != nil {
		return MeterReading{}, err
	}
	if readingDate.IsZero() {
		readingDate = now
	}

	return MeterReading{
		BaseEntity:      shared.NewBaseEntity(now),
		MeterID:         meterID,
		CustomerID:      customerID,
		ReadingDate:     readingDate,
		PreviousReading: previous,
		CurrentReading:  current,
		Consumption:     consumption,
	}, nil
}

// WithImageURL returns a copy of the reading carrying a photo reference
func (r MeterReading) WithImageURL(url string) MeterReading {
	if url != "" {
		r.ImageURL = &url
	}
	return r
}

// WithNotes returns a copy of the reading carrying free-form notes
func (r MeterReading) WithNotes(notes string) MeterReading {
	if notes != "" {
		r.Notes = &notes
	}
	return r
}
