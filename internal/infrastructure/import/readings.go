package csvimport

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Reading file columns
const (
	ColumnMeterID        = "meter_id"
	ColumnCurrentReading = "current_reading"
	ColumnReadingDate    = "reading_date"
	ColumnImageURL       = "image_url"
	ColumnNotes          = "notes"
)

// DefaultMaxRows bounds a single reading import
const DefaultMaxRows = 10000

var readingDateLayouts = []string{time.RFC3339, "2006-01-02"}

// ReadingRow is one parsed reading ready to be recorded
type ReadingRow struct {
	Line           int
	MeterID        uuid.UUID
	CurrentReading uint64
	ReadingDate    time.Time // zero when the column is blank
	ImageURL       string
	Notes          string
}

// ParseReadings reads a reading file. Rows that fail to parse are returned as
// RowErrors and do not stop the rest of the file. An error is returned only
// when the file itself is unusable.
func ParseReadings(r io.Reader, maxRows int, opts ...ParserOption) ([]ReadingRow, []RowError, error) {
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}
	parser, err := NewCSVParser(r, opts...)
	if err != nil {
		return nil, nil, err
	}
	if err := parser.ParseHeader(); err != nil {
		return nil, nil, err
	}
	if err := parser.ValidateHeaders(ColumnMeterID, ColumnCurrentReading); err != nil {
		return nil, nil, err
	}

	var (
		rows    []ReadingRow
		rowErrs []RowError
	)
	for {
		row, err := parser.ReadRow()
		if err == io.EOF {
			break
		}
		var rowErr RowError
		if errors.As(err, &rowErr) {
			rowErrs = append(rowErrs, rowErr)
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		if row.IsEmpty() {
			continue
		}
		if len(rows)+len(rowErrs) >= maxRows {
			return nil, nil, fmt.Errorf("%w: limit is %d", ErrTooManyRows, maxRows)
		}

		reading, rowErr, ok := parseReadingRow(row)
		if !ok {
			rowErrs = append(rowErrs, rowErr)
			continue
		}
		rows = append(rows, reading)
	}

	if len(rows) == 0 && len(rowErrs) == 0 {
		return nil, nil, ErrNoDataRows
	}
	return rows, rowErrs, nil
}

func parseReadingRow(row *Row) (ReadingRow, RowError, bool) {
	fail := func(column, msg string) (ReadingRow, RowError, bool) {
		return ReadingRow{}, RowError{Line: row.LineNumber, Column: column, Message: msg}, false
	}

	meterID, err := uuid.Parse(row.Get(ColumnMeterID))
	if err != nil {
		return fail(ColumnMeterID, "must be a UUID")
	}
	raw := row.Get(ColumnCurrentReading)
	if raw == "" {
		return fail(ColumnCurrentReading, "is required")
	}
	current, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return fail(ColumnCurrentReading, "must be a non-negative whole number")
	}

	var readingDate time.Time
	if value := row.Get(ColumnReadingDate); value != "" {
		parsed, ok := parseReadingDate(value)
		if !ok {
			return fail(ColumnReadingDate, "must be YYYY-MM-DD or RFC 3339")
		}
		readingDate = parsed
	}

	return ReadingRow{
		Line:           row.LineNumber,
		MeterID:        meterID,
		CurrentReading: current,
		ReadingDate:    readingDate,
		ImageURL:       row.Get(ColumnImageURL),
		Notes:          row.Get(ColumnNotes),
	}, RowError{}, true
}

func parseReadingDate(value string) (time.Time, bool) {
	for _, layout := range readingDateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
