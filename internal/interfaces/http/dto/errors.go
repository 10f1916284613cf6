package dto

import (
	"net/http"

	"github.com/waterbill/backend/internal/domain/billing"
	"github.com/waterbill/backend/internal/domain/shared"
)

// Error code constants
// Format: ERR_<CATEGORY>_<DESCRIPTION>
const (
	ErrCodeInternal            = "ERR_INTERNAL"
	ErrCodeBadRequest          = "ERR_BAD_REQUEST"
	ErrCodeInvalidInput        = "ERR_INVALID_INPUT"
	ErrCodeNotFound            = "ERR_NOT_FOUND"
	ErrCodeAlreadyExists       = "ERR_ALREADY_EXISTS"
	ErrCodeConflict            = "ERR_CONFLICT"
	ErrCodeConcurrencyConflict = "ERR_CONCURRENCY_CONFLICT"
	ErrCodeInvalidState        = "ERR_INVALID_STATE"
	ErrCodeBusinessRule        = "ERR_BUSINESS_RULE"
	ErrCodeUnavailable         = "ERR_UNAVAILABLE"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes.
// Billing domain codes are listed as-is.
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeInternal:            http.StatusInternalServerError,
	ErrCodeBadRequest:          http.StatusBadRequest,
	ErrCodeInvalidInput:        http.StatusBadRequest,
	ErrCodeNotFound:            http.StatusNotFound,
	ErrCodeAlreadyExists:       http.StatusConflict,
	ErrCodeConflict:            http.StatusConflict,
	ErrCodeConcurrencyConflict: http.StatusConflict,
	ErrCodeInvalidState:        http.StatusUnprocessableEntity,
	ErrCodeBusinessRule:        http.StatusUnprocessableEntity,
	ErrCodeUnavailable:         http.StatusServiceUnavailable,

	billing.CodeInvalidReading:       http.StatusBadRequest,
	billing.CodeInvalidPaymentAmount: http.StatusBadRequest,
	billing.CodeInvalidPaymentMethod: http.StatusBadRequest,
	billing.CodeInvalidTariff:        http.StatusBadRequest,
	billing.CodeInvalidMeter:         http.StatusBadRequest,
	billing.CodeMeterNotFound:        http.StatusNotFound,
	billing.CodeReadingNotFound:      http.StatusNotFound,
	billing.CodeBillNotFound:         http.StatusNotFound,
	billing.CodePaymentNotFound:      http.StatusNotFound,
	billing.CodeReadingAlreadyBilled: http.StatusConflict,
	billing.CodeMeterAlreadyAssigned: http.StatusConflict,
	billing.CodeMeterNotAssigned:     http.StatusUnprocessableEntity,
	billing.CodeMeterInactive:        http.StatusUnprocessableEntity,
	billing.CodeBillCancelled:        http.StatusUnprocessableEntity,
	billing.CodeBillAlreadyPaid:      http.StatusUnprocessableEntity,
	billing.CodeOverpayment:          http.StatusUnprocessableEntity,
	billing.CodeInvalidTransition:    http.StatusUnprocessableEntity,
	billing.CodeInvalidGracePeriod:   http.StatusBadRequest,
	billing.CodeInvalidCustomer:      http.StatusBadRequest,
	billing.CodeCustomerNotFound:     http.StatusNotFound,
	billing.CodeMeterNumberExists:    http.StatusConflict,
	billing.CodeCustomerEmailExists:  http.StatusConflict,
	billing.CodeCustomerInactive:     http.StatusUnprocessableEntity,
}

// GetHTTPStatus returns the HTTP status code for an error code.
// Returns 500 Internal Server Error if the error code is not found.
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// LegacyErrorCodeMapping maps shared domain error codes to the ERR_ format
var LegacyErrorCodeMapping = map[string]string{
	shared.CodeNotFound:            ErrCodeNotFound,
	shared.CodeAlreadyExists:       ErrCodeAlreadyExists,
	shared.CodeInvalidInput:        ErrCodeInvalidInput,
	shared.CodeInvalidState:        ErrCodeInvalidState,
	shared.CodeConcurrencyConflict: ErrCodeConcurrencyConflict,
	"INTERNAL_ERROR":               ErrCodeInternal,
}

// NormalizeErrorCode converts a shared domain error code to the ERR_ format.
// Billing codes and unknown codes are returned as-is.
func NormalizeErrorCode(code string) string {
	if newCode, ok := LegacyErrorCodeMapping[code]; ok {
		return newCode
	}
	return code
}
