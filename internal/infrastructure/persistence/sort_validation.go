package persistence

import (
	"fmt"
	"strings"
)

// ValidateSortOrder validates and normalizes the sort order to ASC or DESC.
// Returns "DESC" as the default if the input is invalid or empty.
func ValidateSortOrder(orderDir string) string {
	normalized := strings.ToUpper(strings.TrimSpace(orderDir))
	if normalized == "ASC" {
		return "ASC"
	}
	return "DESC"
}

// ValidateSortField validates the sort field against a whitelist of allowed fields.
// Returns the defaultField if the input is invalid, empty, or not in the whitelist.
func ValidateSortField(sortField string, allowedFields map[string]bool, defaultField string) string {
	trimmed := strings.TrimSpace(sortField)
	if trimmed == "" {
		return defaultField
	}
	if allowedFields[trimmed] {
		return trimmed
	}
	return defaultField
}

// orderClause builds a safe ORDER BY clause from caller input
func orderClause(field, dir string, allowed map[string]bool, defaultField string) string {
	return fmt.Sprintf("%s %s", ValidateSortField(field, allowed, defaultField), ValidateSortOrder(dir))
}

// BillSortFields contains allowed sort fields for bills
var BillSortFields = map[string]bool{
	"created_at":     true,
	"updated_at":     true,
	"billing_period": true,
	"due_date":       true,
	"total_amount":   true,
	"consumption":    true,
	"status":         true,
}

// ReadingSortFields contains allowed sort fields for meter readings
var ReadingSortFields = map[string]bool{
	"created_at":      true,
	"reading_date":    true,
	"current_reading": true,
	"consumption":     true,
}

// CustomerSortFields contains allowed sort fields for customers
var CustomerSortFields = map[string]bool{
	"created_at":     true,
	"updated_at":     true,
	"name":           true,
	"account_number": true,
	"status":         true,
}
