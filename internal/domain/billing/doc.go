// Package billing provides the domain model for metered water billing.
//
// This package implements the billing bounded context, which is responsible for:
//   - Pricing consumption against a tiered tariff
//   - Validating meter readings and deriving consumption
//   - Driving the bill lifecycle (pending, paid, overdue, cancelled)
//   - Reconciling payments against bills
//
// Entities are immutable value records. State changes go through pure
// transition functions that return a new record and leave the receiver alone.
//
// Key Records:
//   - MeterReading: A validated reading with derived consumption
//   - Bill: An amount owed for one reading, with its lifecycle status
//   - Payment: A successful settlement towards a bill
//   - Meter: A registered meter and the customer it is assigned to
//
// Value Objects:
//   - Tariff: Ordered consumption tiers plus a fixed base charge
//   - Calculation: The priced result of a consumption figure
//
// Persistence is reached only through the store interfaces in repository.go.
package billing
