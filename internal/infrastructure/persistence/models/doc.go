// Package models contains GORM persistence models for the billing tables.
// Domain records stay free of ORM tags; each model converts to and from its
// domain value with ToDomain and a FromDomain constructor.
package models
