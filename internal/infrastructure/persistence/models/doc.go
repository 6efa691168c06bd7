// Package models contains GORM-specific persistence models that map to the
// ledger tables. These models are separate from the remittance domain types so
// the domain layer stays free of ORM concerns.
//
// Key Principles:
// 1. Domain types carry no GORM tags
// 2. Persistence models own the table mappings and column scales
// 3. Mappers convert between domain types and persistence models
//
// Tables: customers, facilities, invoices, payments, payment_allocations.
package models
