// Package models defines the domain entities for the personal-finance store.
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// SyncStatus tags a local-owned row's relationship to the backend.
type SyncStatus string

const (
	SyncStatusLocal    SyncStatus = "local"
	SyncStatusSynced   SyncStatus = "synced"
	SyncStatusConflict SyncStatus = "conflict"
)

// TransactionType distinguishes money in from money out.
type TransactionType string

const (
	TransactionTypeIncome  TransactionType = "income"
	TransactionTypeExpense TransactionType = "expense"
)

// BudgetPeriod is the budgeting window length.
type BudgetPeriod string

const (
	BudgetPeriodMonthly BudgetPeriod = "monthly"
	BudgetPeriodYearly  BudgetPeriod = "yearly"
)

// EndDate derives the budget end date from its start date. End dates are
// never stored independently of period and start.
func (p BudgetPeriod) EndDate(start time.Time) time.Time {
	if p == BudgetPeriodYearly {
		return start.AddDate(1, 0, 0)
	}
	return start.AddDate(0, 1, 0)
}

// BudgetStatus classifies a budget by how much of it has been spent.
type BudgetStatus string

const (
	BudgetStatusSafe     BudgetStatus = "safe"
	BudgetStatusWarning  BudgetStatus = "warning"
	BudgetStatusExceeded BudgetStatus = "exceeded"
)

// StatusFor classifies percentage used against the budget's alert threshold.
func StatusFor(percentageUsed, alertAt float64) BudgetStatus {
	switch {
	case percentageUsed >= 100:
		return BudgetStatusExceeded
	case percentageUsed >= alertAt:
		return BudgetStatusWarning
	default:
		return BudgetStatusSafe
	}
}

// DaysRemaining counts whole days from now until end, never negative.
func DaysRemaining(end, now time.Time) int {
	d := end.Sub(now)
	if d <= 0 {
		return 0
	}
	days := int(d / (24 * time.Hour))
	if d%(24*time.Hour) != 0 {
		days++
	}
	return days
}

// CategoryOrigin records where a category row came from. Provenance is an
// explicit column, never inferred from the id value.
type CategoryOrigin string

const (
	CategoryOriginSynced CategoryOrigin = "synced"
	CategoryOriginDevice CategoryOrigin = "device"
)

// SyncState is the per-entity sync state machine.
type SyncState string

const (
	SyncStatePending    SyncState = "pending"
	SyncStateInProgress SyncState = "in_progress"
	SyncStateCompleted  SyncState = "completed"
	SyncStateFailed     SyncState = "failed"
)

// EntityType keys sync metadata rows.
type EntityType string

const (
	EntityTypeBanks      EntityType = "banks"
	EntityTypeCategories EntityType = "categories"
)

// Bank is backend-owned master data: a payment method or bank account kind.
type Bank struct {
	RemoteID     int64
	Name         string
	Color        string
	ImageURL     string
	LastSyncedAt time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
	DeletedAt    *time.Time
}

// Category is backend-owned master data, except for device-origin rows
// created through the local escape hatch.
type Category struct {
	RemoteID     int64
	Name         string
	Description  string
	UserID       *int64
	Origin       CategoryOrigin
	LastSyncedAt time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
	DeletedAt    *time.Time
}

// Transaction is a local-owned income or expense entry.
type Transaction struct {
	LocalID      string
	RemoteID     *int64
	BankID       int64
	CategoryID   int64
	Amount       decimal.Decimal
	Description  string
	Type         TransactionType
	Date         time.Time
	SyncStatus   SyncStatus
	LastSyncedAt *time.Time
	Version      int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
	DeletedAt    *time.Time
}

// Budget is a local-owned spending limit for one category over one period.
type Budget struct {
	LocalID      string
	RemoteID     *int64
	CategoryID   int64
	CategoryName string // joined for display, not stored on budgets
	Amount       decimal.Decimal
	Period       BudgetPeriod
	StartDate    time.Time
	EndDate      time.Time
	IsActive     bool
	AlertAt      float64
	Description  string
	SyncStatus   SyncStatus
	LastSyncedAt *time.Time
	Version      int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
	DeletedAt    *time.Time
}

// BudgetAlert is a snapshot taken when a budget crossed a threshold.
type BudgetAlert struct {
	LocalID      string
	BudgetID     string
	Percentage   float64
	SpentAmount  decimal.Decimal
	Message      string
	IsRead       bool
	BudgetAmount decimal.Decimal // joined for display
	CategoryName string          // joined for display
	SyncStatus   SyncStatus
	LastSyncedAt *time.Time
	Version      int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
	DeletedAt    *time.Time
}

// SyncMetadata tracks incremental sync progress per entity type.
type SyncMetadata struct {
	EntityType      EntityType
	LastSyncAt      time.Time
	LastSyncVersion int64
	Status          SyncState
	ErrorMessage    string
	UpdatedAt       time.Time
}

// TransactionStats is an aggregate over a transaction set.
type TransactionStats struct {
	TotalIncome  decimal.Decimal
	TotalExpense decimal.Decimal
	NetAmount    decimal.Decimal
	Count        int64
}

// CategorySpending is expense spend grouped by category.
type CategorySpending struct {
	CategoryID   int64
	CategoryName string
	Total        decimal.Decimal
	Count        int64
}

// BudgetWithStats is a budget joined with its computed spend rollup.
type BudgetWithStats struct {
	Budget
	SpentAmount     decimal.Decimal
	RemainingAmount decimal.Decimal
	PercentageUsed  float64
	Status          BudgetStatus
	DaysRemaining   int
}
