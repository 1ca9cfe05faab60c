package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Ledger statuses as reported by the provider.
const (
	StatusAwaitingAuthentication = "AwaitingAuthentication"
	StatusAuthorized             = "Authorized"
	StatusCompleted              = "Completed"
	StatusCancelled              = "Cancelled"
	StatusDeclined               = "Declined"
	StatusRefunded               = "Refunded"

	// StatusSuperseded marks an attempt replaced by a later transaction
	// for the same invoice.
	StatusSuperseded = "Superseded"
)

// PendingStatuses are the statuses the reconciler keeps polling.
var PendingStatuses = []string{StatusAwaitingAuthentication, StatusAuthorized}

// Transaction maps to the `cp_transaction` ledger table.
type Transaction struct {
	ID            uint            `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	TransactionID int64           `gorm:"column:transaction_id;uniqueIndex" json:"transaction_id"`
	InvoiceID     string          `gorm:"column:invoice_id;size:191;index" json:"invoice_id"`
	AccountID     string          `gorm:"column:account_id;size:191;index" json:"account_id"`
	Amount        decimal.Decimal `gorm:"column:amount;type:decimal(18,2)" json:"amount"`
	Currency      string          `gorm:"column:currency;size:3" json:"currency"`
	Status        string          `gorm:"column:status;size:32;index" json:"status"`
	ReasonCode    int             `gorm:"column:reason_code" json:"reason_code"`
	Reason        string          `gorm:"column:reason;size:255" json:"reason"`
	OperationType string          `gorm:"column:operation_type;size:32" json:"operation_type"`
	CardLastFour  string          `gorm:"column:card_last_four;size:4" json:"card_last_four"`
	TestMode      bool            `gorm:"column:test_mode" json:"test_mode"`
	LastEvent     string          `gorm:"column:last_event;size:32" json:"last_event"`
	CreatedAt     time.Time       `gorm:"column:created_at" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"column:updated_at" json:"updated_at"`
}

func (Transaction) TableName() string {
	return "cp_transaction"
}

// IsPending reports whether the provider may still move the transaction.
func (t *Transaction) IsPending() bool {
	for _, s := range PendingStatuses {
		if t.Status == s {
			return true
		}
	}
	return false
}

// Notification maps to the `cp_notification` table, one row per accepted webhook.
type Notification struct {
	ID            uint      `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Kind          string    `gorm:"column:kind;size:16;index" json:"kind"`
	TransactionID int64     `gorm:"column:transaction_id;index" json:"transaction_id"`
	BodyHash      string    `gorm:"column:body_hash;size:64" json:"body_hash"`
	ReceivedAt    time.Time `gorm:"column:received_at" json:"received_at"`
}

func (Notification) TableName() string {
	return "cp_notification"
}
