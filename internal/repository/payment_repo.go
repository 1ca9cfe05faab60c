package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"cloudpay/internal/models"
	"cloudpay/internal/payment"
)

// TransactionRepository handles ledger database operations.
type TransactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// Upsert inserts the record or refreshes the provider-owned columns of an existing one.
func (r *TransactionRepository) Upsert(ctx context.Context, tx *models.Transaction) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "transaction_id"}},
		DoUpdates: clause.AssignmentColumns(upsertColumns(tx)),
	}).Create(tx).Error
	if err != nil {
		return fmt.Errorf("upsert transaction %d: %w", tx.TransactionID, err)
	}
	return nil
}

// upsertColumns lists the columns an upsert overwrites. operation_type is
// only known from notifications, so an empty one keeps the stored value.
func upsertColumns(tx *models.Transaction) []string {
	cols := []string{
		"status", "reason_code", "reason", "amount", "currency",
		"invoice_id", "account_id", "card_last_four", "test_mode",
		"last_event", "updated_at",
	}
	if tx.OperationType != "" {
		cols = append(cols, "operation_type")
	}
	return cols
}

// FindByTransactionID returns the ledger record for a provider transaction id.
// A missing record is reported as (nil, nil).
func (r *TransactionRepository) FindByTransactionID(ctx context.Context, id int64) (*models.Transaction, error) {
	var tx models.Transaction
	err := r.db.WithContext(ctx).Where("transaction_id = ?", id).First(&tx).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

// FindStale returns records in one of statuses that were last touched before
// the cutoff and carry an invoice id, oldest first.
func (r *TransactionRepository) FindStale(ctx context.Context, statuses []string, before time.Time, limit int) ([]models.Transaction, error) {
	if limit <= 0 {
		limit = 50
	}
	var txs []models.Transaction
	err := r.db.WithContext(ctx).
		Where("status IN ? AND updated_at < ? AND invoice_id <> ''", statuses, before).
		Order("updated_at ASC").
		Limit(limit).
		Find(&txs).Error
	return txs, err
}

// UpdateStatus sets status fields for a provider transaction id.
func (r *TransactionRepository) UpdateStatus(ctx context.Context, id int64, status string, reasonCode int, event string) error {
	return r.db.WithContext(ctx).Model(&models.Transaction{}).
		Where("transaction_id = ?", id).
		Updates(map[string]interface{}{
			"status":      status,
			"reason_code": reasonCode,
			"last_event":  event,
		}).Error
}

// Touch bumps updated_at so the record moves to the back of the stale queue.
func (r *TransactionRepository) Touch(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Model(&models.Transaction{}).
		Where("transaction_id = ?", id).
		UpdateColumn("updated_at", time.Now().UTC()).Error
}

// RecordNotification appends an accepted webhook to the notification log.
func (r *TransactionRepository) RecordNotification(ctx context.Context, n *models.Notification) error {
	return r.db.WithContext(ctx).Create(n).Error
}

// LedgerEntry maps a provider transaction to a ledger record.
func LedgerEntry(t *payment.Transaction, event string) *models.Transaction {
	return &models.Transaction{
		TransactionID: t.TransactionID,
		InvoiceID:     t.InvoiceID,
		AccountID:     t.AccountID,
		Amount:        t.Amount,
		Currency:      t.Currency,
		Status:        t.Status,
		ReasonCode:    t.ReasonCode,
		Reason:        t.Reason,
		CardLastFour:  t.CardLastFour,
		TestMode:      t.TestMode,
		LastEvent:     event,
	}
}
