package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"cloudpay/internal/config"
	"cloudpay/internal/models"
	"cloudpay/internal/obs"
	"cloudpay/internal/payment"
	"cloudpay/internal/repository"
)

// Store is the ledger view the reconciler needs.
type Store interface {
	FindStale(ctx context.Context, statuses []string, before time.Time, limit int) ([]models.Transaction, error)
	Upsert(ctx context.Context, tx *models.Transaction) error
	UpdateStatus(ctx context.Context, id int64, status string, reasonCode int, event string) error
	Touch(ctx context.Context, id int64) error
}

// Finder looks a payment up by invoice id.
type Finder interface {
	FindPayment(ctx context.Context, invoiceID string) (*payment.Transaction, error)
}

// Scheduler runs the reconciliation job.
type Scheduler struct {
	cron    *cron.Cron
	cfg     config.ReconcileConfig
	store   Store
	finder  Finder
	metrics *obs.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

// New creates a new cron scheduler.
func New(cfg config.ReconcileConfig, store Store, finder Finder, metrics *obs.Metrics, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithChain(cron.SkipIfStillRunning(cronLogger{logger.Sugar()})),
		),
		cfg:     cfg,
		store:   store,
		finder:  finder,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}

// Start registers and starts the reconciliation job.
func (s *Scheduler) Start() error {
	s.logger.Info("Starting cron scheduler...", zap.String("spec", s.cfg.Spec))

	_, err := s.cron.AddFunc(s.cfg.Spec, func() {
		s.logger.Debug("Running: reconcile pending payments")
		s.reconcile()
	})
	if err != nil {
		return fmt.Errorf("schedule reconcile %q: %w", s.cfg.Spec, err)
	}

	s.cron.Start()
	return nil
}

// Stop gracefully stops the cron scheduler.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

func (s *Scheduler) reconcile() {
	defer s.recoverFromPanic("reconcile")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if _, err := s.RunOnce(ctx); err != nil {
		s.logger.Error("Reconcile failed", zap.Error(err))
	}
}

// RunOnce polls the provider for every stale pending record and writes back
// what it reports. It returns the number of records updated.
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.cfg.MinAge)
	pending, err := s.store.FindStale(ctx, models.PendingStatuses, cutoff, s.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("load pending transactions: %w", err)
	}

	updated := 0
	for _, rec := range pending {
		if ctx.Err() != nil {
			return updated, ctx.Err()
		}
		if rec.InvoiceID == "" {
			s.count("skipped")
			continue
		}

		found, err := s.finder.FindPayment(ctx, rec.InvoiceID)
		if err != nil {
			s.count(lookupResult(err))
			s.logger.Debug("Payment lookup failed",
				zap.String("invoice_id", rec.InvoiceID),
				zap.Int64("transaction_id", rec.TransactionID),
				zap.Error(err),
			)
			s.touch(ctx, rec.TransactionID)
			continue
		}

		if err := s.store.Upsert(ctx, repository.LedgerEntry(found, "reconcile")); err != nil {
			s.count("error")
			s.logger.Error("Ledger update failed",
				zap.Int64("transaction_id", found.TransactionID),
				zap.Error(err),
			)
			continue
		}

		if found.TransactionID != rec.TransactionID {
			// The invoice was paid by a later attempt; stop polling this one.
			if err := s.store.UpdateStatus(ctx, rec.TransactionID, models.StatusSuperseded, 0, "reconcile"); err != nil {
				s.logger.Error("Ledger update failed",
					zap.Int64("transaction_id", rec.TransactionID),
					zap.Error(err),
				)
				s.touch(ctx, rec.TransactionID)
			}
		} else if found.Status != rec.Status {
			s.logger.Info("Payment status reconciled",
				zap.String("invoice_id", rec.InvoiceID),
				zap.String("from", rec.Status),
				zap.String("to", found.Status),
			)
		}
		s.count("updated")
		updated++
	}

	s.logger.Debug("Reconcile completed", zap.Int("candidates", len(pending)), zap.Int("updated", updated))
	return updated, nil
}

func (s *Scheduler) touch(ctx context.Context, id int64) {
	if err := s.store.Touch(ctx, id); err != nil {
		s.logger.Warn("Ledger touch failed", zap.Int64("transaction_id", id), zap.Error(err))
	}
}

func lookupResult(err error) string {
	var reqErr *payment.RequestError
	if errors.As(err, &reqErr) && reqErr.Cause == nil {
		return "not_found"
	}
	return "error"
}

func (s *Scheduler) count(result string) {
	if s.metrics == nil {
		return
	}
	s.metrics.ReconcileTotal.WithLabelValues(result).Inc()
}

func (s *Scheduler) recoverFromPanic(jobName string) {
	if r := recover(); r != nil {
		s.logger.Error("Cron job panicked", zap.String("job", jobName), zap.Any("error", r))
	}
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	l *zap.SugaredLogger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debugw(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Errorw(msg, append(keysAndValues, "error", err)...)
}
