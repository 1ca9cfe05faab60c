package handler

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"cloudpay/internal/middleware"
	"cloudpay/internal/models"
	"cloudpay/internal/obs"
	"cloudpay/internal/payment"
	"cloudpay/internal/repository"
)

// Ledger is the storage the callback handler writes to.
type Ledger interface {
	Upsert(ctx context.Context, tx *models.Transaction) error
	FindByTransactionID(ctx context.Context, id int64) (*models.Transaction, error)
	UpdateStatus(ctx context.Context, id int64, status string, reasonCode int, event string) error
	RecordNotification(ctx context.Context, n *models.Notification) error
}

// Verifier checks a notification signature over the raw body.
type Verifier interface {
	VerifyNotification(r *http.Request, body []byte) bool
}

// PaymentCallbackHandler handles provider notifications.
type PaymentCallbackHandler struct {
	ledger   Ledger
	verifier Verifier
	metrics  *obs.Metrics
	logger   *zap.Logger
	now      func() time.Time
}

// NewPaymentCallbackHandler creates a new payment callback handler.
func NewPaymentCallbackHandler(
	ledger Ledger,
	verifier Verifier,
	metrics *obs.Metrics,
	logger *zap.Logger,
) *PaymentCallbackHandler {
	return &PaymentCallbackHandler{
		ledger:   ledger,
		verifier: verifier,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
	}
}

type replyBody struct {
	Code int `json:"code"`
}

// RequireKnownKind answers 404 for kinds the provider never sends.
func (h *PaymentCallbackHandler) RequireKnownKind(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, ok := payment.ParseNotificationKind(c.Param("kind")); !ok {
			return echo.NewHTTPError(http.StatusNotFound, "unknown notification kind")
		}
		return next(c)
	}
}

// Verify checks the signature and counts rejections.
func (h *PaymentCallbackHandler) Verify(r *http.Request, body []byte) bool {
	if h.verifier.VerifyNotification(r, body) {
		return true
	}
	h.count(path.Base(r.URL.Path), "unauthorized")
	h.logger.Warn("Notification signature rejected", zap.String("path", r.URL.Path))
	return false
}

// Handle processes one verified notification.
func (h *PaymentCallbackHandler) Handle(c echo.Context) error {
	kind, ok := payment.ParseNotificationKind(c.Param("kind"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "unknown notification kind")
	}

	body := middleware.RawBody(c)
	raw := string(body)
	if len(body) == 0 {
		raw = c.Request().URL.RawQuery
	}
	form, err := url.ParseQuery(raw)
	if err != nil {
		h.count(string(kind), "invalid")
		return echo.NewHTTPError(http.StatusBadRequest, "unparsable body")
	}
	n, err := payment.ParseNotification(kind, form)
	if err != nil {
		h.count(string(kind), "invalid")
		h.logger.Warn("Malformed notification", zap.String("kind", string(kind)), zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx := c.Request().Context()
	code, err := h.apply(ctx, n)
	if err != nil {
		h.count(string(kind), "error")
		h.logger.Error("Notification processing failed",
			zap.String("kind", string(kind)),
			zap.Int64("transaction_id", n.TransactionID),
			zap.Error(err),
		)
		return echo.NewHTTPError(http.StatusInternalServerError, "processing failed")
	}

	sum := sha256.Sum256([]byte(raw))
	record := &models.Notification{
		Kind:          string(kind),
		TransactionID: n.TransactionID,
		BodyHash:      hex.EncodeToString(sum[:]),
		ReceivedAt:    h.now().UTC(),
	}
	if err := h.ledger.RecordNotification(ctx, record); err != nil {
		h.logger.Warn("Notification log write failed", zap.Error(err))
	}

	result := "accepted"
	if code != payment.CodeOK {
		result = "rejected"
	}
	h.count(string(kind), result)
	h.logger.Info("Notification processed",
		zap.String("kind", string(kind)),
		zap.Int64("transaction_id", n.TransactionID),
		zap.String("invoice_id", n.InvoiceID),
		zap.Int("code", code),
	)
	return c.JSON(http.StatusOK, replyBody{Code: code})
}

func (h *PaymentCallbackHandler) apply(ctx context.Context, n *payment.Notification) (int, error) {
	switch n.Kind {
	case payment.NotifyCheck:
		return h.check(ctx, n)
	case payment.NotifyPay, payment.NotifyConfirm:
		tx := n.Transaction()
		if tx.Status == "" {
			tx.Status = models.StatusCompleted
		}
		return payment.CodeOK, h.ledger.Upsert(ctx, ledgerEntry(n, tx))
	case payment.NotifyFail:
		tx := n.Transaction()
		tx.Status = models.StatusDeclined
		return payment.CodeOK, h.ledger.Upsert(ctx, ledgerEntry(n, tx))
	case payment.NotifyRefund:
		target := n.PaymentTransactionID
		if target == 0 {
			target = n.TransactionID
		}
		return payment.CodeOK, h.ledger.UpdateStatus(ctx, target, models.StatusRefunded, 0, string(n.Kind))
	case payment.NotifyCancel:
		return payment.CodeOK, h.ledger.UpdateStatus(ctx, n.TransactionID, models.StatusCancelled, 0, string(n.Kind))
	case payment.NotifyRecurrent:
		return payment.CodeOK, nil
	}
	return payment.CodeOK, errors.New("unhandled notification kind")
}

func ledgerEntry(n *payment.Notification, tx *payment.Transaction) *models.Transaction {
	entry := repository.LedgerEntry(tx, string(n.Kind))
	entry.OperationType = n.OperationType
	return entry
}

// check accepts a payment unless the amount is not positive or the
// transaction is already settled in the ledger.
func (h *PaymentCallbackHandler) check(ctx context.Context, n *payment.Notification) (int, error) {
	if !n.Amount.IsPositive() {
		return payment.CodeInvalidAmount, nil
	}
	existing, err := h.ledger.FindByTransactionID(ctx, n.TransactionID)
	if err != nil {
		return 0, err
	}
	if existing != nil && !existing.IsPending() {
		return payment.CodeRejected, nil
	}
	return payment.CodeOK, nil
}

func (h *PaymentCallbackHandler) count(kind, result string) {
	if h.metrics == nil {
		return
	}
	h.metrics.NotificationTotal.WithLabelValues(kind, result).Inc()
}
