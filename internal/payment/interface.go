package payment

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Transport executes one authenticated POST against the API and returns the
// raw response body.
type Transport interface {
	Post(ctx context.Context, endpoint string, fields map[string]string) ([]byte, error)
}

// Logger is the logging capability the client needs. *zap.Logger satisfies it.
type Logger interface {
	Debug(msg string, fields ...zap.Field)
	Error(msg string, fields ...zap.Field)
}

// Observer is told about every classified call.
type Observer func(operation string, kind OutcomeKind, elapsed time.Duration)

// Gateway defines the operations offered by the payment API.
type Gateway interface {
	// Test checks connectivity and credentials.
	Test(ctx context.Context) error

	// ChargeCard charges (or authorizes) a card cryptogram.
	ChargeCard(ctx context.Context, req CardChargeRequest) (Outcome, error)

	// ChargeToken charges (or authorizes) a saved card token.
	ChargeToken(ctx context.Context, req TokenChargeRequest) (Outcome, error)

	// Confirm3DS completes a 3-D Secure challenge.
	Confirm3DS(ctx context.Context, transactionID int64, paRes string) (*Transaction, error)

	// ConfirmPayment captures a previously authorized payment.
	ConfirmPayment(ctx context.Context, transactionID int64, amount decimal.Decimal) error

	// VoidPayment cancels an authorization.
	VoidPayment(ctx context.Context, transactionID int64) error

	// RefundPayment refunds a completed payment.
	RefundPayment(ctx context.Context, transactionID int64, amount decimal.Decimal) error

	// FindPayment looks a transaction up by invoice id.
	FindPayment(ctx context.Context, invoiceID string) (*Transaction, error)
}
