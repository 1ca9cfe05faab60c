package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	DefaultBaseURL = "https://api.cloudpayments.ru"
	DefaultLocale  = "en-US"
	DefaultTimeout = 20 * time.Second
)

const (
	endpointTest        = "/test"
	endpointCardCharge  = "/payments/cards/charge"
	endpointCardAuth    = "/payments/cards/auth"
	endpointTokenCharge = "/payments/tokens/charge"
	endpointTokenAuth   = "/payments/tokens/auth"
	endpointPost3DS     = "/payments/cards/post3ds"
	endpointConfirm     = "/payments/confirm"
	endpointVoid        = "/payments/void"
	endpointRefund      = "/payments/refund"
	endpointFind        = "/payments/find"
	localeField         = "CultureName"
	redactedPlaceholder = "***"
)

// Fields never written to logs in clear text.
var sensitiveFields = map[string]bool{
	"CardCryptogramPacket": true,
	"Token":                true,
	"PaRes":                true,
}

// Config is fixed for the lifetime of a Client.
type Config struct {
	BaseURL    string
	PublicKey  string
	PrivateKey string
	Locale     string
	Timeout    time.Duration
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.BaseURL) == "" {
		c.BaseURL = DefaultBaseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if strings.TrimSpace(c.Locale) == "" {
		c.Locale = DefaultLocale
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	return c
}

// Option customizes a Client.
type Option func(*Client)

// WithTransport replaces the HTTP transport.
func WithTransport(t Transport) Option {
	return func(c *Client) { c.transport = t }
}

// WithLogger sets the request/response logger.
func WithLogger(l Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithObserver registers a hook called after every classified call.
func WithObserver(o Observer) Option {
	return func(c *Client) { c.observe = o }
}

// Client talks to the payment API. It is immutable and safe for
// concurrent use.
type Client struct {
	cfg       Config
	transport Transport
	logger    Logger
	observe   Observer
}

var _ Gateway = (*Client)(nil)

// New creates a client for the given credentials.
func New(cfg Config, opts ...Option) *Client {
	cfg = cfg.withDefaults()
	c := &Client{
		cfg:    cfg,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.transport == nil {
		c.transport = newHTTPTransport(cfg)
	}
	return c
}

// Config returns the client configuration.
func (c *Client) Config() Config {
	return c.cfg
}

// WithLocale returns a copy of the client that sends a different locale.
func (c *Client) WithLocale(locale string) *Client {
	cp := *c
	cp.cfg.Locale = locale
	return &cp
}

// CardChargeRequest is a one-time card payment.
type CardChargeRequest struct {
	Money      Money
	IPAddress  string
	Name       string
	Cryptogram string
	Params     Params
	// RequireConfirmation authorizes only; ConfirmPayment captures later.
	RequireConfirmation bool
}

// TokenChargeRequest is a payment with a saved card token.
type TokenChargeRequest struct {
	Money               Money
	AccountID           string
	Token               string
	Params              Params
	RequireConfirmation bool
}

// Test checks connectivity and credentials.
func (c *Client) Test(ctx context.Context) error {
	out := c.call(ctx, "test", endpointTest, ProtocolStatus, nil)
	return out.Err
}

// ChargeCard charges a card cryptogram, or only authorizes it when
// RequireConfirmation is set. The outcome is a transaction or a challenge.
func (c *Client) ChargeCard(ctx context.Context, req CardChargeRequest) (Outcome, error) {
	endpoint := endpointCardCharge
	if req.RequireConfirmation {
		endpoint = endpointCardAuth
	}
	fields := merge(map[string]string{
		"Amount":               req.Money.Amount.String(),
		"Currency":             req.Money.Currency,
		"IpAddress":            req.IPAddress,
		"Name":                 req.Name,
		"CardCryptogramPacket": req.Cryptogram,
	}, req.Params)

	out := c.call(ctx, "charge_card", endpoint, ProtocolCharge, fields)
	if out.Err != nil {
		return Outcome{}, out.Err
	}
	return out, nil
}

// ChargeToken charges or authorizes a saved card token.
func (c *Client) ChargeToken(ctx context.Context, req TokenChargeRequest) (Outcome, error) {
	endpoint := endpointTokenCharge
	if req.RequireConfirmation {
		endpoint = endpointTokenAuth
	}
	fields := merge(map[string]string{
		"Amount":    req.Money.Amount.String(),
		"Currency":  req.Money.Currency,
		"AccountId": req.AccountID,
		"Token":     req.Token,
	}, req.Params)

	out := c.call(ctx, "charge_token", endpoint, ProtocolCharge, fields)
	if out.Err != nil {
		return Outcome{}, out.Err
	}
	return out, nil
}

// Confirm3DS completes a 3-D Secure challenge with the issuer's PaRes.
func (c *Client) Confirm3DS(ctx context.Context, transactionID int64, paRes string) (*Transaction, error) {
	out := c.call(ctx, "confirm_3ds", endpointPost3DS, ProtocolPost3DS, map[string]string{
		"TransactionId": formatID(transactionID),
		"PaRes":         paRes,
	})
	if out.Err != nil {
		return nil, out.Err
	}
	return out.Transaction, nil
}

// ConfirmPayment captures an authorized payment.
func (c *Client) ConfirmPayment(ctx context.Context, transactionID int64, amount decimal.Decimal) error {
	out := c.call(ctx, "confirm_payment", endpointConfirm, ProtocolStatus, map[string]string{
		"TransactionId": formatID(transactionID),
		"Amount":        amount.String(),
	})
	return out.Err
}

// VoidPayment cancels an authorization.
func (c *Client) VoidPayment(ctx context.Context, transactionID int64) error {
	out := c.call(ctx, "void_payment", endpointVoid, ProtocolStatus, map[string]string{
		"TransactionId": formatID(transactionID),
	})
	return out.Err
}

// RefundPayment refunds all or part of a completed payment.
func (c *Client) RefundPayment(ctx context.Context, transactionID int64, amount decimal.Decimal) error {
	out := c.call(ctx, "refund_payment", endpointRefund, ProtocolStatus, map[string]string{
		"TransactionId": formatID(transactionID),
		"Amount":        amount.String(),
	})
	return out.Err
}

// FindPayment returns the latest transaction for an invoice id.
func (c *Client) FindPayment(ctx context.Context, invoiceID string) (*Transaction, error) {
	out := c.call(ctx, "find_payment", endpointFind, ProtocolLookup, map[string]string{
		"InvoiceId": invoiceID,
	})
	if out.Err != nil {
		return nil, out.Err
	}
	return out.Transaction, nil
}

func (c *Client) call(ctx context.Context, operation, endpoint string, p Protocol, fields map[string]string) Outcome {
	start := time.Now()
	resp := c.send(ctx, endpoint, fields)
	out := Classify(p, resp)
	if c.observe != nil {
		c.observe(operation, out.Kind, time.Since(start))
	}
	return out
}

// send never fails: transport and decode errors travel inside the Response.
func (c *Client) send(ctx context.Context, endpoint string, fields map[string]string) *Response {
	if fields == nil {
		fields = map[string]string{}
	}
	fields[localeField] = c.cfg.Locale

	c.logger.Debug("payment api request",
		zap.String("endpoint", endpoint),
		zap.Any("params", redact(fields)),
	)

	body, err := c.transport.Post(ctx, endpoint, fields)
	if err != nil {
		c.logger.Error("payment api request failed", zap.String("endpoint", endpoint), zap.Error(err))
		if len(bytes.TrimSpace(body)) == 0 {
			return &Response{cause: err}
		}
		// Keep the provider's Message; the call still fails.
		resp, _ := DecodeResponse(body)
		resp.Success = false
		resp.cause = err
		return resp
	}

	c.logger.Debug("payment api response", zap.String("endpoint", endpoint), zap.ByteString("body", redactBody(body)))

	resp, err := DecodeResponse(body)
	if err != nil {
		c.logger.Error("payment api response unreadable", zap.String("endpoint", endpoint), zap.Error(err))
	}
	return resp
}

func merge(defaults map[string]string, overrides Params) map[string]string {
	for k, v := range overrides {
		defaults[k] = v
	}
	return defaults
}

func redact(fields map[string]string) map[string]string {
	out := make(map[string]string, len(fields))
	for k, v := range fields {
		if sensitiveFields[k] && v != "" {
			v = redactedPlaceholder
		}
		out[k] = v
	}
	return out
}

// redactBody masks sensitive Model fields in a JSON response. Bodies that
// are not JSON objects are returned unchanged.
func redactBody(body []byte) []byte {
	var envelope map[string]json.RawMessage
	if json.Unmarshal(body, &envelope) != nil {
		return body
	}
	var model map[string]json.RawMessage
	if raw, ok := envelope["Model"]; !ok || json.Unmarshal(raw, &model) != nil {
		return body
	}
	masked := false
	for k := range model {
		if sensitiveFields[k] {
			model[k] = json.RawMessage(`"` + redactedPlaceholder + `"`)
			masked = true
		}
	}
	if !masked {
		return body
	}
	raw, err := json.Marshal(model)
	if err != nil {
		return body
	}
	envelope["Model"] = raw
	out, err := json.Marshal(envelope)
	if err != nil {
		return body
	}
	return out
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
