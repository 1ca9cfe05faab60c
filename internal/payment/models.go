package payment

import (
	"time"

	"github.com/shopspring/decimal"
)

// isoLayout is the timestamp format of the *Iso fields (no zone, UTC).
const isoLayout = "2006-01-02T15:04:05"

// Money is an amount in a given currency.
type Money struct {
	Amount   decimal.Decimal
	Currency string
}

// NewMoney builds Money from a decimal string such as "10.50".
func NewMoney(amount, currency string) (Money, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return Money{}, err
	}
	return Money{Amount: d, Currency: currency}, nil
}

// Params are extra request fields. Caller values win over the fields an
// operation sets itself.
type Params map[string]string

// Transaction mirrors the transaction model returned by the API.
type Transaction struct {
	TransactionID     int64           `json:"TransactionId"`
	Amount            decimal.Decimal `json:"Amount"`
	Currency          string          `json:"Currency"`
	CurrencyCode      int             `json:"CurrencyCode"`
	PaymentAmount     decimal.Decimal `json:"PaymentAmount"`
	PaymentCurrency   string          `json:"PaymentCurrency"`
	InvoiceID         string          `json:"InvoiceId"`
	AccountID         string          `json:"AccountId"`
	Email             string          `json:"Email"`
	Description       string          `json:"Description"`
	JSONData          string          `json:"JsonData"`
	CreatedDateISO    string          `json:"CreatedDateIso"`
	AuthDateISO       string          `json:"AuthDateIso"`
	ConfirmDateISO    string          `json:"ConfirmDateIso"`
	AuthCode          string          `json:"AuthCode"`
	TestMode          bool            `json:"TestMode"`
	IPAddress         string          `json:"IpAddress"`
	IPCountry         string          `json:"IpCountry"`
	IPCity            string          `json:"IpCity"`
	CardFirstSix      string          `json:"CardFirstSix"`
	CardLastFour      string          `json:"CardLastFour"`
	CardExpDate       string          `json:"CardExpDate"`
	CardType          string          `json:"CardType"`
	CardTypeCode      int             `json:"CardTypeCode"`
	Issuer            string          `json:"Issuer"`
	IssuerBankCountry string          `json:"IssuerBankCountry"`
	Status            string          `json:"Status"`
	StatusCode        int             `json:"StatusCode"`
	Reason            string          `json:"Reason"`
	ReasonCode        int             `json:"ReasonCode"`
	CardHolderMessage string          `json:"CardHolderMessage"`
	Name              string          `json:"Name"`
	Token             string          `json:"Token"`
}

// CreatedAt parses CreatedDateISO. Zero time when absent or malformed.
func (t Transaction) CreatedAt() time.Time { return parseISO(t.CreatedDateISO) }

// AuthorizedAt parses AuthDateISO.
func (t Transaction) AuthorizedAt() time.Time { return parseISO(t.AuthDateISO) }

// ConfirmedAt parses ConfirmDateISO.
func (t Transaction) ConfirmedAt() time.Time { return parseISO(t.ConfirmDateISO) }

// Money returns the transaction amount and currency.
func (t Transaction) Money() Money {
	return Money{Amount: t.Amount, Currency: t.Currency}
}

func parseISO(v string) time.Time {
	if v == "" {
		return time.Time{}
	}
	ts, err := time.ParseInLocation(isoLayout, v, time.UTC)
	if err != nil {
		return time.Time{}
	}
	return ts
}

// Challenge is a pending 3-D Secure step. The cardholder is sent to AcsURL
// with PaReq; the bank's answer goes back through Client.Confirm3DS.
type Challenge struct {
	TransactionID int64  `json:"TransactionId"`
	PaReq         string `json:"PaReq"`
	AcsURL        string `json:"AcsUrl"`
}

// OutcomeKind tags which field of an Outcome is populated.
type OutcomeKind int

const (
	OutcomeTransaction OutcomeKind = iota + 1
	OutcomeChallenge
	OutcomeError
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeTransaction:
		return "transaction"
	case OutcomeChallenge:
		return "challenge"
	case OutcomeError:
		return "error"
	default:
		return "unknown"
	}
}

// Outcome is the result of classifying one API response. Exactly one of
// Transaction, Challenge or Err matches Kind. Status-only operations may
// succeed with a nil Transaction.
type Outcome struct {
	Kind        OutcomeKind
	Transaction *Transaction
	Challenge   *Challenge
	Err         error
}
