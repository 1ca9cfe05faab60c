package payment

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// notificationLayout is the DateTime format of notification fields (UTC).
const notificationLayout = "2006-01-02 15:04:05"

// NotificationKind names a webhook the provider sends.
type NotificationKind string

const (
	NotifyCheck     NotificationKind = "check"
	NotifyPay       NotificationKind = "pay"
	NotifyFail      NotificationKind = "fail"
	NotifyConfirm   NotificationKind = "confirm"
	NotifyRefund    NotificationKind = "refund"
	NotifyCancel    NotificationKind = "cancel"
	NotifyRecurrent NotificationKind = "recurrent"
)

// NotificationKinds lists every kind in delivery order.
var NotificationKinds = []NotificationKind{
	NotifyCheck, NotifyPay, NotifyFail, NotifyConfirm, NotifyRefund, NotifyCancel, NotifyRecurrent,
}

// ParseNotificationKind maps a path segment to a kind.
func ParseNotificationKind(s string) (NotificationKind, bool) {
	for _, k := range NotificationKinds {
		if string(k) == s {
			return k, true
		}
	}
	return "", false
}

// Reply codes for the check notification. Every other kind is answered with CodeOK.
const (
	CodeOK             = 0
	CodeInvalidInvoice = 10
	CodeInvalidAccount = 11
	CodeInvalidAmount  = 12
	CodeRejected       = 13
	CodeExpired        = 20
)

var ErrMalformedNotification = errors.New("payment: malformed notification")

// Notification is the decoded form body of a webhook.
type Notification struct {
	Kind                 NotificationKind
	TransactionID        int64
	PaymentTransactionID int64 // refund: the refunded payment
	SubscriptionID       string
	Amount               decimal.Decimal
	Currency             string
	PaymentAmount        decimal.Decimal
	PaymentCurrency      string
	DateTime             time.Time
	InvoiceID            string
	AccountID            string
	Email                string
	Name                 string
	Status               string
	OperationType        string
	Reason               string
	ReasonCode           int
	CardFirstSix         string
	CardLastFour         string
	CardType             string
	TestMode             bool
	Token                string
	Data                 string
}

// ParseNotification decodes form values of a notification of kind k.
// Recurrent notifications carry a subscription Id instead of TransactionId.
func ParseNotification(k NotificationKind, form url.Values) (*Notification, error) {
	n := &Notification{
		Kind:            k,
		SubscriptionID:  form.Get("SubscriptionId"),
		Currency:        form.Get("Currency"),
		PaymentCurrency: form.Get("PaymentCurrency"),
		InvoiceID:       form.Get("InvoiceId"),
		AccountID:       form.Get("AccountId"),
		Email:           form.Get("Email"),
		Name:            form.Get("Name"),
		Status:          form.Get("Status"),
		OperationType:   form.Get("OperationType"),
		Reason:          form.Get("Reason"),
		CardFirstSix:    form.Get("CardFirstSix"),
		CardLastFour:    form.Get("CardLastFour"),
		CardType:        form.Get("CardType"),
		Token:           form.Get("Token"),
		Data:            form.Get("Data"),
	}

	if k == NotifyRecurrent {
		n.SubscriptionID = form.Get("Id")
		if n.SubscriptionID == "" {
			return nil, fmt.Errorf("%w: missing Id", ErrMalformedNotification)
		}
	} else {
		id, err := strconv.ParseInt(form.Get("TransactionId"), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: TransactionId: %v", ErrMalformedNotification, err)
		}
		n.TransactionID = id
	}

	var err error
	if n.PaymentTransactionID, err = optionalInt64(form.Get("PaymentTransactionId")); err != nil {
		return nil, fmt.Errorf("%w: PaymentTransactionId: %v", ErrMalformedNotification, err)
	}
	if n.Amount, err = optionalDecimal(form.Get("Amount")); err != nil {
		return nil, fmt.Errorf("%w: Amount: %v", ErrMalformedNotification, err)
	}
	if n.PaymentAmount, err = optionalDecimal(form.Get("PaymentAmount")); err != nil {
		return nil, fmt.Errorf("%w: PaymentAmount: %v", ErrMalformedNotification, err)
	}
	if raw := form.Get("ReasonCode"); raw != "" {
		if n.ReasonCode, err = strconv.Atoi(raw); err != nil {
			return nil, fmt.Errorf("%w: ReasonCode: %v", ErrMalformedNotification, err)
		}
	}
	if raw := form.Get("DateTime"); raw != "" {
		if n.DateTime, err = time.ParseInLocation(notificationLayout, raw, time.UTC); err != nil {
			return nil, fmt.Errorf("%w: DateTime: %v", ErrMalformedNotification, err)
		}
	}
	switch form.Get("TestMode") {
	case "1", "true", "True":
		n.TestMode = true
	}
	return n, nil
}

// Transaction returns the notification in the API's transaction shape.
func (n *Notification) Transaction() *Transaction {
	return &Transaction{
		TransactionID:   n.TransactionID,
		Amount:          n.Amount,
		Currency:        n.Currency,
		PaymentAmount:   n.PaymentAmount,
		PaymentCurrency: n.PaymentCurrency,
		InvoiceID:       n.InvoiceID,
		AccountID:       n.AccountID,
		Email:           n.Email,
		Name:            n.Name,
		Status:          n.Status,
		Reason:          n.Reason,
		ReasonCode:      n.ReasonCode,
		CardFirstSix:    n.CardFirstSix,
		CardLastFour:    n.CardLastFour,
		CardType:        n.CardType,
		TestMode:        n.TestMode,
		Token:           n.Token,
		JSONData:        n.Data,
	}
}

func optionalInt64(raw string) (int64, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseInt(raw, 10, 64)
}

func optionalDecimal(raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(raw)
}
