package payment

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyResponse is the cause when the API returned no body at all.
	ErrEmptyResponse = errors.New("payment: empty response")
	// ErrMissingModel is the cause when a branch needs Model and it is absent.
	ErrMissingModel = errors.New("payment: response has no model")
)

// RequestError means the API reported failure without a decline code, or
// the response could not be read. Cause holds the transport or decode error
// when there was one, so network failures can be told apart with errors.As.
type RequestError struct {
	Response *Response
	Cause    error
}

func (e *RequestError) Error() string {
	msg := "payment: request failed"
	if e.Response != nil && e.Response.Message != "" {
		msg += ": " + e.Response.Message
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *RequestError) Unwrap() error {
	return e.Cause
}

// PaymentDeclinedError means the transaction was declined with a non-zero
// reason code.
type PaymentDeclinedError struct {
	ReasonCode        int
	Reason            string
	CardHolderMessage string
	TransactionID     int64
	Response          *Response
}

func (e *PaymentDeclinedError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("payment: declined with reason code %d (%s)", e.ReasonCode, e.Reason)
	}
	return fmt.Sprintf("payment: declined with reason code %d", e.ReasonCode)
}

func newRequestError(resp *Response, cause error) *RequestError {
	if cause == nil && resp != nil {
		cause = resp.cause
	}
	return &RequestError{Response: resp, Cause: cause}
}

func newDeclinedError(resp *Response, code int) *PaymentDeclinedError {
	e := &PaymentDeclinedError{ReasonCode: code, Response: resp}
	var m struct {
		TransactionID     int64  `json:"TransactionId"`
		Reason            string `json:"Reason"`
		CardHolderMessage string `json:"CardHolderMessage"`
	}
	if resp.decodeModel(&m) == nil {
		e.TransactionID = m.TransactionID
		e.Reason = m.Reason
		e.CardHolderMessage = m.CardHolderMessage
	}
	return e
}
