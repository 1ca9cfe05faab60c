package payment

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Response is the decoded envelope every API endpoint returns.
type Response struct {
	Success bool            `json:"Success"`
	Message string          `json:"Message"`
	Model   json.RawMessage `json:"Model"`

	// Raw is the body as received, kept for diagnostics.
	Raw []byte `json:"-"`

	cause error
}

// DecodeResponse parses a response body. On failure it still returns a
// usable empty Response carrying the error, which classifies as a
// RequestError.
func DecodeResponse(body []byte) (*Response, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return &Response{cause: ErrEmptyResponse}, ErrEmptyResponse
	}
	var resp Response
	if err := json.Unmarshal(body, &resp); err != nil {
		err = fmt.Errorf("payment: decode response: %w", err)
		return &Response{Raw: body, cause: err}, err
	}
	resp.Raw = body
	return &resp, nil
}

func (r *Response) hasModel() bool {
	m := bytes.TrimSpace(r.Model)
	return len(m) > 0 && !bytes.Equal(m, []byte("null"))
}

func (r *Response) decodeModel(v any) error {
	if !r.hasModel() {
		return ErrMissingModel
	}
	return json.Unmarshal(r.Model, v)
}

// reasonCode reports Model.ReasonCode and whether it was present.
func (r *Response) reasonCode() (int, bool) {
	var probe struct {
		ReasonCode *int `json:"ReasonCode"`
	}
	if err := r.decodeModel(&probe); err != nil || probe.ReasonCode == nil {
		return 0, false
	}
	return *probe.ReasonCode, true
}

// Protocol selects how a response is interpreted.
type Protocol int

const (
	// ProtocolCharge covers card and token charges and authorizations.
	ProtocolCharge Protocol = iota + 1
	// ProtocolPost3DS covers completion of a 3-D Secure challenge.
	ProtocolPost3DS
	// ProtocolStatus covers operations that only report success.
	ProtocolStatus
	// ProtocolLookup is ProtocolStatus plus a required transaction model.
	ProtocolLookup
)

// Classify turns a response into exactly one outcome. It does no I/O and
// gives the same result for the same input.
func Classify(p Protocol, resp *Response) Outcome {
	if resp == nil {
		resp = &Response{cause: ErrEmptyResponse}
	}

	switch p {
	case ProtocolCharge:
		if resp.Success {
			return transactionOutcome(resp, true)
		}
		if resp.Message != "" {
			return errorOutcome(newRequestError(resp, nil))
		}
		if code, ok := resp.reasonCode(); ok && code != 0 {
			return errorOutcome(newDeclinedError(resp, code))
		}
		return challengeOutcome(resp)

	case ProtocolPost3DS:
		if resp.Message != "" {
			return errorOutcome(newRequestError(resp, nil))
		}
		if code, ok := resp.reasonCode(); ok && code != 0 {
			return errorOutcome(newDeclinedError(resp, code))
		}
		return transactionOutcome(resp, true)

	case ProtocolStatus:
		if !resp.Success {
			return errorOutcome(newRequestError(resp, nil))
		}
		return statusOutcome(resp)

	case ProtocolLookup:
		if !resp.Success {
			return errorOutcome(newRequestError(resp, nil))
		}
		return transactionOutcome(resp, true)

	default:
		return errorOutcome(newRequestError(resp, fmt.Errorf("payment: unknown protocol %d", p)))
	}
}

func transactionOutcome(resp *Response, required bool) Outcome {
	if !resp.hasModel() {
		if required {
			return errorOutcome(newRequestError(resp, missingModelCause(resp)))
		}
		return Outcome{Kind: OutcomeTransaction}
	}
	var tx Transaction
	if err := json.Unmarshal(resp.Model, &tx); err != nil {
		return errorOutcome(newRequestError(resp, fmt.Errorf("payment: decode transaction: %w", err)))
	}
	return Outcome{Kind: OutcomeTransaction, Transaction: &tx}
}

// statusOutcome trusts Success alone. A Model that does not decode as a
// transaction is ignored.
func statusOutcome(resp *Response) Outcome {
	var tx Transaction
	if resp.decodeModel(&tx) != nil {
		return Outcome{Kind: OutcomeTransaction}
	}
	return Outcome{Kind: OutcomeTransaction, Transaction: &tx}
}

func challengeOutcome(resp *Response) Outcome {
	if !resp.hasModel() {
		return errorOutcome(newRequestError(resp, missingModelCause(resp)))
	}
	var ch Challenge
	if err := json.Unmarshal(resp.Model, &ch); err != nil {
		return errorOutcome(newRequestError(resp, fmt.Errorf("payment: decode challenge: %w", err)))
	}
	return Outcome{Kind: OutcomeChallenge, Challenge: &ch}
}

func errorOutcome(err error) Outcome {
	return Outcome{Kind: OutcomeError, Err: err}
}

// A transport or decode failure explains a missing model better than the
// generic sentinel.
func missingModelCause(resp *Response) error {
	if resp.cause != nil {
		return resp.cause
	}
	return ErrMissingModel
}
