package payment_test

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"cloudpay/internal/payment"
)

func decode(t *testing.T, body string) *payment.Response {
	t.Helper()
	resp, err := payment.DecodeResponse([]byte(body))
	require.NoError(t, err)
	return resp
}

func TestClassifyCharge(t *testing.T) {
	t.Run("success builds transaction from model", func(t *testing.T) {
		resp := decode(t, `{"Success":true,"Model":{"TransactionId":42,"Amount":10.0,"Currency":"USD","ReasonCode":0}}`)

		out := payment.Classify(payment.ProtocolCharge, resp)

		require.Equal(t, payment.OutcomeTransaction, out.Kind)
		require.NoError(t, out.Err)
		require.Nil(t, out.Challenge)
		require.NotNil(t, out.Transaction)
		require.Equal(t, int64(42), out.Transaction.TransactionID)
		require.True(t, decimal.NewFromInt(10).Equal(out.Transaction.Amount))
		require.Equal(t, "USD", out.Transaction.Currency)
	})

	t.Run("message wins over reason code", func(t *testing.T) {
		resp := decode(t, `{"Success":false,"Message":"Invalid amount","Model":{"ReasonCode":5051}}`)

		out := payment.Classify(payment.ProtocolCharge, resp)

		require.Equal(t, payment.OutcomeError, out.Kind)
		var reqErr *payment.RequestError
		require.ErrorAs(t, out.Err, &reqErr)
		require.Equal(t, "Invalid amount", reqErr.Response.Message)
		var declined *payment.PaymentDeclinedError
		require.False(t, errors.As(out.Err, &declined))
	})

	t.Run("non-zero reason code declines", func(t *testing.T) {
		resp := decode(t, `{"Success":false,"Message":"","Model":{"ReasonCode":5051,"Reason":"InsufficientFunds","TransactionId":7,"CardHolderMessage":"Not enough money"}}`)

		out := payment.Classify(payment.ProtocolCharge, resp)

		require.Equal(t, payment.OutcomeError, out.Kind)
		var declined *payment.PaymentDeclinedError
		require.ErrorAs(t, out.Err, &declined)
		require.Equal(t, 5051, declined.ReasonCode)
		require.Equal(t, "InsufficientFunds", declined.Reason)
		require.Equal(t, int64(7), declined.TransactionID)
		require.Equal(t, "Not enough money", declined.CardHolderMessage)
		require.Contains(t, declined.Error(), "5051")
	})

	t.Run("zero reason code is a challenge", func(t *testing.T) {
		resp := decode(t, `{"Success":false,"Message":"","Model":{"TransactionId":504,"ReasonCode":0,"AcsUrl":"https://acs.example/3ds","PaReq":"eJxVUdtu"}}`)

		out := payment.Classify(payment.ProtocolCharge, resp)

		require.Equal(t, payment.OutcomeChallenge, out.Kind)
		require.NoError(t, out.Err)
		require.Nil(t, out.Transaction)
		require.Equal(t, &payment.Challenge{TransactionID: 504, PaReq: "eJxVUdtu", AcsURL: "https://acs.example/3ds"}, out.Challenge)
	})

	t.Run("absent reason code and null message is a challenge", func(t *testing.T) {
		resp := decode(t, `{"Success":false,"Message":null,"Model":{"TransactionId":1,"AcsUrl":"https://acs","PaReq":"x"}}`)

		out := payment.Classify(payment.ProtocolCharge, resp)

		require.Equal(t, payment.OutcomeChallenge, out.Kind)
	})

	t.Run("empty response is a request error", func(t *testing.T) {
		resp, err := payment.DecodeResponse(nil)
		require.ErrorIs(t, err, payment.ErrEmptyResponse)

		out := payment.Classify(payment.ProtocolCharge, resp)

		require.Equal(t, payment.OutcomeError, out.Kind)
		var reqErr *payment.RequestError
		require.ErrorAs(t, out.Err, &reqErr)
		require.ErrorIs(t, out.Err, payment.ErrEmptyResponse)
	})

	t.Run("success without model is a request error", func(t *testing.T) {
		out := payment.Classify(payment.ProtocolCharge, decode(t, `{"Success":true,"Model":null}`))

		require.Equal(t, payment.OutcomeError, out.Kind)
		require.ErrorIs(t, out.Err, payment.ErrMissingModel)
	})
}

func TestClassifyPost3DS(t *testing.T) {
	cases := []struct {
		name string
		body string
		kind payment.OutcomeKind
	}{
		{"accepted", `{"Success":true,"Message":null,"Model":{"TransactionId":9,"ReasonCode":0,"Status":"Completed"}}`, payment.OutcomeTransaction},
		{"accepted without success flag", `{"Success":false,"Message":null,"Model":{"TransactionId":9,"ReasonCode":0}}`, payment.OutcomeTransaction},
		{"message", `{"Success":false,"Message":"Bad PaRes","Model":null}`, payment.OutcomeError},
		{"declined", `{"Success":false,"Message":null,"Model":{"TransactionId":9,"ReasonCode":5057}}`, payment.OutcomeError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out := payment.Classify(payment.ProtocolPost3DS, decode(t, tc.body))
			require.Equal(t, tc.kind, out.Kind)
			require.Nil(t, out.Challenge)
		})
	}
}

func TestClassifyStatusAndLookup(t *testing.T) {
	t.Run("status success without model", func(t *testing.T) {
		out := payment.Classify(payment.ProtocolStatus, decode(t, `{"Success":true,"Message":null}`))
		require.Equal(t, payment.OutcomeTransaction, out.Kind)
		require.NoError(t, out.Err)
		require.Nil(t, out.Transaction)
	})

	t.Run("status failure ignores missing model", func(t *testing.T) {
		out := payment.Classify(payment.ProtocolStatus, decode(t, `{"Success":false,"Message":null}`))
		require.Equal(t, payment.OutcomeError, out.Kind)
		var reqErr *payment.RequestError
		require.ErrorAs(t, out.Err, &reqErr)
	})

	t.Run("status failure with reason code is still a request error", func(t *testing.T) {
		out := payment.Classify(payment.ProtocolStatus, decode(t, `{"Success":false,"Model":{"ReasonCode":5051}}`))
		var reqErr *payment.RequestError
		require.ErrorAs(t, out.Err, &reqErr)
	})

	t.Run("status success ignores undecodable model", func(t *testing.T) {
		out := payment.Classify(payment.ProtocolStatus, decode(t, `{"Success":true,"Model":{"TransactionId":"abc"}}`))
		require.Equal(t, payment.OutcomeTransaction, out.Kind)
		require.NoError(t, out.Err)
		require.Nil(t, out.Transaction)
	})

	t.Run("status success keeps a decodable model", func(t *testing.T) {
		out := payment.Classify(payment.ProtocolStatus, decode(t, `{"Success":true,"Model":{"TransactionId":3}}`))
		require.NoError(t, out.Err)
		require.Equal(t, int64(3), out.Transaction.TransactionID)
	})

	t.Run("lookup parses model", func(t *testing.T) {
		out := payment.Classify(payment.ProtocolLookup, decode(t, `{"Success":true,"Model":{"TransactionId":5,"InvoiceId":"INV-1","Status":"Completed","CreatedDateIso":"2014-08-09T11:49:41"}}`))
		require.Equal(t, payment.OutcomeTransaction, out.Kind)
		require.Equal(t, "INV-1", out.Transaction.InvoiceID)
		require.Equal(t, 2014, out.Transaction.CreatedAt().Year())
	})

	t.Run("lookup requires model", func(t *testing.T) {
		out := payment.Classify(payment.ProtocolLookup, decode(t, `{"Success":true}`))
		require.ErrorIs(t, out.Err, payment.ErrMissingModel)
	})
}

func TestClassifyIsPure(t *testing.T) {
	bodies := []string{
		`{"Success":true,"Model":{"TransactionId":42,"Amount":10.0,"Currency":"USD","ReasonCode":0}}`,
		`{"Success":false,"Message":"","Model":{"ReasonCode":5051}}`,
		`{"Success":false,"Message":"","Model":{"ReasonCode":0,"AcsUrl":"https://acs","PaReq":"p"}}`,
		`{"Success":false,"Message":"oops"}`,
	}
	for _, body := range bodies {
		resp := decode(t, body)
		first := payment.Classify(payment.ProtocolCharge, resp)
		second := payment.Classify(payment.ProtocolCharge, resp)
		require.Equal(t, first, second, body)
	}
}

func TestClassifyMalformedModel(t *testing.T) {
	out := payment.Classify(payment.ProtocolCharge, decode(t, `{"Success":true,"Model":{"TransactionId":"not-a-number"}}`))
	require.Equal(t, payment.OutcomeError, out.Kind)
	var reqErr *payment.RequestError
	require.ErrorAs(t, out.Err, &reqErr)
}

func TestDecodeResponseGarbage(t *testing.T) {
	resp, err := payment.DecodeResponse([]byte("<html>502</html>"))
	require.Error(t, err)
	require.NotNil(t, resp)
	require.False(t, resp.Success)

	out := payment.Classify(payment.ProtocolStatus, resp)
	var reqErr *payment.RequestError
	require.ErrorAs(t, out.Err, &reqErr)
	require.Error(t, reqErr.Cause)
}
