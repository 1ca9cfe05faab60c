package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
)

// SignatureHeader carries base64(HMAC-SHA256(privateKey, payload)) on every
// notification the provider sends.
const SignatureHeader = "Content-HMAC"

// Sign returns the signature the provider would send for payload.
func Sign(payload []byte, privateKey string) string {
	mac := hmac.New(sha256.New, []byte(privateKey))
	mac.Write(payload)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// VerifySignature reports whether signature matches payload. An empty key
// or signature never matches.
func VerifySignature(payload []byte, privateKey, signature string) bool {
	if privateKey == "" || signature == "" {
		return false
	}
	expected := Sign(payload, privateKey)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// VerifyRequest checks a notification. POST requests are signed over the
// raw body, GET requests over the raw query string. Anything else fails.
func VerifyRequest(method string, body []byte, rawQuery, privateKey, signature string) bool {
	switch method {
	case http.MethodPost:
		return VerifySignature(body, privateKey, signature)
	case http.MethodGet:
		if len(body) > 0 {
			return false
		}
		return VerifySignature([]byte(rawQuery), privateKey, signature)
	default:
		return false
	}
}

// VerifyNotification checks an inbound notification against the client's
// private key. body must be the raw request body, already read by the caller.
func (c *Client) VerifyNotification(r *http.Request, body []byte) bool {
	if r == nil {
		return false
	}
	return VerifyRequest(r.Method, body, r.URL.RawQuery, c.cfg.PrivateKey, r.Header.Get(SignatureHeader))
}
