package payment

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"cloudpay/internal/pkg/httpclient"
)

const (
	// requestIDHeader makes a call idempotent on the provider side.
	requestIDHeader = "X-Request-ID"
	userAgent       = "cloudpay-go"
)

// httpTransport posts form data with basic auth over the shared HTTP client.
type httpTransport struct {
	client *httpclient.Client
}

func newHTTPTransport(cfg Config) *httpTransport {
	return &httpTransport{
		client: httpclient.New().
			WithTimeout(cfg.Timeout).
			WithBaseURL(cfg.BaseURL).
			WithBasicAuth(cfg.PublicKey, cfg.PrivateKey).
			WithHeader("User-Agent", userAgent),
	}
}

func (t *httpTransport) Post(ctx context.Context, endpoint string, fields map[string]string) ([]byte, error) {
	body, status, err := t.client.PostForm(ctx, endpoint, fields, map[string]string{
		requestIDHeader: uuid.NewString(),
	})
	if err != nil {
		return nil, err
	}
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return body, fmt.Errorf("payment api rejected credentials: status %d", status)
	}
	return body, nil
}
