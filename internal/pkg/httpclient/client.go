package httpclient

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// Client wraps resty for requests to the payment API.
type Client struct {
	r *resty.Client
}

// New creates a new HTTP client with sensible defaults.
// Retries are disabled; callers that want them wrap the client.
func New() *Client {
	r := resty.New().
		SetTimeout(20 * time.Second).
		SetRetryCount(0)

	return &Client{r: r}
}

// WithTimeout sets a custom timeout.
func (c *Client) WithTimeout(d time.Duration) *Client {
	c.r.SetTimeout(d)
	return c
}

// WithBaseURL sets the host every relative path is resolved against.
func (c *Client) WithBaseURL(url string) *Client {
	c.r.SetBaseURL(url)
	return c
}

// WithBasicAuth sets HTTP basic credentials for every request.
func (c *Client) WithBasicAuth(username, password string) *Client {
	c.r.SetBasicAuth(username, password)
	return c
}

// WithHeader sets a custom header.
func (c *Client) WithHeader(key, value string) *Client {
	c.r.SetHeader(key, value)
	return c
}

// PostForm sends a form-encoded POST and returns the response body.
// A non-2xx status still returns the body; the payment API reports
// failures in the JSON payload.
func (c *Client) PostForm(ctx context.Context, path string, data map[string]string, headers map[string]string) ([]byte, int, error) {
	req := c.r.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		SetFormData(data)
	if len(headers) > 0 {
		req.SetHeaders(headers)
	}
	resp, err := req.Post(path)
	if err != nil {
		return nil, 0, fmt.Errorf("post %s: %w", path, err)
	}
	return resp.Body(), resp.StatusCode(), nil
}
