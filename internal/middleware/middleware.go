package middleware

import (
	"bytes"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// RawBodyKey is the echo context key holding the verified request body.
const RawBodyKey = "raw_body"

// RawBody returns the body stored by SignedNotification.
func RawBody(c echo.Context) []byte {
	body, _ := c.Get(RawBodyKey).([]byte)
	return body
}

// RequestLogger logs each request with its status and latency.
func RequestLogger(logger *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			req := c.Request()
			fields := []zap.Field{
				zap.String("method", req.Method),
				zap.String("path", c.Path()),
				zap.Int("status", c.Response().Status),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", c.RealIP()),
			}
			if err != nil {
				logger.Warn("Request failed", append(fields, zap.Error(err))...)
				return nil
			}
			logger.Info("Request", fields...)
			return nil
		}
	}
}

// SignedNotification reads the body, checks it with verify and rejects
// unsigned requests with 401. The body is restored and kept under RawBodyKey.
func SignedNotification(verify func(r *http.Request, body []byte) bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			var body []byte
			if req.Body != nil {
				raw, err := io.ReadAll(req.Body)
				if err != nil {
					return echo.NewHTTPError(http.StatusBadRequest, "unreadable body")
				}
				body = raw
				req.Body = io.NopCloser(bytes.NewReader(raw))
			}

			if !verify(req, body) {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid signature")
			}

			c.Set(RawBodyKey, body)
			return next(c)
		}
	}
}

// ParseNetworks parses IPs and CIDRs, skipping blanks and invalid entries.
// A bare IP becomes a single-host network.
func ParseNetworks(list []string) []*net.IPNet {
	var nets []*net.IPNet
	for _, raw := range list {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if !strings.Contains(raw, "/") {
			if strings.Contains(raw, ":") {
				raw += "/128"
			} else {
				raw += "/32"
			}
		}
		if _, n, err := net.ParseCIDR(raw); err == nil {
			nets = append(nets, n)
		}
	}
	return nets
}

// SourceIPAllowlist rejects requests whose client IP is outside cidrs.
// An empty list allows everything. The client IP comes from the echo
// instance's IPExtractor.
func SourceIPAllowlist(cidrs []string) echo.MiddlewareFunc {
	nets := ParseNetworks(cidrs)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if len(nets) == 0 {
				return next(c)
			}
			ip := net.ParseIP(c.RealIP())
			if ip != nil {
				if ip.IsLoopback() {
					return next(c)
				}
				for _, n := range nets {
					if n.Contains(ip) {
						return next(c)
					}
				}
			}
			return c.String(http.StatusForbidden, "Forbidden")
		}
	}
}
