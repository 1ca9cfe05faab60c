package router

import (
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"cloudpay/internal/handler"
	"cloudpay/internal/middleware"
)

// Deps bundles what the routes need.
type Deps struct {
	Callbacks *handler.PaymentCallbackHandler
	Deduper   middleware.Deduper
	Allowlist []string
	// TrustedProxies may set X-Forwarded-For. Empty means the client IP
	// is always the TCP peer.
	TrustedProxies []string
	Gatherer       prometheus.Gatherer
	Logger         *zap.Logger
}

// Setup configures all routes for the Echo server.
func Setup(e *echo.Echo, d Deps) {
	e.IPExtractor = ipExtractor(d.TrustedProxies)

	// Global middleware
	e.Use(echomw.Recover())
	e.Use(middleware.RequestLogger(d.Logger))

	// Provider notifications: kind check, source IP, signature, then dedup.
	webhooks := e.Group("/webhooks/cloudpayments")
	webhooks.Use(middleware.SourceIPAllowlist(d.Allowlist))
	webhooks.POST("/:kind", d.Callbacks.Handle,
		d.Callbacks.RequireKnownKind,
		middleware.SignedNotification(d.Callbacks.Verify),
		middleware.NotificationDedup(d.Deduper, d.Logger),
	)

	gatherer := d.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	// Health check
	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
}

func ipExtractor(proxies []string) echo.IPExtractor {
	nets := middleware.ParseNetworks(proxies)
	if len(nets) == 0 {
		return echo.ExtractIPDirect()
	}
	opts := []echo.TrustOption{
		echo.TrustLoopback(false),
		echo.TrustLinkLocal(false),
		echo.TrustPrivateNet(false),
	}
	for _, n := range nets {
		opts = append(opts, echo.TrustIPRange(n))
	}
	return echo.ExtractIPFromXFFHeader(opts...)
}
