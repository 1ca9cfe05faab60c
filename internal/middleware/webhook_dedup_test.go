package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"cloudpay/internal/middleware"
)

func dedupers(t *testing.T) map[string]middleware.Deduper {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return map[string]middleware.Deduper{
		"redis":  middleware.NewRedisDeduper(client, time.Minute),
		"memory": middleware.NewMemoryDeduper(time.Minute),
	}
}

func TestDeduperSeenAndForget(t *testing.T) {
	for name, d := range dedupers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			dup, err := d.Seen(ctx, "pay:1:abc")
			require.NoError(t, err)
			require.False(t, dup)

			dup, err = d.Seen(ctx, "pay:1:abc")
			require.NoError(t, err)
			require.True(t, dup)

			dup, err = d.Seen(ctx, "pay:2:abc")
			require.NoError(t, err)
			require.False(t, dup)

			require.NoError(t, d.Forget(ctx, "pay:1:abc"))
			dup, err = d.Seen(ctx, "pay:1:abc")
			require.NoError(t, err)
			require.False(t, dup)
		})
	}
}

func TestRedisDeduperExpires(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	d := middleware.NewRedisDeduper(client, time.Minute)
	ctx := context.Background()

	_, err := d.Seen(ctx, "k")
	require.NoError(t, err)
	mr.FastForward(2 * time.Minute)

	dup, err := d.Seen(ctx, "k")
	require.NoError(t, err)
	require.False(t, dup)
}

func TestNewDeduperFallsBackToMemory(t *testing.T) {
	d, err := middleware.NewDeduper("", "", 0, time.Minute)
	require.NoError(t, err)
	require.NotNil(t, d)

	d, err = middleware.NewDeduper("127.0.0.1:1", "", 0, time.Minute)
	require.Error(t, err)
	require.NotNil(t, d)
	dup, err := d.Seen(context.Background(), "x")
	require.NoError(t, err)
	require.False(t, dup)
}

func TestNotificationKey(t *testing.T) {
	a := middleware.NotificationKey("pay", []byte("TransactionId=7&Amount=1"))
	b := middleware.NotificationKey("pay", []byte("TransactionId=7&Amount=2"))
	c := middleware.NotificationKey("fail", []byte("TransactionId=7&Amount=1"))

	require.True(t, strings.HasPrefix(a, "pay:7:"))
	require.NotEqual(t, a, b)
	require.NotEqual(t, a, c)
	require.Equal(t, a, middleware.NotificationKey("pay", []byte("TransactionId=7&Amount=1")))
}

func TestNotificationDedup(t *testing.T) {
	e := echo.New()
	calls := 0
	status := http.StatusOK
	handler := func(c echo.Context) error {
		calls++
		return c.JSON(status, map[string]int{"code": 0})
	}
	chain := middleware.SignedNotification(func(*http.Request, []byte) bool { return true })(
		middleware.NotificationDedup(middleware.NewMemoryDeduper(time.Minute), zap.NewNop())(handler),
	)

	serve := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/cloudpayments/pay", strings.NewReader(body))
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetParamNames("kind")
		c.SetParamValues("pay")
		require.NoError(t, chain(c))
		return rec
	}

	rec := serve("TransactionId=1")
	require.Equal(t, http.StatusOK, rec.Code)
	rec = serve("TransactionId=1")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"code":0}`, rec.Body.String())
	require.Equal(t, 1, calls, "duplicate must not reach handler")

	status = http.StatusInternalServerError
	serve("TransactionId=2")
	status = http.StatusOK
	serve("TransactionId=2")
	require.Equal(t, 3, calls, "failed delivery is released for retry")
}

func TestNotificationDedupSkipsCheck(t *testing.T) {
	e := echo.New()
	calls := 0
	handler := func(c echo.Context) error {
		calls++
		return c.JSON(http.StatusOK, map[string]int{"code": 13})
	}
	chain := middleware.SignedNotification(func(*http.Request, []byte) bool { return true })(
		middleware.NotificationDedup(middleware.NewMemoryDeduper(time.Minute), zap.NewNop())(handler),
	)

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/cloudpayments/check", strings.NewReader("TransactionId=5&Amount=1"))
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetParamNames("kind")
		c.SetParamValues("check")
		require.NoError(t, chain(c))
		require.JSONEq(t, `{"code":13}`, rec.Body.String())
	}
	require.Equal(t, 2, calls)
}
