package telebirr

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/addismart/marketplace-backend/pkg/config"
	pkgerrors "github.com/addismart/marketplace-backend/pkg/errors"
	"github.com/addismart/marketplace-backend/pkg/logger"
)

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	logg := logger.New(logger.Options{ServiceName: "test", Level: zerolog.Disabled})
	client, err := NewClient(context.Background(), config.TelebirrConfig{
		BaseURL:    baseURL,
		AppID:      "app-123",
		AppSecret:  "shhh",
		NotifyURL:  "https://api.example.com/webhooks/payments",
		HTTPTimout: 2 * time.Second,
	}, logg)
	require.NoError(t, err)
	return client
}

func TestCreateOrderSignsAndParses(t *testing.T) {
	var received map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, preOrderPath, r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"code": "0",
			"msg":  "success",
			"data": map[string]string{
				"prepayId": "pp-42",
				"toPayUrl": "https://pay.example.com/pp-42",
			},
		})
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	result, err := client.CreateOrder(context.Background(), CreateOrderParams{
		OutTradeNo:  "tb-order-1",
		AmountCents: 24000,
		Subject:     "order tb-order-1",
	})
	require.NoError(t, err)
	require.Equal(t, "pp-42", result.PrepayID)
	require.Equal(t, "https://pay.example.com/pp-42", result.PayURL)

	require.Equal(t, "app-123", received["appid"])
	require.Equal(t, "tb-order-1", received["outTradeNo"])
	require.NotEmpty(t, received["sign"])

	// the request signs itself with the shared secret
	sig := received["sign"]
	delete(received, "sign")
	require.True(t, client.VerifyNotification(received, sig))
}

func TestQueryOrderReportsStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, queryOrderPath, r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"code": "0",
			"msg":  "success",
			"data": map[string]string{"tradeStatus": "success"},
		})
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	status, err := client.QueryOrder(context.Background(), "tb-order-1")
	require.NoError(t, err)
	require.Equal(t, TradeSuccess, status)
}

func TestGatewayErrorCodeSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"code": "30001",
			"msg":  "insufficient balance",
		})
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	_, err := client.CreateOrder(context.Background(), CreateOrderParams{
		OutTradeNo:  "tb-order-2",
		AmountCents: 100,
	})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
}

func TestHTTPStatusMapsToDomainCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	_, err := client.QueryOrder(context.Background(), "tb-order-3")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))
}

func TestVerifyNotificationRejectsTamper(t *testing.T) {
	client := newTestClient(t, "https://gateway.example.com")
	fields := map[string]string{
		"appid":       "app-123",
		"outTradeNo":  "tb-order-1",
		"tradeStatus": "SUCCESS",
	}
	sig := client.sign(fields)
	require.True(t, client.VerifyNotification(fields, sig))

	fields["tradeStatus"] = "FAILED"
	require.False(t, client.VerifyNotification(fields, sig))
}
