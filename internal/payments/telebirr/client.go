package telebirr

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/addismart/marketplace-backend/pkg/config"
	pkgerrors "github.com/addismart/marketplace-backend/pkg/errors"
	"github.com/addismart/marketplace-backend/pkg/logger"
)

const (
	preOrderPath   = "/payment/v1/merchant/preOrder"
	queryOrderPath = "/payment/v1/merchant/queryOrder"

	successCode = "0"
)

// TradeStatus is the gateway-reported state of a charge.
type TradeStatus string

const (
	TradePending TradeStatus = "PENDING"
	TradeSuccess TradeStatus = "SUCCESS"
	TradeFailed  TradeStatus = "FAILED"
	TradeExpired TradeStatus = "EXPIRED"
)

var (
	errBaseURLRequired   = errors.New("telebirr base url is required")
	errAppIDRequired     = errors.New("telebirr app id is required")
	errAppSecretRequired = errors.New("telebirr app secret is required")
	errLoggerRequired    = errors.New("telebirr logger is required")
)

// Client talks to the mobile-money gateway with centralized signing, logging,
// and error mapping.
type Client struct {
	httpClient *http.Client
	baseURL    string
	appID      string
	appSecret  string
	notifyURL  string
	returnURL  string
	logger     *logger.Logger
}

// NewClient validates the credentials and builds the gateway client.
func NewClient(ctx context.Context, cfg config.TelebirrConfig, logg *logger.Logger) (*Client, error) {
	if logg == nil {
		return nil, errLoggerRequired
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errBaseURLRequired
	}
	appID := strings.TrimSpace(cfg.AppID)
	if appID == "" {
		return nil, errAppIDRequired
	}
	appSecret := strings.TrimSpace(cfg.AppSecret)
	if appSecret == "" {
		return nil, errAppSecretRequired
	}

	timeout := cfg.HTTPTimout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	c := &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		appID:      appID,
		appSecret:  appSecret,
		notifyURL:  strings.TrimSpace(cfg.NotifyURL),
		returnURL:  strings.TrimSpace(cfg.ReturnURL),
		logger:     logg,
	}

	logg.Info(ctx, "telebirr client initialized")
	return c, nil
}

// CreateOrderParams describes a charge to open at the gateway.
type CreateOrderParams struct {
	OutTradeNo  string
	AmountCents int
	Subject     string
}

// CreateOrderResult carries the gateway handle for an opened charge.
type CreateOrderResult struct {
	PrepayID string
	PayURL   string
}

type apiResponse struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// CreateOrder opens a charge and returns the redirect handle the buyer
// completes payment through.
func (c *Client) CreateOrder(ctx context.Context, params CreateOrderParams) (*CreateOrderResult, error) {
	if strings.TrimSpace(params.OutTradeNo) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "out trade number is required")
	}
	if params.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}

	fields := map[string]string{
		"appid":       c.appID,
		"nonce":       uuid.NewString(),
		"timestamp":   strconv.FormatInt(time.Now().Unix(), 10),
		"outTradeNo":  params.OutTradeNo,
		"totalAmount": strconv.Itoa(params.AmountCents),
		"subject":     params.Subject,
		"notifyUrl":   c.notifyURL,
		"returnUrl":   c.returnURL,
	}
	c.log(ctx, "request", "create_order", map[string]any{
		"out_trade_no": params.OutTradeNo,
		"amount":       params.AmountCents,
	})

	var data struct {
		PrepayID string `json:"prepayId"`
		ToPayURL string `json:"toPayUrl"`
	}
	if err := c.post(ctx, preOrderPath, fields, &data); err != nil {
		c.log(ctx, "error", "create_order", map[string]any{"error": err.Error()})
		return nil, err
	}

	c.log(ctx, "response", "create_order", map[string]any{"prepay_id": data.PrepayID})
	return &CreateOrderResult{PrepayID: data.PrepayID, PayURL: data.ToPayURL}, nil
}

// QueryOrder reports the gateway-side state of a previously opened charge.
func (c *Client) QueryOrder(ctx context.Context, outTradeNo string) (TradeStatus, error) {
	if strings.TrimSpace(outTradeNo) == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "out trade number is required")
	}

	fields := map[string]string{
		"appid":      c.appID,
		"nonce":      uuid.NewString(),
		"timestamp":  strconv.FormatInt(time.Now().Unix(), 10),
		"outTradeNo": outTradeNo,
	}
	c.log(ctx, "request", "query_order", map[string]any{"out_trade_no": outTradeNo})

	var data struct {
		TradeStatus string `json:"tradeStatus"`
	}
	if err := c.post(ctx, queryOrderPath, fields, &data); err != nil {
		c.log(ctx, "error", "query_order", map[string]any{"error": err.Error()})
		return "", err
	}

	status := TradeStatus(strings.ToUpper(strings.TrimSpace(data.TradeStatus)))
	c.log(ctx, "response", "query_order", map[string]any{"trade_status": string(status)})
	return status, nil
}

// VerifyNotification checks the HMAC signature on a gateway callback.
func (c *Client) VerifyNotification(fields map[string]string, signature string) bool {
	if c == nil || signature == "" {
		return false
	}
	expected := c.sign(fields)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// sign computes an HMAC-SHA256 over the sorted key=value pairs.
func (c *Client) sign(fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		if k == "sign" || fields[k] == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+fields[k])
	}

	mac := hmac.New(sha256.New, []byte(c.appSecret))
	mac.Write([]byte(strings.Join(pairs, "&")))
	return hex.EncodeToString(mac.Sum(nil))
}

func (c *Client) post(ctx context.Context, path string, fields map[string]string, out any) error {
	fields["sign"] = c.sign(fields)

	body, err := json.Marshal(fields)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode gateway request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build gateway request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "call payment gateway")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read gateway response")
	}
	if resp.StatusCode != http.StatusOK {
		return pkgerrors.New(domainCodeForStatus(resp.StatusCode),
			fmt.Sprintf("gateway returned status %d", resp.StatusCode))
	}

	var envelope apiResponse
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode gateway response")
	}
	if envelope.Code != successCode {
		return pkgerrors.New(pkgerrors.CodeDependency,
			fmt.Sprintf("gateway error %s: %s", envelope.Code, envelope.Msg))
	}
	if out != nil && len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode gateway payload")
		}
	}
	return nil
}

func (c *Client) log(ctx context.Context, phase, op string, fields map[string]any) {
	if c == nil || c.logger == nil {
		return
	}
	logFields := map[string]any{
		"operation": op,
		"phase":     phase,
	}
	for k, v := range fields {
		logFields[k] = c.redact(k, v)
	}
	ctx = c.logger.WithFields(ctx, logFields)
	switch phase {
	case "error":
		c.logger.Error(ctx, fmt.Sprintf("telebirr %s", op), errors.New(fmt.Sprint(fields["error"])))
	default:
		c.logger.Info(ctx, fmt.Sprintf("telebirr %s", phase))
	}
}

func (c *Client) redact(key string, value any) any {
	lower := strings.ToLower(key)
	for _, sensitive := range []string{"secret", "token", "sign", "msisdn", "phone"} {
		if strings.Contains(lower, sensitive) {
			return "[REDACTED]"
		}
	}
	return value
}

func domainCodeForStatus(status int) pkgerrors.Code {
	switch status {
	case http.StatusUnauthorized:
		return pkgerrors.CodeUnauthorized
	case http.StatusForbidden:
		return pkgerrors.CodeForbidden
	case http.StatusNotFound:
		return pkgerrors.CodeNotFound
	case http.StatusConflict:
		return pkgerrors.CodeConflict
	case http.StatusTooManyRequests:
		return pkgerrors.CodeRateLimit
	case http.StatusBadRequest:
		return pkgerrors.CodeValidation
	default:
		if status >= 400 && status < 500 {
			return pkgerrors.CodeValidation
		}
		return pkgerrors.CodeDependency
	}
}
