package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/broadbill/broadbill/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const defaultBaseURL = "https://api.razorpay.com/v1"

// RazorpayClient creates orders over the Razorpay Orders REST API
// using HTTP basic auth with the key pair.
type RazorpayClient struct {
	baseURL   string
	keyID     string
	keySecret string
	http      *http.Client
	log       *zap.Logger
}

type RazorpayParams struct {
	fx.In

	Config config.Config
	Log    *zap.Logger
}

func NewRazorpayClient(p RazorpayParams) Client {
	baseURL := p.Config.Gateway.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &RazorpayClient{
		baseURL:   baseURL,
		keyID:     p.Config.Gateway.KeyID,
		keySecret: p.Config.Gateway.KeySecret,
		http:      &http.Client{Timeout: 15 * time.Second},
		log:       p.Log.Named("payment.gateway"),
	}
}

type orderRequestBody struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Notes    map[string]string `json:"notes,omitempty"`
}

func (c *RazorpayClient) CreateOrder(ctx context.Context, req CreateOrderRequest) (Order, error) {
	if c.keyID == "" || c.keySecret == "" {
		return Order{}, ErrMissingCredentials
	}

	payload, err := json.Marshal(orderRequestBody{
		Amount:   req.AmountMinor,
		Currency: req.Currency,
		Receipt:  req.Receipt,
		Notes:    req.Notes,
	})
	if err != nil {
		return Order{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/orders", bytes.NewReader(payload))
	if err != nil {
		return Order{}, err
	}
	httpReq.SetBasicAuth(c.keyID, c.keySecret)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return Order{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Order{}, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.log.Warn("order creation rejected",
			zap.Int("status", resp.StatusCode),
			zap.String("receipt", req.Receipt))
		return Order{}, fmt.Errorf("%w: http %d", ErrOrderFailed, resp.StatusCode)
	}

	var order Order
	if err := json.Unmarshal(body, &order); err != nil {
		return Order{}, err
	}
	return order, nil
}
