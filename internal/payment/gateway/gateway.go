package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

var (
	ErrOrderFailed        = errors.New("gateway_order_failed")
	ErrMissingCredentials = errors.New("gateway_credentials_missing")
)

// Order is a gateway-side payment order awaiting checkout.
type Order struct {
	ID          string `json:"id"`
	AmountMinor int64  `json:"amount"`
	Currency    string `json:"currency"`
	Receipt     string `json:"receipt"`
	Status      string `json:"status"`
}

// CreateOrderRequest opens an order for an invoice. AmountMinor is in
// the currency's smallest unit.
type CreateOrderRequest struct {
	AmountMinor int64
	Currency    string
	Receipt     string
	Notes       map[string]string
}

// Client talks to the payment gateway.
type Client interface {
	CreateOrder(ctx context.Context, req CreateOrderRequest) (Order, error)
}

// VerifySignature checks the checkout callback signature: an
// HMAC-SHA256 of "orderID|paymentID" keyed with the API secret,
// hex encoded. The comparison is constant time.
func VerifySignature(secret, orderID, paymentID, signature string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(orderID + "|" + paymentID))
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
