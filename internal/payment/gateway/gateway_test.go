package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/broadbill/broadbill/internal/config"
	"go.uber.org/zap"
)

func TestVerifySignature(t *testing.T) {
	secret := "shhh"
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte("order_9|pay_9"))
	valid := hex.EncodeToString(mac.Sum(nil))

	if !VerifySignature(secret, "order_9", "pay_9", valid) {
		t.Fatal("valid signature rejected")
	}
	if VerifySignature(secret, "order_9", "pay_9", valid[:len(valid)-1]+"0") {
		t.Fatal("tampered signature accepted")
	}
	if VerifySignature(secret, "order_9", "pay_other", valid) {
		t.Fatal("signature accepted for a different payment")
	}
	if VerifySignature("wrong", "order_9", "pay_9", valid) {
		t.Fatal("signature accepted under a different secret")
	}
}

func TestRazorpayClientCreateOrder(t *testing.T) {
	var gotAuthOK bool
	var gotBody orderRequestBody

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		gotAuthOK = ok && user == "key_id" && pass == "key_secret"
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode body: %v", err)
		}
		json.NewEncoder(w).Encode(Order{
			ID:          "order_srv_1",
			AmountMinor: gotBody.Amount,
			Currency:    gotBody.Currency,
			Receipt:     gotBody.Receipt,
			Status:      "created",
		})
	}))
	defer srv.Close()

	client := NewRazorpayClient(RazorpayParams{
		Config: config.Config{Gateway: config.GatewayConfig{
			BaseURL:   srv.URL,
			KeyID:     "key_id",
			KeySecret: "key_secret",
			Currency:  "INR",
		}},
		Log: zap.NewNop(),
	})

	order, err := client.CreateOrder(context.Background(), CreateOrderRequest{
		AmountMinor: 50000,
		Currency:    "INR",
		Receipt:     "inv-1",
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if !gotAuthOK {
		t.Fatal("basic auth credentials not sent")
	}
	if gotBody.Amount != 50000 || gotBody.Receipt != "inv-1" {
		t.Fatalf("request body = %+v", gotBody)
	}
	if order.ID != "order_srv_1" {
		t.Fatalf("order id = %q", order.ID)
	}
}

func TestRazorpayClientRequiresCredentials(t *testing.T) {
	client := NewRazorpayClient(RazorpayParams{
		Config: config.Config{},
		Log:    zap.NewNop(),
	})
	if _, err := client.CreateOrder(context.Background(), CreateOrderRequest{AmountMinor: 1}); err != ErrMissingCredentials {
		t.Fatalf("err = %v, want ErrMissingCredentials", err)
	}
}
