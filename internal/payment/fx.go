package payment

import (
	"github.com/broadbill/broadbill/internal/payment/gateway"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(
		NewProcessor,
		gateway.NewRazorpayClient,
	),
)
