package paymentmethod

import "go.uber.org/fx"

var Module = fx.Module("paymentmethod.service",
	fx.Provide(NewService),
)
