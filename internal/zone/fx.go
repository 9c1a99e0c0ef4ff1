package zone

import "go.uber.org/fx"

var Module = fx.Module("zone.service",
	fx.Provide(NewService),
)
