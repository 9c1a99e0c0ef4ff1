package observability

import (
	"github.com/broadbill/broadbill/internal/observability/logger"
	"github.com/broadbill/broadbill/internal/observability/metrics"
	"github.com/broadbill/broadbill/internal/observability/tracing"
	"go.uber.org/fx"
)

var Module = fx.Module("observability",
	logger.Module,
	fx.Invoke(tracing.NewProvider),
	fx.Provide(metrics.NewHTTPMetrics),
)
