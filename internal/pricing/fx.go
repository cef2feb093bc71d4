package pricing

import "go.uber.org/fx"

var Module = fx.Module("pricing.evaluator",
	fx.Provide(New),
)
