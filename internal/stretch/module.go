package stretch

import "go.uber.org/fx"

// Module provides the stretch engine.
var Module = fx.Module("stretch",
	fx.Provide(NewEngine),
)
