package enhance

import "go.uber.org/fx"

// Module provides the enhancement stage.
var Module = fx.Module("enhance",
	fx.Provide(NewEnhancer),
)
