package mix

import "go.uber.org/fx"

// Module provides the level mixer.
var Module = fx.Module("mix",
	fx.Provide(NewMixer),
)
