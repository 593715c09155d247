package codec

import "go.uber.org/fx"

// Module provides the file codecs.
var Module = fx.Module("codec",
	fx.Provide(NewRegistry),
)
