// Package api is the http server clients use to register resources, upload archives of them,
// and poll the processing of those archives.
package api

import (
	"go.uber.org/fx"
)

var Module = fx.Module("api",
	fx.Provide(
		NewServer,
	),
)
