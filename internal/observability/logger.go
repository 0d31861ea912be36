package observability

import (
	"github.com/rs/zerolog"
)

// ComponentLogger derives a child of base tagged with the component and,
// when set, the node name.
func ComponentLogger(base zerolog.Logger, component, node string) zerolog.Logger {
	ctx := base.With().Str("component", component)
	if node != "" {
		ctx = ctx.Str("node", node)
	}
	return ctx.Logger()
}
