package quotecalc

import (
	"go.uber.org/fx"

	"github.com/fabworks-io/fabworks/internal/jobs"
)

var Module = fx.Module("quotecalc",
	fx.Provide(
		fx.Annotate(NewMemoryRepository, fx.As(new(Repository))),
		jobs.AsProcessor(NewProcessor),
	),
)
