package notifications

import (
	"go.uber.org/fx"

	"github.com/fabworks-io/fabworks/internal/jobs"
)

var Module = fx.Module("notifications",
	fx.Provide(
		NewTemplateService,
		NewSender,
		jobs.AsProcessor(NewProcessor),
	),
)
