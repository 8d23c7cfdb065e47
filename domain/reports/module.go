package reports

import (
	"go.uber.org/fx"

	"github.com/fabworks-io/fabworks/internal/jobs"
)

var Module = fx.Module("reports",
	fx.Provide(
		fx.Annotate(NewMemoryLoader, fx.As(new(Loader))),
		fx.Annotate(NewMemoryUploader, fx.As(new(Uploader))),
		fx.Annotate(NewMemoryMetadataStore, fx.As(new(MetadataStore))),
		jobs.AsProcessor(NewProcessor),
	),
)
