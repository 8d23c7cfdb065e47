package fileanalysis

import (
	"go.uber.org/fx"

	"github.com/fabworks-io/fabworks/internal/jobs"
)

// Module provides the file-analysis processor
var Module = fx.Module("fileanalysis",
	fx.Provide(
		fx.Annotate(NewHTTPFetcher, fx.As(new(Fetcher))),
		fx.Annotate(NewMemoryStore, fx.As(new(Store))),
		jobs.AsProcessor(NewProcessor),
	),
)
