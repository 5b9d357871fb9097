package providers

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/tickerlens/tickerlens/internal/auth"
	"github.com/tickerlens/tickerlens/internal/metrics"
)

// Deps bundles what every upstream adapter needs: credential resolution,
// an HTTP client, telemetry and a logger. Adapters receive it at
// construction so tests can swap any piece.
type Deps struct {
	Resolver *auth.Resolver
	Client   *http.Client
	Metrics  *metrics.Set
	Logger   zerolog.Logger
}
