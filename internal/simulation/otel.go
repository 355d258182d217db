package simulation

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/scenariosim/scenariosim/internal/simulation"

func meter() metric.Meter {
	return otel.Meter(instrumentationName)
}
