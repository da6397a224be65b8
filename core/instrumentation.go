package orchestration

import (
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const scopeName = "github.com/koscakluka/astrape-core/core"

var (
	tracer = otel.Tracer(scopeName)
	meter  = otel.Meter(scopeName)
	logger = otelslog.NewLogger(scopeName)
)

var eventCounter = newEventCounter()

func newEventCounter() metric.Int64Counter {
	counter, err := meter.Int64Counter("astrape.orchestration.events",
		metric.WithDescription("Control events handled by the control loop"))
	if err != nil {
		return noop.Int64Counter{}
	}
	return counter
}
