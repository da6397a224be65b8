package memory

import (
	"go.opentelemetry.io/contrib/bridges/otelslog"
)

const scopeName = "github.com/koscakluka/astrape-core/core/memory"

var logger = otelslog.NewLogger(scopeName)
