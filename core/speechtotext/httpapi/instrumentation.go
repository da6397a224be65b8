package httpapi

import "go.opentelemetry.io/contrib/bridges/otelslog"

const scopeName = "github.com/koscakluka/astrape-core/core/speechtotext/httpapi"

var logger = otelslog.NewLogger(scopeName)
