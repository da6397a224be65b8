package httpapi

import "go.opentelemetry.io/contrib/bridges/otelslog"

const scopeName = "github.com/koscakluka/astrape-core/core/texttospeech/httpapi"

var logger = otelslog.NewLogger(scopeName)
