package audio

import "go.opentelemetry.io/contrib/bridges/otelslog"

const scopeName = "github.com/koscakluka/astrape-core/core/audio"

var logger = otelslog.NewLogger(scopeName)
