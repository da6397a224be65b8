package config

import "go.opentelemetry.io/contrib/bridges/otelslog"

const scopeName = "github.com/koscakluka/astrape-core/core/config"

var logger = otelslog.NewLogger(scopeName)
