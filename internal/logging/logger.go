package logging

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/jengzang/fwa-watersheds-go/internal/config"
)

// New builds a logrus logger configured according to the provided logging
// config, writing to stdout
func New(cfg config.LoggingConfig) *logrus.Logger {
	return NewWithOutput(cfg, os.Stdout)
}

// NewWithOutput is New writing to w
func NewWithOutput(cfg config.LoggingConfig, w io.Writer) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(w)
	log.SetLevel(parseLevel(cfg.Level))
	log.SetReportCaller(cfg.Caller)

	if strings.EqualFold(cfg.Format, "json") {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return log
}

func parseLevel(level string) logrus.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return logrus.TraceLevel
	case "debug":
		return logrus.DebugLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}
