package core

import (
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// NewLogger builds the process logger from cfg.
func NewLogger(cfg LoggingConfig) (*logrus.Logger, error) {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	level := cfg.Level
	if level == "" {
		level = "info"
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("logging.level: %w", err)
	}
	log.SetLevel(lvl)
	if strings.EqualFold(cfg.Format, "json") {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return log, nil
}
