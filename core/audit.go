package core

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// VerificationEvent describes the outcome of one bearer token check at the HTTP boundary.
type VerificationEvent struct {
	RequestID string
	ClientIP  string
	Path      string
	// Failure is empty on success.
	Failure           string
	Status            int
	Subject           string
	Name              string
	PreferredUsername string
	Duration          time.Duration
}

// AuthEventLogger records verification events to an external sink.
// Implementations should be non-blocking and best-effort.
type AuthEventLogger interface {
	LogVerification(ctx context.Context, ev VerificationEvent) error
}

// LogrusEventLogger writes events as structured log lines.
type LogrusEventLogger struct {
	Log logrus.FieldLogger
}

func (l LogrusEventLogger) LogVerification(_ context.Context, ev VerificationEvent) error {
	log := l.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	entry := log.WithFields(logrus.Fields{
		"request_id": ev.RequestID,
		"client_ip":  ev.ClientIP,
		"path":       ev.Path,
		"status":     ev.Status,
		"elapsed":    ev.Duration.String(),
	})
	if ev.Failure != "" {
		entry.WithField("failure", ev.Failure).Warn("bearer token rejected")
		return nil
	}
	entry.WithFields(logrus.Fields{
		"sub":                ev.Subject,
		"name":               ev.Name,
		"preferred_username": ev.PreferredUsername,
	}).Info("bearer token accepted")
	return nil
}
