package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const contextKeySentryHub = "sentry_hub"

var mapLogrusToSentryLevel = map[logrus.Level]sentry.Level{
	logrus.PanicLevel: sentry.LevelFatal,
	logrus.FatalLevel: sentry.LevelFatal,
	logrus.ErrorLevel: sentry.LevelError,
	logrus.WarnLevel:  sentry.LevelWarning,
	logrus.InfoLevel:  sentry.LevelInfo,
	logrus.DebugLevel: sentry.LevelDebug,
	logrus.TraceLevel: sentry.LevelDebug,
}

// SentryHook forwards error level log entries to Sentry
type SentryHook struct {
	hub *sentry.Hub
}

// NewSentryHook initializes the Sentry client. It returns nil when dsn is empty.
func NewSentryHook(dsn string) *SentryHook {
	if dsn == "" {
		return nil
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		TracesSampleRate: 0,
	})
	if err != nil {
		panic(fmt.Sprintf("sentry.Init: %s", err))
	}

	return &SentryHook{hub: sentry.CurrentHub()}
}

func (h *SentryHook) Levels() []logrus.Level {
	return []logrus.Level{logrus.PanicLevel, logrus.FatalLevel, logrus.ErrorLevel}
}

func (h *SentryHook) Fire(entry *logrus.Entry) error {
	extras := map[string]interface{}{}
	for k, v := range entry.Data {
		extras[k] = fmt.Sprint(v)
	}

	if status, ok := entry.Data["status"].(int); ok && status < http.StatusInternalServerError {
		return nil
	}

	event := sentry.NewEvent()
	event.Extra = extras
	event.Level = mapLogrusToSentryLevel[entry.Level]
	event.Message = entry.Message

	h.hub.CaptureEvent(event)
	return nil
}

// SentryMiddleware attaches a request scoped hub and reports panics before
// gin's recovery handles them.
func SentryMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		hub := sentry.GetHubFromContext(c.Request.Context())
		if hub == nil {
			hub = sentry.CurrentHub().Clone()
		}

		hub.Scope().SetRequest(c.Request)
		c.Set(contextKeySentryHub, hub)
		defer recoverWithSentry(hub, c.Request)
		c.Next()
	}
}

func recoverWithSentry(hub *sentry.Hub, r *http.Request) {
	if err := recover(); err != nil {
		eventID := hub.RecoverWithContext(
			context.WithValue(r.Context(), sentry.RequestContextKey, r),
			err,
		)
		if eventID != nil {
			hub.Flush(2 * time.Second)
		}
		panic(err)
	}
}
