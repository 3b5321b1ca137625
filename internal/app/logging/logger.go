// Package logging provides structured logging with request/trace
// correlation.
package logging

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type ctxKey string

const (
	TraceIDKey ctxKey = "trace_id"
	UserIDKey  ctxKey = "user_id"
	TeamKey    ctxKey = "team"
)

// Logger wraps logrus.Logger with a fixed service name.
type Logger struct {
	*logrus.Logger
	service string
}

func New(service, level, format string) *Logger {
	logger := logrus.New()

	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	if format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{TimestampFormat: time.RFC3339, FullTimestamp: true})
	}
	logger.SetOutput(os.Stdout)

	return &Logger{Logger: logger, service: service}
}

func NewFromEnv(service string) *Logger {
	level := strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	if level == "" {
		level = "info"
	}
	format := strings.TrimSpace(os.Getenv("LOG_FORMAT"))
	if format == "" {
		format = "json"
	}
	return New(service, level, format)
}

func NewTraceID() string { return uuid.New().String() }

func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

func WithTeam(ctx context.Context, team string) context.Context {
	return context.WithValue(ctx, TeamKey, team)
}

// WithContext builds a logrus entry carrying trace/user/team fields.
func (l *Logger) WithContext(ctx context.Context) *logrus.Entry {
	entry := l.Logger.WithField("service", l.service)
	if v := ctx.Value(TraceIDKey); v != nil {
		entry = entry.WithField("trace_id", v)
	}
	if v := ctx.Value(UserIDKey); v != nil {
		entry = entry.WithField("user_id", v)
	}
	if v := ctx.Value(TeamKey); v != nil {
		entry = entry.WithField("team", v)
	}
	return entry
}

// LogAudit mirrors a state change into the structured log stream in
// addition to the durable audit log row — operational visibility, not a
// replacement for the tamper-evident record.
func (l *Logger) LogAudit(ctx context.Context, action, resourceType, resourceID, result string) {
	l.WithContext(ctx).WithFields(logrus.Fields{
		"action":        action,
		"resource_type": resourceType,
		"resource_id":   resourceID,
		"result":        result,
		"audit":         true,
	}).Info("audit")
}

// LogSecretAccess logs a secret-backend fetch outcome. It must never be
// called with the secret payload.
func (l *Logger) LogSecretAccess(ctx context.Context, reference, backend, operation string, success bool, err error) {
	entry := l.WithContext(ctx).WithFields(logrus.Fields{
		"reference": reference,
		"backend":   backend,
		"operation": operation,
		"success":   success,
	})
	if err != nil {
		entry.WithError(err).Warn("secret access failed")
		return
	}
	entry.Debug("secret access")
}

// LogScopeDecision logs an authorization decision without leaking the full
// scope set of unrelated operations.
func (l *Logger) LogScopeDecision(ctx context.Context, resource, action string, allowed bool, reason string) {
	l.WithContext(ctx).WithFields(logrus.Fields{
		"resource": resource,
		"action":   action,
		"allowed":  allowed,
		"reason":   reason,
	}).Debug("authorization decision")
}

// LogXDSCompile logs the outcome of a platform API compilation.
func (l *Logger) LogXDSCompile(ctx context.Context, apiDefinitionID string, duration time.Duration, err error) {
	entry := l.WithContext(ctx).WithFields(logrus.Fields{
		"api_definition_id": apiDefinitionID,
		"duration_ms":       duration.Milliseconds(),
	})
	if err != nil {
		entry.WithError(err).Error("xds compile failed")
		return
	}
	entry.Info("xds compile succeeded")
}

var defaultLogger *Logger

func InitDefault(service, level, format string) { defaultLogger = New(service, level, format) }

func Default() *Logger {
	if defaultLogger == nil {
		defaultLogger = New("controlplane", "info", "json")
	}
	return defaultLogger
}
