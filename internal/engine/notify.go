package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// NoticeLevel is the severity of a Notice.
type NoticeLevel string

const (
	NoticeInfo  NoticeLevel = "info"
	NoticeError NoticeLevel = "error"
)

// Notice is the one human-readable message produced per handle call.
type Notice struct {
	Level      NoticeLevel
	Message    string
	ObjectType string
	LocalID    string
	Action     Action
}

// Notifier delivers notices to whoever triggered the change.
type Notifier interface {
	Notify(ctx context.Context, n Notice)
}

// LogNotifier writes notices to a slog.Logger.
type LogNotifier struct {
	Logger *slog.Logger
}

// Notify implements Notifier.
func (l LogNotifier) Notify(ctx context.Context, n Notice) {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	level := slog.LevelInfo
	if n.Level == NoticeError {
		level = slog.LevelError
	}
	logger.Log(ctx, level, n.Message,
		"object_type", n.ObjectType,
		"local_id", n.LocalID,
		"action", string(n.Action),
	)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, n Notice)

// Notify implements Notifier.
func (f NotifierFunc) Notify(ctx context.Context, n Notice) { f(ctx, n) }

func successMessage(kind, title, localID, remoteID, verb string) string {
	return fmt.Sprintf("%s %q (%s; %s) %s", capitalize(kind), title, localID, remoteID, verb)
}

func failureMessage(op string, kind, title string) string {
	switch op {
	case "create":
		return fmt.Sprintf("Cannot create %s %q in catalog", kind, title)
	case "update":
		return fmt.Sprintf("Cannot update %s %q in catalog", kind, title)
	case "delete":
		return fmt.Sprintf("Error deleting %s %q from catalog", kind, title)
	}
	return fmt.Sprintf("Cannot sync %s %q with catalog", kind, title)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
