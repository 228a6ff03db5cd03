// Package log writes structured records through the default slog handler,
// attaching key/value tags carried on the context.
package log

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"
)

type contextKey int

const (
	tagKey contextKey = iota
)

// AddTags returns a context carrying the given key/value pairs, which are
// added to every record logged with it.
func AddTags(ctx context.Context, kvs ...any) context.Context {
	if len(kvs)%2 != 0 {
		panic("log: AddTags requires an even number of arguments")
	}
	tags := Tags(ctx)
	next := make([]any, 0, len(tags)+len(kvs))
	next = append(next, tags...)
	return context.WithValue(ctx, tagKey, append(next, kvs...))
}

// Tags returns the key/value pairs carried by ctx.
func Tags(ctx context.Context) []any {
	tags, _ := ctx.Value(tagKey).([]any)
	return tags
}

func record(ctx context.Context, level slog.Level, msg string, keyvals []any) {
	handler := slog.Default().Handler()
	if !handler.Enabled(ctx, level) {
		return
	}

	var pcs [1]uintptr
	runtime.Callers(3, pcs[:])
	r := slog.NewRecord(time.Now(), level, msg, pcs[0])
	r.Add(keyvals...)
	r.Add(Tags(ctx)...)
	if err := handler.Handle(ctx, r); err != nil {
		slog.ErrorContext(ctx, "error handling log record", "error", err)
	}
}

func Debugf(ctx context.Context, format string, args ...any) {
	record(ctx, slog.LevelDebug, fmt.Sprintf(format, args...), nil)
}

func Infof(ctx context.Context, format string, args ...any) {
	record(ctx, slog.LevelInfo, fmt.Sprintf(format, args...), nil)
}

func Warnf(ctx context.Context, format string, args ...any) {
	record(ctx, slog.LevelWarn, fmt.Sprintf(format, args...), nil)
}

func Errorf(ctx context.Context, format string, args ...any) {
	record(ctx, slog.LevelError, fmt.Sprintf(format, args...), nil)
}

func Debugw(ctx context.Context, msg string, keyvals ...any) {
	record(ctx, slog.LevelDebug, msg, keyvals)
}

func Infow(ctx context.Context, msg string, keyvals ...any) {
	record(ctx, slog.LevelInfo, msg, keyvals)
}

func Warnw(ctx context.Context, msg string, keyvals ...any) {
	record(ctx, slog.LevelWarn, msg, keyvals)
}

func Errorw(ctx context.Context, msg string, keyvals ...any) {
	record(ctx, slog.LevelError, msg, keyvals)
}
