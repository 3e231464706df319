// Package logger builds the process-wide slog.Logger and carries the
// per-scrape correlation id through contexts.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/google/uuid"
)

// ScrapeIDKey is the attribute key under which the scrape id is logged.
const ScrapeIDKey = "scrape_id"

// Supported output formats.
const (
	FormatJSON = "json"
	FormatText = "text"
)

var levels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

type scrapeIDKey struct{}

// contextHandler appends the scrape id stored in the context, if any.
type contextHandler struct {
	slog.Handler
}

func (h contextHandler) Handle(ctx context.Context, r slog.Record) error {
	if id := ScrapeID(ctx); id != "" {
		r.AddAttrs(slog.String(ScrapeIDKey, id))
	}
	return h.Handler.Handle(ctx, r)
}

func (h contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return contextHandler{h.Handler.WithAttrs(attrs)}
}

func (h contextHandler) WithGroup(name string) slog.Handler {
	return contextHandler{h.Handler.WithGroup(name)}
}

// New returns a logger writing to w in the given format. level is consulted
// on every record, so passing a *slog.LevelVar allows runtime changes.
func New(w io.Writer, format string, level slog.Leveler) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	if strings.EqualFold(format, FormatText) {
		h = slog.NewTextHandler(w, opts)
	} else {
		h = slog.NewJSONHandler(w, opts)
	}
	return slog.New(contextHandler{h})
}

// ParseLevel maps debug|info|warn|error (case-insensitive) to a slog.Level.
// The empty string means info.
func ParseLevel(s string) (slog.Level, error) {
	if s == "" {
		return slog.LevelInfo, nil
	}
	l, ok := levels[strings.ToLower(s)]
	if !ok {
		return slog.LevelInfo, fmt.Errorf("logger: unknown level %q", s)
	}
	return l, nil
}

// WithScrapeID returns a context carrying a fresh scrape id, and the id.
func WithScrapeID(ctx context.Context) (context.Context, string) {
	id := uuid.NewString()
	return context.WithValue(ctx, scrapeIDKey{}, id), id
}

// ScrapeID returns the scrape id stored in ctx, or "".
func ScrapeID(ctx context.Context) string {
	id, _ := ctx.Value(scrapeIDKey{}).(string)
	return id
}
