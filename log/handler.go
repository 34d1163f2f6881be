// Package log builds the slog handlers used by the bridge and its tools.
package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/reglet-dev/hostbridge/internal/callctx"
)

// Output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// HandlerOption configures the handler built by NewHandler.
type HandlerOption func(*handlerConfig)

type handlerConfig struct {
	w         io.Writer
	format    string
	level     slog.Level
	addSource bool
}

// defaultHandlerConfig returns the default configuration.
func defaultHandlerConfig() handlerConfig {
	return handlerConfig{
		w:      os.Stderr,
		format: FormatText,
		level:  slog.LevelInfo,
	}
}

// WithLevel sets the minimum log level to report.
func WithLevel(level slog.Level) HandlerOption {
	return func(c *handlerConfig) {
		c.level = level
	}
}

// WithSource enables reporting of source location (file/line).
func WithSource(enabled bool) HandlerOption {
	return func(c *handlerConfig) {
		c.addSource = enabled
	}
}

// WithFormat selects FormatText or FormatJSON.
func WithFormat(format string) HandlerOption {
	return func(c *handlerConfig) {
		c.format = format
	}
}

// WithWriter sets the destination. Defaults to os.Stderr.
func WithWriter(w io.Writer) HandlerOption {
	return func(c *handlerConfig) {
		c.w = w
	}
}

// NewHandler creates a handler with the given options. Records carry the
// request ID and entry point of their context.
func NewHandler(opts ...HandlerOption) slog.Handler {
	cfg := defaultHandlerConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	hopts := &slog.HandlerOptions{Level: cfg.level, AddSource: cfg.addSource}
	var h slog.Handler
	if cfg.format == FormatJSON {
		h = slog.NewJSONHandler(cfg.w, hopts)
	} else {
		h = slog.NewTextHandler(cfg.w, hopts)
	}
	return &contextHandler{Handler: h}
}

// New returns a logger over NewHandler(opts...).
func New(opts ...HandlerOption) *slog.Logger {
	return slog.New(NewHandler(opts...))
}

// ParseLevel maps debug, info, warn and error onto slog levels.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return level, nil
}

// contextHandler adds callctx attributes that the record does not already
// carry.
type contextHandler struct {
	slog.Handler
}

func (h *contextHandler) Handle(ctx context.Context, record slog.Record) error {
	present := make(map[string]bool)
	record.Attrs(func(a slog.Attr) bool {
		present[a.Key] = true
		return true
	})

	args := callctx.LogArgs(ctx)
	for i := 0; i+1 < len(args); i += 2 {
		key, _ := args[i].(string)
		if !present[key] {
			record.AddAttrs(slog.Any(key, args[i+1]))
		}
	}
	return h.Handler.Handle(ctx, record)
}

// WithAttrs returns a new contextHandler that includes the given attributes.
func (h *contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &contextHandler{Handler: h.Handler.WithAttrs(attrs)}
}

// WithGroup returns a new contextHandler with the given group name.
func (h *contextHandler) WithGroup(name string) slog.Handler {
	return &contextHandler{Handler: h.Handler.WithGroup(name)}
}
