package logger

import (
	"context"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
)

const (
	ansiReset  = "\033[0m"
	ansiCyan   = "\033[36m"
	ansiGreen  = "\033[32m"
	ansiYellow = "\033[33m"
	ansiRed    = "\033[31m"
)

// ColorTextHandler renders records for a human watching the daemon's
// terminal: an optional timestamp, the level in an ANSI color, the message,
// then flat key=value attributes.
type ColorTextHandler struct {
	opts     slog.HandlerOptions
	showTime bool
	attrs    []slog.Attr
	group    string

	mu *sync.Mutex
	w  io.Writer
}

// NewColorTextHandler creates a console handler writing to w. showTime
// controls whether lines carry a timestamp; pass false when a supervisor
// already stamps the stream.
func NewColorTextHandler(w io.Writer, opts *slog.HandlerOptions, showTime bool) *ColorTextHandler {
	h := &ColorTextHandler{w: w, showTime: showTime, mu: &sync.Mutex{}}
	if opts != nil {
		h.opts = *opts
	}
	return h
}

// Enabled implements slog.Handler.
func (h *ColorTextHandler) Enabled(_ context.Context, level slog.Level) bool {
	min := slog.LevelInfo
	if h.opts.Level != nil {
		min = h.opts.Level.Level()
	}
	return level >= min
}

// Handle implements slog.Handler.
func (h *ColorTextHandler) Handle(_ context.Context, r slog.Record) error {
	buf := make([]byte, 0, 128)
	if h.showTime && !r.Time.IsZero() {
		buf = append(buf, r.Time.Format("2006-01-02 15:04:05")...)
		buf = append(buf, ' ')
	}
	buf = append(buf, levelColor(r.Level)...)
	buf = append(buf, r.Level.String()...)
	buf = append(buf, ansiReset...)
	buf = append(buf, "  "...)
	buf = append(buf, r.Message...)
	for _, a := range h.attrs {
		buf = appendAttr(buf, "", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		buf = appendAttr(buf, h.group, a)
		return true
	})
	buf = append(buf, '\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.w.Write(buf)
	return err
}

func appendAttr(buf []byte, prefix string, a slog.Attr) []byte {
	if a.Equal(slog.Attr{}) {
		return buf
	}
	key := a.Key
	if prefix != "" {
		key = prefix + "." + key
	}
	buf = append(buf, ' ')
	buf = append(buf, key...)
	buf = append(buf, '=')
	val := a.Value.Resolve().String()
	if strings.ContainsAny(val, " \t\"=") {
		val = strconv.Quote(val)
	}
	return append(buf, val...)
}

// WithAttrs implements slog.Handler. Attrs are qualified with the group
// open at bind time, so later groups do not re-prefix them.
func (h *ColorTextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := *h
	qualified := make([]slog.Attr, 0, len(attrs))
	for _, a := range attrs {
		if h.group != "" {
			a.Key = h.group + "." + a.Key
		}
		qualified = append(qualified, a)
	}
	c.attrs = append(append([]slog.Attr{}, h.attrs...), qualified...)
	return &c
}

// WithGroup implements slog.Handler.
func (h *ColorTextHandler) WithGroup(name string) slog.Handler {
	c := *h
	if name == "" {
		return &c
	}
	if c.group != "" {
		c.group = c.group + "." + name
	} else {
		c.group = name
	}
	return &c
}

func levelColor(l slog.Level) string {
	switch {
	case l >= slog.LevelError:
		return ansiRed
	case l >= slog.LevelWarn:
		return ansiYellow
	case l >= slog.LevelInfo:
		return ansiGreen
	default:
		return ansiCyan
	}
}
