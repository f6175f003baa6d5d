// Package logger provides the powerhook log format, its custom levels, and
// the rotating file sink the daemon writes to.
//
// Log output format:
//
//	2006-01-02T15:04:05.000Z [LEVEL] message | key=value, key2="two words"
//
// Custom levels beyond the standard slog set:
//   - LevelTrace (-8): per-message dispatch detail
//   - LevelFail  (12): errors that end the daemon
package logger

import (
	"context"
	"io"
	"log/slog"
	"runtime"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ///////////////////////////////////////////////
// Custom Levels
// ///////////////////////////////////////////////

const (
	LevelTrace slog.Level = -8
	LevelDebug slog.Level = slog.LevelDebug
	LevelInfo  slog.Level = slog.LevelInfo
	LevelWarn  slog.Level = slog.LevelWarn
	LevelError slog.Level = slog.LevelError
	LevelFail  slog.Level = 12
)

// levels lists every named level in ascending severity. A record is shown
// with the name of the first entry at or above its level.
var levels = []struct {
	level slog.Level
	name  string
}{
	{LevelTrace, "TRACE"},
	{LevelDebug, "DEBUG"},
	{LevelInfo, "INFO"},
	{LevelWarn, "WARN"},
	{LevelError, "ERROR"},
	{LevelFail, "FAIL"},
}

func levelName(l slog.Level) string {
	for _, e := range levels {
		if l <= e.level {
			return e.name
		}
	}
	return "FAIL"
}

// LookupLevel converts a case-insensitive level name to its slog.Level.
func LookupLevel(s string) (slog.Level, bool) {
	for _, e := range levels {
		if strings.EqualFold(s, e.name) {
			return e.level, true
		}
	}
	return LevelInfo, false
}

// ParseLevel is [LookupLevel] with LevelInfo for unknown names.
func ParseLevel(s string) slog.Level {
	l, _ := LookupLevel(s)
	return l
}

// ///////////////////////////////////////////////
// Handler
// ///////////////////////////////////////////////

const timeFormat = "2006-01-02T15:04:05.000Z"

// lineEnding is CRLF on Windows, LF elsewhere.
var lineEnding = func() string {
	if runtime.GOOS == "windows" {
		return "\r\n"
	}
	return "\n"
}()

var bufPool = sync.Pool{New: func() any { b := make([]byte, 0, 256); return &b }}

// Handler is a slog.Handler that writes one line per record in the format
// described in the package documentation. Groups become dotted key prefixes.
type Handler struct {
	// w receives formatted lines. Writes are serialized by mu, which is
	// shared by every handler derived from the same root.
	w  io.Writer
	mu *sync.Mutex
	// level is the minimum severity emitted.
	level slog.Leveler
	// prefix holds the attributes from WithAttrs, already rendered.
	prefix []byte
	// group is the dotted key prefix for attributes added from here on.
	group string
}

// NewHandler creates a Handler that writes to w, filtering records below level.
func NewHandler(w io.Writer, level slog.Leveler) *Handler {
	return &Handler{w: w, level: level, mu: &sync.Mutex{}}
}

// Enabled implements slog.Handler.
func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle implements slog.Handler.
func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	bp := bufPool.Get().(*[]byte)
	buf := (*bp)[:0]
	defer func() {
		*bp = buf
		bufPool.Put(bp)
	}()

	t := r.Time
	if t.IsZero() {
		t = time.Now()
	}
	buf = t.UTC().AppendFormat(buf, timeFormat)
	buf = append(buf, " ["...)
	buf = append(buf, levelName(r.Level)...)
	buf = append(buf, "] "...)
	buf = append(buf, r.Message...)

	// Clip so appending never writes into the array shared with h.
	attrs := slices.Clip(h.prefix)
	r.Attrs(func(a slog.Attr) bool {
		attrs = appendAttr(attrs, h.group, a)
		return true
	})
	if len(attrs) > 0 {
		buf = append(buf, " | "...)
		buf = append(buf, attrs...)
	}
	buf = append(buf, lineEnding...)

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.w.Write(buf)
	return err
}

// WithAttrs implements slog.Handler.
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	h2 := *h
	h2.prefix = append([]byte(nil), h.prefix...)
	for _, a := range attrs {
		h2.prefix = appendAttr(h2.prefix, h.group, a)
	}
	return &h2
}

// WithGroup implements slog.Handler. Attributes added through the returned
// handler are keyed "name.key"; earlier ones keep their keys.
func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	h2 := *h
	h2.group = h.group + name + "."
	return &h2
}

// appendAttr renders a as key=value, separated from earlier attributes by a
// comma. Group values are flattened into dotted keys.
func appendAttr(buf []byte, group string, a slog.Attr) []byte {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return buf
	}
	if a.Value.Kind() == slog.KindGroup {
		sub := group
		if a.Key != "" {
			sub += a.Key + "."
		}
		for _, ga := range a.Value.Group() {
			buf = appendAttr(buf, sub, ga)
		}
		return buf
	}
	if len(buf) > 0 {
		buf = append(buf, ", "...)
	}
	buf = append(buf, group...)
	buf = append(buf, a.Key...)
	buf = append(buf, '=')
	return appendValue(buf, a.Value)
}

// appendValue quotes values that would otherwise be ambiguous in the
// comma-separated attribute list.
func appendValue(buf []byte, v slog.Value) []byte {
	var s string
	if v.Kind() == slog.KindTime {
		s = v.Time().UTC().Format(time.RFC3339)
	} else {
		s = v.String()
	}
	if s == "" || strings.ContainsAny(s, " ,|=\"\r\n") {
		return strconv.AppendQuote(buf, s)
	}
	return append(buf, s...)
}

// ///////////////////////////////////////////////
// Helper Functions
// ///////////////////////////////////////////////

// Trace logs a message at LevelTrace.
func Trace(logger *slog.Logger, msg string, args ...any) {
	logger.Log(context.Background(), LevelTrace, msg, args...)
}

// Fail logs a message at LevelFail.
func Fail(logger *slog.Logger, msg string, args ...any) {
	logger.Log(context.Background(), LevelFail, msg, args...)
}
