// Package diag provides the core's only diagnostic surface: a slog
// handler in the teacher's util/logger shape, and a panicking assertion
// helper for internal invariant violations (spec.md §7 — "the only
// error kinds in the core are internal invariant violations ... a
// release-quality implementation should retain critical ones as fatal,
// panicking abort").
package diag

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Handler is a single-line, timestamp-prefixed slog.Handler, mutex
// guarded so concurrent per-function compilation (spec.md §5) can share
// one log destination safely. Mirrors util/logger.LogHandler.
type Handler struct {
	out   io.Writer
	h     slog.Handler
	mu    *sync.Mutex
	debug bool
}

func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.h.Enabled(ctx, level)
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &Handler{out: h.out, h: h.h.WithAttrs(attrs), mu: h.mu, debug: h.debug}
}

func (h *Handler) WithGroup(name string) slog.Handler {
	return &Handler{out: h.out, h: h.h.WithGroup(name), mu: h.mu, debug: h.debug}
}

func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	strs := []string{r.Time.Format("2006/01/02 15:04:05"), r.Level.String() + ":", r.Message}
	r.Attrs(func(a slog.Attr) bool {
		strs = append(strs, a.Value.String())
		return true
	})
	line := strings.Join(strs, " ") + "\n"

	h.mu.Lock()
	defer h.mu.Unlock()

	var err error
	if h.out != nil {
		_, err = h.out.Write([]byte(line))
	}
	if h.debug || r.Level >= slog.LevelWarn {
		_, err = os.Stderr.Write([]byte(line))
	}
	return err
}

// NewHandler builds a Handler writing to out (nil is fine — stderr is
// still used for warnings and above, or always when debug is set).
func NewHandler(out io.Writer, level slog.Level, debug bool) *Handler {
	return &Handler{
		out:   out,
		h:     slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}),
		mu:    &sync.Mutex{},
		debug: debug,
	}
}

var defaultLogger = slog.New(NewHandler(nil, slog.LevelInfo, false))

// SetDefault installs logger as the process-wide default used by
// Assertf before it panics.
func SetDefault(logger *slog.Logger) { defaultLogger = logger }

func Default() *slog.Logger { return defaultLogger }
