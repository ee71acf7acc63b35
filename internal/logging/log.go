package logging

import (
	"context"
	"log/slog"

	"github.com/go-logfmt/logfmt"
)

// encodeLogfmtLine logfmt-encodes one record into w (which tees to
// stdout and republishes the decoded line over the log broker).
func encodeLogfmtLine(w *writer, keyvals ...any) error {
	enc := logfmt.NewEncoder(w)
	if err := enc.EncodeKeyvals(keyvals...); err != nil {
		return err
	}
	return enc.EndRecord()
}

// logfmtHandler adapts slog.Record to the logfmt line format the
// shared writer already knows how to decode and republish.
type logfmtHandler struct {
	out   *writer
	level slog.Leveler
	attrs []slog.Attr
}

func newLogfmtHandler(out *writer, level slog.Leveler) *logfmtHandler {
	return &logfmtHandler{out: out, level: level}
}

func (h *logfmtHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *logfmtHandler) Handle(_ context.Context, r slog.Record) error {
	kv := make([]any, 0, 6+2*r.NumAttrs()+2*len(h.attrs))
	kv = append(kv, "time", r.Time.Format("2006-01-02T15:04:05Z07:00"))
	kv = append(kv, "level", r.Level.String())
	kv = append(kv, "msg", r.Message)
	for _, a := range h.attrs {
		kv = append(kv, a.Key, a.Value.String())
	}
	r.Attrs(func(a slog.Attr) bool {
		kv = append(kv, a.Key, a.Value.String())
		return true
	})
	return encodeLogfmtLine(h.out, kv...)
}

func (h *logfmtHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := &logfmtHandler{out: h.out, level: h.level, attrs: append(append([]slog.Attr{}, h.attrs...), attrs...)}
	return next
}

func (h *logfmtHandler) WithGroup(_ string) slog.Handler {
	// Groups are not used by this gateway's logging call sites.
	return h
}

var (
	sharedWriter = NewWriter()
	logger       = slog.New(newLogfmtHandler(sharedWriter, slog.LevelInfo))
)

// SetDebug raises the minimum emitted level to Debug, mirroring the
// teacher's -d/--debug flag.
func SetDebug(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	logger = slog.New(newLogfmtHandler(sharedWriter, level))
}

func Info(msg string, kv ...any)  { logger.Info(msg, kv...) }
func Warn(msg string, kv ...any)  { logger.Warn(msg, kv...) }
func Error(msg string, kv ...any) { logger.Error(msg, kv...) }
func Debug(msg string, kv ...any) { logger.Debug(msg, kv...) }
