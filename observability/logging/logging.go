package logging

import (
	"io"
	"log"
	"log/slog"
	"os"
	"strings"
)

// New builds a JSON logger writing to w. Every line carries the service name and,
// when set, the environment. Attributes whose key looks like a credential are
// masked before they are written.
func New(w io.Writer, service, env string) *slog.Logger {
	return slog.New(newHandler(w, service, env))
}

func newHandler(w io.Writer, service, env string) slog.Handler {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		AddSource: false,
		ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
			switch attr.Key {
			case slog.TimeKey:
				return slog.Attr{Key: "timestamp", Value: attr.Value}
			case slog.LevelKey:
				return slog.String("severity", strings.ToUpper(attr.Value.String()))
			case slog.MessageKey:
				return slog.Attr{Key: "message", Value: attr.Value}
			}
			if IsSensitive(attr.Key) && attr.Value.Kind() == slog.KindString {
				return MaskField(attr.Key, attr.Value.String())
			}
			return attr
		},
	})

	attrs := []slog.Attr{slog.String("service", strings.TrimSpace(service))}
	if env = strings.TrimSpace(env); env != "" {
		attrs = append(attrs, slog.String("env", env))
	}
	return handler.WithAttrs(attrs)
}

// Setup installs a JSON logger on stdout as the slog default and bridges the
// standard library logger onto it.
func Setup(service, env string) *slog.Logger {
	handler := newHandler(os.Stdout, service, env)
	base := slog.New(handler)
	slog.SetDefault(base)

	stdBridge := slog.NewLogLogger(handler, slog.LevelInfo)
	stdBridge.SetFlags(0)
	log.SetOutput(stdBridge.Writer())
	log.SetFlags(0)
	log.SetPrefix("")

	return base
}
