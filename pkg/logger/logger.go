package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
)

// Format selects the logger output encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// ContextExtractor pulls an attribute out of a context, reporting whether
// the value was present.
type ContextExtractor func(ctx context.Context) (slog.Attr, bool)

// Config holds logger settings loaded from the environment.
type Config struct {
	Level  slog.Level `env:"LOG_LEVEL" envDefault:"info"`   // Minimum level emitted.
	Format Format     `env:"LOG_FORMAT" envDefault:"json"`  // Output encoding: "json" or "text".
	Source bool       `env:"LOG_SOURCE" envDefault:"false"` // Include source file positions.
}

// Option configures logger construction.
type Option func(*settings)

type settings struct {
	level      slog.Level
	format     Format
	output     io.Writer
	addSource  bool
	attrs      []slog.Attr
	extractors []ContextExtractor
}

// WithLevel sets the minimum emitted level.
func WithLevel(l slog.Level) Option {
	return func(s *settings) { s.level = l }
}

// WithFormat sets the output encoding. Unknown formats fall back to JSON.
func WithFormat(f Format) Option {
	return func(s *settings) { s.format = f }
}

// WithOutput redirects log output; nil writers are ignored.
func WithOutput(w io.Writer) Option {
	return func(s *settings) {
		if w != nil {
			s.output = w
		}
	}
}

// WithService attaches the service name to every record.
func WithService(name string) Option {
	return func(s *settings) {
		if name != "" {
			s.attrs = append(s.attrs, slog.String("service", name))
		}
	}
}

// WithAttrs attaches static attributes to every record.
func WithAttrs(attrs ...slog.Attr) Option {
	return func(s *settings) { s.attrs = append(s.attrs, attrs...) }
}

// WithContextExtractors registers functions that inject request-scoped
// attributes from the context at log time. Nil extractors are dropped.
func WithContextExtractors(extractors ...ContextExtractor) Option {
	return func(s *settings) {
		for _, ex := range extractors {
			if ex != nil {
				s.extractors = append(s.extractors, ex)
			}
		}
	}
}

// New builds a slog.Logger from the given options.
func New(opts ...Option) *slog.Logger {
	s := &settings{
		level:  slog.LevelInfo,
		format: FormatJSON,
		output: os.Stdout,
	}
	for _, opt := range opts {
		opt(s)
	}

	handlerOpts := &slog.HandlerOptions{Level: s.level, AddSource: s.addSource}

	var handler slog.Handler
	switch s.format {
	case FormatText:
		handler = slog.NewTextHandler(s.output, handlerOpts)
	default:
		handler = slog.NewJSONHandler(s.output, handlerOpts)
	}

	if len(s.attrs) > 0 {
		handler = handler.WithAttrs(s.attrs)
	}
	if len(s.extractors) > 0 {
		handler = &contextHandler{next: handler, extractors: s.extractors}
	}

	return slog.New(handler)
}

// NewFromConfig builds a logger from environment-driven Config.
func NewFromConfig(cfg Config, opts ...Option) *slog.Logger {
	base := []Option{
		WithLevel(cfg.Level),
		WithFormat(cfg.Format),
	}
	if cfg.Source {
		base = append(base, func(s *settings) { s.addSource = true })
	}
	return New(append(base, opts...)...)
}

// contextHandler injects context attributes into records at log time, so
// request-scoped values stay fresh instead of being captured once.
type contextHandler struct {
	next       slog.Handler
	extractors []ContextExtractor
}

func (h *contextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *contextHandler) Handle(ctx context.Context, rec slog.Record) error {
	for _, ex := range h.extractors {
		if attr, ok := ex(ctx); ok {
			rec.AddAttrs(attr)
		}
	}
	return h.next.Handle(ctx, rec)
}

func (h *contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &contextHandler{next: h.next.WithAttrs(attrs), extractors: h.extractors}
}

func (h *contextHandler) WithGroup(name string) slog.Handler {
	return &contextHandler{next: h.next.WithGroup(name), extractors: h.extractors}
}
