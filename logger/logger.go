package logger

// Logger is the structured logging surface every component takes.
type Logger interface {
	Debug(msg string, fields map[string]any)
	Info(msg string, fields map[string]any)
	Warn(msg string, fields map[string]any)
	Error(msg string, fields map[string]any)
}

type NoopLogger struct{}

func (NoopLogger) Debug(string, map[string]any) {}
func (NoopLogger) Info(string, map[string]any)  {}
func (NoopLogger) Warn(string, map[string]any)  {}
func (NoopLogger) Error(string, map[string]any) {}

// With returns a Logger that adds fields to every entry.
func With(l Logger, fields map[string]any) Logger {
	return withFields{next: l, fields: fields}
}

type withFields struct {
	next   Logger
	fields map[string]any
}

func (w withFields) merge(fields map[string]any) map[string]any {
	out := make(map[string]any, len(w.fields)+len(fields))
	for k, v := range w.fields {
		out[k] = v
	}
	for k, v := range fields {
		out[k] = v
	}
	return out
}

func (w withFields) Debug(msg string, f map[string]any) { w.next.Debug(msg, w.merge(f)) }
func (w withFields) Info(msg string, f map[string]any)  { w.next.Info(msg, w.merge(f)) }
func (w withFields) Warn(msg string, f map[string]any)  { w.next.Warn(msg, w.merge(f)) }
func (w withFields) Error(msg string, f map[string]any) { w.next.Error(msg, w.merge(f)) }
