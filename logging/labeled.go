package logging

import "sync"

// LabelField is the field a LabeledLogger attaches its current label under.
const LabelField = "hook"

// LabeledLogger decorates a Logger with a mutable label. The pipeline sets the
// label to the running hook's name before each invocation so that output a
// hook writes through this logger is attributed to it.
type LabeledLogger struct {
	mu    sync.RWMutex
	next  Logger
	label string
}

// NewLabeledLogger wraps next with an initial label.
func NewLabeledLogger(next Logger, label string) *LabeledLogger {
	return &LabeledLogger{next: OrNop(next), label: label}
}

// SetLabel replaces the current label.
func (l *LabeledLogger) SetLabel(label string) {
	l.mu.Lock()
	l.label = label
	l.mu.Unlock()
}

// Label returns the current label.
func (l *LabeledLogger) Label() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.label
}

func (l *LabeledLogger) Info(msg string, fields map[string]any) {
	l.next.Info(msg, l.with(fields))
}

func (l *LabeledLogger) Warn(msg string, fields map[string]any) {
	l.next.Warn(msg, l.with(fields))
}

func (l *LabeledLogger) Error(msg string, fields map[string]any) {
	l.next.Error(msg, l.with(fields))
}

func (l *LabeledLogger) Debug(msg string, fields map[string]any) {
	l.next.Debug(msg, l.with(fields))
}

// with copies fields so callers can reuse their maps.
func (l *LabeledLogger) with(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		out[k] = v
	}
	if label := l.Label(); label != "" {
		out[LabelField] = label
	}
	return out
}
