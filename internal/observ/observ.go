// Package observ gives module instantiation, host calls, and traps a
// structured trace line. It keeps the shape of the teacher's
// internal/logging (a scope bitmask gating what gets traced, threaded
// through Runtime config as a single value) but backs the sink with zap
// instead of fmt.Fprintf, matching the structured-field logging used
// throughout the wippyai-wasm-runtime sibling in the example pack.
package observ

import "go.uber.org/zap"

// Scopes is a bitmask selecting which trace categories are enabled, mirroring
// the teacher's LogScopes gating concept but scoped to this engine's own
// concerns rather than WASI's.
type Scopes uint8

const (
	ScopeNone Scopes = 0
	ScopeCall Scopes = 1 << iota
	ScopeInstantiate
	ScopeTrap
	ScopeAll = ScopeCall | ScopeInstantiate | ScopeTrap
)

func (s Scopes) enabled(scope Scopes) bool { return s&scope != 0 }

// Logger wraps a *zap.Logger with scope gating. A nil *Logger, or one
// constructed with a nil zap.Logger, is a safe no-op — every method
// short-circuits rather than requiring callers to nil-check.
type Logger struct {
	zl     *zap.Logger
	scopes Scopes
}

// New returns a Logger that writes through zl, tracing only the categories
// named in scopes. Passing a nil zl yields a Logger whose methods are all
// no-ops, so callers that don't care about tracing can pass observ.New(nil, 0).
func New(zl *zap.Logger, scopes Scopes) *Logger {
	return &Logger{zl: zl, scopes: scopes}
}

// Call traces a function invocation — host or wasm — naming the owning
// module and function.
func (l *Logger) Call(module, name string, fields ...zap.Field) {
	if l == nil || l.zl == nil || !l.scopes.enabled(ScopeCall) {
		return
	}
	l.zl.Debug("call", append([]zap.Field{zap.String("module", module), zap.String("func", name)}, fields...)...)
}

// Instantiate traces a module instantiation, by module name (empty for an
// anonymous root module).
func (l *Logger) Instantiate(module string, fields ...zap.Field) {
	if l == nil || l.zl == nil || !l.scopes.enabled(ScopeInstantiate) {
		return
	}
	l.zl.Info("instantiate", append([]zap.Field{zap.String("module", module)}, fields...)...)
}

// Trap traces a runtime trap, by reason string and any additional context.
func (l *Logger) Trap(reason string, fields ...zap.Field) {
	if l == nil || l.zl == nil || !l.scopes.enabled(ScopeTrap) {
		return
	}
	l.zl.Warn("trap", append([]zap.Field{zap.String("reason", reason)}, fields...)...)
}
