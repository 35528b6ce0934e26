package corewasm

import (
	"go.uber.org/zap"

	"github.com/corewasm/corewasm/internal/observ"
)

// RuntimeConfig controls how a Runtime observes its own execution. There is
// nothing here that changes what a module computes — only what gets
// reported while it does — so the zero value (no logger, no scopes) is a
// perfectly usable, silent Runtime.
type RuntimeConfig struct {
	zl     *zap.Logger
	scopes observ.Scopes
}

// NewRuntimeConfig returns the default configuration: no logging.
func NewRuntimeConfig() *RuntimeConfig {
	return &RuntimeConfig{}
}

func (c *RuntimeConfig) clone() *RuntimeConfig {
	ret := *c
	return &ret
}

// WithLogger sets the zap.Logger a Runtime's module instantiations, calls,
// and traps are reported through. Has no effect unless paired with
// WithLogScopes naming which of those events to report.
func (c *RuntimeConfig) WithLogger(zl *zap.Logger) *RuntimeConfig {
	ret := c.clone()
	ret.zl = zl
	return ret
}

// WithLogScopes selects which of a Runtime's observable events (calls,
// instantiations, traps) are reported through its logger.
func (c *RuntimeConfig) WithLogScopes(scopes observ.Scopes) *RuntimeConfig {
	ret := c.clone()
	ret.scopes = scopes
	return ret
}
