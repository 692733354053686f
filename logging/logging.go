// Package logging provides the node-wide structured logger.
//
// Components that are constructed once (the parser, the verifier, the
// receipt processor, the escrow engine) each take a logging.Logger from
// Named when they are built, and log through it. The package-level
// Sugar logger and Set are also exported; no component in this module
// logs through Sugar directly.
package logging

import (
	"sync"

	"go.uber.org/zap"
)

// Logger is the narrow interface components depend on. *zap.SugaredLogger
// satisfies it.
type Logger interface {
	Debugf(template string, args ...any)
	Infof(template string, args ...any)
	Warnf(template string, args ...any)
	Errorf(template string, args ...any)
}

var (
	mu    sync.Mutex
	base  *zap.Logger
	Sugar Logger
)

func init() {
	l, err := zap.NewProduction()
	if err != nil {
		l = zap.NewNop()
	}
	base = l
	Sugar = l.Sugar()
}

// Set replaces the package-level logger. Intended for tests and for hosts
// that want a differently configured zap.Logger (development mode,
// custom sinks, and so on).
func Set(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	base = l
	Sugar = l.Sugar()
}

// Named returns a Logger scoped to the given component name, e.g.
// logging.Named("escrow").
func Named(name string) Logger {
	mu.Lock()
	defer mu.Unlock()
	return base.Named(name).Sugar()
}

// Nop returns a Logger that discards everything, useful in unit tests
// that don't want production logging noise.
func Nop() Logger {
	return zap.NewNop().Sugar()
}
