package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LevelGate switches message categories on and off independently.
// Messages covers debug and info, Warnings covers warn, Errors covers
// error and above.
type LevelGate struct {
	Messages bool `yaml:"messages"`
	Warnings bool `yaml:"warnings"`
	Errors   bool `yaml:"errors"`
}

// AllLevels enables every category.
func AllLevels() LevelGate {
	return LevelGate{Messages: true, Warnings: true, Errors: true}
}

func (g LevelGate) allows(lvl zapcore.Level) bool {
	switch {
	case lvl < zapcore.WarnLevel:
		return g.Messages
	case lvl == zapcore.WarnLevel:
		return g.Warnings
	default:
		return g.Errors
	}
}

// Filter returns a logger that drops the categories disabled in gate.
func Filter(base *zap.Logger, gate LevelGate) *zap.Logger {
	if base == nil {
		base = Log
	}
	return base.WithOptions(zap.WrapCore(func(c zapcore.Core) zapcore.Core {
		return &gatedCore{Core: c, gate: gate}
	}))
}

type gatedCore struct {
	zapcore.Core
	gate LevelGate
}

func (c *gatedCore) Enabled(lvl zapcore.Level) bool {
	return c.gate.allows(lvl) && c.Core.Enabled(lvl)
}

func (c *gatedCore) With(fields []zapcore.Field) zapcore.Core {
	return &gatedCore{Core: c.Core.With(fields), gate: c.gate}
}

func (c *gatedCore) Check(e zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if !c.gate.allows(e.Level) {
		return ce
	}
	return c.Core.Check(e, ce)
}
