// Package obslog provides structured logging for elfdyn using zap. It is
// ambient infrastructure: the loader logs through it, but never
// substitutes it for a returned error — the log is observability,
// the error is still authoritative.
package obslog

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps zap.Logger with elfdyn-specific field helpers.
type Logger struct {
	*zap.Logger
}

var (
	global     *Logger
	globalOnce sync.Once
)

// Init installs the global logger. Safe to call multiple times; only the
// first call takes effect.
func Init(debug bool) {
	globalOnce.Do(func() {
		global = New(debug)
	})
}

// L returns the global logger, initializing a quiet default if Init was
// never called.
func L() *Logger {
	globalOnce.Do(func() {
		global = New(false)
	})
	return global
}

// New builds a standalone Logger; most callers want the package-level L().
func New(debug bool) *Logger {
	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	}
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		logger = zap.NewNop()
	}
	return &Logger{Logger: logger}
}

// NewNop returns a logger that discards everything, for tests.
func NewNop() *Logger {
	return &Logger{Logger: zap.NewNop()}
}

// Object creates a field identifying the LoadedObject a log line concerns.
func Object(name string) zap.Field {
	return zap.String("object", name)
}

// Addr formats a uintptr as a hex-string field.
func Addr(name string, addr uintptr) zap.Field {
	return zap.String(name, "0x"+hexString(uint64(addr)))
}

// Symbol creates a field naming a symbol.
func Symbol(name string) zap.Field {
	return zap.String("symbol", name)
}

// RelocKind creates a field naming a numeric relocation kind code.
func RelocKind(kind uint32) zap.Field {
	return zap.Uint32("reloc_kind", kind)
}

func hexString(v uint64) string {
	const digits = "0123456789abcdef"
	if v == 0 {
		return "0"
	}
	buf := make([]byte, 16)
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = digits[v&0xf]
		v >>= 4
	}
	return string(buf[i:])
}
