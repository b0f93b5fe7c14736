package utils

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu           sync.RWMutex
	logger       = zap.NewNop()
	debugEnabled atomic.Bool
)

// Init replaces the process logger. Debug output also enables Debug().
func Init(debug bool) error {
	var (
		l   *zap.Logger
		err error
	)
	if debug {
		cfg := zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		l, err = cfg.Build()
	} else {
		l, err = zap.NewProduction()
	}
	if err != nil {
		return err
	}
	SetLogger(l)
	debugEnabled.Store(debug)
	return nil
}

// SetLogger installs l as the process logger. Tests use zaptest or zap.NewNop.
func SetLogger(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	logger = l
}

func Logger() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

func Sugar() *zap.SugaredLogger {
	return Logger().Sugar()
}

// Debug logs msg only when debug output is enabled.
func Debug(msg string, fields ...zap.Field) {
	if !debugEnabled.Load() {
		return
	}
	Logger().Debug(msg, fields...)
}

func Sync() {
	_ = Logger().Sync()
}
