package logging

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	zaplogfmt "github.com/jsternberg/zap-logfmt"
	"github.com/lni/dragonboat/v4/logger"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// --------------------------------------------------------------------------
// Custom Logger (implements dragonboats logger.ILogger)
// --------------------------------------------------------------------------

// zapLogger implements logger.ILogger on top of a zap.SugaredLogger.
// The level check happens here so that dragonboat's SetLevel calls keep working.
type zapLogger struct {
	mu    sync.RWMutex
	level logger.LogLevel
	sugar *zap.SugaredLogger
}

func (l *zapLogger) SetLevel(level logger.LogLevel) {
	l.mu.Lock()
	l.level = level
	l.mu.Unlock()
}

func (l *zapLogger) enabled(level logger.LogLevel) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.level >= level
}

func (l *zapLogger) Debugf(format string, args ...interface{}) {
	if l.enabled(logger.DEBUG) {
		l.sugar.Debugf(format, args...)
	}
}

func (l *zapLogger) Infof(format string, args ...interface{}) {
	if l.enabled(logger.INFO) {
		l.sugar.Infof(format, args...)
	}
}

func (l *zapLogger) Warningf(format string, args ...interface{}) {
	if l.enabled(logger.WARNING) {
		l.sugar.Warnf(format, args...)
	}
}

func (l *zapLogger) Errorf(format string, args ...interface{}) {
	if l.enabled(logger.ERROR) {
		l.sugar.Errorf(format, args...)
	}
}

func (l *zapLogger) Panicf(format string, args ...interface{}) {
	l.sugar.Panicf(format, args...)
}

// --------------------------------------------------------------------------
// Logger Factory
// --------------------------------------------------------------------------

var (
	factoryMu    sync.Mutex
	base         = newZap("console", os.Stdout)
	defaultLevel = logger.INFO
)

// CreateLogger implements the dragonboat logger.Factory
func CreateLogger(pkgName string) logger.ILogger {
	factoryMu.Lock()
	defer factoryMu.Unlock()
	return &zapLogger{
		level: defaultLevel,
		sugar: base.Named(pkgName).Sugar(),
	}
}

// newZap builds the root zap logger. Supported formats: console, json, logfmt.
func newZap(format string, w zapcore.WriteSyncer) *zap.Logger {
	config := zap.NewProductionEncoderConfig()
	config.EncodeTime = func(ts time.Time, encoder zapcore.PrimitiveArrayEncoder) {
		encoder.AppendString(ts.UTC().Format(time.RFC3339))
	}
	config.EncodeDuration = func(d time.Duration, encoder zapcore.PrimitiveArrayEncoder) {
		encoder.AppendString(d.String())
	}

	var encoder zapcore.Encoder
	switch format {
	case "json":
		encoder = zapcore.NewJSONEncoder(config)
	case "logfmt":
		encoder = zaplogfmt.NewEncoder(config)
	default:
		config.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewConsoleEncoder(config)
	}

	return zap.New(zapcore.NewCore(encoder, zapcore.Lock(w), zapcore.DebugLevel))
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// ParseLevel converts a string level to logger.LogLevel
func ParseLevel(level string) (logger.LogLevel, error) {
	switch strings.ToLower(level) {
	case "debug":
		return logger.DEBUG, nil
	case "info", "":
		return logger.INFO, nil
	case "warning", "warn":
		return logger.WARNING, nil
	case "error":
		return logger.ERROR, nil
	default:
		return logger.INFO, fmt.Errorf("invalid log level: %s. must be one of debug, info, warn, error", level)
	}
}

// --------------------------------------------------------------------------
// Logger initialization
// --------------------------------------------------------------------------

// knownLoggers are the dragonboat internals plus all dCtl packages
var knownLoggers = []string{
	// dragonboat
	"raft", "raftdb", "rsm", "transport", "dragonboat", "grpc", "util", "logdb",
	// dCtl
	"store", "confstore", "transport/rpc", "rpc", "reconcile", "saga",
	"system", "pool", "account", "cluster", "agents", "node", "audit", "app",
}

// Init installs the zap backed logger factory and applies level to all known loggers.
// It must run before the first log line is written.
func Init(level, format string) error {
	lvl, err := ParseLevel(level)
	if err != nil {
		return err
	}
	switch format {
	case "", "console", "json", "logfmt":
	default:
		return fmt.Errorf("invalid log format: %s. must be one of console, json, logfmt", format)
	}

	factoryMu.Lock()
	base = newZap(format, zapcore.AddSync(os.Stdout))
	defaultLevel = lvl
	factoryMu.Unlock()

	logger.SetLoggerFactory(CreateLogger)
	for _, name := range knownLoggers {
		logger.GetLogger(name).SetLevel(lvl)
	}
	return nil
}

// Sync flushes buffered log entries
func Sync() error {
	factoryMu.Lock()
	defer factoryMu.Unlock()
	return base.Sync()
}
