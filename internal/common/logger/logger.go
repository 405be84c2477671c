package logger

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	log *zap.Logger
	mu  sync.Mutex
)

// Init builds the global logger. "production" gives JSON to stdout, anything else a console logger.
func Init(env string) {
	var cfg zap.Config
	if env == "production" {
		cfg = zap.NewProductionConfig()
		cfg.Encoding = "json"
		cfg.EncoderConfig.TimeKey = "timestamp"
		cfg.EncoderConfig.MessageKey = "message"
		cfg.EncoderConfig.LevelKey = "level"
		cfg.EncoderConfig.CallerKey = "caller"
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		cfg.EncoderConfig.EncodeTime = zapcore.RFC3339NanoTimeEncoder
		cfg.OutputPaths = []string{"stdout"}
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	l, err := cfg.Build(zap.AddCaller(), zap.Fields(zap.String("hostname", hostname())))
	if err != nil {
		panic(err)
	}
	mu.Lock()
	log = l
	mu.Unlock()
}

// L returns the global logger, initializing it from APP_ENV on first use.
func L() *zap.Logger {
	mu.Lock()
	l := log
	mu.Unlock()
	if l == nil {
		Init(os.Getenv("APP_ENV"))
		mu.Lock()
		l = log
		mu.Unlock()
	}
	return l
}

// Set replaces the global logger. Tests use it to install an observer core.
func Set(l *zap.Logger) {
	mu.Lock()
	log = l
	mu.Unlock()
}

// New returns a logger tagged with the service name.
func New(service string) *zap.Logger {
	return L().With(zap.String("service", service))
}

func Sync() {
	mu.Lock()
	l := log
	mu.Unlock()
	if l != nil {
		_ = l.Sync()
	}
}

func hostname() string { h, _ := os.Hostname(); return h }
