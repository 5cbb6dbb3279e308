package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// DefaultService names log output when no service name is configured.
const DefaultService = "mpesa-adapter"

var log *zap.Logger
var sugar *zap.SugaredLogger

// Init initializes the global logger.
// Environment can be "dev", "uat", or "prod"; anything but "dev" gets JSON output.
func Init(service, env, level string) {
	logger, err := New(service, env, level)
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}

	Replace(logger)

	sugar.Infow("logger initialized",
		"level", cfgLevel(level).String(),
	)
}

// New builds a logger tagged with service and env. An empty service falls back
// to DefaultService and an unparseable level to info.
func New(service, env, level string) (*zap.Logger, error) {
	return newConfig(service, env, level).Build(zap.AddCaller())
}

func newConfig(service, env, level string) zap.Config {
	if service == "" {
		service = DefaultService
	}

	var cfg zap.Config
	if env == "dev" {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		cfg.Sampling = nil
	}

	cfg.Level = zap.NewAtomicLevelAt(cfgLevel(level))
	cfg.InitialFields = map[string]any{"service": service}
	if env != "" {
		cfg.InitialFields["env"] = env
	}

	cfg.OutputPaths = []string{"stdout"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	return cfg
}

func cfgLevel(level string) zapcore.Level {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return zapcore.InfoLevel
	}
	return lvl
}

// Replace swaps the global logger and returns a func restoring the previous one.
func Replace(l *zap.Logger) func() {
	prevLog, prevSugar := log, sugar
	log = l
	sugar = l.Sugar()
	return func() {
		log, sugar = prevLog, prevSugar
	}
}

// L returns the base structured Zap logger.
func L() *zap.Logger {
	if log == nil {
		Init(DefaultService, "dev", "info")
	}
	return log
}

// S returns the Sugared logger.
func S() *zap.SugaredLogger {
	if sugar == nil {
		Init(DefaultService, "dev", "info")
	}
	return sugar
}

// Component returns the sugared logger tagged with a component name.
func Component(name string) *zap.SugaredLogger {
	return S().With("component", name)
}

// Sync flushes any buffered logs (defer this in main()).
func Sync() {
	if log != nil {
		_ = log.Sync()
	}
}
