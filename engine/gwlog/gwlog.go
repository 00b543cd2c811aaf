package gwlog

import (
	"fmt"
	"net/url"
	"os"
	"runtime/debug"
	"strings"

	"encoding/json"

	"github.com/natefinch/lumberjack"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const _ROTATE_SCHEME = "rotate"

var (
	// DebugLevel level
	DebugLevel Level = Level(zap.DebugLevel)
	// InfoLevel level
	InfoLevel Level = Level(zap.InfoLevel)
	// WarnLevel level
	WarnLevel Level = Level(zap.WarnLevel)
	// ErrorLevel level
	ErrorLevel Level = Level(zap.ErrorLevel)
	// PanicLevel level
	PanicLevel Level = Level(zap.PanicLevel)
	// FatalLevel level
	FatalLevel Level = Level(zap.FatalLevel)

	// Debugf logs formatted debug message
	Debugf logFormatFunc
	// Infof logs formatted info message
	Infof logFormatFunc
	// Warnf logs formatted warn message
	Warnf logFormatFunc
	// Errorf logs formatted error message
	Errorf logFormatFunc
	// Panicf logs formatted message and panics
	Panicf logFormatFunc
	// Fatalf logs formatted message and exits
	Fatalf logFormatFunc
	Fatal  func(args ...interface{})
	Panic  func(args ...interface{})
)

type logFormatFunc func(format string, args ...interface{})

// Level is type of log levels
type Level zapcore.Level

var (
	cfg    zap.Config
	logger *zap.Logger
	sugar  *zap.SugaredLogger
	source string
)

func init() {
	cfgJson := []byte(`{
		"level": "debug",
		"outputPaths": ["stderr"],
		"errorOutputPaths": ["stderr"],
		"encoding": "console",
		"encoderConfig": {
			"messageKey": "message",
			"levelKey": "level",
			"timeKey": "time",
			"levelEncoder": "lowercase",
			"timeEncoder": "iso8601"
		}
	}`)

	if err := json.Unmarshal(cfgJson, &cfg); err != nil {
		panic(err)
	}
	if err := zap.RegisterSink(_ROTATE_SCHEME, newRotateSink); err != nil {
		panic(err)
	}
	rebuild()
}

func rebuild() {
	var err error
	logger, err = cfg.Build()
	if err != nil {
		panic(err)
	}
	if source != "" {
		logger = logger.With(zap.String("source", source))
	}
	setSugar(logger.Sugar())
}

// SetSource sets the component name (baseapp/cellapp/loginapp...) of gwlog module
func SetSource(comp string) {
	source = comp
	logger = logger.With(zap.String("source", comp))
	setSugar(logger.Sugar())
}

func setSugar(sugar_ *zap.SugaredLogger) {
	sugar = sugar_
	Debugf = sugar.Debugf
	Infof = sugar.Infof
	Warnf = sugar.Warnf
	Errorf = sugar.Errorf
	Panicf = sugar.Panicf
	Panic = sugar.Panic
	Fatalf = sugar.Fatalf
	Fatal = sugar.Fatal
}

// SetLevel sets the log level
func SetLevel(lv Level) {
	cfg.Level.SetLevel(zapcore.Level(lv))
}

// GetLevel returns the current log level
func GetLevel() Level {
	return Level(cfg.Level.Level())
}

// TraceError prints the stack and error
func TraceError(format string, args ...interface{}) {
	Errorf("%s\n%s", fmt.Sprintf(format, args...), debug.Stack())
}

// SetOutput redirects log output to the files, "stderr" and "stdout" are accepted
func SetOutput(outputs []string) {
	cfg.OutputPaths = outputs
	rebuild()
}

type rotateSink struct {
	*lumberjack.Logger
}

func (rotateSink) Sync() error { return nil }

func newRotateSink(u *url.URL) (zap.Sink, error) {
	return rotateSink{&lumberjack.Logger{
		Filename:   u.Host + u.Path,
		MaxSize:    100, // megabytes
		MaxBackups: 100,
		MaxAge:     30, //days
		Compress:   true,
	}}, nil
}

// RotatingFile returns the output path of a log file rotated by size, to be used in SetOutput
func RotatingFile(path string) string {
	return _ROTATE_SCHEME + "://" + path
}

// Sync flushes buffered logs
func Sync() {
	if err := logger.Sync(); err != nil {
		fmt.Fprintf(os.Stderr, "gwlog: sync failed: %v\n", err)
	}
}

// StringToLevel converts string to Levels
func StringToLevel(s string) Level {
	switch strings.ToLower(s) {
	case "debug":
		return DebugLevel
	case "info":
		return InfoLevel
	case "warn", "warning":
		return WarnLevel
	case "error":
		return ErrorLevel
	case "panic":
		return PanicLevel
	case "fatal":
		return FatalLevel
	}
	Errorf("StringToLevel: unknown level: %s", s)
	return DebugLevel
}
