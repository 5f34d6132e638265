package logger

import (
	"os"

	zaplogfmt "github.com/jsternberg/zap-logfmt"
	"github.com/mattn/go-isatty"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	logger      *zap.Logger
	path        string
	atomicLevel = zap.NewAtomicLevel()
)

func Initialize(svc string) {

	if value := viper.Get("LOG_PATH"); value != nil {
		path = value.(string)
	} else {
		path = "/var/log/"
	}

	// logfmt for collectors, console output when a human is watching
	var stdoutEncoder zapcore.Encoder
	if isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		stdoutEncoder = zapcore.NewConsoleEncoder(DevEncoderConf())
	} else {
		stdoutEncoder = zaplogfmt.NewEncoder(ProdEncoderConf())
	}

	stdoutCore := zapcore.NewCore(
		stdoutEncoder,
		zapcore.Lock(os.Stdout),
		atomicLevel,
	)

	ljWriteSyncer := zapcore.AddSync(&lumberjack.Logger{
		Filename:   path + svc + ".log",
		MaxSize:    512, // megabytes
		MaxBackups: 3,
		MaxAge:     30, // days
	})

	ljCore := zapcore.NewCore(
		zaplogfmt.NewEncoder(ProdEncoderConf()),
		ljWriteSyncer,
		atomicLevel)

	logger = zap.New(zapcore.NewTee(stdoutCore, ljCore), zap.AddCaller())

	zap.ReplaceGlobals(logger)
}

func Flush() {
	if logger != nil {
		logger.Sync()
	}
}

func SetLevel(l string) {
	atomicLevel.SetLevel(parseLevel(l))
}

func GetLevel() string {
	return atomicLevel.Level().String()
}

func parseLevel(l string) zapcore.Level {
	switch l {
	case "debug":
		return zap.DebugLevel
	case "info":
		return zap.InfoLevel
	case "warn":
		return zap.WarnLevel
	case "error":
		return zap.ErrorLevel
	default:
		return zap.InfoLevel
	}
}

func ProdEncoderConf() zapcore.EncoderConfig {
	encConf := zap.NewProductionEncoderConfig()
	encConf.EncodeTime = zapcore.RFC3339TimeEncoder

	return encConf
}

func DevEncoderConf() zapcore.EncoderConfig {
	encConf := zap.NewDevelopmentEncoderConfig()
	encConf.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
	encConf.EncodeLevel = zapcore.CapitalColorLevelEncoder

	return encConf
}
