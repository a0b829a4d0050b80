package logger

import (
	"io"
	"log/slog"
	"time"

	slogzap "github.com/samber/slog-zap/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func newZapHandler(cfg Config, w io.Writer) slog.Handler {
	lvl := cfg.level()

	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey, enc.MessageKey = "ts", "msg"
	enc.EncodeTime = zapcore.TimeEncoderOfLayout(time.RFC3339Nano)
	enc.EncodeLevel = zapcore.LowercaseLevelEncoder
	enc.EncodeDuration = zapcore.MillisDurationEncoder
	if cfg.AddSource {
		enc.EncodeCaller = zapcore.ShortCallerEncoder
	}

	core := zapcore.NewCore(zapcore.NewJSONEncoder(enc), zapcore.Lock(zapcore.AddSync(w)), zap.NewAtomicLevelAt(toZapLevel(lvl)))
	// typing storms and reconnect loops produce bursts of identical lines
	core = zapcore.NewSamplerWithOptions(core, time.Second,
		positiveOr(cfg.SampleInitial, 100),
		positiveOr(cfg.SampleThereafter, 10))

	opts := []zap.Option{zap.ErrorOutput(zapcore.AddSync(w))}
	if cfg.AddSource {
		opts = append(opts, zap.AddCaller(), zap.AddCallerSkip(1))
	}

	return slogzap.Option{Level: lvl, Logger: zap.New(core, opts...)}.NewZapHandler()
}

func positiveOr(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

func toZapLevel(lvl slog.Level) zapcore.Level {
	switch {
	case lvl < slog.LevelInfo:
		return zapcore.DebugLevel
	case lvl < slog.LevelWarn:
		return zapcore.InfoLevel
	case lvl < slog.LevelError:
		return zapcore.WarnLevel
	}
	return zapcore.ErrorLevel
}
