package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/MelvinVerLia/SiLaporRT-sub001/pkg/logger"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func zapCfg() logger.Config {
	return logger.Config{
		Service:          "chat",
		Version:          "1.2.3",
		Env:              logger.EnvProd,
		Backend:          logger.BackendZap,
		Level:            slog.LevelInfo,
		SampleInitial:    100000,
		SampleThereafter: 100000,
	}
}

func TestDetectEnv(t *testing.T) {
	cases := map[string]logger.Env{
		"":           logger.EnvDev,
		"production": logger.EnvProd,
		"PROD":       logger.EnvProd,
		"staging":    logger.EnvStage,
		"whatever":   logger.EnvDev,
	}
	for raw, want := range cases {
		t.Setenv("APP_ENV", raw)
		if got := logger.DetectEnv(); got != want {
			t.Fatalf("APP_ENV=%q: got %q want %q", raw, got, want)
		}
	}
}

func TestInit_ZapJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	l := logger.InitWriter(zapCfg(), &buf)
	l.Info("booted", slog.String("k", "v"))

	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("expected JSON line, got %s, err=%v", buf.String(), err)
	}
	if m["msg"] != "booted" {
		t.Fatalf("msg mismatch: %v", m["msg"])
	}
	if m["service"] != "chat" || m["env"] != "prod" || m["version"] != "1.2.3" {
		t.Fatalf("attrs missing: %v", m)
	}
	if m["level"] != "info" {
		t.Fatalf("level mismatch: %v", m["level"])
	}
	if m["k"] != "v" {
		t.Fatalf("custom field missing: %v", m["k"])
	}
}

func TestInit_StdTextOutputAndDebug(t *testing.T) {
	var buf bytes.Buffer
	l := logger.InitWriter(logger.Config{Service: "chat", Env: logger.EnvDev, Debug: true}, &buf)
	l.Debug("typing", "room", "c1")

	out := buf.String()
	if !strings.Contains(out, "level=DEBUG") || !strings.Contains(out, "room=c1") {
		t.Fatalf("unexpected text output: %s", out)
	}
	if !strings.Contains(out, "service=chat") {
		t.Fatalf("service attr missing: %s", out)
	}
}

func TestTraceIDsAreAddedFromContext(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()

	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	var buf bytes.Buffer
	l := logger.InitWriter(zapCfg(), &buf)
	l.InfoContext(ctx, "with trace")

	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("expected JSON, got: %s, err=%v", buf.String(), err)
	}
	if m["trace_id"] != span.SpanContext().TraceID().String() || m["span_id"] == nil {
		t.Fatalf("trace_id/span_id missing in log: %v", m)
	}
}

func TestAttrsFromCtx_NoSpan(t *testing.T) {
	if attrs := logger.AttrsFromCtx(context.Background()); attrs != nil {
		t.Fatalf("expected no attrs, got %v", attrs)
	}
}

func TestComponentTagsRecords(t *testing.T) {
	var buf bytes.Buffer
	logger.InitWriter(zapCfg(), &buf)
	logger.Component("push").Info("dispatched")

	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("expected JSON, got: %s", buf.String())
	}
	if m["component"] != "push" {
		t.Fatalf("component attr missing: %v", m)
	}
}
