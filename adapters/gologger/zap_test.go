package gologger

import (
	"testing"

	glog "github.com/goliatone/go-logger/glog"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapProviderNamesLoggersAndKeepsPairs(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	provider := NewZapProviderFromLogger(zap.New(core))

	logger := provider.GetLogger("paychain")
	logger.Info("payment created", "payment_id", "0x01", "amount", "1000000")

	entries := logs.FilterMessage("payment created").All()
	if len(entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry.LoggerName != "paychain" {
		t.Fatalf("expected logger name paychain, got %q", entry.LoggerName)
	}
	fields := entry.ContextMap()
	if fields["payment_id"] != "0x01" || fields["amount"] != "1000000" {
		t.Fatalf("expected key/value pairs as fields, got %#v", fields)
	}
}

func TestZapLoggerWithFieldsAndFatal(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	provider := NewZapProviderFromLogger(zap.New(core))

	logger := provider.GetLogger("paychain")
	fieldsLogger, ok := logger.(glog.FieldsLogger)
	if !ok {
		t.Fatalf("expected zap logger to support fields")
	}
	fieldsLogger.WithFields(map[string]any{"operation": "refund"}).Warn("refund rejected")
	logger.Fatal("custody mismatch")

	warned := logs.FilterMessage("refund rejected").All()
	if len(warned) != 1 || warned[0].ContextMap()["operation"] != "refund" {
		t.Fatalf("expected bound field on warn entry, got %#v", warned)
	}
	fatal := logs.FilterMessage("custody mismatch").All()
	if len(fatal) != 1 || fatal[0].Level != zapcore.ErrorLevel || fatal[0].ContextMap()["fatal"] != true {
		t.Fatalf("expected fatal to log at error level, got %#v", fatal)
	}
}

func TestZapProviderBridgesIntoGoJob(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	provider := NewZapProviderFromLogger(zap.New(core))

	_, _, jobProvider, _ := ResolveForJob("paychain", provider, nil)
	jobProvider.GetLogger("worker").Info("outbox drained", "delivered", 3)

	if logs.FilterMessage("outbox drained").Len() != 1 {
		t.Fatalf("expected bridged entry in zap observer")
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		" WARN ":  zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"verbose": zapcore.InfoLevel,
	}
	for input, want := range cases {
		if got := ParseLevel(input); got != want {
			t.Fatalf("%q: expected %s, got %s", input, want, got)
		}
	}
	if NewZapProviderFromLogger(nil).GetLogger("x") == nil {
		t.Fatalf("expected nop-backed logger for nil base")
	}
}
