package logging

import (
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    zapcore.Level
		wantErr bool
	}{
		{"debug", zapcore.DebugLevel, false},
		{"INFO", zapcore.InfoLevel, false},
		{" warn ", zapcore.WarnLevel, false},
		{"warning", zapcore.WarnLevel, false},
		{"error", zapcore.ErrorLevel, false},
		{"loud", zapcore.InfoLevel, true},
	}

	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q): expected %v, got %v", tt.in, tt.want, got)
		}
	}
}

func TestInitializeSilentByDefault(t *testing.T) {
	t.Setenv(LogLevelEnvVar, "")
	defer SetLogger(nil)

	if err := Initialize(""); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if GetLogger().Core().Enabled(zapcore.ErrorLevel) {
		t.Error("Expected nop logger when no level is set")
	}
}

func TestInitializeRejectsUnknownLevel(t *testing.T) {
	defer SetLogger(nil)
	if err := Initialize("chatty"); err == nil {
		t.Error("Expected error for unknown level")
	}
}

func TestDomainHelpersCarryRequestID(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	SetLogger(zap.New(core))
	defer SetLogger(nil)

	LogTransition("req-1", "dev", "operate", "operate", 2*time.Second)
	LogTransitionFailed("req-1", "dev", "configure", errors.New("boom"))
	LogSlot("req-1", "dev", "busy")
	LogHTTPRequest("req-1", "127.0.0.1:5000", "POST", "/api/v1/orchestrate")
	LogHTTPResponse("req-1", 200, time.Millisecond)

	if logs.Len() != 5 {
		t.Fatalf("Expected 5 entries, got %d", logs.Len())
	}
	for _, entry := range logs.All() {
		if got := entry.ContextMap()["request_id"]; got != "req-1" {
			t.Errorf("Expected request_id req-1 on %q, got %v", entry.Message, got)
		}
	}

	failed := logs.FilterMessage("Device transition failed, device preserved").All()
	if len(failed) != 1 || failed[0].Level != zapcore.WarnLevel {
		t.Errorf("Expected one warn entry for failed transition, got %v", failed)
	}
}
