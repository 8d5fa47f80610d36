package logging

import (
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name     string
		envVar   string
		envValue string
		expected LogLevel
	}{
		{"Debug via LOG_LEVEL", "LOG_LEVEL", "debug", LevelDebug},
		{"Info via LOG_LEVEL", "LOG_LEVEL", "info", LevelInfo},
		{"Warn via LOG_LEVEL", "LOG_LEVEL", "warn", LevelWarn},
		{"Warning alias", "LOG_LEVEL", "warning", LevelWarn},
		{"Error via LOG_LEVEL", "LOG_LEVEL", "error", LevelError},
		{"Case insensitive", "LOG_LEVEL", "DEBUG", LevelDebug},
		{"Empty defaults to info", "LOG_LEVEL", "", LevelInfo},
		{"Garbage defaults to info", "LOG_LEVEL", "verbose", LevelInfo},
		{"DEBUG=true wins", "DEBUG", "true", LevelDebug},
		{"DEBUG=1 wins", "DEBUG", "1", LevelDebug},
		{"DEBUG=false falls through", "DEBUG", "false", LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("LOG_LEVEL", "")
			t.Setenv("DEBUG", "")
			t.Setenv(tt.envVar, tt.envValue)

			if got := parseLevel(); got != tt.expected {
				t.Errorf("parseLevel() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestLogLevelString(t *testing.T) {
	tests := []struct {
		level    LogLevel
		expected string
	}{
		{LevelDebug, "debug"},
		{LevelInfo, "info"},
		{LevelWarn, "warn"},
		{LevelError, "error"},
		{LogLevel(99), "unknown(99)"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.level.String(); got != tt.expected {
				t.Errorf("String() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestZerologLevel(t *testing.T) {
	if zerologLevel(LevelDebug).String() != "debug" {
		t.Error("Expected debug mapping")
	}
	if zerologLevel(LevelError).String() != "error" {
		t.Error("Expected error mapping")
	}
}
