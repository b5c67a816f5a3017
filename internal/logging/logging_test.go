package logging

import "testing"

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name     string
		debug    string
		level    string
		expected LogLevel
	}{
		{name: "default is info", debug: "", level: "", expected: LevelInfo},
		{name: "debug via LOG_LEVEL", debug: "", level: "debug", expected: LevelDebug},
		{name: "info via LOG_LEVEL", debug: "", level: "info", expected: LevelInfo},
		{name: "warn via LOG_LEVEL", debug: "", level: "warn", expected: LevelWarn},
		{name: "warning alias", debug: "", level: "warning", expected: LevelWarn},
		{name: "error via LOG_LEVEL", debug: "", level: "error", expected: LevelError},
		{name: "case insensitive", debug: "", level: "DEBUG", expected: LevelDebug},
		{name: "DEBUG=1 wins", debug: "1", level: "error", expected: LevelDebug},
		{name: "DEBUG=true wins", debug: "true", level: "", expected: LevelDebug},
		{name: "DEBUG=on wins", debug: "on", level: "warn", expected: LevelDebug},
		{name: "DEBUG=false ignored", debug: "false", level: "warn", expected: LevelWarn},
		{name: "garbage falls back to info", debug: "", level: "verbose", expected: LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseLevel(tt.debug, tt.level); got != tt.expected {
				t.Errorf("parseLevel(%q, %q) = %v, want %v", tt.debug, tt.level, got, tt.expected)
			}
		})
	}
}

func TestLogLevelOrdering(t *testing.T) {
	if LevelDebug >= LevelInfo || LevelInfo >= LevelWarn || LevelWarn >= LevelError {
		t.Error("log levels must be strictly increasing in severity")
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
		if got := tt.level.String(); got != tt.expected {
			t.Errorf("LogLevel(%d).String() = %q, want %q", tt.level, got, tt.expected)
		}
	}
}
