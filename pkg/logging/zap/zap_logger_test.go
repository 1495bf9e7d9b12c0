package zap

import (
	"testing"

	"github.com/core-tools/hsu-procdesc-go/pkg/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in       string
		expected zapcore.Level
		wantErr  bool
	}{
		{"debug", zapcore.DebugLevel, false},
		{"", zapcore.InfoLevel, false},
		{"INFO", zapcore.InfoLevel, false},
		{"warning", zapcore.WarnLevel, false},
		{"error", zapcore.ErrorLevel, false},
		{"verbose", zapcore.InfoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			level, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, level)
		})
	}
}

func TestZapLogger_ThroughPrefixedLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	zapLogger := NewZapLoggerFrom(zap.New(core))

	logger := logging.NewLogger("module: procdesc , ", zapLogger.LogFuncs())
	logger.Infof("Loaded %d process descriptors", 2)
	logger.LogLevelf(logging.LevelWarn, "unknown key %q", "cwd")

	entries := logs.AllUntimed()
	require.Len(t, entries, 2)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, "module: procdesc , Loaded 2 process descriptors", entries[0].Message)
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, `module: procdesc , unknown key "cwd"`, entries[1].Message)
}

func TestNewZapLogger_InvalidLevel(t *testing.T) {
	_, err := NewZapLogger("loud")
	assert.Error(t, err)
}
