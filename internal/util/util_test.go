package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"
)

func TestMaskPhone(t *testing.T) {
	assert.Equal(t, "+15*******67", MaskPhone("+15551234567"))
	assert.Equal(t, "****", MaskPhone("1234"))
}

func TestSanitizeInput(t *testing.T) {
	assert.Equal(t, "Ada Lovelace", SanitizeInput("  Ada Lovelace \t"))
	assert.Equal(t, "line1\nline2", SanitizeInput("line1\nline2\x00"))
	assert.Nil(t, SanitizeOptional(nil))

	v := " hi "
	assert.Equal(t, "hi", *SanitizeOptional(&v))
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, parseLogLevel("DEBUG"))
	assert.Equal(t, zapcore.WarnLevel, parseLogLevel(" warn "))
	assert.Equal(t, zapcore.InfoLevel, parseLogLevel("verbose"))
}

func TestBuildConfig(t *testing.T) {
	prod := buildConfig("production", "error", "json")
	assert.Equal(t, "json", prod.Encoding)
	assert.True(t, prod.DisableStacktrace)
	assert.NotNil(t, prod.Sampling)
	assert.Equal(t, zapcore.ErrorLevel, prod.Level.Level())

	dev := buildConfig("development", "debug", "console")
	assert.Equal(t, "console", dev.Encoding)
	assert.True(t, dev.Development)
	assert.Equal(t, zapcore.DebugLevel, dev.Level.Level())
}
