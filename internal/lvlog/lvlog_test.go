package lvlog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, zapcore.ErrorLevel, ParseLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, ParseLevel("nonsense"))
}

func TestUseAndNamed(t *testing.T) {
	prev := GetLogger()
	defer Use(prev)

	core, logs := observer.New(zapcore.DebugLevel)
	Use(zap.New(core))

	Named("collection").Debug("spliced", zap.Int("index", 1))
	Warn("rejected")

	entries := logs.All()
	if assert.Len(t, entries, 2) {
		assert.Equal(t, "collection", entries[0].LoggerName)
		assert.Equal(t, int64(1), entries[0].ContextMap()["index"])
		assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	}

	Use(nil)
	assert.NotNil(t, GetLogger())
}
