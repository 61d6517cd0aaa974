package logger

import (
	"errors"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestWatermillAdapter(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := &Logger{SugaredLogger: zap.New(core).Sugar()}

	adapter := l.Watermill().With(watermill.LogFields{"topic": "serial_code_events"})
	adapter.Info("subscribed", watermill.LogFields{"partition": 0})
	adapter.Error("publish failed", errors.New("broker down"), nil)
	adapter.Trace("polling", nil)

	entries := logs.AllUntimed()
	assert.Len(t, entries, 3)

	info := entries[0].ContextMap()
	assert.Equal(t, "watermill", info["component"])
	assert.Equal(t, "serial_code_events", info["topic"])
	assert.EqualValues(t, 0, info["partition"])

	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
	assert.Equal(t, "broker down", entries[1].ContextMap()["error"])

	assert.Equal(t, zapcore.DebugLevel, entries[2].Level)
}

func TestWatermillAdapterNilLogger(t *testing.T) {
	var l *Logger
	assert.IsType(t, watermill.NopLogger{}, l.Watermill())
}
