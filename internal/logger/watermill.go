package logger

import (
	"github.com/ThreeDotsLabs/watermill"
)

// WatermillAdapter routes watermill's router and kafka logs into zap. Trace
// is logged at debug level since zap has no lower level.
type WatermillAdapter struct {
	log    *Logger
	fields watermill.LogFields
}

var _ watermill.LoggerAdapter = (*WatermillAdapter)(nil)

// Watermill returns an adapter tagged with component=watermill
func (l *Logger) Watermill() watermill.LoggerAdapter {
	if l == nil {
		return watermill.NopLogger{}
	}
	return &WatermillAdapter{
		log:    l,
		fields: watermill.LogFields{"component": "watermill"},
	}
}

func (a *WatermillAdapter) Error(msg string, err error, fields watermill.LogFields) {
	a.log.Errorw(msg, a.keyvals(fields, "error", err)...)
}

func (a *WatermillAdapter) Info(msg string, fields watermill.LogFields) {
	a.log.Infow(msg, a.keyvals(fields)...)
}

func (a *WatermillAdapter) Debug(msg string, fields watermill.LogFields) {
	a.log.Debugw(msg, a.keyvals(fields)...)
}

func (a *WatermillAdapter) Trace(msg string, fields watermill.LogFields) {
	a.log.Debugw(msg, a.keyvals(fields)...)
}

func (a *WatermillAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &WatermillAdapter{
		log:    a.log,
		fields: a.fields.Add(fields),
	}
}

func (a *WatermillAdapter) keyvals(fields watermill.LogFields, extra ...interface{}) []interface{} {
	merged := a.fields.Add(fields)
	kv := make([]interface{}, 0, len(merged)*2+len(extra))
	for k, v := range merged {
		kv = append(kv, k, v)
	}
	return append(kv, extra...)
}
