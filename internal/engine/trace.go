package engine

import "github.com/rs/zerolog"

// Tracer receives structured diagnostic events from the engine. The engine
// never logs directly; callers inject whatever sink they want.
type Tracer interface {
	Event(name string, fields map[string]any)
}

// NopTracer discards all events.
type NopTracer struct{}

func (NopTracer) Event(string, map[string]any) {}

// ZerologTracer forwards engine events to a zerolog logger at debug level.
type ZerologTracer struct {
	Logger zerolog.Logger
}

func NewZerologTracer(logger zerolog.Logger) ZerologTracer {
	return ZerologTracer{Logger: logger}
}

func (t ZerologTracer) Event(name string, fields map[string]any) {
	t.Logger.Debug().Fields(fields).Msg(name)
}
