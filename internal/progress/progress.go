package progress

import (
	"errors"

	"github.com/rs/zerolog/log"
)

// EventPrefix is prepended to a correlation id to form the event id.
const EventPrefix = "__progress__"

type Progress struct {
	Total   uint64 `json:"total"`
	Current uint64 `json:"current"`
}

type Event struct {
	ID       string   `json:"id"`
	Progress Progress `json:"progress"`
}

func EventID(correlationID string) string {
	return EventPrefix + correlationID
}

// Sink receives progress messages. Each call is one complete message and
// implementations must be safe for concurrent use.
type Sink interface {
	Emit(event string, p Progress) error
}

type SinkFunc func(event string, p Progress) error

func (f SinkFunc) Emit(event string, p Progress) error {
	return f(event, p)
}

// Discard drops every event.
var Discard Sink = SinkFunc(func(string, Progress) error { return nil })

type multiSink []Sink

func (m multiSink) Emit(event string, p Progress) error {
	var errs []error
	for _, s := range m {
		if err := s.Emit(event, p); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Multi emits to every sink in order.
func Multi(sinks ...Sink) Sink {
	out := make(multiSink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

// Emitter is bound to one transfer's event id.
type Emitter struct {
	sink  Sink
	event string
}

func NewEmitter(sink Sink, correlationID string) *Emitter {
	if sink == nil {
		sink = Discard
	}
	return &Emitter{sink: sink, event: EventID(correlationID)}
}

func (e *Emitter) Event() string {
	return e.event
}

// Emit never fails the caller; a destination that refuses an event is logged
// and the transfer carries on.
func (e *Emitter) Emit(total, current uint64) {
	if err := e.sink.Emit(e.event, Progress{Total: total, Current: current}); err != nil {
		log.Warn().Str("op", "progress/emit").Err(err).Str("event", e.event).Msg("progress event dropped")
	}
}
