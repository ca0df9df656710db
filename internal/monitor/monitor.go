// Package monitor publishes pipeline progress events to an external
// observer while a run is in progress.
package monitor

import (
	"time"
)

// Kind is the type of an Event.
type Kind string

const (
	KindStarted  Kind = "started"
	KindLine     Kind = "line"
	KindFinished Kind = "finished"
)

// Event is a single progress notification.
type Event struct {
	Stage    string
	Kind     Kind
	Command  string
	Line     string
	ExitCode int
	Error    string
	Time     time.Time
}

// Payload is the wire form of the event.
func (e Event) Payload() map[string]any {
	p := map[string]any{
		"stage":   e.Stage,
		"kind":    string(e.Kind),
		"command": e.Command,
		"time":    e.Time.UTC().Format(time.RFC3339Nano),
	}
	switch e.Kind {
	case KindLine:
		p["line"] = e.Line
	case KindFinished:
		p["exit_code"] = e.ExitCode
		if e.Error != "" {
			p["error"] = e.Error
		}
	}
	return p
}

// Publisher receives events. Publish must not block the pipeline for long
// and never fails the run.
type Publisher interface {
	Publish(e Event)
	Close() error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(Event) {}

func (Nop) Close() error { return nil }
