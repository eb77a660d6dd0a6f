// Package bus implements the synchronous command/event dispatch core. A bus
// is an explicitly constructed instance handed to every call site; there is
// no process-wide singleton.
package bus

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/voltatlas/prognos/internal/domain"
)

// UnroutableCommand reports a command with no registered handler. This is a
// programming error and aborts the operation.
type UnroutableCommand struct {
	Name string
}

func (e *UnroutableCommand) Error() string {
	return fmt.Sprintf("no handler registered for command %q", e.Name)
}

// CommandHandler handles exactly one command type. It returns the handler
// result plus the domain events newly raised during handling, typically the
// return value of the unit of work's commit.
type CommandHandler func(cmd domain.Command) (any, []domain.Event, error)

// EventHandler reacts to a broadcast event and returns any events raised in
// turn.
type EventHandler func(evt domain.Event) ([]domain.Event, error)

// Bus routes commands to exactly one handler and broadcasts events to zero
// or more subscribers. Processing is synchronous and single-threaded per
// Handle call.
type Bus struct {
	log       zerolog.Logger
	commands  map[string]CommandHandler
	events    map[string][]EventHandler
	observers []func(domain.Event)
}

// New creates an empty bus.
func New(log zerolog.Logger) *Bus {
	return &Bus{
		log:      log.With().Str("component", "bus").Logger(),
		commands: make(map[string]CommandHandler),
		events:   make(map[string][]EventHandler),
	}
}

// RegisterCommand binds a handler to a command name. A second registration
// for the same name replaces the first.
func (b *Bus) RegisterCommand(name string, h CommandHandler) {
	b.commands[name] = h
}

// Subscribe adds an event handler for an event name. Zero subscribers for an
// event is legal; the event is silently dropped.
func (b *Bus) Subscribe(name string, h EventHandler) {
	b.events[name] = append(b.events[name], h)
}

// Observe registers a passive observer invoked for every event that passes
// through the bus, after its subscribers ran. Observers cannot raise events
// and their panics are not guarded; they are for streaming and metrics.
func (b *Bus) Observe(fn func(domain.Event)) {
	b.observers = append(b.observers, fn)
}

// Handle processes one seed message and every event raised transitively
// during its handling, FIFO, before returning. For a seed command the
// command handler's result is returned; a command handler error aborts and
// propagates. Event handler errors are logged per handler and never abort
// the broadcast.
func (b *Bus) Handle(msg any) (any, error) {
	queue := []any{msg}
	var result any
	resultSet := false

	for len(queue) > 0 {
		head := queue[0]
		queue = queue[1:]

		switch m := head.(type) {
		case domain.Command:
			h, ok := b.commands[m.CommandName()]
			if !ok {
				return nil, &UnroutableCommand{Name: m.CommandName()}
			}
			res, events, err := h(m)
			if err != nil {
				return nil, fmt.Errorf("command %s: %w", m.CommandName(), err)
			}
			if !resultSet {
				result, resultSet = res, true
			}
			for _, e := range events {
				queue = append(queue, e)
			}
		case domain.Event:
			for _, h := range b.events[m.EventName()] {
				events, err := h(m)
				if err != nil {
					// one failing subscriber must not block the others
					b.log.Error().Err(err).Str("event", m.EventName()).Msg("Event handler failed")
					continue
				}
				for _, e := range events {
					queue = append(queue, e)
				}
			}
			for _, fn := range b.observers {
				fn(m)
			}
		default:
			return nil, fmt.Errorf("message %T is neither command nor event", head)
		}
	}
	return result, nil
}
