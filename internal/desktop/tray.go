package desktop

import (
	"fmt"

	"github.com/rs/zerolog/log"
)

// Event is one of the tray interactions the launcher reacts to.
type Event int

const (
	ShowRequested Event = iota + 1
	ExitRequested
	PrimaryClickRequested
)

func (e Event) String() string {
	switch e {
	case ShowRequested:
		return "show"
	case ExitRequested:
		return "exit"
	case PrimaryClickRequested:
		return "primary-click"
	default:
		return fmt.Sprintf("event(%d)", int(e))
	}
}

// Tray menu item ids.
const (
	MenuShow = "show"
	MenuExit = "exit_app"
)

var menuEvents = map[string]Event{
	MenuShow: ShowRequested,
	MenuExit: ExitRequested,
}

// MenuEvent maps a tray menu id to its event. Unknown ids report false.
func MenuEvent(id string) (Event, bool) {
	ev, ok := menuEvents[id]
	return ev, ok
}

// Dispatcher routes tray events to their handlers through a lookup table.
type Dispatcher struct {
	handlers map[Event]func()
}

// NewDispatcher wires the standard handlers: show only reveals w, a primary
// click fully activates it and exit calls exit with code 0.
func NewDispatcher(w Window, exit func(code int)) *Dispatcher {
	return &Dispatcher{handlers: map[Event]func(){
		ShowRequested: func() {
			if err := w.Show(); err != nil {
				log.Debug().Str("op", "desktop/tray").Err(err).Msg("show failed")
			}
		},
		PrimaryClickRequested: func() { Activate(w) },
		ExitRequested: func() {
			log.Info().Str("op", "desktop/tray").Msg("exit requested from tray")
			exit(0)
		},
	}}
}

// Dispatch runs the handler for ev and reports whether one existed.
func (d *Dispatcher) Dispatch(ev Event) bool {
	h, ok := d.handlers[ev]
	if !ok {
		return false
	}
	log.Debug().Str("op", "desktop/tray").Str("event", ev.String()).Msg("dispatching tray event")
	h()
	return true
}

// DispatchMenu handles a menu item click by id; unknown ids are ignored.
func (d *Dispatcher) DispatchMenu(id string) bool {
	ev, ok := MenuEvent(id)
	if !ok {
		log.Debug().Str("op", "desktop/tray").Str("id", id).Msg("ignoring unknown menu id")
		return false
	}
	return d.Dispatch(ev)
}
