package desktop

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Window is the slice of the main application window the launcher drives.
type Window interface {
	Show() error
	Unminimize() error
	SetFocus() error
}

// Activate brings w to the foreground. Each step is attempted even when an
// earlier one fails; failures are only logged.
func Activate(w Window) {
	if w == nil {
		return
	}
	if err := w.Show(); err != nil {
		log.Debug().Str("op", "desktop/activate").Err(err).Msg("show failed")
	}
	if err := w.Unminimize(); err != nil {
		log.Debug().Str("op", "desktop/activate").Err(err).Msg("unminimize failed")
	}
	if err := w.SetFocus(); err != nil {
		log.Debug().Str("op", "desktop/activate").Err(err).Msg("focus failed")
	}
}

type WindowState struct {
	Visible     bool `json:"visible"`
	Minimized   bool `json:"minimized"`
	Focused     bool `json:"focused"`
	Activations int  `json:"activations"`
}

// HeadlessWindow tracks window state for the serve mode, where the real
// webview lives in a separate frontend process.
type HeadlessWindow struct {
	mu    sync.Mutex
	state WindowState
}

func NewHeadlessWindow() *HeadlessWindow {
	return &HeadlessWindow{state: WindowState{Visible: true}}
}

func (w *HeadlessWindow) Show() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.state.Visible = true
	return nil
}

func (w *HeadlessWindow) Unminimize() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.state.Minimized = false
	return nil
}

func (w *HeadlessWindow) SetFocus() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.state.Focused = true
	w.state.Activations++
	return nil
}

func (w *HeadlessWindow) Hide() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.state.Visible = false
	w.state.Focused = false
}

func (w *HeadlessWindow) Minimize() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.state.Minimized = true
	w.state.Focused = false
}

func (w *HeadlessWindow) State() WindowState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}
