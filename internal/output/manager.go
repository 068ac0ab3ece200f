package output

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tanq16/oglauncher/internal/progress"
	"github.com/tanq16/oglauncher/internal/utils"
)

// Transfer is the display state of one correlation id.
type Transfer struct {
	ID          string
	Label       string
	Status      string
	Message     string
	Progress    progress.Progress
	StartTime   time.Time
	LastUpdated time.Time
	Err         error
	index       int
}

func (t *Transfer) complete() bool {
	return t.Status == "success" || t.Status == "error"
}

type ErrorReport struct {
	Label string
	Error error
	Time  time.Time
}

// Manager renders live transfer progress on a terminal. It is a progress.Sink
// so the transfer engine can report to it directly.
type Manager struct {
	out         io.Writer
	file        *os.File
	interactive bool
	transfers   map[string]*Transfer
	mutex       sync.RWMutex
	numLines    int
	count       int
	errors      []ErrorReport
	doneCh      chan struct{}
	stopOnce    sync.Once
	displayTick time.Duration
	displayWg   sync.WaitGroup
}

// NewManager writes to out. Live redraws only happen when out is a terminal;
// otherwise a single final frame is written by StopDisplay.
func NewManager(out io.Writer) *Manager {
	m := &Manager{
		out:         out,
		transfers:   make(map[string]*Transfer),
		doneCh:      make(chan struct{}),
		displayTick: 300 * time.Millisecond,
	}
	if f, ok := out.(*os.File); ok {
		m.file = f
		m.interactive = isTerminal(f)
	}
	return m
}

// Register adds a transfer under its correlation id.
func (m *Manager) Register(id, label string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.register(id, label)
}

func (m *Manager) register(id, label string) *Transfer {
	if t, ok := m.transfers[id]; ok {
		return t
	}
	m.count++
	now := time.Now()
	t := &Transfer{ID: id, Label: label, Status: "pending", StartTime: now, LastUpdated: now, index: m.count}
	m.transfers[id] = t
	return t
}

// Emit records a progress event; unknown ids are registered on first sight.
func (m *Manager) Emit(event string, p progress.Progress) error {
	id := strings.TrimPrefix(event, progress.EventPrefix)
	m.mutex.Lock()
	defer m.mutex.Unlock()
	t := m.register(id, id)
	if t.complete() {
		return nil
	}
	t.Status = "active"
	t.Progress = p
	t.LastUpdated = time.Now()
	return nil
}

func (m *Manager) Complete(id, message string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	t := m.register(id, id)
	if message == "" {
		message = fmt.Sprintf("Completed %s", t.Label)
	}
	t.Message = message
	t.Status = "success"
	t.LastUpdated = time.Now()
}

func (m *Manager) ReportError(id string, err error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	t := m.register(id, id)
	t.Status = "error"
	t.Err = err
	t.Message = fmt.Sprintf("Failed %s", t.Label)
	t.LastUpdated = time.Now()
	m.errors = append(m.errors, ErrorReport{Label: t.Label, Error: err, Time: t.LastUpdated})
}

// Snapshot returns a copy of the transfer state for id.
func (m *Manager) Snapshot(id string) (Transfer, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	t, ok := m.transfers[id]
	if !ok {
		return Transfer{}, false
	}
	return *t, true
}

func statusIndicator(status string) string {
	switch status {
	case "success":
		return successStyle.Render(StyleSymbols["pass"])
	case "error":
		return errorStyle.Render(StyleSymbols["fail"])
	case "pending":
		return pendingStyle.Render(StyleSymbols["pending"])
	default:
		return infoStyle.Render(StyleSymbols["bullet"])
	}
}

func (m *Manager) sorted() []*Transfer {
	all := make([]*Transfer, 0, len(m.transfers))
	for _, t := range m.transfers {
		all = append(all, t)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].index < all[j].index })
	return all
}

// frame renders every transfer, at most maxLines lines.
func (m *Manager) frame(maxLines int) []string {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	var lines []string
	indent := strings.Repeat(" ", 2)
	for _, t := range m.sorted() {
		if len(lines) >= maxLines {
			break
		}
		elapsed := t.LastUpdated.Sub(t.StartTime).Round(time.Second)
		if !t.complete() {
			elapsed = time.Since(t.StartTime).Round(time.Second)
		}
		var message string
		switch t.Status {
		case "success":
			message = successStyle.Render(t.Message)
		case "error":
			message = errorStyle.Render(t.Message)
		case "pending":
			message = pendingStyle.Render("Waiting for " + shorten(t.Label, 60))
		default:
			message = pendingStyle.Render(shorten(t.Label, 60))
		}
		lines = append(lines, fmt.Sprintf("%s%s %s %s", indent, statusIndicator(t.Status), debugStyle.Render(elapsed.String()), message))
		if t.Status == "active" && len(lines) < maxLines {
			speed := utils.FormatSpeed(t.Progress.Current, elapsed.Seconds())
			text := fmt.Sprintf("%s / %s", utils.FormatBytes(t.Progress.Current), utils.FormatBytes(t.Progress.Total))
			lines = append(lines, fmt.Sprintf("%s%s%s %s %s", indent+indent+indent,
				ProgressBar(t.Progress.Current, t.Progress.Total, 30), streamStyle.Render(text),
				StyleSymbols["bullet"], streamStyle.Render(speed)))
		}
	}
	return lines
}

func (m *Manager) updateDisplay() {
	if m.numLines > 0 {
		fmt.Fprintf(m.out, "\033[%dA\033[J", m.numLines)
	}
	lines := m.frame(terminalHeight(m.file) - 3)
	for _, line := range lines {
		fmt.Fprintln(m.out, line)
	}
	m.numLines = len(lines)
}

func (m *Manager) StartDisplay() {
	if !m.interactive {
		return
	}
	m.displayWg.Add(1)
	go func() {
		defer m.displayWg.Done()
		ticker := time.NewTicker(m.displayTick)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.updateDisplay()
			case <-m.doneCh:
				return
			}
		}
	}()
}

// StopDisplay draws the final state and the summary. Safe to call twice.
func (m *Manager) StopDisplay() {
	m.stopOnce.Do(func() {
		close(m.doneCh)
		m.displayWg.Wait()
		if m.interactive {
			m.updateDisplay()
		} else {
			for _, line := range m.frame(1 << 20) {
				fmt.Fprintln(m.out, line)
			}
		}
		fmt.Fprint(m.out, m.Summary())
	})
}

// Failed reports how many transfers ended in error.
func (m *Manager) Failed() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.errors)
}

func (m *Manager) Summary() string {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	var b strings.Builder
	indent := strings.Repeat(" ", 2)
	var success int
	for _, t := range m.transfers {
		if t.Status == "success" {
			success++
		}
	}
	b.WriteString("\n")
	b.WriteString(indent + success2Style.Render(fmt.Sprintf("Completed %d of %d", success, len(m.transfers))) + "\n")
	if len(m.errors) > 0 {
		b.WriteString(indent + errorStyle.Render(fmt.Sprintf("Failed %d of %d", len(m.errors), len(m.transfers))) + "\n")
		b.WriteString("\n" + indent + errorStyle.Bold(true).Render("Errors:") + "\n")
		for i, e := range m.errors {
			fmt.Fprintf(&b, "%s%s %s %s\n", indent+indent,
				errorStyle.Render(fmt.Sprintf("%d.", i+1)),
				debugStyle.Render(fmt.Sprintf("[%s]", e.Time.Format("15:04:05"))),
				errorStyle.Render(e.Label))
			fmt.Fprintf(&b, "%s%s\n", indent+indent+indent, errorStyle.Render(fmt.Sprintf("Error: %v", e.Error)))
		}
	}
	b.WriteString("\n")
	return b.String()
}
