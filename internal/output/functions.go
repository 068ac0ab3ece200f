package output

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"
)

// ProgressBar renders current/total as a fixed width bar with a percentage.
// An unknown total renders as an empty bar.
func ProgressBar(current, total uint64, width int) string {
	if width <= 0 {
		width = 30
	}
	var percent float64
	if total > 0 {
		percent = float64(min(current, total)) / float64(total)
	}
	filled := max(0, min(int(percent*float64(width)), width))
	bar := StyleSymbols["bullet"]
	bar += strings.Repeat(StyleSymbols["hline"], filled)
	bar += strings.Repeat(" ", width-filled)
	bar += StyleSymbols["bullet"]
	return debugStyle.Render(fmt.Sprintf("%s %.1f%% %s ", bar, percent*100, StyleSymbols["bullet"]))
}

func terminalHeight(f *os.File) int {
	_, height, err := term.GetSize(int(f.Fd()))
	if err != nil || height <= 0 {
		return 24
	}
	return height
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// shorten keeps the tail of s, which for URLs and paths is the useful part.
func shorten(s string, limit int) string {
	r := []rune(s)
	if limit <= 3 || len(r) <= limit {
		return s
	}
	return "..." + string(r[len(r)-limit+3:])
}
