package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

// Console writes alerts as text blocks. Colour is only emitted when the
// writer is a terminal.
type Console struct {
	mu     sync.Mutex
	w      io.Writer
	severe lipgloss.Style
	normal lipgloss.Style
}

// NewConsole creates a console sink writing to w, or stdout when w is nil.
func NewConsole(w io.Writer) *Console {
	if w == nil {
		w = os.Stdout
	}
	r := lipgloss.NewRenderer(w)
	return &Console{
		w:      w,
		severe: r.NewStyle().Bold(true).Foreground(lipgloss.Color("9")),
		normal: r.NewStyle().Bold(true).Foreground(lipgloss.Color("11")),
	}
}

// Notify implements Sink.
func (c *Console) Notify(_ context.Context, a Alert) error {
	style := c.normal
	if a.IsSevere() {
		style = c.severe
	}

	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(style.Render(Header(a)))
	b.WriteString("\n")
	fmt.Fprintf(&b, "   Branch: %s | Run: %s\n", a.Branch, a.RunID)
	fmt.Fprintf(&b, "   URL: %s\n", a.URL)

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := io.WriteString(c.w, b.String()); err != nil {
		return fmt.Errorf("write console alert: %w", err)
	}
	return nil
}

// Header returns the unstyled first line of a console alert.
func Header(a Alert) string {
	header := fmt.Sprintf("📢 [%s] %s / %s", a.Type, a.Workflow, a.Job)
	if a.Duration != "" {
		header += " | " + a.Duration
	}
	return header
}
