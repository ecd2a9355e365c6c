// Package console prints workflow progress as sections framed by horizontal rules.
package console

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

const defaultWidth = 80

var (
	ruleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	titleStyle = lipgloss.NewStyle().Bold(true)
)

// Printer writes sections to w. Each call is written as a whole, so
// concurrent traversals do not interleave within a section.
type Printer struct {
	mu    sync.Mutex
	w     io.Writer
	width int
}

// New returns a Printer drawing rules width columns wide.
func New(w io.Writer, width int) *Printer {
	if width <= 0 {
		width = defaultWidth
	}
	return &Printer{w: w, width: width}
}

// Section prints message between two rules.
func (p *Printer) Section(message string) {
	var b strings.Builder
	p.rule(&b)
	b.WriteString("\n")
	b.WriteString(message)
	b.WriteString("\n\n")
	p.rule(&b)
	p.write(b.String())
}

// OrderedList prints a numbered list under title. Continuation lines of a
// multi-line item are indented under its first line.
func (p *Printer) OrderedList(title string, items []string) {
	var b strings.Builder
	p.rule(&b)
	b.WriteString("\n")
	b.WriteString(titleStyle.Render(title))
	b.WriteString("\n")
	for i, item := range items {
		lines := strings.Split(item, "\n")
		fmt.Fprintf(&b, "%d. %s\n", i+1, lines[0])
		for _, line := range lines[1:] {
			b.WriteString("    ")
			b.WriteString(line)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")
	p.rule(&b)
	p.write(b.String())
}

func (p *Printer) rule(b *strings.Builder) {
	b.WriteString(ruleStyle.Render(strings.Repeat("-", p.width)))
	b.WriteString("\n")
}

func (p *Printer) write(s string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, _ = io.WriteString(p.w, s)
}
