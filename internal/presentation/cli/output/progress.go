package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

const progressWidth = 20

// ProgressBar redraws a single line as work completes.
type ProgressBar struct {
	mu    sync.Mutex
	label string
	total int
	done  int
	out   io.Writer
	color bool
}

// ProgressBarOption configures a ProgressBar.
type ProgressBarOption func(*ProgressBar)

// WithProgressBarWriter sets the destination. The default is stdout.
func WithProgressBarWriter(w io.Writer) ProgressBarOption {
	return func(p *ProgressBar) { p.out = w }
}

// WithProgressBarColor turns the green fill on or off.
func WithProgressBarColor(enabled bool) ProgressBarOption {
	return func(p *ProgressBar) { p.color = enabled }
}

// NewProgressBar creates a bar for total steps.
func NewProgressBar(total int, label string, opts ...ProgressBarOption) *ProgressBar {
	p := &ProgressBar{label: label, total: total, out: os.Stdout, color: true}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Increment records one finished step.
func (p *ProgressBar) Increment() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.done = min(p.done+1, p.total)
	p.draw()
}

// Complete fills the bar and ends the line.
func (p *ProgressBar) Complete() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.done = p.total
	p.draw()
	_, _ = io.WriteString(p.out, "\n")
}

func (p *ProgressBar) draw() {
	if p.total <= 0 {
		return
	}
	ratio := float64(p.done) / float64(p.total)
	filled := int(ratio * progressWidth)
	bar := strings.Repeat("█", filled) + strings.Repeat("░", progressWidth-filled)
	if p.color {
		bar = string(ColorGreen) + bar + string(ColorReset)
	}
	// Trailing spaces clear a longer previous line.
	_, _ = fmt.Fprintf(p.out, "\r%s [%s] %3.0f%%   ", p.label, bar, ratio*100)
}
