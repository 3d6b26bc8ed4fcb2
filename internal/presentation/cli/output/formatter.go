// Package output renders agentmon command results as text, tables or JSON, with
// optional ANSI colors.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

// Format selects how command results are rendered.
type Format string

const (
	FormatText  Format = "text"
	FormatTable Format = "table"
	FormatJSON  Format = "json"
)

// ParseFormat parses an --output value. Empty means text.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatText, nil
	case FormatText, FormatTable, FormatJSON:
		return f, nil
	default:
		return FormatText, fmt.Errorf("unknown format: %s", s)
	}
}

// Color is an ANSI escape sequence.
type Color string

const (
	ColorReset  Color = "\033[0m"
	ColorBold   Color = "\033[1m"
	ColorDim    Color = "\033[2m"
	ColorRed    Color = "\033[31m"
	ColorGreen  Color = "\033[32m"
	ColorYellow Color = "\033[33m"
	ColorBlue   Color = "\033[34m"
	ColorCyan   Color = "\033[36m"
)

const jsonIndent = "  "

// Formatter writes command output. All methods serialize on one mutex so progress
// and feed goroutines can share it.
type Formatter struct {
	mu     sync.Mutex
	out    io.Writer
	format Format
	color  bool
}

// Option configures a Formatter.
type Option func(*Formatter)

// WithWriter sets the destination. The default is stdout.
func WithWriter(w io.Writer) Option {
	return func(f *Formatter) { f.out = w }
}

// WithFormat sets the output format. The default is text.
func WithFormat(format Format) Option {
	return func(f *Formatter) { f.format = format }
}

// WithColor turns ANSI colors on or off. Colors are on by default.
func WithColor(enabled bool) Option {
	return func(f *Formatter) { f.color = enabled }
}

// NewFormatter creates a formatter.
func NewFormatter(opts ...Option) *Formatter {
	f := &Formatter{out: os.Stdout, format: FormatText, color: true}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Format returns the output format.
func (f *Formatter) Format() Format {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.format
}

func (f *Formatter) writeLine(s string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, err := io.WriteString(f.out, s+"\n")
	return err
}

// Println writes a formatted line.
func (f *Formatter) Println(format string, args ...any) error {
	return f.writeLine(fmt.Sprintf(format, args...))
}

// Colorize wraps text in color when colors are on.
func (f *Formatter) Colorize(text string, color Color) string {
	f.mu.Lock()
	enabled := f.color
	f.mu.Unlock()

	if !enabled {
		return text
	}
	return string(color) + text + string(ColorReset)
}

// Bold renders text in bold.
func (f *Formatter) Bold(text string) string { return f.Colorize(text, ColorBold) }

// Dim renders text dimmed.
func (f *Formatter) Dim(text string) string { return f.Colorize(text, ColorDim) }

func (f *Formatter) status(symbol string, color Color, format string, args []any) error {
	return f.writeLine(f.Colorize(symbol+" "+fmt.Sprintf(format, args...), color))
}

// Success prints a line marked with a check.
func (f *Formatter) Success(format string, args ...any) error {
	return f.status("✓", ColorGreen, format, args)
}

// Error prints a line marked with a cross.
func (f *Formatter) Error(format string, args ...any) error {
	return f.status("✗", ColorRed, format, args)
}

// Warning prints a line marked with a warning sign.
func (f *Formatter) Warning(format string, args ...any) error {
	return f.status("⚠", ColorYellow, format, args)
}

// Info prints a line marked with an info sign.
func (f *Formatter) Info(format string, args ...any) error {
	return f.status("ℹ", ColorBlue, format, args)
}

// Header prints a bold title underlined to its length.
func (f *Formatter) Header(title string) error {
	if err := f.writeLine(f.Bold(title)); err != nil {
		return err
	}
	return f.writeLine(strings.Repeat("─", len(title)))
}

// SubHeader prints a section title.
func (f *Formatter) SubHeader(title string) error {
	return f.writeLine(f.Colorize(title, ColorCyan))
}

// Item prints an indented "key: value" row.
func (f *Formatter) Item(key, value string) error {
	return f.writeLine("  " + f.Dim(key) + ": " + value)
}

// BulletItem prints an indented bullet.
func (f *Formatter) BulletItem(text string) error {
	return f.writeLine("  • " + text)
}

// JSON writes data as indented JSON.
func (f *Formatter) JSON(data any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	enc := json.NewEncoder(f.out)
	enc.SetIndent("", jsonIndent)
	return enc.Encode(data)
}

// JSONCompact writes data as one line of JSON.
func (f *Formatter) JSONCompact(data any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return json.NewEncoder(f.out).Encode(data)
}

// FormatAuto writes data as JSON in JSON mode or when there is no table, and the
// table otherwise.
func (f *Formatter) FormatAuto(data any, table *TableData) error {
	if f.Format() == FormatJSON || table == nil {
		return f.JSON(data)
	}
	return f.Table(*table)
}
