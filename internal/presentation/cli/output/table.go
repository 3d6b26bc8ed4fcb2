package output

import "strings"

// Alignment is a table column's text alignment.
type Alignment int

const (
	AlignLeft Alignment = iota
	AlignRight
)

const columnGap = "  "

// TableColumn describes one column.
type TableColumn struct {
	Header string
	Align  Alignment
}

// TableData is a header row plus data rows. Cells past the last column are dropped.
type TableData struct {
	Columns []TableColumn
	Rows    [][]string
}

func (d TableData) widths() []int {
	w := make([]int, len(d.Columns))
	for i, col := range d.Columns {
		w[i] = len(col.Header)
	}
	for _, row := range d.Rows {
		for i := 0; i < len(row) && i < len(w); i++ {
			w[i] = max(w[i], len(row[i]))
		}
	}
	return w
}

// Table writes data with a bold header and a dashed separator. Widths are measured
// in bytes, so cells must not carry color codes.
func (f *Formatter) Table(data TableData) error {
	if len(data.Columns) == 0 {
		return nil
	}
	widths := data.widths()

	headers := make([]string, len(data.Columns))
	rules := make([]string, len(data.Columns))
	for i, col := range data.Columns {
		headers[i] = col.Header
		rules[i] = strings.Repeat("-", widths[i])
	}

	if err := f.writeLine(f.Bold(data.render(headers, widths))); err != nil {
		return err
	}
	if err := f.writeLine(strings.Join(rules, columnGap)); err != nil {
		return err
	}
	for _, row := range data.Rows {
		if err := f.writeLine(data.render(row, widths)); err != nil {
			return err
		}
	}
	return nil
}

func (d TableData) render(cells []string, widths []int) string {
	n := min(len(cells), len(d.Columns))
	out := make([]string, n)
	for i := 0; i < n; i++ {
		out[i] = pad(cells[i], widths[i], d.Columns[i].Align)
	}
	return strings.Join(out, columnGap)
}

func pad(text string, width int, align Alignment) string {
	fill := width - len(text)
	if fill <= 0 {
		return text
	}
	if align == AlignRight {
		return strings.Repeat(" ", fill) + text
	}
	return text + strings.Repeat(" ", fill)
}
