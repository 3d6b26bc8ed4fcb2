package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFormatter(t *testing.T) {
	t.Run("default options", func(t *testing.T) {
		f := NewFormatter()
		assert.Equal(t, FormatText, f.Format())
		assert.True(t, f.color)
	})

	t.Run("with custom options", func(t *testing.T) {
		var buf bytes.Buffer
		f := NewFormatter(
			WithWriter(&buf),
			WithFormat(FormatJSON),
			WithColor(false),
		)

		assert.Equal(t, FormatJSON, f.Format())
		assert.False(t, f.color)
	})
}

func TestFormatter_Println(t *testing.T) {
	var buf bytes.Buffer
	f := NewFormatter(WithWriter(&buf), WithColor(false))

	require.NoError(t, f.Println("agents: %d", 3))
	assert.Equal(t, "agents: 3\n", buf.String())
}

func TestFormatter_Colorize(t *testing.T) {
	colored := NewFormatter(WithColor(true))
	assert.Equal(t, string(ColorGreen)+"ok"+string(ColorReset), colored.Colorize("ok", ColorGreen))

	plain := NewFormatter(WithColor(false))
	assert.Equal(t, "ok", plain.Colorize("ok", ColorGreen))
}

func TestFormatter_MessageTypes(t *testing.T) {
	tests := []struct {
		name   string
		print  func(f *Formatter) error
		prefix string
	}{
		{"success", func(f *Formatter) error { return f.Success("saved") }, "✓ saved"},
		{"error", func(f *Formatter) error { return f.Error("failed") }, "✗ failed"},
		{"warning", func(f *Formatter) error { return f.Warning("careful") }, "⚠ careful"},
		{"info", func(f *Formatter) error { return f.Info("note") }, "ℹ note"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			f := NewFormatter(WithWriter(&buf), WithColor(false))

			require.NoError(t, tt.print(f))
			assert.Equal(t, tt.prefix+"\n", buf.String())
		})
	}
}

func TestFormatter_Table(t *testing.T) {
	var buf bytes.Buffer
	f := NewFormatter(WithWriter(&buf), WithColor(false))

	err := f.Table(TableData{
		Columns: []TableColumn{
			{Header: "AGENT"},
			{Header: "COST", Align: AlignRight},
		},
		Rows: [][]string{
			{"writer", "$1.50"},
			{"reviewer-long", "$12.00"},
		},
	})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "AGENT            COST", lines[0])
	assert.Equal(t, "-------------  ------", lines[1])
	assert.Equal(t, "writer          $1.50", lines[2])
	assert.Equal(t, "reviewer-long  $12.00", lines[3])
}

func TestFormatter_Table_EmptyColumns(t *testing.T) {
	var buf bytes.Buffer
	f := NewFormatter(WithWriter(&buf))

	require.NoError(t, f.Table(TableData{}))
	assert.Zero(t, buf.Len())
}

func TestFormatter_JSON(t *testing.T) {
	var buf bytes.Buffer
	f := NewFormatter(WithWriter(&buf))

	require.NoError(t, f.JSON(map[string]int{"executions": 2}))
	assert.Contains(t, buf.String(), "  \"executions\": 2")

	var m map[string]int
	require.NoError(t, json.Unmarshal(buf.Bytes(), &m))
	assert.Equal(t, 2, m["executions"])
}

func TestFormatter_FormatAuto(t *testing.T) {
	table := &TableData{
		Columns: []TableColumn{{Header: "NAME"}},
		Rows:    [][]string{{"writer"}},
	}

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		f := NewFormatter(WithWriter(&buf), WithFormat(FormatJSON))
		require.NoError(t, f.FormatAuto([]string{"writer"}, table))
		assert.JSONEq(t, `["writer"]`, buf.String())
	})

	t.Run("text uses the table", func(t *testing.T) {
		var buf bytes.Buffer
		f := NewFormatter(WithWriter(&buf), WithColor(false))
		require.NoError(t, f.FormatAuto([]string{"writer"}, table))
		assert.True(t, strings.HasPrefix(buf.String(), "NAME"))
	})

	t.Run("text without table falls back to json", func(t *testing.T) {
		var buf bytes.Buffer
		f := NewFormatter(WithWriter(&buf))
		require.NoError(t, f.FormatAuto([]string{"writer"}, nil))
		assert.JSONEq(t, `["writer"]`, buf.String())
	})
}

func TestPad(t *testing.T) {
	assert.Equal(t, "ab   ", pad("ab", 5, AlignLeft))
	assert.Equal(t, "   ab", pad("ab", 5, AlignRight))
	assert.Equal(t, "abcdef", pad("abcdef", 3, AlignLeft))
}

func TestFormatter_Table_ExtraCellsDropped(t *testing.T) {
	var buf bytes.Buffer
	f := NewFormatter(WithWriter(&buf), WithColor(false))

	require.NoError(t, f.Table(TableData{
		Columns: []TableColumn{{Header: "A"}},
		Rows:    [][]string{{"x", "ignored"}},
	}))
	assert.NotContains(t, buf.String(), "ignored")
}

func TestProgressBar(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgressBar(4, "simulating", WithProgressBarWriter(&buf), WithProgressBarColor(false))

	p.Increment()
	p.Increment()
	assert.Contains(t, buf.String(), "["+strings.Repeat("█", 10)+strings.Repeat("░", 10)+"]  50%")

	p.Increment()
	p.Increment()
	p.Increment()
	assert.Contains(t, buf.String(), "simulating ["+strings.Repeat("█", 20)+"] 100%")

	p.Complete()
	assert.Contains(t, buf.String(), "["+strings.Repeat("█", 20)+"] 100%")
	assert.True(t, strings.HasSuffix(buf.String(), "\n"))
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatText, false},
		{"text", FormatText, false},
		{" JSON ", FormatJSON, false},
		{"table", FormatTable, false},
		{"yaml", FormatText, true},
	}

	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestValueHelpers(t *testing.T) {
	assert.Equal(t, "$12.50", Money(12.5))
	assert.Equal(t, "$0.0045", Money(0.0045))
	assert.Equal(t, "$0.00", Money(0))
	assert.Equal(t, "12.5%", Percent(0.125))
	assert.Equal(t, "250ms", Millis(250))
	assert.Equal(t, "1.5s", Millis(1500))
	assert.Equal(t, "0ms", Millis(0))
	assert.Equal(t, "-", Timestamp(time.Time{}))
}
