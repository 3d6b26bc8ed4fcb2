package output

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jbctechsolutions/agentmon/internal/domain/alert"
)

func TestIsColorSupported(t *testing.T) {
	tests := []struct {
		name       string
		noColor    bool
		forceColor bool
		term       string
		want       bool
	}{
		{name: "NO_COLOR set", noColor: true, term: "xterm-256color", want: false},
		{name: "NO_COLOR beats FORCE_COLOR", noColor: true, forceColor: true, want: false},
		{name: "FORCE_COLOR overrides", forceColor: true, want: true},
		{name: "TERM dumb", term: "dumb", want: false},
		{name: "TERM empty", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TERM", tt.term)
			t.Setenv("NO_COLOR", "")
			t.Setenv("FORCE_COLOR", "")
			os.Unsetenv("NO_COLOR")
			os.Unsetenv("FORCE_COLOR")
			if tt.noColor {
				t.Setenv("NO_COLOR", "1")
			}
			if tt.forceColor {
				t.Setenv("FORCE_COLOR", "1")
			}
			ResetColorDetection()
			t.Cleanup(ResetColorDetection)

			assert.Equal(t, tt.want, IsColorSupported())
		})
	}
}

func TestResetColorDetection(t *testing.T) {
	t.Setenv("NO_COLOR", "")
	os.Unsetenv("NO_COLOR")
	t.Setenv("FORCE_COLOR", "1")
	ResetColorDetection()
	t.Cleanup(ResetColorDetection)

	assert.True(t, IsColorSupported())

	t.Setenv("NO_COLOR", "1")
	assert.True(t, IsColorSupported(), "result is cached until reset")

	ResetColorDetection()
	assert.False(t, IsColorSupported())
}

func TestLevelColor(t *testing.T) {
	assert.Equal(t, ColorRed, LevelColor(alert.LevelCritical))
	assert.Equal(t, ColorYellow, LevelColor(alert.LevelWarning))
	assert.Equal(t, ColorBlue, LevelColor(alert.LevelInfo))
}

func TestFormatter_Level(t *testing.T) {
	colored := NewFormatter(WithWriter(&bytes.Buffer{}), WithColor(true))
	assert.Equal(t, string(ColorRed)+"critical"+string(ColorReset), colored.Level(alert.LevelCritical))

	plain := NewFormatter(WithWriter(&bytes.Buffer{}), WithColor(false))
	assert.Equal(t, "warning", plain.Level(alert.LevelWarning))
}
