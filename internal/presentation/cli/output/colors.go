package output

import (
	"os"
	"sync"

	"github.com/jbctechsolutions/agentmon/internal/domain/alert"
)

var (
	colorOnce    sync.Once
	colorSupport bool
)

// IsColorSupported reports whether stdout should receive ANSI colors.
// NO_COLOR wins over FORCE_COLOR; otherwise stdout must be a terminal with a usable TERM.
func IsColorSupported() bool {
	colorOnce.Do(func() {
		colorSupport = detectColorSupport()
	})
	return colorSupport
}

func detectColorSupport() bool {
	// See https://no-color.org/
	if _, exists := os.LookupEnv("NO_COLOR"); exists {
		return false
	}
	if _, exists := os.LookupEnv("FORCE_COLOR"); exists {
		return true
	}

	stat, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	if stat.Mode()&os.ModeCharDevice == 0 {
		return false
	}

	term := os.Getenv("TERM")
	return term != "" && term != "dumb"
}

// ResetColorDetection clears the cached detection result. Tests use it after changing
// the environment.
func ResetColorDetection() {
	colorOnce = sync.Once{}
}

// LevelColor maps an alert level to its display color.
func LevelColor(level alert.Level) Color {
	switch level {
	case alert.LevelCritical:
		return ColorRed
	case alert.LevelWarning:
		return ColorYellow
	default:
		return ColorBlue
	}
}

// Level renders an alert level in its color.
func (f *Formatter) Level(level alert.Level) string {
	return f.Colorize(string(level), LevelColor(level))
}
