// Package notify holds the notification channels alerts are dispatched to, plus the
// text rendering they share.
package notify

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jbctechsolutions/agentmon/internal/domain/alert"
)

// Subject renders a one-line summary such as "[CRITICAL] budget: Budget exceeded for sales".
func Subject(a alert.Alert) string {
	return fmt.Sprintf("[%s] %s: %s", strings.ToUpper(string(a.Level)), a.Type, a.Message)
}

// Body renders a plain-text description of the alert with its data sorted by key.
// The stack entry, when present, goes last.
func Body(a alert.Alert) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", a.Message)
	fmt.Fprintf(&b, "Level: %s\n", a.Level)
	fmt.Fprintf(&b, "Type: %s\n", a.Type)
	fmt.Fprintf(&b, "Time: %s\n", a.Timestamp.UTC().Format(time.RFC3339))
	if a.EscalatedFrom != "" {
		fmt.Fprintf(&b, "Escalated from: %s\n", a.EscalatedFrom)
	}

	keys := make([]string, 0, len(a.Data))
	for k := range a.Data {
		if k != "stack" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	if len(keys) > 0 {
		b.WriteString("\nDETAILS:\n")
		for _, k := range keys {
			fmt.Fprintf(&b, "  %s: %v\n", k, a.Data[k])
		}
	}
	if stack, ok := a.Data["stack"].(string); ok && stack != "" {
		fmt.Fprintf(&b, "\nSTACK:\n%s\n", stack)
	}

	fmt.Fprintf(&b, "\n---\nAlert ID: %s\n", a.ID)
	return b.String()
}
