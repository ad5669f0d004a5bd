// Package notify sends a desktop notification when the agent pane
// enters the confirm Readiness state, so a human away from the
// terminal knows a permission prompt is waiting.
package notify

import (
	"strings"

	"github.com/gen2brain/beeep"
)

const maxBodyLength = 200

// ConfirmPrompt sends a desktop notification for a confirm-state
// transition. title identifies the project/session; body is the pane
// snapshot text the confirm marker was matched against, truncated for
// display.
func ConfirmPrompt(project, body string) error {
	title := "chorusd"
	if project != "" {
		title = project + " — waiting for confirmation"
	}
	return beeep.Notify(title, truncate(body, maxBodyLength), "")
}

func truncate(s string, maxLen int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-1] + "…"
}
