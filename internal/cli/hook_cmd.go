package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/adamavenir/chorus/internal/runtime"
	"github.com/spf13/cobra"
)

// hookPayload is the subset of Claude Code's hook stdin JSON chorusd's
// hook script reads. It is intentionally permissive: unrecognized
// fields are ignored rather than rejected, so a Claude Code version
// bump that adds fields never breaks the hook.
type hookPayload struct {
	HookEventName        string          `json:"hook_event_name"`
	SessionID            string          `json:"session_id"`
	Cwd                  string          `json:"cwd"`
	TranscriptPath       string          `json:"transcript_path"`
	LastAssistantMessage string          `json:"last_assistant_message"`
	Raw                  json.RawMessage `json:"-"`
}

// stopEvent fires a Turn broadcast; every other hook event forwards as a
// generic event for the audit log.
const stopEvent = "Stop"

func newHookCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:    "hook",
		Short:  "Internal: invoked by the installed Claude Code hook script",
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHook(os.Stdin)
		},
	}
	return cmd
}

// runHook must never fail loudly: a hook invocation that errors out
// would surface as a warning in the agent's own terminal on every
// turn. Errors are logged to hook-error.log and swallowed.
func runHook(stdin io.Reader) error {
	raw, err := io.ReadAll(stdin)
	if err != nil {
		return nil
	}

	var payload hookPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil
	}
	payload.Raw = raw

	cwd := payload.Cwd
	if cwd == "" {
		cwd, _ = os.Getwd()
	}
	sockPath := resolveControlSock(cwd)

	var msg map[string]any
	switch payload.HookEventName {
	case stopEvent:
		msg = map[string]any{
			"type":    "broadcast",
			"session": payload.SessionID,
			"turn":    lastAssistantTurn(payload),
			"ts":      time.Now().Unix(),
		}
	case "":
		return nil
	default:
		var data any
		_ = json.Unmarshal(raw, &data)
		msg = map[string]any{
			"type":    "event",
			"event":   payload.HookEventName,
			"session": payload.SessionID,
			"data":    data,
		}
	}

	if err := sendToControl(sockPath, msg); err != nil {
		logHookError(sockPath, err, payload.HookEventName)
	}
	return nil
}

// resolveControlSock honors CHORUS_CONTROL_SOCK (set by the daemon when
// it launches the agent) ahead of deriving the path from cwd, so the
// hook always talks to the daemon that actually spawned this agent
// process even if cwd doesn't match a project the hook script can
// otherwise resolve.
func resolveControlSock(cwd string) string {
	if v := os.Getenv("CHORUS_CONTROL_SOCK"); v != "" {
		return v
	}
	paths := runtime.New(filepath.Join(os.TempDir(), "chorus", filepath.Base(cwd)))
	return paths.ControlSock()
}

func lastAssistantTurn(payload hookPayload) []map[string]any {
	if payload.TranscriptPath != "" {
		if turn := readLastAssistantTurn(payload.TranscriptPath); turn != nil {
			return turn
		}
	}
	return []map[string]any{{"type": "text", "text": payload.LastAssistantMessage}}
}

// readLastAssistantTurn scans a transcript JSONL file for the final
// assistant-authored message and returns its content blocks, or nil if
// the file is missing or contains no assistant turn.
func readLastAssistantTurn(path string) []map[string]any {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}

	var last []map[string]any
	for _, line := range splitLines(data) {
		var record struct {
			Message struct {
				Role    string           `json:"role"`
				Content []map[string]any `json:"content"`
			} `json:"message"`
		}
		if err := json.Unmarshal(line, &record); err != nil {
			continue
		}
		if record.Message.Role == "assistant" {
			last = record.Message.Content
		}
	}
	return last
}

func splitLines(data []byte) [][]byte {
	var lines [][]byte
	start := 0
	for i, b := range data {
		if b == '\n' {
			if i > start {
				lines = append(lines, data[start:i])
			}
			start = i + 1
		}
	}
	if start < len(data) {
		lines = append(lines, data[start:])
	}
	return lines
}

func sendToControl(sockPath string, payload map[string]any) error {
	conn, err := net.DialTimeout("unix", sockPath, 2*time.Second)
	if err != nil {
		return fmt.Errorf("connecting to control socket: %w", err)
	}
	defer conn.Close()

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling hook payload: %w", err)
	}
	data = append(data, '\n')

	conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
	_, err = conn.Write(data)
	return err
}

const hookErrorLogMaxBytes = 100_000

// logHookError writes a self-truncating JSONL error record next to the
// control socket. Best-effort: a failure here is swallowed, since the
// hook must never fail Claude Code's turn just because its own
// diagnostics couldn't be written.
func logHookError(sockPath string, cause error, eventName string) {
	logPath := filepath.Join(filepath.Dir(sockPath), "hook-error.log")

	entry := map[string]any{
		"ts":         time.Now().Unix(),
		"error":      cause.Error(),
		"event_name": eventName,
		"sock_path":  sockPath,
	}
	line, err := json.Marshal(entry)
	if err != nil {
		return
	}
	line = append(line, '\n')

	if info, statErr := os.Stat(logPath); statErr == nil && info.Size() > hookErrorLogMaxBytes {
		_ = os.WriteFile(logPath, line, 0o600)
		return
	}
	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return
	}
	defer f.Close()
	_, _ = f.Write(line)

	fmt.Fprintf(os.Stderr, "chorusd hook: %s\n", cause)
}
