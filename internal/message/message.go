// Package message defines the Message record accepted from a producer
// and the wire envelope it may arrive in.
package message

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// MaxContentBytes is the largest single input line chorusd treats as a
// well-formed Message. It matches the OS write-atomicity guarantee for
// pipes: writes at or under this size never interleave with a
// concurrent writer's write. Longer lines are a parse failure, not
// truncated.
const MaxContentBytes = 4096

// Message is one unit accepted from a producer. It is created when a
// reader parses one complete input line, and destroyed after successful
// injection.
type Message struct {
	Channel string         `json:"channel"`
	Content string         `json:"content"`
	Ts      int64          `json:"ts"`
	Meta    map[string]any `json:"meta,omitempty"`

	// Intent and IntentMeta are recognized when the JSON envelope's meta
	// object carries an "intent" key. They are optional and distinct
	// from the generic Meta bag.
	Intent     string         `json:"intent,omitempty"`
	IntentMeta map[string]any `json:"intent_meta,omitempty"`
}

// envelope mirrors the optional strict-JSON input shape.
type envelope struct {
	Channel string         `json:"channel"`
	Content string         `json:"content"`
	Ts      int64          `json:"ts"`
	Meta    map[string]any `json:"meta"`
}

// Parse turns one raw input line into a Message. defaultChannel is the
// filename-derived channel used when the line doesn't specify one; now
// is used when the line doesn't specify a timestamp.
//
// If the first non-whitespace byte of line is '{', a strict JSON decode
// is attempted. On success, channel/content/ts/meta are read from the
// object (missing channel defaults to defaultChannel; missing ts
// defaults to now; missing content is a parse failure, returned as an
// error). On JSON failure or any other first byte, the whole line
// becomes content with channel = defaultChannel and ts = now.
func Parse(line []byte, defaultChannel string, now time.Time) (Message, error) {
	trimmed := bytes.TrimSpace(line)
	if len(trimmed) == 0 {
		return Message{}, fmt.Errorf("empty line")
	}
	if len(trimmed) > MaxContentBytes {
		return Message{}, fmt.Errorf("line exceeds %d bytes", MaxContentBytes)
	}

	if trimmed[0] == '{' {
		var env envelope
		if err := json.Unmarshal(trimmed, &env); err == nil {
			if env.Content == "" {
				return Message{}, fmt.Errorf("json message missing required field: content")
			}
			msg := Message{
				Channel: env.Channel,
				Content: env.Content,
				Ts:      env.Ts,
				Meta:    env.Meta,
			}
			if msg.Channel == "" {
				msg.Channel = defaultChannel
			}
			if msg.Ts == 0 {
				msg.Ts = now.Unix()
			}
			if intent, ok := env.Meta["intent"]; ok {
				if s, ok := intent.(string); ok {
					msg.Intent = s
					rest := map[string]any{}
					for k, v := range env.Meta {
						if k == "intent" {
							continue
						}
						rest[k] = v
					}
					if len(rest) > 0 {
						msg.IntentMeta = rest
					}
				}
			}
			return msg, nil
		}
		// Falls through to plain-text handling on JSON decode failure,
		// per spec: any first-byte '{' that fails to parse is not an
		// error, just a plain-text line.
	}

	return Message{
		Channel: defaultChannel,
		Content: string(trimmed),
		Ts:      now.Unix(),
	}, nil
}
