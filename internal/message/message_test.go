package message

import (
	"testing"
	"time"
)

func TestParsePlainText(t *testing.T) {
	now := time.Unix(1700000000, 0)
	msg, err := Parse([]byte("hello world"), "default", now)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if msg.Channel != "default" || msg.Content != "hello world" || msg.Ts != now.Unix() {
		t.Errorf("got %+v", msg)
	}
}

func TestParseJSON(t *testing.T) {
	now := time.Unix(1700000000, 0)
	msg, err := Parse([]byte(`{"channel":"alice","content":"hi","ts":42}`), "default", now)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if msg.Channel != "alice" || msg.Content != "hi" || msg.Ts != 42 {
		t.Errorf("got %+v", msg)
	}
}

func TestParseJSONDefaults(t *testing.T) {
	now := time.Unix(1700000000, 0)
	msg, err := Parse([]byte(`{"content":"hi"}`), "bob", now)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if msg.Channel != "bob" || msg.Ts != now.Unix() {
		t.Errorf("got %+v", msg)
	}
}

func TestParseJSONMissingContentFails(t *testing.T) {
	_, err := Parse([]byte(`{"channel":"alice"}`), "default", time.Now())
	if err == nil {
		t.Fatal("expected error for missing content")
	}
}

func TestParseMalformedJSONFallsBackToPlainText(t *testing.T) {
	now := time.Unix(1700000000, 0)
	msg, err := Parse([]byte(`{not json`), "default", now)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if msg.Content != "{not json" || msg.Channel != "default" {
		t.Errorf("got %+v", msg)
	}
}

func TestParseIntent(t *testing.T) {
	now := time.Unix(1700000000, 0)
	msg, err := Parse([]byte(`{"content":"hi","meta":{"intent":"reminder","priority":"high"}}`), "default", now)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if msg.Intent != "reminder" {
		t.Errorf("Intent = %q", msg.Intent)
	}
	if msg.IntentMeta["priority"] != "high" {
		t.Errorf("IntentMeta = %+v", msg.IntentMeta)
	}
}

func TestParseEmptyLineFails(t *testing.T) {
	_, err := Parse([]byte("   "), "default", time.Now())
	if err == nil {
		t.Fatal("expected error for empty line")
	}
}

func TestParseOversizedLineFails(t *testing.T) {
	big := make([]byte, MaxContentBytes+1)
	for i := range big {
		big[i] = 'a'
	}
	_, err := Parse(big, "default", time.Now())
	if err == nil {
		t.Fatal("expected error for oversized line")
	}
}
