package runtime

import (
	"path/filepath"
	"testing"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		base        string
		wantKind    ChannelKind
		wantChannel string
	}{
		{"in", KindInput, "default"},
		{"in.alice", KindInput, "alice"},
		{"in.", KindUnknown, ""},
		{"out.bob", KindOutput, "bob"},
		{"out.", KindUnknown, ""},
		{"control.sock", KindUnknown, ""},
		{"output.sock", KindUnknown, ""},
		{"random", KindUnknown, ""},
	}
	for _, c := range cases {
		kind, channel := Classify(c.base)
		if kind != c.wantKind || channel != c.wantChannel {
			t.Errorf("Classify(%q) = (%v, %q), want (%v, %q)", c.base, kind, channel, c.wantKind, c.wantChannel)
		}
	}
}

func TestPaths(t *testing.T) {
	p := New("/tmp/chorus-test")
	if p.DefaultInput() != filepath.Join("/tmp/chorus-test", "in") {
		t.Errorf("DefaultInput = %s", p.DefaultInput())
	}
	if p.NamedInput("alice") != filepath.Join("/tmp/chorus-test", "in.alice") {
		t.Errorf("NamedInput = %s", p.NamedInput("alice"))
	}
	if p.ControlSock() != filepath.Join("/tmp/chorus-test", "control.sock") {
		t.Errorf("ControlSock = %s", p.ControlSock())
	}
}

func TestEnsureDir(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "runtime")
	p := New(sub)
	if err := p.EnsureDir(); err != nil {
		t.Fatalf("EnsureDir: %v", err)
	}
	if err := p.EnsureDir(); err != nil {
		t.Fatalf("EnsureDir (idempotent): %v", err)
	}
}
