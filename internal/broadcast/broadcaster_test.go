package broadcast

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"net"
	"path/filepath"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBroadcastFansOutToSubscribers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "output.sock")
	b := New(path, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Serve(ctx)
	waitForSocket(t, path)

	sub1 := dial(t, path)
	defer sub1.Close()
	sub2 := dial(t, path)
	defer sub2.Close()

	waitForCount(t, b, 2)

	n, err := b.Broadcast(map[string]any{"session": "s1", "turn": []string{"hi"}})
	if err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	if n != 2 {
		t.Fatalf("Broadcast delivered to %d, want 2", n)
	}

	line1 := readLine(t, sub1)
	line2 := readLine(t, sub2)
	if line1 != line2 {
		t.Fatalf("subscribers received different payloads: %q vs %q", line1, line2)
	}
}

func TestBroadcastDropsDisconnectedSubscriber(t *testing.T) {
	path := filepath.Join(t.TempDir(), "output.sock")
	b := New(path, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Serve(ctx)
	waitForSocket(t, path)

	sub := dial(t, path)
	waitForCount(t, b, 1)
	sub.Close()

	deadline := time.Now().Add(2 * time.Second)
	for b.SubscriberCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscriber was never deregistered")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestBroadcastDropsStalledSubscriberOnTimeout(t *testing.T) {
	orig := writeTimeout
	writeTimeout = 20 * time.Millisecond
	defer func() { writeTimeout = orig }()

	b := New(filepath.Join(t.TempDir(), "output.sock"), testLogger())

	stalled, other := net.Pipe()
	defer other.Close()
	b.register(stalled)

	n, err := b.Broadcast(map[string]any{"x": 1})
	if err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected the stalled subscriber to be dropped, delivered=%d", n)
	}
	if b.SubscriberCount() != 0 {
		t.Fatalf("stalled subscriber should have been deregistered, count=%d", b.SubscriberCount())
	}
}

func TestBroadcastNoSubscribersReturnsZero(t *testing.T) {
	path := filepath.Join(t.TempDir(), "output.sock")
	b := New(path, testLogger())
	n, err := b.Broadcast(map[string]any{"x": 1})
	if err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected 0 subscribers, got %d", n)
	}
}

func waitForSocket(t *testing.T, path string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		if conn, err := net.Dial("unix", path); err == nil {
			conn.Close()
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("socket never appeared")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func waitForCount(t *testing.T, b *Broadcaster, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for b.SubscriberCount() != want {
		if time.Now().After(deadline) {
			t.Fatalf("subscriber count never reached %d, at %d", want, b.SubscriberCount())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func dial(t *testing.T, path string) net.Conn {
	t.Helper()
	conn, err := net.Dial("unix", path)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func readLine(t *testing.T, conn net.Conn) string {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		t.Fatalf("readLine: %v", err)
	}
	return line
}
