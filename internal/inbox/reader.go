// Package inbox implements the Input Channel Manager: one non-blocking
// reader per registered input artifact, parsing lines into Messages and
// handing them to a sink.
package inbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/adamavenir/chorus/internal/message"
)

// Sink receives parsed Messages and logs parse failures. Implementations
// must not block for long; the reader goroutine calls this inline.
type Sink interface {
	Accept(message.Message)
	ParseError(channel string, err error)
}

// Reader owns a single open input artifact. It opens the pipe in
// non-blocking read/write mode — O_RDWR, not O_RDONLY — specifically so
// the descriptor never observes EOF when the last external writer
// closes: a FIFO opened read-only hits EOF once no writer remains open,
// but holding it O_RDWR makes the reader itself a permanent phantom
// writer.
type Reader struct {
	path    string
	channel string
	sink    Sink
	log     *slog.Logger

	mu     sync.Mutex
	file   *os.File
	buf    bytes.Buffer
	closed bool
}

// NewReader opens path (which must already exist as a named pipe) in
// non-blocking read/write mode and returns a Reader ready to run.
//
// Go's runtime poller registers the resulting *os.File for epoll
// readiness, so Read blocks the calling goroutine (parked, not
// OS-thread-blocking) until bytes arrive or the file is closed —
// non-blocking open with readiness-notified reads, no manual poll loop.
func NewReader(path, channel string, sink Sink, log *slog.Logger) (*Reader, error) {
	file, err := os.OpenFile(path, os.O_RDWR|syscall.O_NONBLOCK, 0)
	if err != nil {
		return nil, fmt.Errorf("opening fifo %s: %w", path, err)
	}
	return &Reader{
		path:    path,
		channel: channel,
		sink:    sink,
		log:     log,
		file:    file,
	}, nil
}

// Run reads from the pipe until ctx is cancelled or Close is called.
// EOF (no writers, artifact still present) is ignored and the reader
// keeps reading — it never tears itself down on EOF alone, since the
// reader itself holds the fd open as a phantom writer and a genuine EOF
// should not occur in steady state.
func (r *Reader) Run(ctx context.Context) {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			r.Close()
		case <-done:
		}
	}()

	chunk := make([]byte, 4096)
	for {
		n, err := r.file.Read(chunk)
		if n > 0 {
			r.consume(chunk[:n])
		}
		if err != nil {
			if ctx.Err() != nil || r.isClosed() {
				return
			}
			if errors.Is(err, io.EOF) {
				continue
			}
			r.log.Error("fifo read error", "channel", r.channel, "path", r.path, "error", err)
			return
		}
	}
}

func (r *Reader) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// consume appends newly read bytes to the line buffer and emits one
// Message per complete line.
func (r *Reader) consume(data []byte) {
	r.buf.Write(data)
	for {
		line, err := r.buf.ReadBytes('\n')
		if err != nil {
			// No complete line yet; put back what we read (ReadBytes
			// still returns the partial bytes on error) for the next
			// chunk to complete.
			r.buf.Reset()
			r.buf.Write(line)
			return
		}
		r.handleLine(bytes.TrimRight(line, "\n"))
	}
}

func (r *Reader) handleLine(line []byte) {
	if len(bytes.TrimSpace(line)) == 0 {
		return
	}
	if bytes.HasPrefix(bytes.TrimSpace(line), []byte("{")) {
		if err := validateEnvelope(line); err != nil {
			r.log.Warn("message envelope failed schema validation, falling back to plain text",
				"channel", r.channel, "error", err)
		}
	}
	msg, err := message.Parse(line, r.channel, time.Now())
	if err != nil {
		r.sink.ParseError(r.channel, err)
		return
	}
	r.sink.Accept(msg)
}

// Close releases the underlying file descriptor. Safe to call more than
// once.
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	return r.file.Close()
}
