package inbox

import (
	"context"
	"log/slog"
	"sync"
)

// Manager owns the set of live Readers, one per registered input
// artifact. It is the only component that opens or closes input pipe
// handles.
type Manager struct {
	sink Sink
	log  *slog.Logger

	mu        sync.Mutex
	readers   map[string]*Reader // path -> reader
	cancels   map[string]context.CancelFunc
	wg        sync.WaitGroup
	parentCtx context.Context
}

// NewManager creates a Manager that dispatches parsed Messages to sink.
// ctx bounds the lifetime of every reader goroutine the Manager spawns.
func NewManager(ctx context.Context, sink Sink, log *slog.Logger) *Manager {
	return &Manager{
		sink:      sink,
		log:       log,
		readers:   make(map[string]*Reader),
		cancels:   make(map[string]context.CancelFunc),
		parentCtx: ctx,
	}
}

// Register opens path as channel and starts reading it in a new
// goroutine. A path already registered is a no-op (the Directory
// Watcher's startup scan may race with a create event for the same
// artifact).
func (m *Manager) Register(path, channel string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.readers[path]; exists {
		return nil
	}

	reader, err := NewReader(path, channel, m.sink, m.log)
	if err != nil {
		return err
	}

	readerCtx, cancel := context.WithCancel(m.parentCtx)
	m.readers[path] = reader
	m.cancels[path] = cancel

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		reader.Run(readerCtx)
	}()

	m.log.Info("channel registered", "path", path, "channel", channel)
	return nil
}

// Deregister stops and closes the reader for path, if one is
// registered.
func (m *Manager) Deregister(path string) {
	m.mu.Lock()
	reader, exists := m.readers[path]
	if !exists {
		m.mu.Unlock()
		return
	}
	cancel := m.cancels[path]
	delete(m.readers, path)
	delete(m.cancels, path)
	m.mu.Unlock()

	cancel()
	reader.Close()
	m.log.Info("channel deregistered", "path", path)
}

// Channels returns the paths of all currently registered readers.
func (m *Manager) Channels() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	paths := make([]string, 0, len(m.readers))
	for p := range m.readers {
		paths = append(paths, p)
	}
	return paths
}

// Shutdown stops every reader and waits for their goroutines to exit.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	paths := make([]string, 0, len(m.readers))
	for p := range m.readers {
		paths = append(paths, p)
	}
	m.mu.Unlock()

	for _, p := range paths {
		m.Deregister(p)
	}
	m.wg.Wait()
}
