package server

import (
	"context"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// ShutdownHandler runs registered hooks once, on a signal or on Shutdown.
type ShutdownHandler struct {
	mu           sync.Mutex
	hooks        []ShutdownHook
	timeout      time.Duration
	signals      []os.Signal
	logger       *zap.Logger
	shutdownCh   chan struct{}
	doneCh       chan struct{}
	started      bool
	shutdownOnce sync.Once
	doneOnce     sync.Once
}

// ShutdownHook is a function called during shutdown.
type ShutdownHook struct {
	Name     string
	Priority int // Lower priority runs first
	Fn       func(ctx context.Context) error
}

// ShutdownConfig configures the shutdown handler.
type ShutdownConfig struct {
	// Timeout for all hooks together (default: 30s)
	Timeout time.Duration
	// Signals to listen for (default: SIGTERM, SIGINT)
	Signals []os.Signal
	Logger  *zap.Logger
}

// DefaultShutdownConfig returns default configuration.
func DefaultShutdownConfig() *ShutdownConfig {
	return &ShutdownConfig{
		Timeout: 30 * time.Second,
		Signals: []os.Signal{syscall.SIGTERM, syscall.SIGINT},
	}
}

// NewShutdownHandler creates a new shutdown handler. Zero fields in config
// take the defaults.
func NewShutdownHandler(config *ShutdownConfig) *ShutdownHandler {
	def := DefaultShutdownConfig()
	if config == nil {
		config = def
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = def.Timeout
	}
	signals := config.Signals
	if len(signals) == 0 {
		signals = def.Signals
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &ShutdownHandler{
		timeout:    timeout,
		signals:    signals,
		logger:     logger,
		shutdownCh: make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
}

// RegisterHook adds a shutdown hook.
func (s *ShutdownHandler) RegisterHook(name string, priority int, fn func(ctx context.Context) error) {
	s.Register(ShutdownHook{Name: name, Priority: priority, Fn: fn})
}

// Register adds prebuilt hooks, keeping registration order within a priority.
func (s *ShutdownHandler) Register(hooks ...ShutdownHook) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.hooks = append(s.hooks, hooks...)
	sort.SliceStable(s.hooks, func(i, j int) bool {
		return s.hooks[i].Priority < s.hooks[j].Priority
	})
}

// Start begins listening for shutdown signals.
func (s *ShutdownHandler) Start() {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, s.signals...)

	go func() {
		select {
		case sig := <-sigCh:
			signal.Stop(sigCh)
			s.logger.Info("shutdown signal received", zap.String("signal", sig.String()))
			s.shutdownOnce.Do(func() { close(s.shutdownCh) })
		case <-s.shutdownCh:
			signal.Stop(sigCh)
		}
		s.shutdown()
	}()
}

// Shutdown triggers a manual shutdown. It is a no-op before Start.
func (s *ShutdownHandler) Shutdown() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	s.shutdownOnce.Do(func() {
		close(s.shutdownCh)
	})
}

// Wait blocks until shutdown is complete.
func (s *ShutdownHandler) Wait() {
	<-s.doneCh
}

// WaitWithTimeout blocks until shutdown is complete or timeout.
func (s *ShutdownHandler) WaitWithTimeout(timeout time.Duration) bool {
	select {
	case <-s.doneCh:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Done returns a channel that closes when shutdown is complete.
func (s *ShutdownHandler) Done() <-chan struct{} {
	return s.doneCh
}

// ShutdownCh returns a channel that closes when shutdown starts.
func (s *ShutdownHandler) ShutdownCh() <-chan struct{} {
	return s.shutdownCh
}

func (s *ShutdownHandler) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	s.mu.Lock()
	hooks := make([]ShutdownHook, len(s.hooks))
	copy(hooks, s.hooks)
	s.mu.Unlock()

	// A failing hook never stops the ones after it.
	for _, hook := range hooks {
		start := time.Now()
		if err := hook.Fn(ctx); err != nil {
			s.logger.Error("shutdown hook failed", zap.String("hook", hook.Name), zap.Error(err))
			continue
		}
		s.logger.Debug("shutdown hook done", zap.String("hook", hook.Name), zap.Duration("elapsed", time.Since(start)))
	}

	s.doneOnce.Do(func() {
		close(s.doneCh)
	})
}

// Common shutdown hooks

// HTTPServerShutdownHook creates a hook for HTTP server shutdown.
func HTTPServerShutdownHook(name string, shutdownFn func(ctx context.Context) error) ShutdownHook {
	return ShutdownHook{
		Name:     name,
		Priority: 10, // Run early to stop accepting new connections
		Fn:       shutdownFn,
	}
}

// WatcherShutdownHook stops the corpus watcher.
func WatcherShutdownHook(cancel context.CancelFunc) ShutdownHook {
	return ShutdownHook{
		Name:     "corpus-watcher",
		Priority: 20,
		Fn: func(ctx context.Context) error {
			cancel()
			return nil
		},
	}
}

// VectorStoreShutdownHook closes the external vector store connection.
func VectorStoreShutdownHook(closeFn func() error) ShutdownHook {
	return ShutdownHook{
		Name:     "vector-store",
		Priority: 70,
		Fn: func(ctx context.Context) error {
			return closeFn()
		},
	}
}

// TracingShutdownHook creates a hook for tracing provider shutdown.
func TracingShutdownHook(shutdownFn func(ctx context.Context) error) ShutdownHook {
	return ShutdownHook{
		Name:     "tracing",
		Priority: 80,
		Fn:       shutdownFn,
	}
}

// LoggerSyncHook flushes buffered log entries last.
func LoggerSyncHook(logger *zap.Logger) ShutdownHook {
	return ShutdownHook{
		Name:     "logger",
		Priority: 100,
		Fn: func(ctx context.Context) error {
			// stderr sync fails on some platforms; nothing to recover.
			_ = logger.Sync()
			return nil
		},
	}
}
