package explorer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"btc-wallet-sync/internal/observability"
)

// WatcherConfig configures TipWatcher behavior.
type WatcherConfig struct {
	// ReconnectDelay is initial delay before reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
}

// DefaultWatcherConfig returns default watcher configuration.
func DefaultWatcherConfig() WatcherConfig {
	return WatcherConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       90 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}

// TipNotification is emitted when the chain tip advances.
type TipNotification struct {
	Height int64
	Hash   string
}

// TipWatcher subscribes to an Esplora-style websocket block feed and
// surfaces new-block notifications. It reconnects automatically with
// exponential backoff.
type TipWatcher struct {
	endpoint string
	config   WatcherConfig
	logger   *slog.Logger
	metrics  *observability.Metrics

	conn   *websocket.Conn
	connMu sync.Mutex
	closed atomic.Bool

	blocks chan TipNotification
	done   chan struct{}
	wg     sync.WaitGroup
}

// WatcherOption configures a TipWatcher.
type WatcherOption func(*TipWatcher)

// WithWatcherLogger sets the logger.
func WithWatcherLogger(l *slog.Logger) WatcherOption {
	return func(w *TipWatcher) {
		w.logger = l
	}
}

// WithWatcherMetrics attaches Prometheus metrics.
func WithWatcherMetrics(m *observability.Metrics) WatcherOption {
	return func(w *TipWatcher) {
		w.metrics = m
	}
}

// WithWatcherConfig overrides the default timing configuration.
func WithWatcherConfig(cfg WatcherConfig) WatcherOption {
	return func(w *TipWatcher) {
		w.config = cfg
	}
}

// NewTipWatcher creates a watcher, connects and starts the read loop.
func NewTipWatcher(ctx context.Context, endpoint string, opts ...WatcherOption) (*TipWatcher, error) {
	w := &TipWatcher{
		endpoint: endpoint,
		config:   DefaultWatcherConfig(),
		logger:   slog.Default(),
		blocks:   make(chan TipNotification, 8),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	if err := w.connect(ctx); err != nil {
		return nil, err
	}

	w.wg.Add(2)
	go w.readLoop()
	go w.pingLoop()

	return w, nil
}

// Blocks returns the notification channel. It is closed on shutdown.
func (w *TipWatcher) Blocks() <-chan TipNotification {
	return w.blocks
}

// Close shuts the watcher down and closes the notification channel.
func (w *TipWatcher) Close() error {
	if !w.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(w.done)

	w.connMu.Lock()
	if w.conn != nil {
		w.conn.Close()
	}
	w.connMu.Unlock()

	w.wg.Wait()
	close(w.blocks)
	return nil
}

// connect establishes the websocket connection and subscribes to blocks.
func (w *TipWatcher) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}

	conn, _, err := dialer.DialContext(ctx, w.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	// Esplora-style subscription: ask for block events.
	sub := map[string]any{"action": "want", "data": []string{"blocks"}}
	conn.SetWriteDeadline(time.Now().Add(w.config.WriteTimeout))
	if err := conn.WriteJSON(sub); err != nil {
		conn.Close()
		return fmt.Errorf("subscribe to blocks: %w", err)
	}

	w.connMu.Lock()
	w.conn = conn
	w.connMu.Unlock()
	return nil
}

// tipMessage is the raw feed payload; only block events are of interest.
type tipMessage struct {
	Block *struct {
		ID     string `json:"id"`
		Height int64  `json:"height"`
	} `json:"block"`
}

func (w *TipWatcher) readLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return
		default:
		}

		w.connMu.Lock()
		conn := w.conn
		w.connMu.Unlock()

		conn.SetReadDeadline(time.Now().Add(w.config.ReadTimeout))
		_, data, err := conn.ReadMessage()
		if err != nil {
			if w.closed.Load() {
				return
			}
			w.logger.Warn("tip watcher read failed, reconnecting", "error", err)
			if !w.reconnect() {
				return
			}
			continue
		}

		var msg tipMessage
		if err := json.Unmarshal(data, &msg); err != nil || msg.Block == nil {
			continue
		}

		if w.metrics != nil {
			w.metrics.TipNotifications.Inc()
		}
		w.logger.Info("new block", "height", msg.Block.Height, "hash", msg.Block.ID)

		// Drop notifications nobody is draining rather than block the loop.
		select {
		case w.blocks <- TipNotification{Height: msg.Block.Height, Hash: msg.Block.ID}:
		default:
		}
	}
}

// reconnect retries the connection with exponential backoff until it
// succeeds or the watcher is closed. Returns false on shutdown.
func (w *TipWatcher) reconnect() bool {
	delay := w.config.ReconnectDelay

	for {
		select {
		case <-w.done:
			return false
		case <-time.After(delay):
		}

		if w.metrics != nil {
			w.metrics.TipReconnects.Inc()
		}

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		err := w.connect(ctx)
		cancel()
		if err == nil {
			w.logger.Info("tip watcher reconnected")
			return true
		}

		w.logger.Warn("tip watcher reconnect failed", "delay", delay, "error", err)
		delay *= 2
		if delay > w.config.MaxReconnectDelay {
			delay = w.config.MaxReconnectDelay
		}
	}
}

func (w *TipWatcher) pingLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.connMu.Lock()
			conn := w.conn
			if conn != nil {
				conn.SetWriteDeadline(time.Now().Add(w.config.WriteTimeout))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					w.logger.Debug("ping failed", "error", err)
				}
			}
			w.connMu.Unlock()
		}
	}
}
