package ws

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// SSEClient writes feed events to a text/event-stream response. Every event
// carries an increasing id; keep-alive comments are only written when the
// stream has been idle.
type SSEClient struct {
	mu       sync.Mutex
	w        io.Writer
	flusher  http.Flusher
	log      *slog.Logger
	now      func() time.Time
	seq      uint64
	lastSent time.Time

	done chan struct{}
	once sync.Once
}

// NewSSEClient wraps an already started event-stream response.
func NewSSEClient(w io.Writer, flusher http.Flusher, logger *slog.Logger) *SSEClient {
	return newSSEClient(w, flusher, logger, time.Now)
}

func newSSEClient(w io.Writer, flusher http.Flusher, logger *slog.Logger, now func() time.Time) *SSEClient {
	return &SSEClient{
		w:        w,
		flusher:  flusher,
		log:      logger,
		now:      now,
		lastSent: now(),
		done:     make(chan struct{}),
	}
}

// Send writes payload as one event. Payloads are single-line JSON.
func (c *SSEClient) Send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writeLocked("event", func(w io.Writer) error {
		_, err := fmt.Fprintf(w, "id: %d\ndata: %s\n\n", c.seq+1, payload)
		if err == nil {
			c.seq++
		}
		return err
	})
}

// KeepAlive writes a comment frame if nothing has gone out for at least idle.
// It reports whether a frame was written.
func (c *SSEClient) KeepAlive(idle time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.now().Sub(c.lastSent) < idle {
		return false, nil
	}
	err := c.writeLocked("keepalive", func(w io.Writer) error {
		_, err := io.WriteString(w, ": keep-alive\n\n")
		return err
	})
	return err == nil, err
}

func (c *SSEClient) writeLocked(kind string, frame func(io.Writer) error) error {
	select {
	case <-c.done:
		return io.EOF
	default:
	}
	if err := frame(c.w); err != nil {
		c.log.Warn("sse write failed", "kind", kind, "error", err)
		c.Close()
		return err
	}
	c.flusher.Flush()
	c.lastSent = c.now()
	return nil
}

// Close ends the stream. It is safe to call more than once.
func (c *SSEClient) Close() {
	c.once.Do(func() { close(c.done) })
}

// Done is closed once the stream is closed.
func (c *SSEClient) Done() <-chan struct{} { return c.done }
