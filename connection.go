//
// SPDX-License-Identifier: GPL-3.0-or-later
//

package gosocket

import (
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/bassosimone/safeconn"
)

// connReadBufferSize bounds each chunk delivered to onData listeners.
const connReadBufferSize = 32 * 1024

// Connection is the user-facing duplex stream produced by [BaseConnector],
// [HappyEyeballsBuilder], and [Connector]. It owns a non-blocking
// [net.Conn] exclusively and emits data/end/close/error events to
// registered listeners, in the order they were added.
//
// Listeners registered for the same event run in insertion order. A
// listener that panics is recovered and reported on the error channel
// instead of crashing the read loop (see [ListenerError]).
type Connection struct {
	mu      sync.Mutex
	conn    net.Conn
	peer    string
	reading bool
	closed  bool

	encryptionEnabled bool

	onData  []func([]byte)
	onEnd   []func()
	onClose []func()
	onError []func(error)

	readWG sync.WaitGroup

	ErrClassifier ErrClassifier
	Logger        SLogger
	TimeNow       func() time.Time
}

// NewConnection wraps an already-connected, non-blocking [net.Conn] as a
// [Connection]. The connection starts with reading disabled: callers must
// invoke [Connection.Resume] to start the read loop. This lets
// [StreamEncryption] and [Connector] perform a TLS handshake on the raw
// stream without needing to interrupt an in-flight read, so that no
// application data is ever delivered from the raw, not-yet-encrypted bytes.
func NewConnection(conn net.Conn, cfg *Config, logger SLogger) *Connection {
	return &Connection{
		conn:          conn,
		peer:          safeconn.RemoteAddr(conn),
		ErrClassifier: cfg.ErrClassifier,
		Logger:        logger,
		TimeNow:       cfg.TimeNow,
	}
}

// PeerAddr returns the remote address captured at construction time.
func (c *Connection) PeerAddr() string {
	return c.peer
}

// EncryptionEnabled reports whether [StreamEncryption] has completed a
// handshake on this connection.
func (c *Connection) EncryptionEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.encryptionEnabled
}

// GetResource returns the underlying [net.Conn] for low-level access by
// [StreamEncryption]. Callers other than StreamEncryption should not read
// or write it directly while the Connection's read loop is running.
func (c *Connection) GetResource() net.Conn {
	return c.conn
}

// swapResource replaces the underlying stream, used by [StreamEncryption]
// once the TLS handshake has produced a [TLSConn] wrapping the raw stream.
func (c *Connection) swapResource(conn net.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn = conn
}

func (c *Connection) setEncryptionEnabled(v bool) {
	c.mu.Lock()
	c.encryptionEnabled = v
	c.mu.Unlock()
}

// OnData registers a listener invoked with each chunk of bytes read from
// the stream, in byte order.
func (c *Connection) OnData(fn func([]byte)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onData = append(c.onData, fn)
}

// OnEnd registers a listener invoked once, after EOF, before close.
func (c *Connection) OnEnd(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onEnd = append(c.onEnd, fn)
}

// OnClose registers a listener invoked exactly once when the connection
// closes, whether by [Connection.Close], EOF, or a read/write error.
func (c *Connection) OnClose(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onClose = append(c.onClose, fn)
}

// OnError registers a listener invoked when the stream fails or when a
// registered listener panics (see [ListenerError]).
func (c *Connection) OnError(fn func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = append(c.onError, fn)
}

// Write writes bytes to the stream. A short write due to a non-writable
// socket is surfaced to the caller rather than silently buffered: callers
// that need backpressure-aware buffering should track the returned count.
func (c *Connection) Write(data []byte) (int, error) {
	c.mu.Lock()
	conn := c.conn
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return 0, net.ErrClosed
	}
	return conn.Write(data)
}

// Pause deregisters the read watcher: the read loop goroutine, if running,
// exits without delivering further events, and the underlying stream is
// left open and valid for another owner (e.g. [StreamEncryption]) to read
// from directly.
func (c *Connection) Pause() {
	c.mu.Lock()
	if !c.reading || c.closed {
		c.mu.Unlock()
		return
	}
	c.reading = false
	conn := c.conn
	c.mu.Unlock()

	// Force the in-flight Read to return so the loop observes c.reading
	// == false on its next iteration instead of blocking indefinitely.
	_ = conn.SetReadDeadline(time.Unix(0, 1))
	c.readWG.Wait()
	_ = conn.SetReadDeadline(time.Time{})
}

// Resume (re-)registers the read watcher, starting the read loop if it is
// not already running.
func (c *Connection) Resume() {
	c.mu.Lock()
	if c.reading || c.closed {
		c.mu.Unlock()
		return
	}
	c.reading = true
	c.mu.Unlock()

	c.readWG.Add(1)
	go c.readLoop()
}

func (c *Connection) readLoop() {
	defer c.readWG.Done()

	buf := make([]byte, connReadBufferSize)
	for {
		c.mu.Lock()
		paused, closed, conn := !c.reading, c.closed, c.conn
		c.mu.Unlock()
		if paused || closed {
			return
		}

		n, err := conn.Read(buf)

		c.mu.Lock()
		pausedNow := !c.reading
		c.mu.Unlock()
		if pausedNow && isDeadlineExceeded(err) {
			// Pause-induced interruption: not a real stream event.
			return
		}

		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			c.emitData(chunk)
		}

		if err != nil {
			if err.Error() == "EOF" || isEOF(err) {
				c.emitEnd()
			} else {
				c.emitError(err)
			}
			c.Close()
			return
		}
	}
}

func isEOF(err error) bool {
	return err != nil && err.Error() == "EOF"
}

func isDeadlineExceeded(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}

// Close is idempotent: only the first call closes the underlying stream
// and emits close; later calls are no-ops.
func (c *Connection) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.reading = false
	conn := c.conn
	c.mu.Unlock()

	err := conn.Close()
	c.emitClose()
	return err
}

func (c *Connection) emitData(chunk []byte) {
	c.mu.Lock()
	listeners := append([]func([]byte){}, c.onData...)
	c.mu.Unlock()
	for _, fn := range listeners {
		c.invokeGuarded(func() { fn(chunk) })
	}
}

func (c *Connection) emitEnd() {
	c.mu.Lock()
	listeners := append([]func(){}, c.onEnd...)
	c.mu.Unlock()
	for _, fn := range listeners {
		c.invokeGuarded(fn)
	}
}

func (c *Connection) emitClose() {
	c.mu.Lock()
	listeners := append([]func(){}, c.onClose...)
	c.mu.Unlock()
	for _, fn := range listeners {
		c.invokeGuarded(fn)
	}
}

func (c *Connection) emitError(err error) {
	c.Logger.Info(
		"connectionError",
		slog.Any("err", err),
		slog.String("errClass", c.ErrClassifier.Classify(err)),
		slog.String("remoteAddr", c.peer),
		slog.Time("t", c.TimeNow()),
	)
	c.mu.Lock()
	listeners := append([]func(error){}, c.onError...)
	c.mu.Unlock()
	for _, fn := range listeners {
		errCopy := err
		c.invokeGuarded(func() { fn(errCopy) })
	}
}

// invokeGuarded runs fn, recovering a panic and reporting it on the error
// channel instead of letting it escape to the read loop's goroutine
// (see [ListenerError]): it is re-emitted on the Connection's error
// channel and never propagated to the scheduler.
func (c *Connection) invokeGuarded(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.mu.Lock()
			listeners := append([]func(error){}, c.onError...)
			c.mu.Unlock()
			err := &ListenerError{Err: panicError{value: r}}
			for _, errFn := range listeners {
				errFn(err)
			}
		}
	}()
	fn()
}

// panicError wraps a recovered panic value as an error.
type panicError struct {
	value any
}

func (p panicError) Error() string {
	return "gosocket: listener panicked: " + formatPanic(p.value)
}

func formatPanic(v any) string {
	if err, ok := v.(error); ok {
		return err.Error()
	}
	if s, ok := v.(string); ok {
		return s
	}
	return "unknown panic value"
}
