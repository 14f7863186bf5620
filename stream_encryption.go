//
// SPDX-License-Identifier: GPL-3.0-or-later
//

package gosocket

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bassosimone/runtimex"
)

// EncryptionState is the lifecycle state of a [StreamEncryption].
type EncryptionState int

// Encryption states model the lifecycle of a non-blocking TLS handshake.
const (
	EncryptionIdle EncryptionState = iota
	EncryptionHandshaking
	EncryptionDone
	EncryptionFailed
	EncryptionCancelled
)

// String implements [fmt.Stringer].
func (s EncryptionState) String() string {
	switch s {
	case EncryptionIdle:
		return "Idle"
	case EncryptionHandshaking:
		return "Handshaking"
	case EncryptionDone:
		return "Done"
	case EncryptionFailed:
		return "Failed"
	case EncryptionCancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// StreamEncryption drives a non-blocking TLS handshake on top of an
// established [*Connection], exposing it as an explicit Idle → Handshaking
// → {Done, Failed, Cancelled} state machine rather than the blocking,
// synchronous [TLSHandshakeFunc.Call].
//
// Enable pauses the [Connection]'s read watcher for the duration of the
// handshake so that no application-level data event is ever delivered
// from the raw, not-yet-encrypted bytes streamed during negotiation, then
// resumes it (now reading through the negotiated [TLSConn]) once the
// handshake settles.
//
// Construct via [NewStreamEncryption].
type StreamEncryption struct {
	Engine        TLSEngine
	Config        *tls.Config
	ErrClassifier ErrClassifier
	Logger        SLogger

	mu    sync.Mutex
	state EncryptionState
}

// NewStreamEncryption returns a [*StreamEncryption] using cfg's
// [*tls.Config] and the standard library TLS engine.
func NewStreamEncryption(cfg *Config, logger SLogger) *StreamEncryption {
	runtimex.Assert(cfg.TLSConfig != nil)
	return &StreamEncryption{
		Engine:        TLSEngineStdlib{},
		Config:        cfg.TLSConfig,
		ErrClassifier: cfg.ErrClassifier,
		Logger:        logger,
		state:         EncryptionIdle,
	}
}

// State returns the current lifecycle state.
func (e *StreamEncryption) State() EncryptionState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *StreamEncryption) setState(s EncryptionState) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

// Enable performs the TLS handshake over conn's underlying stream and, on
// success, swaps conn to read from the resulting [TLSConn] before
// resuming its read watcher. serverName sets the handshake's SNI/verification
// name when non-empty.
//
// Enable must be called before conn's first [Connection.Resume], or after
// a caller-issued [Connection.Pause]; it is conn's read watcher, not
// Enable itself, that guarantees no raw bytes leak to data listeners.
func (e *StreamEncryption) Enable(ctx context.Context, conn *Connection, serverName string) *Promise[*Connection] {
	handshakeCtx, cancelHandshake := context.WithCancel(ctx)
	p, resolve, reject := NewPromise[*Connection](func() {
		e.setState(EncryptionCancelled)
		cancelHandshake()
	})

	e.setState(EncryptionHandshaking)
	conn.Pause()

	go func() {
		defer cancelHandshake()

		config := e.Config.Clone()
		if serverName != "" {
			config.ServerName = serverName
		}

		raw := conn.GetResource()
		tconn := e.Engine.Client(raw, config)

		e.Logger.Info(
			"streamEncryptionStart",
			slog.String("remoteAddr", conn.PeerAddr()),
			slog.String("tlsEngineName", e.Engine.Name()),
			slog.String("tlsServerName", config.ServerName),
		)

		err := tconn.HandshakeContext(handshakeCtx)
		state := tconn.ConnectionState()

		e.Logger.Info(
			"streamEncryptionDone",
			slog.Any("err", err),
			slog.String("errClass", e.ErrClassifier.Classify(err)),
			slog.String("remoteAddr", conn.PeerAddr()),
			slog.String("tlsNegotiatedProtocol", state.NegotiatedProtocol),
			slog.String("tlsVersion", tls.VersionName(state.Version)),
		)

		if handshakeCtx.Err() != nil {
			// Do not close tconn here: tls.Conn.Close always closes the
			// underlying net.Conn too, and spec requires the stream to
			// remain open and valid for the caller after cancellation.
			e.setState(EncryptionCancelled)
			conn.Resume()
			reject(ErrCancelled)
			return
		}
		if err != nil {
			// Same reasoning as above: the raw stream must survive a
			// failed handshake so the caller can still observe close/error
			// on it instead of finding it yanked out from under them.
			e.setState(EncryptionFailed)
			conn.Resume()
			reject(classifyHandshakeError(err))
			return
		}

		conn.swapResource(tconn)
		conn.setEncryptionEnabled(true)
		e.setState(EncryptionDone)
		conn.Resume()
		resolve(conn)
	}()

	return p
}

// classifyHandshakeError distinguishes a handshake interrupted by the
// peer closing the connection from any other TLS failure, so the reported
// message can distinguish "connection lost during TLS handshake" from a
// genuine handshake error.
func classifyHandshakeError(err error) error {
	if isEOF(err) {
		return fmt.Errorf("gosocket: connection lost during TLS handshake: %w", err)
	}
	return fmt.Errorf("gosocket: TLS handshake failed: %w", err)
}
