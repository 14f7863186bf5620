//
// SPDX-License-Identifier: GPL-3.0-or-later
//

package gosocket

import (
	"context"
	"net/netip"
)

// BaseConnector establishes a plain TCP connection to a single
// [netip.AddrPort], without name resolution or dual-stack racing. It is
// the non-blocking building block [Connector] and [HappyEyeballsBuilder]
// compose on top of.
//
// Construct via [NewBaseConnector].
type BaseConnector struct {
	cfg    *Config
	logger SLogger
}

// NewBaseConnector returns a [*BaseConnector] wired from cfg.
func NewBaseConnector(cfg *Config, logger SLogger) *BaseConnector {
	return &BaseConnector{cfg: cfg, logger: logger}
}

// Connect dials addr over TCP, bounded by [Config.ConnectTimeout] (if
// positive) in addition to ctx, and returns a [*Connection] with the read
// loop not yet started (see [NewConnection]).
func (b *BaseConnector) Connect(ctx context.Context, addr netip.AddrPort) (*Connection, error) {
	dialCtx := ctx
	if b.cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, b.cfg.ConnectTimeout)
		defer cancel()
	}

	epntOp := NewEndpointFunc(addr)
	connectOp := NewConnectFunc(b.cfg, "tcp", b.logger)
	observeOp := NewObserveConnFunc(b.cfg, b.logger)
	cancelOp := NewCancelWatchFunc()
	pipe := Compose3(epntOp, connectOp, observeOp)

	rawConn, err := pipe.Call(dialCtx, Unit{})
	if err != nil {
		return nil, err
	}
	// The watcher is bound to ctx rather than dialCtx: dialCtx ends when
	// Connect returns, which would close the connection handed back.
	rawConn, _ = cancelOp.Call(ctx, rawConn)
	return NewConnection(rawConn, b.cfg, b.logger), nil
}

// ConnectPromise is [Connect] exposed as a [*Promise], for callers that
// want to race or chain it with [Then]/[Catch]/[All]/[Race] instead of
// blocking directly.
func (b *BaseConnector) ConnectPromise(ctx context.Context, addr netip.AddrPort) *Promise[*Connection] {
	attemptCtx, cancelAttempt := context.WithCancel(ctx)
	p, resolve, reject := NewPromise[*Connection](cancelAttempt)
	go func() {
		// attemptCtx stays live after fulfilment: the returned connection's
		// cancel watcher is bound to it.
		conn, err := b.Connect(attemptCtx, addr)
		if err != nil {
			cancelAttempt()
			reject(err)
			return
		}
		resolve(conn)
	}()
	return p
}
