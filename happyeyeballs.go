//
// SPDX-License-Identifier: GPL-3.0-or-later
//

package gosocket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"time"
)

// HappyEyeballsBuilder establishes a TCP connection to a hostname using
// RFC 8305 ("Happy Eyeballs v2") dual-stack racing: AAAA and A lookups run
// in parallel, the A lookup's result is withheld for up to ResolutionDelay
// while AAAA is pending so a fast IPv6 path is preferred, resolved addresses are interleaved IPv6/IPv4, and
// connection attempts are staggered by ConnectionAttemptDelay so a slow
// address does not block faster ones behind it.
//
// Construct via [NewHappyEyeballsBuilder].
type HappyEyeballsBuilder struct {
	Resolver      Resolver
	Dialer        Dialer
	ErrClassifier ErrClassifier
	Logger        SLogger
	TimeNow       func() time.Time

	ResolutionDelay        time.Duration
	ConnectionAttemptDelay time.Duration
	ConnectTimeout         time.Duration

	// IPv6Precheck skips the AAAA lookup entirely when the host has no
	// usable IPv6 source address.
	IPv6Precheck bool

	// hasIPv6Source reports whether a usable IPv6 source address exists.
	// Overridable in tests; defaults to inspecting [net.InterfaceAddrs].
	hasIPv6Source func() bool
}

// NewHappyEyeballsBuilder returns a [*HappyEyeballsBuilder] wired from cfg.
func NewHappyEyeballsBuilder(cfg *Config, logger SLogger) *HappyEyeballsBuilder {
	return &HappyEyeballsBuilder{
		Resolver:               cfg.Resolver,
		Dialer:                 cfg.Dialer,
		ErrClassifier:          cfg.ErrClassifier,
		Logger:                 logger,
		TimeNow:                cfg.TimeNow,
		ResolutionDelay:        cfg.ResolutionDelay,
		ConnectionAttemptDelay: cfg.ConnectionAttemptDelay,
		ConnectTimeout:         cfg.ConnectTimeout,
		IPv6Precheck:           cfg.IPv6Precheck,
		hasIPv6Source:          hasUsableIPv6Source,
	}
}

// hasUsableIPv6Source reports whether any local interface holds a
// routable (non-loopback, non-link-local) IPv6 address, per RFC 8305's
// guidance that a host with no IPv6 connectivity should not bother
// querying AAAA records.
func hasUsableIPv6Source() bool {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return true
	}
	for _, a := range addrs {
		ipNet, ok := a.(*net.IPNet)
		if !ok {
			continue
		}
		ip := ipNet.IP
		if ip.To4() != nil {
			continue
		}
		if ip.IsLoopback() || ip.IsLinkLocalUnicast() {
			continue
		}
		return true
	}
	return false
}

// DialContext resolves host and races TCP connection attempts to the
// resulting addresses on port, returning the first successful
// [*Connection] and cancelling every other in-flight attempt and lookup.
//
// If every attempt fails, DialContext returns a [*ConnectionFailedError]
// joining the per-attempt (or per-lookup) errors.
func (b *HappyEyeballsBuilder) DialContext(ctx context.Context, host, port string) (*Connection, error) {
	searchCtx, searchDone := context.WithCancel(ctx)
	defer searchDone()

	spanID := NewSpanID()
	logger := b.loggerWithSpan(spanID)

	lookup6Ch := make(chan lookupResult, 1)
	lookup4Ch := make(chan lookupResult, 1)

	// aaaaSettled closes the instant the AAAA lookup produces a result
	// (including the IPv6-precheck short-circuit), letting the A lookup's
	// result be released early instead of always waiting the full
	// ResolutionDelay.
	aaaaSettled := make(chan struct{})

	go func() {
		defer close(aaaaSettled)
		if b.IPv6Precheck && b.hasIPv6Source != nil && !b.hasIPv6Source() {
			lookup6Ch <- lookupResult{}
			return
		}
		ips, err := b.Resolver.LookupIP(searchCtx, "ip6", host)
		if err != nil {
			err = fmt.Errorf("AAAA lookup failed: %w", err)
		}
		lookup6Ch <- lookupResult{ips, err}
	}()
	go func() {
		// The A lookup itself starts immediately and runs concurrently with
		// the AAAA lookup; only delivery of its result to the scheduler is
		// withheld, for ResolutionDelay or until AAAA settles, whichever
		// comes first.
		ips, err := b.Resolver.LookupIP(searchCtx, "ip4", host)
		if err != nil {
			err = fmt.Errorf("A lookup failed: %w", err)
		}

		gate := time.NewTimer(b.resolutionDelay())
		defer gate.Stop()
		select {
		case <-gate.C:
		case <-aaaaSettled:
		case <-searchCtx.Done():
			return
		}

		select {
		case lookup4Ch <- lookupResult{ips, err}:
		case <-searchCtx.Done():
		}
	}()

	queue := &addrQueue{}
	dialCh := make(chan dialResult)
	var dialTimer *time.Timer
	defer func() {
		if dialTimer != nil {
			dialTimer.Stop()
		}
	}()
	var dialWaitCh <-chan time.Time = closedTimeChan()
	var lookupErrs []error
	var dialErrs []error
	pendingDials := 0

	for opsPending := 2; opsPending > 0 || pendingDials > 0; {
		var readyToDialCh <-chan time.Time
		if queue.len() > 0 {
			readyToDialCh = dialWaitCh
		}

		select {
		case res := <-lookup4Ch:
			opsPending--
			lookup4Ch = nil
			if res.err != nil {
				lookupErrs = append(lookupErrs, res.err)
				continue
			}
			queue.push("ip4", res.ips)

		case res := <-lookup6Ch:
			opsPending--
			lookup6Ch = nil
			if res.err != nil {
				lookupErrs = append(lookupErrs, res.err)
				continue
			}
			queue.push("ip6", res.ips)

		case <-readyToDialCh:
			ip, ok := queue.pop()
			if !ok {
				continue
			}
			// The stagger timer runs on its own clock, independent of this
			// attempt's lifetime: a dial that completes (success or
			// failure) well inside ConnectionAttemptDelay must not pull the
			// next attempt's launch forward, per RFC 8305 §5 ("the delay
			// only bounds their launch cadence").
			if dialTimer != nil {
				dialTimer.Stop()
			}
			dialTimer = time.NewTimer(b.connectionAttemptDelay())
			dialWaitCh = dialTimer.C
			pendingDials++
			go b.attemptDial(searchCtx, ctx, ip, port, logger, dialCh)

		case res := <-dialCh:
			pendingDials--
			if res.err != nil {
				dialErrs = append(dialErrs, res.err)
				continue
			}
			return res.conn, nil

		case <-searchCtx.Done():
			return nil, searchCtx.Err()
		}
	}

	if len(dialErrs) > 0 {
		return nil, newConnectFailedError(host, port, dialErrs...)
	}
	if len(lookupErrs) == 0 {
		lookupErrs = append(lookupErrs, errors.New("no addresses returned by resolver"))
	}
	return nil, newDNSFailedError(host, port, lookupErrs...)
}

func (b *HappyEyeballsBuilder) attemptDial(
	ctx, connCtx context.Context, ip net.IP, port string, logger SLogger, out chan<- dialResult) {
	addrPort, err := netip.ParseAddrPort(net.JoinHostPort(ip.String(), port))
	if err != nil {
		select {
		case <-ctx.Done():
		case out <- dialResult{nil, err}:
		}
		return
	}

	cfg := &Config{
		Dialer:        b.Dialer,
		ErrClassifier: b.ErrClassifier,
		TimeNow:       b.TimeNow,
	}
	dialCtx := ctx
	var cancelTimeout context.CancelFunc
	if b.ConnectTimeout > 0 {
		dialCtx, cancelTimeout = context.WithTimeout(ctx, b.ConnectTimeout)
		defer cancelTimeout()
	}

	connectOp := NewConnectFunc(cfg, "tcp", logger)
	observeOp := NewObserveConnFunc(cfg, logger)
	cancelOp := NewCancelWatchFunc()
	pipe := Compose2(Compose2(NewEndpointFunc(addrPort), connectOp), observeOp)

	rawConn, err := pipe.Call(dialCtx, Unit{})
	if err != nil {
		select {
		case <-ctx.Done():
		case out <- dialResult{nil, err}:
		}
		return
	}
	// The watcher is bound to connCtx, the caller's context: dialCtx and
	// ctx both end when DialContext returns, which would close the winner.
	rawConn, _ = cancelOp.Call(connCtx, rawConn)

	conn := NewConnection(rawConn, cfg, logger)
	select {
	case <-ctx.Done():
		conn.Close()
	case out <- dialResult{conn, nil}:
	}
}

func (b *HappyEyeballsBuilder) loggerWithSpan(spanID string) SLogger {
	return &spanLogger{base: b.Logger, spanID: spanID}
}

func (b *HappyEyeballsBuilder) resolutionDelay() time.Duration {
	if b.ResolutionDelay > 0 {
		return b.ResolutionDelay
	}
	return 50 * time.Millisecond
}

func (b *HappyEyeballsBuilder) connectionAttemptDelay() time.Duration {
	if b.ConnectionAttemptDelay > 0 {
		return b.ConnectionAttemptDelay
	}
	return 250 * time.Millisecond
}

// closedTimeChan returns an already-closed time.Time channel, so the first
// dial attempt can proceed immediately instead of waiting out a stagger
// timer that has nothing yet to stagger against.
func closedTimeChan() <-chan time.Time {
	ch := make(chan time.Time)
	close(ch)
	return ch
}

// spanLogger tags every record with a span ID, letting a single dial race
// correlate its resolution, dial, and connect events across concurrent
// attempts in structured-log output.
type spanLogger struct {
	base   SLogger
	spanID string
}

func (l *spanLogger) Debug(msg string, args ...any) {
	l.base.Debug(msg, append([]any{slog.String("spanID", l.spanID)}, args...)...)
}

func (l *spanLogger) Info(msg string, args ...any) {
	l.base.Info(msg, append([]any{slog.String("spanID", l.spanID)}, args...)...)
}
