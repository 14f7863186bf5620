// SPDX-License-Identifier: GPL-3.0-or-later

package gosocket

import (
	"errors"
	"fmt"
)

// errDNSDisabled is reported when a hostname target is dialed with
// [Config.DNS] set to false, since resolution never runs in that mode.
var errDNSDisabled = errors.New("gosocket: hostname resolution disabled (dns=false)")

// ConnectionFailedError reports that every attempt to establish a
// connection failed, wrapping the per-attempt errors joined with
// [errors.Join].
//
// Host and Port identify the target the caller asked for; Errs holds one
// error per address (or per lookup, if resolution itself failed) in the
// order the failures were reported. DNSOnly is set when no address was ever obtained from
// either lookup.
type ConnectionFailedError struct {
	OriginalURI string
	Host        string
	Port        string
	DNSOnly     bool
	Errs        []error
}

// Error implements the error interface.
//
// When DNSOnly is set the message contains the substring "failed during
// DNS lookup"; otherwise it contains "Connection to <original-uri>
// failed" followed by the joined per-address failure messages.
func (e *ConnectionFailedError) Error() string {
	if e.DNSOnly {
		return fmt.Sprintf("gosocket: %s failed during DNS lookup: %s", e.target(), e.joined())
	}
	return fmt.Sprintf("gosocket: Connection to %s failed: %s", e.target(), e.joined())
}

func (e *ConnectionFailedError) joined() string {
	if len(e.Errs) == 0 {
		return "no addresses attempted"
	}
	return errors.Join(e.Errs...).Error()
}

// Unwrap allows [errors.Is] and [errors.As] to see through to the
// individual attempt errors.
func (e *ConnectionFailedError) Unwrap() []error {
	return e.Errs
}

func (e *ConnectionFailedError) target() string {
	if e.OriginalURI != "" {
		return e.OriginalURI
	}
	if e.Port == "" {
		return e.Host
	}
	return e.Host + ":" + e.Port
}

// newDNSFailedError builds a [*ConnectionFailedError] describing a
// resolution-only failure (no dial was ever attempted).
func newDNSFailedError(host, port string, errs ...error) *ConnectionFailedError {
	return &ConnectionFailedError{Host: host, Port: port, DNSOnly: true, Errs: errs}
}

// newConnectFailedError builds a [*ConnectionFailedError] describing at
// least one dial attempt that was made and failed.
func newConnectFailedError(host, port string, errs ...error) *ConnectionFailedError {
	return &ConnectionFailedError{Host: host, Port: port, Errs: errs}
}

// ListenerError wraps a panic recovered from a user-registered
// [Connection] listener. See [Connection.OnData], [Connection.OnEnd],
// [Connection.OnClose], and [Connection.OnError]: a panicking listener is
// reported here instead of crashing the read loop goroutine.
type ListenerError struct {
	Err error
}

// Error implements the error interface.
func (e *ListenerError) Error() string {
	return "gosocket: listener error: " + e.Err.Error()
}

// Unwrap supports [errors.Is]/[errors.As].
func (e *ListenerError) Unwrap() error {
	return e.Err
}
