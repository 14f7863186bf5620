// SPDX-License-Identifier: GPL-3.0-or-later

package gosocket

import (
	"crypto/tls"
	"net"
	"time"
)

// Config holds common configuration for gosocket operations.
//
// Pass this to constructor functions to pre-wire dependencies.
// All fields have sensible defaults set by [NewConfig].
type Config struct {
	// Dialer is used by [*ConnectFunc].
	//
	// Set by [NewConfig] to [*net.Dialer].
	Dialer Dialer

	// ErrClassifier classifies errors for structured logging.
	//
	// Set by [NewConfig] to [DefaultErrClassifier].
	ErrClassifier ErrClassifier

	// TimeNow returns the current time.
	//
	// Set by [NewConfig] to [time.Now].
	TimeNow func() time.Time

	// Resolver performs hostname-to-address lookups for [Connector] and
	// [HappyEyeballsBuilder].
	//
	// Set by [NewConfig] to [NewDefaultResolver].
	Resolver Resolver

	// TLSConfig is cloned by [StreamEncryption] for every handshake.
	//
	// Set by [NewConfig] to a minimal non-nil [*tls.Config] so ServerName
	// can be filled in per-attempt without mutating a shared config.
	TLSConfig *tls.Config

	// DNS enables hostname resolution in [Connector]. When false, only IP
	// literals can be dialed; a hostname target is rejected with a
	// DNS-only [*ConnectionFailedError] instead of consulting Resolver.
	//
	// Set by [NewConfig] to true.
	DNS bool

	// HappyEyeballs enables RFC 8305 dual-stack racing in [Connector]. When
	// false, [Connector] dials the resolved addresses in resolver order
	// without interleaving or staggering.
	//
	// Set by [NewConfig] to true.
	HappyEyeballs bool

	// IPv6Precheck skips the AAAA lookup when the host has no usable IPv6
	// source address.
	//
	// Set by [NewConfig] to true.
	IPv6Precheck bool

	// ConnectTimeout bounds a single TCP connect attempt. Zero means no
	// per-attempt timeout beyond the caller's context.
	//
	// Set by [NewConfig] to 10 seconds.
	ConnectTimeout time.Duration

	// ResolutionDelay is how long [HappyEyeballsBuilder] withholds the A
	// lookup's result while the AAAA lookup is still pending, per RFC 8305
	// section 3. Both lookups start at the same time.
	//
	// Set by [NewConfig] to 50 milliseconds.
	ResolutionDelay time.Duration

	// ConnectionAttemptDelay staggers successive connection attempts in
	// [HappyEyeballsBuilder], per RFC 8305 section 5.
	//
	// Set by [NewConfig] to 250 milliseconds.
	ConnectionAttemptDelay time.Duration
}

// NewConfig creates a [*Config] with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Dialer:                 &net.Dialer{},
		ErrClassifier:          DefaultErrClassifier,
		TimeNow:                time.Now,
		Resolver:               NewDefaultResolver(),
		TLSConfig:              &tls.Config{MinVersion: tls.VersionTLS12},
		DNS:                    true,
		HappyEyeballs:          true,
		IPv6Precheck:           true,
		ConnectTimeout:         10 * time.Second,
		ResolutionDelay:        50 * time.Millisecond,
		ConnectionAttemptDelay: 250 * time.Millisecond,
	}
}
