//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: https://github.com/rbmk-project/rbmk/blob/v0.17.0/pkg/common/errclass/errclass.go
//

// Package errclass maps network and TLS errors onto short, stable labels
// suitable for structured logging and measurement aggregation.
//
// The mapping prefers the most specific classification available: a wrapped
// [syscall.Errno] takes precedence over a generic [net.Error] timeout, which
// in turn takes precedence over the catch-all EGENERIC label.
package errclass

import (
	"context"
	"crypto/x509"
	"errors"
	"io"
	"net"
)

// Error class labels. These are intentionally terse and stable: callers
// persist them alongside measurement results, so renaming one is a
// breaking change for downstream consumers.
const (
	EEOF               = "EOF"
	ECANCELED          = "ECANCELED"
	EADDRNOTAVAIL      = "EADDRNOTAVAIL"
	EADDRINUSE         = "EADDRINUSE"
	ECONNABORTED       = "ECONNABORTED"
	ECONNREFUSED       = "ECONNREFUSED"
	ECONNRESET         = "ECONNRESET"
	EHOSTUNREACH       = "EHOSTUNREACH"
	EINVAL             = "EINVAL"
	EINTR              = "EINTR"
	ENETDOWN           = "ENETDOWN"
	ENETUNREACH        = "ENETUNREACH"
	ENOBUFS            = "ENOBUFS"
	ENOTCONN           = "ENOTCONN"
	EPROTONOSUPPORT    = "EPROTONOSUPPORT"
	ETIMEDOUT          = "ETIMEDOUT"
	EDNSNXDOMAIN       = "EDNSNXDOMAIN"
	EDNSNODATA         = "EDNSNODATA"
	ETLSCERTIFICATE    = "ETLSCERTIFICATE"
	EGENERIC           = "EGENERIC"
)

// ErrNXDomain and ErrNoData are sentinels that DNS resolution code can wrap
// (via %w) so that New classifies the result as EDNSNXDOMAIN/EDNSNODATA
// instead of falling through to EGENERIC.
var (
	ErrNXDomain = errors.New("errclass: name does not exist")
	ErrNoData   = errors.New("errclass: name exists but has no records of the requested type")
)

// New classifies err into one of the labels declared above.
//
// New returns the empty string for a nil error, matching the convention
// used by [ErrClassifier] implementations throughout this module: an
// empty errClass field means "no error occurred".
func New(err error) string {
	if err == nil {
		return ""
	}

	// 1. Context-level cancellation/timeout takes precedence: these are
	// caller-driven outcomes, not properties of the network path.
	switch {
	case errors.Is(err, context.Canceled):
		return ECANCELED
	case errors.Is(err, context.DeadlineExceeded):
		return ETIMEDOUT
	}

	// 2. EOF is common enough (TLS handshake abort, DNS truncation) to
	// deserve its own label rather than falling through to EGENERIC.
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return EEOF
	}

	switch {
	case errors.Is(err, ErrNXDomain):
		return EDNSNXDOMAIN
	case errors.Is(err, ErrNoData):
		return EDNSNODATA
	}

	// 3. TLS certificate validation failures: these are not socket errors
	// and classifying them as EGENERIC would hide an important signal.
	var hostnameErr x509.HostnameError
	var unknownAuthorityErr x509.UnknownAuthorityError
	var certInvalidErr x509.CertificateInvalidError
	if errors.As(err, &hostnameErr) || errors.As(err, &unknownAuthorityErr) || errors.As(err, &certInvalidErr) {
		return ETLSCERTIFICATE
	}

	// 4. POSIX/Winsock errno, as reported by the dialer or the kernel.
	if errno, ok := classifyErrno(err); ok {
		return errno
	}

	// 5. Fall back to net.Error's own timeout signal (covers platforms or
	// error paths where the errno is not exposed, e.g. some net.OpError
	// cases on exotic resolvers).
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ETIMEDOUT
	}

	return EGENERIC
}

// classifyErrno maps a wrapped platform errno to its label. The errno
// constants themselves are declared per-platform in unix.go/windows.go.
func classifyErrno(err error) (string, bool) {
	switch {
	case errors.Is(err, errEADDRNOTAVAIL):
		return EADDRNOTAVAIL, true
	case errors.Is(err, errEADDRINUSE):
		return EADDRINUSE, true
	case errors.Is(err, errECONNABORTED):
		return ECONNABORTED, true
	case errors.Is(err, errECONNREFUSED):
		return ECONNREFUSED, true
	case errors.Is(err, errECONNRESET):
		return ECONNRESET, true
	case errors.Is(err, errEHOSTUNREACH):
		return EHOSTUNREACH, true
	case errors.Is(err, errEINVAL):
		return EINVAL, true
	case errors.Is(err, errEINTR):
		return EINTR, true
	case errors.Is(err, errENETDOWN):
		return ENETDOWN, true
	case errors.Is(err, errENETUNREACH):
		return ENETUNREACH, true
	case errors.Is(err, errENOBUFS):
		return ENOBUFS, true
	case errors.Is(err, errENOTCONN):
		return ENOTCONN, true
	case errors.Is(err, errEPROTONOSUPPORT):
		return EPROTONOSUPPORT, true
	case errors.Is(err, errETIMEDOUT):
		return ETIMEDOUT, true
	}
	return "", false
}
