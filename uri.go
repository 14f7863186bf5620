//
// SPDX-License-Identifier: GPL-3.0-or-later
//

package gosocket

import (
	"fmt"
	"net"
	"net/url"
)

// BuildAttemptURI rewrites original, replacing its host with literal (an
// IPv6 address is bracketed automatically) and merging a
// hostname=<hostname> parameter into the query string, preserving every
// other component (scheme, userinfo, port, path, existing query,
// fragment). This lets the TLS upgrade layer recover the original
// hostname for SNI purely from the attempt URI produced for [BaseConnector].
func BuildAttemptURI(original string, literal net.IP, hostname string) (string, error) {
	u, err := url.Parse(original)
	if err != nil {
		return "", fmt.Errorf("gosocket: invalid URI %q: %w", original, err)
	}

	host := literal.String()
	if literal.To4() == nil {
		host = "[" + host + "]"
	}
	if port := u.Port(); port != "" {
		host = net.JoinHostPort(stripBrackets(host), port)
	}
	u.Host = userinfoPrefix(u) + host

	q := u.Query()
	q.Set("hostname", hostname)
	u.RawQuery = q.Encode()

	return u.String(), nil
}

func stripBrackets(host string) string {
	if len(host) >= 2 && host[0] == '[' && host[len(host)-1] == ']' {
		return host[1 : len(host)-1]
	}
	return host
}

func userinfoPrefix(u *url.URL) string {
	if u.User == nil {
		return ""
	}
	return u.User.String() + "@"
}

// ParseConnectURI parses a Connector-facing URI, validating that the
// scheme is one this package understands ("tcp" or "tls") and splitting
// out the host (literal or hostname) and port.
func ParseConnectURI(raw string) (scheme, host, port string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", "", fmt.Errorf("gosocket: invalid URI %q: %w", raw, err)
	}
	switch u.Scheme {
	case "tcp", "tls":
	default:
		return "", "", "", fmt.Errorf("gosocket: unsupported scheme %q", u.Scheme)
	}
	host = u.Hostname()
	if host == "" {
		return "", "", "", fmt.Errorf("gosocket: missing host in URI %q", raw)
	}
	port = u.Port()
	if port == "" {
		if u.Scheme == "tls" {
			port = "443"
		} else {
			port = "80"
		}
	}
	return u.Scheme, host, port, nil
}
