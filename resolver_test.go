// SPDX-License-Identifier: GPL-3.0-or-later

package gosocket

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"testing"

	"github.com/bassosimone/netstub"
	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// qtypeForNetwork maps the Resolver network argument to the matching DNS
// query type, and rejects anything else.
func TestQtypeForNetwork(t *testing.T) {
	qtype, err := qtypeForNetwork("ip4")
	require.NoError(t, err)
	assert.Equal(t, dns.TypeA, qtype)

	qtype, err = qtypeForNetwork("ip6")
	require.NoError(t, err)
	assert.Equal(t, dns.TypeAAAA, qtype)

	_, err = qtypeForNetwork("ip")
	assert.Error(t, err)
}

// ResolverFunc adapts a plain function to the Resolver interface.
func TestResolverFunc(t *testing.T) {
	want := []net.IP{net.ParseIP("127.0.0.1")}
	var fn Resolver = ResolverFunc(func(ctx context.Context, network, host string) ([]net.IP, error) {
		assert.Equal(t, "ip4", network)
		assert.Equal(t, "example.com", host)
		return want, nil
	})

	got, err := fn.LookupIP(context.Background(), "ip4", "example.com")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

// NewDefaultResolver defaults to Google Public DNS over UDP/TCP.
func TestNewDefaultResolver(t *testing.T) {
	r := NewDefaultResolver()
	require.NotNil(t, r)
	assert.Equal(t, netip.MustParseAddrPort("8.8.8.8:53"), r.Server)
}

// NewDefaultResolverWithServer wires the given server and config.
func TestNewDefaultResolverWithServer(t *testing.T) {
	cfg := NewConfig()
	server := netip.MustParseAddrPort("1.1.1.1:53")
	r := NewDefaultResolverWithServer(cfg, server, DefaultSLogger())

	assert.Equal(t, server, r.Server)
}

// LookupIP rejects an unsupported network without attempting a dial.
func TestDefaultResolverLookupIPUnsupportedNetwork(t *testing.T) {
	dialed := false
	cfg := NewConfig()
	cfg.Dialer = &netstub.FuncDialer{
		DialContextFunc: func(ctx context.Context, network, address string) (net.Conn, error) {
			dialed = true
			return nil, errors.New("should not be called")
		},
	}

	r := NewDefaultResolverWithServer(cfg, netip.MustParseAddrPort("8.8.8.8:53"), DefaultSLogger())
	_, err := r.LookupIP(context.Background(), "ip", "example.com")

	require.Error(t, err)
	assert.False(t, dialed)
}

// LookupIP surfaces a dial failure against the configured server.
func TestDefaultResolverLookupIPDialError(t *testing.T) {
	wantErr := errors.New("network unreachable")
	cfg := NewConfig()
	cfg.Dialer = &netstub.FuncDialer{
		DialContextFunc: func(ctx context.Context, network, address string) (net.Conn, error) {
			return nil, wantErr
		},
	}

	r := NewDefaultResolverWithServer(cfg, netip.MustParseAddrPort("8.8.8.8:53"), DefaultSLogger())
	_, err := r.LookupIP(context.Background(), "ip4", "example.com")

	require.Error(t, err)
}

// LookupIP surfaces a write failure from the UDP exchange.
func TestDefaultResolverLookupIPWriteError(t *testing.T) {
	wantErr := errors.New("write error")
	cfg := NewConfig()
	cfg.Dialer = &netstub.FuncDialer{
		DialContextFunc: func(ctx context.Context, network, address string) (net.Conn, error) {
			conn := newMinimalConn()
			conn.CloseFunc = func() error { return nil }
			conn.WriteFunc = func(b []byte) (int, error) { return 0, wantErr }
			return conn, nil
		},
	}

	r := NewDefaultResolverWithServer(cfg, netip.MustParseAddrPort("8.8.8.8:53"), DefaultSLogger())
	_, err := r.LookupIP(context.Background(), "ip4", "example.com")

	require.Error(t, err)
}

// NewDoTResolver defaults to Cloudflare's public DoT endpoint.
func TestNewDoTResolver(t *testing.T) {
	r := NewDoTResolver(NewConfig(), DefaultSLogger())

	require.NotNil(t, r)
	assert.Equal(t, netip.MustParseAddrPort("1.1.1.1:853"), r.ServerAddr)
	assert.Equal(t, "cloudflare-dns.com", r.ServerName)
}

// DoTResolver.LookupIP rejects an unsupported network before dialing.
func TestDoTResolverLookupIPUnsupportedNetwork(t *testing.T) {
	dialed := false
	cfg := NewConfig()
	cfg.Dialer = &netstub.FuncDialer{
		DialContextFunc: func(ctx context.Context, network, address string) (net.Conn, error) {
			dialed = true
			return nil, errors.New("should not be called")
		},
	}

	r := NewDoTResolver(cfg, DefaultSLogger())
	_, err := r.LookupIP(context.Background(), "ip", "example.com")

	require.Error(t, err)
	assert.False(t, dialed)
}

// DoTResolver.LookupIP surfaces a dial failure.
func TestDoTResolverLookupIPDialError(t *testing.T) {
	wantErr := errors.New("connection refused")
	cfg := NewConfig()
	cfg.Dialer = &netstub.FuncDialer{
		DialContextFunc: func(ctx context.Context, network, address string) (net.Conn, error) {
			return nil, wantErr
		},
	}

	r := NewDoTResolver(cfg, DefaultSLogger())
	_, err := r.LookupIP(context.Background(), "ip4", "example.com")

	require.Error(t, err)
}

// NewDoHResolver defaults to Google's public DoH endpoint.
func TestNewDoHResolver(t *testing.T) {
	r := NewDoHResolver(NewConfig(), DefaultSLogger())

	require.NotNil(t, r)
	assert.Equal(t, "https://dns.google/dns-query", r.URL)
	assert.Equal(t, netip.MustParseAddrPort("8.8.8.8:443"), r.ServerAddr)
	assert.Equal(t, "dns.google", r.ServerName)
}

// DoHResolver.LookupIP rejects an unsupported network before dialing.
func TestDoHResolverLookupIPUnsupportedNetwork(t *testing.T) {
	dialed := false
	cfg := NewConfig()
	cfg.Dialer = &netstub.FuncDialer{
		DialContextFunc: func(ctx context.Context, network, address string) (net.Conn, error) {
			dialed = true
			return nil, errors.New("should not be called")
		},
	}

	r := NewDoHResolver(cfg, DefaultSLogger())
	_, err := r.LookupIP(context.Background(), "ip", "example.com")

	require.Error(t, err)
	assert.False(t, dialed)
}

// DoHResolver.LookupIP surfaces a dial failure.
func TestDoHResolverLookupIPDialError(t *testing.T) {
	wantErr := errors.New("connection refused")
	cfg := NewConfig()
	cfg.Dialer = &netstub.FuncDialer{
		DialContextFunc: func(ctx context.Context, network, address string) (net.Conn, error) {
			return nil, wantErr
		},
	}

	r := NewDoHResolver(cfg, DefaultSLogger())
	_, err := r.LookupIP(context.Background(), "ip4", "example.com")

	require.Error(t, err)
}
