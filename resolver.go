//
// SPDX-License-Identifier: GPL-3.0-or-later
//

package gosocket

import (
	"context"
	"fmt"
	"net"
	"net/netip"

	"github.com/bassosimone/dnscodec"
	"github.com/miekg/dns"
)

// Resolver maps a hostname to addresses of one address family.
//
// network is "ip4" or "ip6", mirroring [net.Resolver.LookupIP] and the
// LookupIPv4/LookupIPv6 hooks of the outline-sdk happy-eyeballs dialer this
// package's [HappyEyeballsBuilder] is grounded on.
type Resolver interface {
	LookupIP(ctx context.Context, network, host string) ([]net.IP, error)
}

// ResolverFunc adapts a function to the [Resolver] interface.
type ResolverFunc func(ctx context.Context, network, host string) ([]net.IP, error)

// LookupIP implements [Resolver].
func (f ResolverFunc) LookupIP(ctx context.Context, network, host string) ([]net.IP, error) {
	return f(ctx, network, host)
}

// qtypeForNetwork maps a [Resolver] network argument to a DNS query type.
func qtypeForNetwork(network string) (uint16, error) {
	switch network {
	case "ip4":
		return dns.TypeA, nil
	case "ip6":
		return dns.TypeAAAA, nil
	default:
		return 0, fmt.Errorf("gosocket: unsupported lookup network %q", network)
	}
}

// DefaultResolver resolves hostnames by speaking DNS-over-UDP to Server,
// retrying over DNS-over-TCP when the UDP response is truncated, per
// RFC 1035 section 4.2.1.
//
// Construct via [NewDefaultResolver] or [NewDefaultResolverWithServer].
type DefaultResolver struct {
	// Server is the DNS server endpoint (e.g. "8.8.8.8:53").
	Server netip.AddrPort

	cfg    *Config
	logger SLogger
}

// NewDefaultResolver returns a [*DefaultResolver] querying Google Public
// DNS (8.8.8.8:53) with a discard logger, matching the endpoint used by
// this package's own DNS pipeline examples.
func NewDefaultResolver() *DefaultResolver {
	return NewDefaultResolverWithServer(NewConfig(), netip.MustParseAddrPort("8.8.8.8:53"), DefaultSLogger())
}

// NewDefaultResolverWithServer returns a [*DefaultResolver] querying the
// given server, using cfg for dialing/logging defaults.
func NewDefaultResolverWithServer(cfg *Config, server netip.AddrPort, logger SLogger) *DefaultResolver {
	return &DefaultResolver{Server: server, cfg: cfg, logger: logger}
}

var _ Resolver = &DefaultResolver{}

// LookupIP implements [Resolver].
func (r *DefaultResolver) LookupIP(ctx context.Context, network, host string) ([]net.IP, error) {
	qtype, err := qtypeForNetwork(network)
	if err != nil {
		return nil, err
	}

	query := dnscodec.NewQuery(host, qtype)

	resp, err := r.exchangeUDP(ctx, query)
	if err != nil {
		return nil, err
	}
	if resp.Truncated {
		resp, err = r.exchangeTCP(ctx, query)
		if err != nil {
			return nil, err
		}
	}

	addrs, err := recordsForQtype(resp, qtype)
	if err != nil {
		return nil, err
	}
	ips := make([]net.IP, 0, len(addrs))
	for _, a := range addrs {
		ips = append(ips, net.ParseIP(a))
	}
	return ips, nil
}

func recordsForQtype(resp *dnscodec.Response, qtype uint16) ([]string, error) {
	if qtype == dns.TypeAAAA {
		return resp.RecordsAAAA()
	}
	return resp.RecordsA()
}

func (r *DefaultResolver) dialPipeline(network string) Func[Unit, net.Conn] {
	epntOp := NewEndpointFunc(r.Server)
	connectOp := NewConnectFunc(r.cfg, network, r.logger)
	observeOp := NewObserveConnFunc(r.cfg, r.logger)
	cancelOp := NewCancelWatchFunc()
	return Compose4(epntOp, connectOp, observeOp, cancelOp)
}

func (r *DefaultResolver) exchangeUDP(ctx context.Context, query *dnscodec.Query) (*dnscodec.Response, error) {
	wrapOp := NewDNSOverUDPConnFunc(r.cfg, r.logger)
	pipe := Compose2(r.dialPipeline("udp"), wrapOp)
	conn, err := pipe.Call(ctx, Unit{})
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	return conn.Exchange(ctx, query)
}

func (r *DefaultResolver) exchangeTCP(ctx context.Context, query *dnscodec.Query) (*dnscodec.Response, error) {
	wrapOp := NewDNSOverTCPConnFunc(r.cfg, r.logger)
	pipe := Compose2(r.dialPipeline("tcp"), wrapOp)
	conn, err := pipe.Call(ctx, Unit{})
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	return conn.Exchange(ctx, query)
}

// DoTResolver resolves hostnames over DNS-over-TLS against a single
// server, for callers that want DNS confidentiality without paying for a
// full HTTP round trip.
//
// Construct via [NewDoTResolver].
type DoTResolver struct {
	// ServerAddr is the DNS-over-TLS endpoint (e.g. "1.1.1.1:853").
	ServerAddr netip.AddrPort

	// ServerName is the TLS server name to present during the handshake.
	ServerName string

	cfg    *Config
	logger SLogger
}

// NewDoTResolver returns a [*DoTResolver] for Cloudflare's public
// DNS-over-TLS service.
func NewDoTResolver(cfg *Config, logger SLogger) *DoTResolver {
	return &DoTResolver{
		ServerAddr: netip.MustParseAddrPort("1.1.1.1:853"),
		ServerName: "cloudflare-dns.com",
		cfg:        cfg,
		logger:     logger,
	}
}

var _ Resolver = &DoTResolver{}

// LookupIP implements [Resolver].
func (r *DoTResolver) LookupIP(ctx context.Context, network, host string) ([]net.IP, error) {
	qtype, err := qtypeForNetwork(network)
	if err != nil {
		return nil, err
	}

	tlsConfig := r.cfg.TLSConfig.Clone()
	tlsConfig.ServerName = r.ServerName

	epntOp := NewEndpointFunc(r.ServerAddr)
	connectOp := NewConnectFunc(r.cfg, "tcp", r.logger)
	observeOp := NewObserveConnFunc(r.cfg, r.logger)
	cancelOp := NewCancelWatchFunc()
	tlsOp := NewTLSHandshakeFunc(r.cfg, tlsConfig, r.logger)
	dotOp := NewDNSOverTLSConnFunc(r.cfg, r.logger)

	pipe := Compose6(epntOp, connectOp, observeOp, cancelOp, tlsOp, dotOp)
	conn, err := pipe.Call(ctx, Unit{})
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	query := dnscodec.NewQuery(host, qtype)
	resp, err := conn.Exchange(ctx, query)
	if err != nil {
		return nil, err
	}

	addrs, err := recordsForQtype(resp, qtype)
	if err != nil {
		return nil, err
	}
	ips := make([]net.IP, 0, len(addrs))
	for _, a := range addrs {
		ips = append(ips, net.ParseIP(a))
	}
	return ips, nil
}

// DoHResolver resolves hostnames over DNS-over-HTTPS against a single
// HTTPS endpoint, for callers that need DNS traffic to blend in with
// ordinary HTTPS.
//
// Construct via [NewDoHResolver].
type DoHResolver struct {
	// URL is the DoH endpoint (e.g. "https://dns.google/dns-query").
	URL string

	// ServerAddr is the endpoint to connect to before the TLS handshake.
	ServerAddr netip.AddrPort

	// ServerName is the TLS server name to present during the handshake.
	ServerName string

	cfg    *Config
	logger SLogger
}

// NewDoHResolver returns a [*DoHResolver] for Google's public DoH service.
func NewDoHResolver(cfg *Config, logger SLogger) *DoHResolver {
	return &DoHResolver{
		URL:        "https://dns.google/dns-query",
		ServerAddr: netip.MustParseAddrPort("8.8.8.8:443"),
		ServerName: "dns.google",
		cfg:        cfg,
		logger:     logger,
	}
}

var _ Resolver = &DoHResolver{}

// LookupIP implements [Resolver].
func (r *DoHResolver) LookupIP(ctx context.Context, network, host string) ([]net.IP, error) {
	qtype, err := qtypeForNetwork(network)
	if err != nil {
		return nil, err
	}

	tlsConfig := r.cfg.TLSConfig.Clone()
	tlsConfig.ServerName = r.ServerName
	tlsConfig.NextProtos = []string{"h2", "http/1.1"}

	epntOp := NewEndpointFunc(r.ServerAddr)
	connectOp := NewConnectFunc(r.cfg, "tcp", r.logger)
	observeOp := NewObserveConnFunc(r.cfg, r.logger)
	cancelOp := NewCancelWatchFunc()
	tlsOp := NewTLSHandshakeFunc(r.cfg, tlsConfig, r.logger)
	httpOp := NewHTTPConnFuncTLS(r.cfg, r.logger)
	dohOp := NewDNSOverHTTPSConnFunc(r.cfg, r.URL, r.logger)

	pipe := Compose7(epntOp, connectOp, observeOp, cancelOp, tlsOp, httpOp, dohOp)
	conn, err := pipe.Call(ctx, Unit{})
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	query := dnscodec.NewQuery(host, qtype)
	resp, err := conn.Exchange(ctx, query)
	if err != nil {
		return nil, err
	}

	addrs, err := recordsForQtype(resp, qtype)
	if err != nil {
		return nil, err
	}
	ips := make([]net.IP, 0, len(addrs))
	for _, a := range addrs {
		ips = append(ips, net.ParseIP(a))
	}
	return ips, nil
}
