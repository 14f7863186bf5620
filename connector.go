//
// SPDX-License-Identifier: GPL-3.0-or-later
//

package gosocket

import (
	"context"
	"net"
	"net/netip"
)

// Connector is the user-facing facade: given a URI of the shape
// scheme://[user[:pass]@]host[:port][/path][?query][#fragment] with
// scheme "tcp" or "tls", it dials host (an IP literal via [BaseConnector]
// directly, or a hostname via [HappyEyeballsBuilder]) and, for "tls",
// chains a [StreamEncryption] handshake before delivering the
// [*Connection] to the caller.
//
// Construct via [NewConnector].
type Connector struct {
	base  *BaseConnector
	happy *HappyEyeballsBuilder
	cfg   *Config
}

// NewConnector returns a [*Connector] wired from cfg.
func NewConnector(cfg *Config, logger SLogger) *Connector {
	return &Connector{
		base:  NewBaseConnector(cfg, logger),
		happy: NewHappyEyeballsBuilder(cfg, logger),
		cfg:   cfg,
	}
}

// Connect parses rawURI and establishes a connection to it, as described
// on [Connector].
func (c *Connector) Connect(ctx context.Context, rawURI string) (*Connection, error) {
	scheme, host, port, err := ParseConnectURI(rawURI)
	if err != nil {
		return nil, err
	}

	conn, err := c.dial(ctx, host, port)
	if err != nil {
		if cfe, ok := err.(*ConnectionFailedError); ok {
			cfe.OriginalURI = rawURI
		}
		return nil, err
	}

	if scheme != "tls" {
		conn.Resume()
		return conn, nil
	}

	enc := NewStreamEncryption(c.cfg, c.base.logger)
	result, err := enc.Enable(ctx, conn, host).Wait(ctx)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return result, nil
}

func (c *Connector) dial(ctx context.Context, host, port string) (*Connection, error) {
	if ip := net.ParseIP(host); ip != nil {
		addr, err := addrPortFromIP(ip, port)
		if err != nil {
			return nil, err
		}
		return c.base.Connect(ctx, addr)
	}
	if !c.cfg.DNS {
		return nil, newDNSFailedError(host, port, errDNSDisabled)
	}
	if !c.cfg.HappyEyeballs {
		return c.dialSequential(ctx, host, port)
	}
	return c.happy.DialContext(ctx, host, port)
}

// dialSequential resolves host and dials the returned addresses in
// resolver order, without RFC 8305 racing, for [Config.HappyEyeballs] ==
// false. A is tried before AAAA: it is the universally-routable family
// when dual-stack racing is disabled.
func (c *Connector) dialSequential(ctx context.Context, host, port string) (*Connection, error) {
	var errs []error
	gotAddr := false
	for _, network := range []string{"ip4", "ip6"} {
		ips, err := c.cfg.Resolver.LookupIP(ctx, network, host)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		gotAddr = gotAddr || len(ips) > 0
		for _, ip := range ips {
			addr, err := addrPortFromIP(ip, port)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			conn, err := c.base.Connect(ctx, addr)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			return conn, nil
		}
	}
	if !gotAddr {
		return nil, newDNSFailedError(host, port, errs...)
	}
	return nil, newConnectFailedError(host, port, errs...)
}

func addrPortFromIP(ip net.IP, port string) (netip.AddrPort, error) {
	return netip.ParseAddrPort(net.JoinHostPort(ip.String(), port))
}
