//
// SPDX-License-Identifier: GPL-3.0-or-later
//

package gosocket

import (
	"math/rand"
	"net"
)

// lookupResult is the outcome of one address-family lookup, mirroring the
// outline-sdk happy-eyeballs dialer's internal LookupResult type.
type lookupResult struct {
	ips []net.IP
	err error
}

// dialResult is the outcome of one dial attempt.
type dialResult struct {
	conn *Connection
	err  error
}

// addrQueue is the merge cursor over resolved addresses: a FIFO drained by
// the dialer as lookups complete, interleaved IPv6/IPv4 per RFC 8305
// section 4 (a v6, then a v4, alternating) rather than appended in
// arrival order.
type addrQueue struct {
	v6, v4   []net.IP
	lastPop6 bool
}

// push appends newly resolved addresses of one family, shuffled among
// themselves via [math/rand.Shuffle] for load distribution before joining
// the queue.
func (q *addrQueue) push(network string, ips []net.IP) {
	shuffled := append([]net.IP(nil), ips...)
	rand.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	switch network {
	case "ip6":
		q.v6 = append(q.v6, shuffled...)
	case "ip4":
		q.v4 = append(q.v4, shuffled...)
	}
}

// len reports how many addresses are queued across both families.
func (q *addrQueue) len() int {
	return len(q.v6) + len(q.v4)
}

// pop removes and returns the next address to dial, alternating address
// families starting with IPv6 whenever both are available, per RFC 8305
// section 4's interleaving recommendation; it falls back to whichever
// family still has addresses once the other is exhausted.
func (q *addrQueue) pop() (net.IP, bool) {
	popV6 := func() (net.IP, bool) {
		ip := q.v6[0]
		q.v6 = q.v6[1:]
		q.lastPop6 = true
		return ip, true
	}
	popV4 := func() (net.IP, bool) {
		ip := q.v4[0]
		q.v4 = q.v4[1:]
		q.lastPop6 = false
		return ip, true
	}

	switch {
	case len(q.v6) == 0 && len(q.v4) == 0:
		return nil, false
	case len(q.v6) == 0:
		return popV4()
	case len(q.v4) == 0:
		return popV6()
	case q.lastPop6:
		return popV4()
	default:
		return popV6()
	}
}
