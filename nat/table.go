package nat

import (
	"net/netip"
)

const (
	// MinPort is the lowest external port handed out by a Table.
	MinPort = 50000
	// MaxPort is the highest external port handed out by a Table,
	// inclusive.
	MaxPort = 65535

	portsPerAddr = MaxPort - MinPort + 1
)

// Table is a bijective mapping between internal and external
// ip:port pairs. It hands out external sockets from a configured
// pool of external addresses, walking the port range [MinPort,
// MaxPort] on each address in turn. Sockets freed by Delete go on a
// free list and are reused before the cursor advances.
//
// Table is not safe for concurrent use; callers serialize access.
type Table struct {
	// byInternal matches on outbound packet source sockets.
	byInternal map[netip.AddrPort]netip.AddrPort
	// byExternal matches on inbound packet destination sockets.
	byExternal map[netip.AddrPort]netip.AddrPort

	// External address pool and the allocation cursor into it.
	ips      []netip.Addr
	ipIndex  int
	nextPort int

	// Sockets released by Delete, reused before the cursor moves.
	free []netip.AddrPort

	available int
}

// NewTable returns a Table allocating from the given external
// addresses. Capacity is len(ips) * (MaxPort - MinPort + 1).
func NewTable(ips []netip.Addr) *Table {
	return &Table{
		byInternal: map[netip.AddrPort]netip.AddrPort{},
		byExternal: map[netip.AddrPort]netip.AddrPort{},
		ips:        append([]netip.Addr(nil), ips...),
		nextPort:   MinPort,
		available:  len(ips) * portsPerAddr,
	}
}

// Len returns the number of active entries.
func (t *Table) Len() int {
	return len(t.byInternal)
}

// Available returns the number of external sockets not yet
// allocated.
func (t *Table) Available() int {
	return t.available
}

// nextSocket takes the next unused external socket, preferring the
// free list over the cursor. Returns false when the pool is
// exhausted.
func (t *Table) nextSocket() (netip.AddrPort, bool) {
	if n := len(t.free); n > 0 {
		s := t.free[n-1]
		t.free = t.free[:n-1]
		return s, true
	}
	if t.ipIndex >= len(t.ips) {
		return netip.AddrPort{}, false
	}
	s := netip.AddrPortFrom(t.ips[t.ipIndex], uint16(t.nextPort))
	if t.nextPort == MaxPort {
		t.ipIndex++
		t.nextPort = MinPort
	} else {
		t.nextPort++
	}
	return s, true
}

// Add allocates an external socket for the given internal socket and
// records the pair. If internal is already mapped, its existing
// external socket is returned and nothing is allocated. Returns
// false when the pool is exhausted, with no mutation.
func (t *Table) Add(internal netip.AddrPort) (netip.AddrPort, bool) {
	if existing, ok := t.byInternal[internal]; ok {
		return existing, true
	}
	external, ok := t.nextSocket()
	if !ok {
		return netip.AddrPort{}, false
	}
	t.byInternal[internal] = external
	t.byExternal[external] = internal
	t.available--
	return external, true
}

// Delete removes the entry keyed by the internal socket and frees
// its external socket for reuse. Returns the freed external socket,
// or false if no entry existed.
func (t *Table) Delete(internal netip.AddrPort) (netip.AddrPort, bool) {
	external, ok := t.byInternal[internal]
	if !ok {
		return netip.AddrPort{}, false
	}
	delete(t.byInternal, internal)
	delete(t.byExternal, external)
	t.free = append(t.free, external)
	t.available++
	return external, true
}

// TranslateSource looks up the external socket mapped to an internal
// source socket (SNAT). Pure lookup, no mutation.
func (t *Table) TranslateSource(internal netip.AddrPort) (netip.AddrPort, bool) {
	external, ok := t.byInternal[internal]
	return external, ok
}

// TranslateDestination looks up the internal socket mapped to an
// external destination socket (DNAT). Pure lookup, no mutation.
func (t *Table) TranslateDestination(external netip.AddrPort) (netip.AddrPort, bool) {
	internal, ok := t.byExternal[external]
	return internal, ok
}
