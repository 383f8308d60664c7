package arp

import (
	"net"
	"net/netip"
	"time"

	log "github.com/sirupsen/logrus"

	"go.universe.tf/softap/nif"
)

// Manager owns the resolution cache for one network range. Scan
// populates it from scratch; Refresh re-resolves only the entries
// that have gone stale.
//
// Manager is not safe for concurrent use; callers serialize cache
// access (Scan, Refresh, Replace, lookups) against each other.
// Resolve only touches the network and may run unserialized, which
// lets callers keep lookups flowing during a long listening window.
type Manager struct {
	prefix  netip.Prefix
	refresh time.Duration
	ifname  string

	cache    *Cache
	resolver *Resolver

	// dial opens the scan interface; swappable in tests.
	dial func(name string) (Interface, func() error, error)
}

// NewManager returns a Manager scanning the given range over the
// named wireless interface, with an empty cache. Entries older than
// refresh are considered stale.
func NewManager(prefix netip.Prefix, refresh time.Duration, ifname string) *Manager {
	return &Manager{
		prefix:   prefix.Masked(),
		refresh:  refresh,
		ifname:   ifname,
		cache:    NewCache(),
		resolver: NewResolver(),
		dial:     dialInterface,
	}
}

// Resolver exposes the scan timing knobs.
func (m *Manager) Resolver() *Resolver {
	return m.resolver
}

// Scan sweeps every host address in the range and replaces the
// cache with the collected replies.
func (m *Manager) Scan() error {
	return m.scan(hostAddrs(m.prefix))
}

// Refresh re-scans only the stale entries and replaces the cache
// with the results. Entries that were still fresh are discarded
// unless the refresh scan observed them again.
func (m *Manager) Refresh() error {
	stale := m.Stale()
	if len(stale) == 0 {
		return nil
	}
	return m.scan(stale)
}

// Stale returns the addresses whose cache entries are older than
// the refresh interval.
func (m *Manager) Stale() []netip.Addr {
	return m.cache.Stale(m.refresh)
}

// Resolve sweeps the given targets and returns the collected
// replies without touching the cache.
func (m *Manager) Resolve(targets []netip.Addr) ([]Entry, error) {
	ifc, closeIfc, err := m.dial(m.ifname)
	if err != nil {
		return nil, err
	}
	defer closeIfc()

	entries, err := m.resolver.Scan(ifc, targets)
	if err != nil {
		return nil, err
	}
	log.Debugf("arp: scanned %d targets, %d replies", len(targets), len(entries))
	return entries, nil
}

// Replace swaps the cache contents for the given entries.
func (m *Manager) Replace(entries []Entry) {
	m.cache.Replace(entries)
}

func (m *Manager) scan(targets []netip.Addr) error {
	entries, err := m.Resolve(targets)
	if err != nil {
		return err
	}
	m.cache.Replace(entries)
	return nil
}

// Cache returns a snapshot of the current cache contents.
func (m *Manager) Cache() []Entry {
	return m.cache.Entries()
}

// LookupMAC returns the IPv4 address cached for the given hardware
// address, first match.
func (m *Manager) LookupMAC(mac net.HardwareAddr) (netip.Addr, bool) {
	return m.cache.LookupMAC(mac)
}

// LookupAddr returns the hardware address cached for the given IPv4
// address, first match.
func (m *Manager) LookupAddr(addr netip.Addr) (net.HardwareAddr, bool) {
	return m.cache.LookupAddr(addr)
}

func dialInterface(name string) (Interface, func() error, error) {
	ifc, err := nif.Resolve(name)
	if err != nil {
		return nil, nil, err
	}
	return ifc, ifc.Close, nil
}

// hostAddrs expands a prefix into its host addresses, excluding the
// network and broadcast addresses.
func hostAddrs(prefix netip.Prefix) []netip.Addr {
	prefix = prefix.Masked()

	var addrs []netip.Addr
	for a := prefix.Addr(); prefix.Contains(a); a = a.Next() {
		addrs = append(addrs, a)
	}
	if len(addrs) <= 2 {
		return nil
	}
	return addrs[1 : len(addrs)-1]
}
