// Package arp resolves IPv4 addresses to hardware addresses on an
// attached subnet: it sweeps a network range with broadcast ARP
// requests, collects replies into a timestamped cache, and re-scans
// entries as they go stale.
package arp

import (
	"bytes"
	"net"
	"net/netip"
	"time"
)

// Entry is one cached resolution: an IPv4 address, the hardware
// address that answered for it, and when the answer arrived.
type Entry struct {
	Addr      netip.Addr
	MAC       net.HardwareAddr
	CreatedAt time.Time
}

// Cache is an append-only list of resolutions. Entries are not
// deduplicated: a host that answers twice appears twice, and
// lookups return the first match. Replace swaps the whole contents
// after a scan.
//
// Cache is not safe for concurrent use; callers serialize access.
type Cache struct {
	entries []Entry

	// Timestamp source, swappable in tests.
	now func() time.Time
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{now: time.Now}
}

// Add appends a resolution stamped with the current time.
func (c *Cache) Add(addr netip.Addr, mac net.HardwareAddr) {
	c.entries = append(c.entries, Entry{Addr: addr, MAC: mac, CreatedAt: c.now()})
}

// Replace discards the cache contents in favor of the given entries.
func (c *Cache) Replace(entries []Entry) {
	c.entries = append([]Entry(nil), entries...)
}

// Len returns the number of entries, counting duplicates.
func (c *Cache) Len() int {
	return len(c.entries)
}

// Entries returns a snapshot copy of the cache contents.
func (c *Cache) Entries() []Entry {
	return append([]Entry(nil), c.entries...)
}

// Stale returns the addresses of entries at least refresh old.
func (c *Cache) Stale(refresh time.Duration) []netip.Addr {
	now := c.now()
	var stale []netip.Addr
	for _, e := range c.entries {
		if now.Sub(e.CreatedAt) >= refresh {
			stale = append(stale, e.Addr)
		}
	}
	return stale
}

// LookupMAC returns the IPv4 address of the first entry carrying
// the given hardware address.
func (c *Cache) LookupMAC(mac net.HardwareAddr) (netip.Addr, bool) {
	for _, e := range c.entries {
		if bytes.Equal(e.MAC, mac) {
			return e.Addr, true
		}
	}
	return netip.Addr{}, false
}

// LookupAddr returns the hardware address of the first entry for
// the given IPv4 address.
func (c *Cache) LookupAddr(addr netip.Addr) (net.HardwareAddr, bool) {
	for _, e := range c.entries {
		if e.Addr == addr {
			return e.MAC, true
		}
	}
	return nil, false
}
