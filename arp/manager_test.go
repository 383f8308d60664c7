package arp

import (
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.universe.tf/softap/nif"
)

func TestHostAddrs(t *testing.T) {
	addrs := hostAddrs(netip.MustParsePrefix("192.168.0.0/24"))

	// Network and broadcast addresses excluded.
	require.Len(t, addrs, 254)
	assert.Equal(t, netip.MustParseAddr("192.168.0.1"), addrs[0])
	assert.Equal(t, netip.MustParseAddr("192.168.0.254"), addrs[253])

	assert.Empty(t, hostAddrs(netip.MustParsePrefix("10.0.0.1/32")))
	assert.Empty(t, hostAddrs(netip.MustParsePrefix("10.0.0.0/31")))
}

func testManager(ifc *fakeIfc) *Manager {
	m := NewManager(netip.MustParsePrefix("192.168.0.0/24"), time.Minute, "wlan0")
	m.resolver = testResolver()
	m.dial = func(name string) (Interface, func() error, error) {
		return ifc, func() error { return nil }, nil
	}
	return m
}

func TestManagerScan(t *testing.T) {
	ifc := newFakeIfc(16)
	ifc.frames <- replyFrame(t, mac1, netip.MustParseAddr("192.168.0.5"))

	m := testManager(ifc)
	require.NoError(t, m.Scan())

	// 254 requests for the /24, minus network and broadcast.
	assert.Len(t, ifc.sentFrames(), 254)

	cache := m.Cache()
	require.Len(t, cache, 1)
	assert.Equal(t, netip.MustParseAddr("192.168.0.5"), cache[0].Addr)
	assert.Equal(t, mac1, cache[0].MAC)

	addr, ok := m.LookupMAC(mac1)
	require.True(t, ok)
	assert.Equal(t, netip.MustParseAddr("192.168.0.5"), addr)
}

func TestManagerResolveLeavesCache(t *testing.T) {
	ifc := newFakeIfc(16)
	ifc.frames <- replyFrame(t, mac1, netip.MustParseAddr("192.168.0.5"))

	m := testManager(ifc)
	m.cache.Replace([]Entry{
		{Addr: netip.MustParseAddr("192.168.0.9"), MAC: mac2, CreatedAt: time.Now()},
	})

	// Resolve is the network half only: the cache keeps its old
	// contents until the caller applies the entries.
	entries, err := m.Resolve([]netip.Addr{netip.MustParseAddr("192.168.0.5")})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, mac1, entries[0].MAC)

	cache := m.Cache()
	require.Len(t, cache, 1)
	assert.Equal(t, netip.MustParseAddr("192.168.0.9"), cache[0].Addr)

	m.Replace(entries)
	cache = m.Cache()
	require.Len(t, cache, 1)
	assert.Equal(t, netip.MustParseAddr("192.168.0.5"), cache[0].Addr)
}

func TestManagerScanReplacesCache(t *testing.T) {
	ifc := newFakeIfc(16)
	ifc.frames <- replyFrame(t, mac1, netip.MustParseAddr("192.168.0.5"))

	m := testManager(ifc)
	require.NoError(t, m.Scan())
	require.Len(t, m.Cache(), 1)

	// Second scan with no replies wipes the cache wholesale.
	require.NoError(t, m.Scan())
	assert.Empty(t, m.Cache())
}

func TestManagerRefreshOnlyStale(t *testing.T) {
	ifc := newFakeIfc(16)
	m := testManager(ifc)

	// Nothing stale: refresh is a no-op, no interface dialed.
	m.dial = func(name string) (Interface, func() error, error) {
		t.Fatal("refresh with no stale entries must not dial")
		return nil, nil, nil
	}
	m.cache.Replace([]Entry{
		{Addr: netip.MustParseAddr("192.168.0.5"), MAC: mac1, CreatedAt: time.Now()},
	})
	require.NoError(t, m.Refresh())

	// Age the entry out and refresh again: only the stale address
	// is re-scanned.
	m.dial = func(name string) (Interface, func() error, error) {
		return ifc, func() error { return nil }, nil
	}
	m.cache.Replace([]Entry{
		{Addr: netip.MustParseAddr("192.168.0.5"), MAC: mac1, CreatedAt: time.Now().Add(-2 * time.Minute)},
	})
	ifc.frames <- replyFrame(t, mac1, netip.MustParseAddr("192.168.0.5"))
	require.NoError(t, m.Refresh())

	assert.Len(t, ifc.sentFrames(), 1)
	require.Len(t, m.Cache(), 1)
	assert.Equal(t, netip.MustParseAddr("192.168.0.5"), m.Cache()[0].Addr)
}

func TestManagerInterfaceNotFound(t *testing.T) {
	m := NewManager(netip.MustParsePrefix("192.168.0.0/24"), time.Minute, "definitely-not-a-real-interface-0")
	m.resolver = testResolver()

	err := m.Scan()
	assert.ErrorIs(t, err, nif.ErrInterfaceNotFound)
}
