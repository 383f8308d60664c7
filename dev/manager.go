package dev

import (
	"net"
	"net/netip"
)

// Resolver is the slice of the ARP manager the device manager
// needs: a cache sweep and hardware address lookups against its
// result. Satisfied by *arp.Manager.
type Resolver interface {
	Scan() error
	LookupMAC(mac net.HardwareAddr) (netip.Addr, bool)
}

// Manager discovers the devices connected to the access point by
// joining kernel station records with the resolution cache.
type Manager struct {
	ifname   string
	stations StationSource
	resolver Resolver
}

// NewManager returns a Manager enumerating stations on the named
// wireless interface. A nil source defaults to nl80211.
func NewManager(ifname string, stations StationSource, resolver Resolver) *Manager {
	if stations == nil {
		stations = NL80211{}
	}
	return &Manager{ifname: ifname, stations: stations, resolver: resolver}
}

// Scan refreshes the resolution cache, then lists associated
// stations with their cached IPv4 addresses attached. Stations the
// cache cannot name keep the zero Addr.
func (m *Manager) Scan() ([]Device, error) {
	if err := m.resolver.Scan(); err != nil {
		return nil, err
	}

	stations, err := m.stations.Stations(m.ifname)
	if err != nil {
		return nil, err
	}

	devices := make([]Device, 0, len(stations))
	for _, s := range stations {
		addr, _ := m.resolver.LookupMAC(s.MAC)
		devices = append(devices, Device{
			MAC:       s.MAC,
			Addr:      addr,
			Signal:    s.Signal,
			Connected: s.Connected,
		})
	}
	return devices, nil
}
