// Package dev enumerates stations associated with the access
// point's wireless interface and attaches IPv4 addresses to them
// from the address resolution cache.
package dev

import (
	"fmt"
	"net"
	"net/netip"
	"time"

	"github.com/mdlayher/wifi"

	"go.universe.tf/softap/nif"
)

// Device is one associated station.
type Device struct {
	// MAC is the station's hardware address.
	MAC net.HardwareAddr `json:"mac"`
	// Addr is the station's IPv4 address, or the zero Addr when
	// the resolution cache has no entry for it.
	Addr netip.Addr `json:"ipv4"`
	// Signal is the strength of the last received signal, in dBm.
	Signal int `json:"signal_dbm"`
	// Connected is how long the station has been associated.
	Connected time.Duration `json:"connected"`
}

// Station is the raw per-station record from the kernel.
type Station struct {
	MAC       net.HardwareAddr
	Signal    int
	Connected time.Duration
}

// StationSource lists the stations associated with a named wireless
// interface.
type StationSource interface {
	Stations(ifname string) ([]Station, error)
}

// NL80211 lists stations through the kernel's nl80211 interface.
type NL80211 struct{}

// Stations implements StationSource.
func (NL80211) Stations(ifname string) ([]Station, error) {
	c, err := wifi.New()
	if err != nil {
		return nil, fmt.Errorf("connecting to nl80211: %w", err)
	}
	defer c.Close()

	ifis, err := c.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("listing wireless interfaces: %w", err)
	}
	var ifi *wifi.Interface
	for _, i := range ifis {
		if i.Name == ifname {
			ifi = i
			break
		}
	}
	if ifi == nil {
		return nil, fmt.Errorf("%w: %q", nif.ErrInterfaceNotFound, ifname)
	}

	infos, err := c.StationInfo(ifi)
	if err != nil {
		return nil, fmt.Errorf("listing stations on %q: %w", ifname, err)
	}

	stations := make([]Station, 0, len(infos))
	for _, si := range infos {
		stations = append(stations, Station{
			MAC:       si.HardwareAddr,
			Signal:    si.Signal,
			Connected: si.Connected,
		})
	}
	return stations, nil
}
