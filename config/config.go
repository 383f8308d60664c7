// Package config holds the access point's static configuration.
package config

import (
	"fmt"
	"net/netip"
	"time"
)

// Config describes one access point deployment: the hotspot
// identity, the internal network it serves, and the external
// addresses it translates to.
type Config struct {
	// Hotspot identity.
	SSID       string
	Passphrase string
	Security   string
	// Band is the radio band: "2.4" or "5".
	Band string

	// Internal network.
	Range   netip.Prefix
	Gateway netip.Addr

	// Interfaces: the wireless side facing stations and the uplink
	// carrying translated traffic out.
	WirelessInterface string
	UplinkInterface   string

	// External addresses available for translation.
	ExternalAddrs []netip.Addr

	// RefreshInterval is the age at which resolution cache entries
	// go stale.
	RefreshInterval time.Duration

	// Queue is the NFQUEUE number the run loop attaches to.
	Queue uint16
}

// Default returns the stock configuration: a 192.168.0.0/24 network
// gatewayed at .1 on the 2.4 GHz band.
func Default() Config {
	return Config{
		Security:          "wpa-psk",
		Band:              "2.4",
		Range:             netip.MustParsePrefix("192.168.0.0/24"),
		Gateway:           netip.MustParseAddr("192.168.0.1"),
		WirelessInterface: "wlan0",
		UplinkInterface:   "eth0",
		RefreshInterval:   60 * time.Second,
		Queue:             42,
	}
}

// ParseRange parses an IPv4 CIDR like "192.168.0.0/24".
func ParseRange(s string) (netip.Prefix, error) {
	prefix, err := netip.ParsePrefix(s)
	if err != nil {
		return netip.Prefix{}, fmt.Errorf("parsing CIDR %q: %w", s, err)
	}
	if !prefix.Addr().Is4() {
		return netip.Prefix{}, fmt.Errorf("parsing CIDR %q: not IPv4", s)
	}
	return prefix.Masked(), nil
}

// ParseExternal parses a list of external IPv4 addresses.
func ParseExternal(addrs []string) ([]netip.Addr, error) {
	var out []netip.Addr
	for _, s := range addrs {
		a, err := netip.ParseAddr(s)
		if err != nil || !a.Is4() {
			return nil, fmt.Errorf("parsing external address %q", s)
		}
		out = append(out, a)
	}
	return out, nil
}

// NMBand maps the configured band to NetworkManager's 802-11
// wireless band values: "bg" for 2.4 GHz, "a" for 5 GHz. Unknown
// values fall back to 2.4 GHz.
func (c Config) NMBand() string {
	if c.Band == "5" {
		return "a"
	}
	return "bg"
}
