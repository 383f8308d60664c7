// Package hotspot drives the hotspot connection lifecycle through
// NetworkManager's D-Bus interface: create, activate, deactivate,
// delete.
package hotspot

import (
	"fmt"

	"github.com/godbus/dbus/v5"

	"go.universe.tf/softap/config"
)

const (
	nmService  = "org.freedesktop.NetworkManager"
	nmPath     = dbus.ObjectPath("/org/freedesktop/NetworkManager")
	nmSettings = dbus.ObjectPath("/org/freedesktop/NetworkManager/Settings")
)

// Connection is a saved hotspot connection profile.
type Connection struct {
	bus    *dbus.Conn
	path   dbus.ObjectPath
	active dbus.ObjectPath
	ifname string
}

// Create saves a hotspot connection profile with NetworkManager:
// AP-mode 802.11 on the configured band, WPA-PSK, shared IPv4 with
// the configured gateway address. The profile is not activated.
func Create(cfg config.Config) (*Connection, error) {
	bus, err := dbus.SystemBus()
	if err != nil {
		return nil, fmt.Errorf("connecting to system bus: %w", err)
	}

	var path dbus.ObjectPath
	call := bus.Object(nmService, nmSettings).Call(
		"org.freedesktop.NetworkManager.Settings.AddConnection", 0,
		connectionSettings(cfg),
	)
	if err := call.Store(&path); err != nil {
		return nil, fmt.Errorf("adding hotspot connection: %w", err)
	}

	return &Connection{bus: bus, path: path, ifname: cfg.WirelessInterface}, nil
}

// Activate brings the hotspot up on the wireless interface.
func (c *Connection) Activate() error {
	nm := c.bus.Object(nmService, nmPath)

	var device dbus.ObjectPath
	call := nm.Call("org.freedesktop.NetworkManager.GetDeviceByIpIface", 0, c.ifname)
	if err := call.Store(&device); err != nil {
		return fmt.Errorf("finding device %q: %w", c.ifname, err)
	}

	var active dbus.ObjectPath
	call = nm.Call("org.freedesktop.NetworkManager.ActivateConnection", 0,
		c.path, device, dbus.ObjectPath("/"))
	if err := call.Store(&active); err != nil {
		return fmt.Errorf("activating hotspot: %w", err)
	}
	c.active = active
	return nil
}

// Deactivate tears the hotspot down. A connection that was never
// activated is left alone.
func (c *Connection) Deactivate() error {
	if c.active == "" {
		return nil
	}
	nm := c.bus.Object(nmService, nmPath)
	call := nm.Call("org.freedesktop.NetworkManager.DeactivateConnection", 0, c.active)
	if call.Err != nil {
		return fmt.Errorf("deactivating hotspot: %w", call.Err)
	}
	c.active = ""
	return nil
}

// Delete removes the saved connection profile.
func (c *Connection) Delete() error {
	call := c.bus.Object(nmService, c.path).Call(
		"org.freedesktop.NetworkManager.Settings.Connection.Delete", 0)
	if call.Err != nil {
		return fmt.Errorf("deleting hotspot connection: %w", call.Err)
	}
	return nil
}

// connectionSettings assembles the NetworkManager settings
// dictionary for an AP-mode connection.
func connectionSettings(cfg config.Config) map[string]map[string]dbus.Variant {
	return map[string]map[string]dbus.Variant{
		"connection": {
			"id":             dbus.MakeVariant(cfg.SSID),
			"type":           dbus.MakeVariant("802-11-wireless"),
			"interface-name": dbus.MakeVariant(cfg.WirelessInterface),
			"autoconnect":    dbus.MakeVariant(false),
		},
		"802-11-wireless": {
			"ssid": dbus.MakeVariant([]byte(cfg.SSID)),
			"mode": dbus.MakeVariant("ap"),
			"band": dbus.MakeVariant(cfg.NMBand()),
		},
		"802-11-wireless-security": {
			"key-mgmt": dbus.MakeVariant(cfg.Security),
			"psk":      dbus.MakeVariant(cfg.Passphrase),
		},
		"ipv4": {
			"method": dbus.MakeVariant("shared"),
			"address-data": dbus.MakeVariant([]map[string]dbus.Variant{{
				"address": dbus.MakeVariant(cfg.Gateway.String()),
				"prefix":  dbus.MakeVariant(uint32(cfg.Range.Bits())),
			}}),
		},
		"ipv6": {
			"method": dbus.MakeVariant("ignore"),
		},
	}
}
