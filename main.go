package main

import (
	"os"
	"time"

	"github.com/prometheus/common/version"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"go.universe.tf/softap/config"
)

func main() {
	app := &cli.App{
		Name:    "softap",
		Usage:   "Run a wireless access point: NAT data plane, ARP scanning, hotspot lifecycle",
		Version: version.Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "interface",
				Value: "wlan0",
				Usage: "name of the wireless interface",
			},
			&cli.StringFlag{
				Name:  "uplink",
				Value: "eth0",
				Usage: "name of the uplink interface",
			},
			&cli.StringFlag{
				Name:  "range",
				Value: "192.168.0.0/24",
				Usage: "internal network CIDR range",
			},
			&cli.StringFlag{
				Name:  "gateway",
				Value: "192.168.0.1",
				Usage: "gateway address inside the internal range",
			},
			&cli.StringSliceFlag{
				Name:  "external",
				Usage: "external IPv4 addresses for NAT (default: uplink interface addresses)",
			},
			&cli.DurationFlag{
				Name:  "refresh",
				Value: 60 * time.Second,
				Usage: "age at which ARP cache entries go stale",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Route and translate packets on the wireless interface",
				Action: run,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "uplink-mac",
						Usage: "hardware address of the uplink gateway",
					},
					&cli.StringSliceFlag{
						Name:  "allow",
						Usage: "restrict stations to these hardware addresses",
					},
				},
			},
			{
				Name:   "queue",
				Usage:  "Intercept and translate packets from an NFQUEUE",
				Action: queueRun,
				Flags: []cli.Flag{
					&cli.UintFlag{
						Name:  "num",
						Value: 42,
						Usage: "NFQUEUE number to attach to",
					},
				},
			},
			{
				Name:   "scan",
				Usage:  "Sweep the internal range with ARP requests and print the cache",
				Action: scan,
			},
			{
				Name:   "devices",
				Usage:  "List associated stations with their resolved addresses",
				Action: devices,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "print devices as JSON",
					},
				},
			},
			{
				Name:   "hotspot",
				Usage:  "Bring up a hotspot, tear it down on interrupt",
				Action: hotspotRun,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "ssid", Required: true, Usage: "hotspot SSID"},
					&cli.StringFlag{Name: "passphrase", Required: true, Usage: "WPA passphrase"},
					&cli.StringFlag{Name: "band", Value: "2.4", Usage: "radio band: 2.4 or 5"},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// configFromFlags assembles the deployment configuration from the
// app-level flags.
func configFromFlags(c *cli.Context) (config.Config, error) {
	cfg := config.Default()
	cfg.WirelessInterface = c.String("interface")
	cfg.UplinkInterface = c.String("uplink")
	cfg.RefreshInterval = c.Duration("refresh")

	rng, err := config.ParseRange(c.String("range"))
	if err != nil {
		return config.Config{}, err
	}
	cfg.Range = rng

	gw, err := config.ParseExternal([]string{c.String("gateway")})
	if err != nil {
		return config.Config{}, err
	}
	cfg.Gateway = gw[0]

	ext, err := config.ParseExternal(c.StringSlice("external"))
	if err != nil {
		return config.Config{}, err
	}
	cfg.ExternalAddrs = ext

	return cfg, nil
}
