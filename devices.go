package main

import (
	"encoding/json"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"go.universe.tf/softap/arp"
	"go.universe.tf/softap/dev"
)

func devices(c *cli.Context) error {
	cfg, err := configFromFlags(c)
	if err != nil {
		return err
	}

	resolver := arp.NewManager(cfg.Range, cfg.RefreshInterval, cfg.WirelessInterface)
	manager := dev.NewManager(cfg.WirelessInterface, nil, resolver)

	log.Infof("Listing stations on %s", cfg.WirelessInterface)
	found, err := manager.Scan()
	if err != nil {
		return err
	}

	if c.Bool("json") {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(found)
	}

	for _, d := range found {
		addr := "?"
		if d.Addr.IsValid() {
			addr = d.Addr.String()
		}
		fmt.Printf("%s  %-15s  %4d dBm  %s\n", d.MAC, addr, d.Signal, d.Connected)
	}
	return nil
}
