package main

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"go.universe.tf/softap/arp"
)

func scan(c *cli.Context) error {
	cfg, err := configFromFlags(c)
	if err != nil {
		return err
	}

	manager := arp.NewManager(cfg.Range, cfg.RefreshInterval, cfg.WirelessInterface)

	log.Infof("Scanning %s on %s", cfg.Range, cfg.WirelessInterface)
	if err := manager.Scan(); err != nil {
		return err
	}

	entries := manager.Cache()
	if len(entries) == 0 {
		log.Info("No hosts answered")
		return nil
	}
	for _, e := range entries {
		fmt.Printf("%-15s  %s\n", e.Addr, e.MAC)
	}
	return nil
}
