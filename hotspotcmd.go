package main

import (
	"context"
	"os/signal"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"golang.org/x/sys/unix"

	"go.universe.tf/softap/hotspot"
)

// hotspotRun creates and activates a hotspot connection, then tears
// it down again on interrupt.
func hotspotRun(c *cli.Context) error {
	cfg, err := configFromFlags(c)
	if err != nil {
		return err
	}
	cfg.SSID = c.String("ssid")
	cfg.Passphrase = c.String("passphrase")
	cfg.Band = c.String("band")

	conn, err := hotspot.Create(cfg)
	if err != nil {
		return err
	}

	if err := conn.Activate(); err != nil {
		if derr := conn.Delete(); derr != nil {
			log.Warnf("Cleaning up connection: %s", derr)
		}
		return err
	}
	log.Infof("Hotspot %q up on %s (band %s)", cfg.SSID, cfg.WirelessInterface, cfg.Band)

	ctx, cancel := signal.NotifyContext(context.Background(), unix.SIGINT, unix.SIGTERM)
	defer cancel()
	<-ctx.Done()

	log.Info("Tearing down")
	if err := conn.Deactivate(); err != nil {
		log.Warnf("Deactivating: %s", err)
	}
	return conn.Delete()
}
