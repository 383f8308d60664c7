package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"time"

	nfqueue "github.com/florianl/go-nfqueue"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"golang.org/x/sys/unix"

	"go.universe.tf/softap/nat"
)

// queueRun translates packets delivered by the kernel through an
// NFQUEUE. The queue's iptables rule is expected to select the
// IPv4/TCP traffic crossing the access point; anything else passes
// through untranslated.
func queueRun(c *cli.Context) error {
	log.Info("Starting")

	cfg, err := configFromFlags(c)
	if err != nil {
		return err
	}
	cfg.Queue, err = parseQueueNum(c.Uint("num"))
	if err != nil {
		return err
	}

	nfConfig := nfqueue.Config{
		NfQueue:      cfg.Queue,
		MaxPacketLen: 65535,
		MaxQueueLen:  255,
		Copymode:     nfqueue.NfQnlCopyPacket,
		ReadTimeout:  10 * time.Millisecond,
		WriteTimeout: 15 * time.Millisecond,
	}

	queue, err := nfqueue.Open(&nfConfig)
	if err != nil {
		log.Fatalf("Connecting to NFQUEUE: %s", err)
	}
	defer queue.Close()

	external := cfg.ExternalAddrs
	if len(external) == 0 {
		external, err = uplinkIPs(cfg.UplinkInterface)
		if err != nil {
			log.Fatalf("Getting uplink IPs: %s", err)
		}
	}

	translator := nat.NewTranslator(cfg.Range, external)

	ctx, cancel := signal.NotifyContext(context.Background(), unix.SIGINT, unix.SIGTERM)
	defer cancel()

	process := func(a nfqueue.Attribute) int {
		out, err := translator.Translate(*a.Payload)
		switch {
		case errors.Is(err, nat.ErrNotTCP4):
			// Not ours to rewrite.
			queue.SetVerdict(*a.PacketID, nfqueue.NfAccept)
		case errors.Is(err, nat.ErrTableFull):
			log.Warn("NAT capacity exhausted, dropping packet")
			queue.SetVerdict(*a.PacketID, nfqueue.NfDrop)
		case errors.Is(err, nat.ErrNoSession):
			queue.SetVerdict(*a.PacketID, nfqueue.NfDrop)
		case err != nil:
			log.Warnf("Translation failed: %s", err)
			queue.SetVerdict(*a.PacketID, nfqueue.NfDrop)
		default:
			queue.SetVerdictModPacket(*a.PacketID, nfqueue.NfAccept, out)
		}
		return 0
	}
	if err := queue.Register(ctx, process); err != nil {
		log.Fatalf("Couldn't register packet processor: %s", err)
	}

	log.Info("Translating")
	<-ctx.Done()
	log.Info("Exiting")

	return nil
}

// parseQueueNum checks that an NFQUEUE number fits the kernel's
// 16-bit queue ID space.
func parseQueueNum(n uint) (uint16, error) {
	if n > 65535 {
		return 0, fmt.Errorf("NFQUEUE number %d out of range [0, 65535]", n)
	}
	return uint16(n), nil
}
