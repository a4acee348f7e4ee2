// Command inboxd runs the InboxModel controller against a single
// viewer's key material and local store.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alexflint/go-arg"

	"github.com/prolic/hanostr/pkg/config"
	"github.com/prolic/hanostr/pkg/inbox"
	log2 "github.com/prolic/hanostr/pkg/log"
	"github.com/prolic/hanostr/pkg/nostr/keys"
)

var log = log2.GetStd()

func main() {
	cfg := config.Default()
	arg.MustParse(cfg)
	log2.SetLogLevel(config.ParseLogLevel(cfg.LogLevel))

	switch {
	case cfg.DumpCmd != nil:
		runDump(cfg)
	case cfg.StopCmd != nil:
		log.I.F("stop: no running instance tracked by pid in %s", cfg.DataDir)
	default:
		runStart(cfg)
	}
}

func runStart(cfg *config.Config) {
	if cfg.SecKey == "" {
		log.E.Ln("missing secret key: set -s/--seckey or INBOX_SECKEY")
		os.Exit(1)
	}
	pub, err := keys.GetPublicKey(cfg.SecKey)
	if log.E.Chk(err) {
		os.Exit(1)
	}
	ks := inbox.StaticKeyStore{Pub: pub, Sec: cfg.SecKey}

	store, err := inbox.Open(cfg.DataDir)
	if log.E.Chk(err) {
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	ctrl := inbox.NewController(store, ks, inbox.NewWSDialer(), cfg.DefaultRelays, cfg.DefaultDMRelays)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err = ctrl.Start(ctx); log.E.Chk(err) {
		os.Exit(1)
	}
	if !ctrl.AwaitAtLeastOneConnected(context.Background()) {
		log.W.Ln("no relay reached Connected within the initial wait")
	}
	log.I.F("inboxd started for %s", pub)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	log.I.Ln("shutting down")
	ctrl.Stop()
}

func runDump(cfg *config.Config) {
	store, err := inbox.Open(cfg.DataDir)
	if log.E.Chk(err) {
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	pub := ""
	if cfg.SecKey != "" {
		pub, _ = keys.GetPublicKey(cfg.SecKey)
	}

	switch cfg.DumpCmd.Table {
	case "profiles":
		if pub == "" {
			fmt.Println("dump profiles requires -s/--seckey to select a viewer")
			return
		}
		p, ts, err := store.GetProfile(pub)
		if log.E.Chk(err) {
			return
		}
		fmt.Printf("profile(%s): %+v ts=%d\n", pub, p, ts)
	case "follows":
		if pub == "" {
			fmt.Println("dump follows requires -s/--seckey to select a viewer")
			return
		}
		fs, err := store.GetFollows(pub)
		if log.E.Chk(err) {
			return
		}
		for _, f := range fs {
			fmt.Printf("%+v\n", f)
		}
	case "post_timeline":
		ids, err := store.GetTimelineIDs(inbox.PostTimeline, pub, 50)
		if log.E.Chk(err) {
			return
		}
		for _, id := range ids {
			fmt.Println(id)
		}
	case "chat_timeline":
		ids, err := store.GetTimelineIDs(inbox.ChatTimeline, pub, 50)
		if log.E.Chk(err) {
			return
		}
		for _, id := range ids {
			fmt.Println(id)
		}
	default:
		fmt.Println("unknown table:", cfg.DumpCmd.Table)
	}
}
