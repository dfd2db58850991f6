package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"biblio/internal/config"
	"biblio/internal/connectors"
	"biblio/internal/listener"
	"biblio/internal/pipeline"
	"biblio/internal/storage"
)

func main() {
	cfg, err := config.Load()
	must(err)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	db, err := storage.Open(ctx, cfg)
	must(err)
	defer db.Close()

	profile, err := pipeline.ResolveProfile(cfg.MailListenerProfile)
	must(err)
	conn, err := connectors.NewConnector(cfg, cfg.MailListenerProvider)
	must(err)

	svc := listener.NewService(db, cfg, conn, profile)
	must(svc.Run(ctx))
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
