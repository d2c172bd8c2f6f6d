package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/andrebq/portcullis/cmd/portcullis/audit"
	"github.com/andrebq/portcullis/cmd/portcullis/serve"
	"github.com/andrebq/portcullis/cmd/portcullis/users"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "portcullis",
		Usage: "One login gateway for local and delegated identities",
		Commands: []*cli.Command{
			serve.Cmd(),
			users.Cmd(),
			audit.Cmd(),
		},
	}
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	err := app.RunContext(ctx, os.Args)
	if err != nil {
		log.Error().Err(err).Msg("Application failed")
		os.Exit(1)
	}
}
