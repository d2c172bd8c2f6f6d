package serve

import (
	"github.com/andrebq/portcullis/config"
	"github.com/andrebq/portcullis/internal/cmdflags"
	"github.com/andrebq/portcullis/internal/httpserver"
	"github.com/andrebq/portcullis/internal/logutil"
	"github.com/andrebq/portcullis/internal/server"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

func Cmd() *cli.Command {
	var configFile string
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the gateway",
		Flags: []cli.Flag{
			cmdflags.Config(&configFile),
		},
		Action: func(ctx *cli.Context) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return err
			}
			if err := logutil.Setup(cfg.Log.Level, cfg.Log.Format); err != nil {
				return err
			}
			srv, err := server.New(ctx.Context, cfg)
			if err != nil {
				return err
			}
			defer srv.Close()
			log.Info().Str("database", cfg.Database.File).Bool("store_access_entries", cfg.StoreAccessEntries).Msg("Gateway ready")
			return httpserver.Serve(ctx.Context, cfg.HTTP.Address, srv.Handler)
		},
	}
}
