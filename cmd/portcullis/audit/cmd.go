package audit

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/andrebq/portcullis/internal/cmdflags"
	"github.com/andrebq/portcullis/ledger"
	"github.com/urfave/cli/v2"
)

func Cmd() *cli.Command {
	var database string
	return &cli.Command{
		Name:  "audit",
		Usage: "Inspect the audit trail",
		Flags: []cli.Flag{
			cmdflags.Database(&database),
		},
		Subcommands: []*cli.Command{
			loginsCmd(&database),
			accessesCmd(&database),
		},
	}
}

func limitFlag(out *int) cli.Flag {
	return &cli.IntFlag{
		Name:        "limit",
		Aliases:     []string{"n"},
		Usage:       "Maximum number of entries to print, newest first (0 prints everything)",
		Value:       20,
		Destination: out,
	}
}

func loginsCmd(database *string) *cli.Command {
	var limit int
	return &cli.Command{
		Name:  "logins",
		Usage: "Print recent login attempts",
		Flags: []cli.Flag{limitFlag(&limit)},
		Action: func(ctx *cli.Context) error {
			ctl, err := ledger.Load(ctx.Context, *database, false)
			if err != nil {
				return err
			}
			defer ctl.Close()
			logins, err := ctl.ListLogins(ctx.Context, limit)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(ctx.App.Writer, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tTIMESTAMP\tUSERNAME\tSUCCESS\tADDRESS")
			for _, l := range logins {
				fmt.Fprintf(tw, "%v\t%v\t%v\t%v\t%v\n", l.ID, l.Timestamp.Format(time.RFC3339), l.Username, l.Success, l.SourceAddress)
			}
			return tw.Flush()
		},
	}
}

func accessesCmd(database *string) *cli.Command {
	var limit int
	return &cli.Command{
		Name:  "accesses",
		Usage: "Print recent authenticated accesses",
		Flags: []cli.Flag{limitFlag(&limit)},
		Action: func(ctx *cli.Context) error {
			ctl, err := ledger.Load(ctx.Context, *database, false)
			if err != nil {
				return err
			}
			defer ctl.Close()
			accesses, err := ctl.ListAccesses(ctx.Context, limit)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(ctx.App.Writer, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tTIMESTAMP\tUSERNAME")
			for _, a := range accesses {
				fmt.Fprintf(tw, "%v\t%v\t%v\n", a.ID, a.Timestamp.Format(time.RFC3339), a.Username)
			}
			return tw.Flush()
		},
	}
}
