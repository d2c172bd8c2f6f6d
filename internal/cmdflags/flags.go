package cmdflags

import (
	"github.com/andrebq/portcullis/config"
	"github.com/urfave/cli/v2"
)

func Config(out *string) cli.Flag {
	return &cli.StringFlag{
		Name:        "config",
		Aliases:     []string{"c"},
		Usage:       "Path to the TOML configuration file (PORTCULLIS_* variables override it)",
		EnvVars:     []string{"PORTCULLIS_CONFIG"},
		Destination: out,
		Value:       *out,
	}
}

func Database(out *string) cli.Flag {
	if len(*out) == 0 {
		*out = config.Defaults().Database.File
	}
	return &cli.StringFlag{
		Name:        "database",
		Aliases:     []string{"db"},
		Usage:       "Path to the sqlite database holding credentials and audit entries",
		EnvVars:     []string{"PORTCULLIS_DATABASE_FILE"},
		Destination: out,
		Value:       *out,
	}
}
