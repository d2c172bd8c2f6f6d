package users

import (
	"bufio"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/andrebq/portcullis/internal/cmdflags"
	"github.com/andrebq/portcullis/internal/passwd"
	"github.com/andrebq/portcullis/ledger"
	"github.com/urfave/cli/v2"
)

func Cmd() *cli.Command {
	var database string
	return &cli.Command{
		Name:  "users",
		Usage: "Manage the users accepted by the basic login module",
		Flags: []cli.Flag{
			cmdflags.Database(&database),
		},
		Subcommands: []*cli.Command{
			addCmd(&database),
			hashCmd(),
		},
	}
}

func addCmd(database *string) *cli.Command {
	var username string
	return &cli.Command{
		Name:  "add",
		Usage: "Add a new user (password is read from stdin)",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "username",
				Aliases:     []string{"u", "user"},
				Usage:       "Name of the user to add",
				Destination: &username,
				Required:    true,
			},
		},
		Action: func(ctx *cli.Context) error {
			password, err := readPassword(os.Stdin)
			if err != nil {
				return err
			}
			hash, err := passwd.Hash(password, passwd.DefaultParams, rand.Reader)
			if err != nil {
				return err
			}
			ctl, err := ledger.Load(ctx.Context, *database, true)
			if err != nil {
				return err
			}
			defer ctl.Close()
			id, err := ctl.AddUser(ctx.Context, username, hash)
			if err != nil {
				return err
			}
			fmt.Fprintf(ctx.App.Writer, "User %v added with id %v\n", username, id)
			return nil
		},
	}
}

func hashCmd() *cli.Command {
	return &cli.Command{
		Name:  "hash",
		Usage: "Print the argon2id hash of the password read from stdin",
		Action: func(ctx *cli.Context) error {
			password, err := readPassword(os.Stdin)
			if err != nil {
				return err
			}
			hash, err := passwd.Hash(password, passwd.DefaultParams, rand.Reader)
			if err != nil {
				return err
			}
			fmt.Fprintln(ctx.App.Writer, hash)
			return nil
		},
	}
}

func readPassword(in io.Reader) (string, error) {
	sc := bufio.NewScanner(in)
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return "", err
		}
		return "", errors.New("missing password from stdin")
	}
	password := strings.TrimSpace(sc.Text())
	if len(password) == 0 {
		return "", errors.New("missing password from stdin")
	}
	return password, nil
}
