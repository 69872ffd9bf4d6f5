package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"

	"golang.org/x/term"

	echoapi "github.com/trezcool/eagleeye/apps/api/echo"
	"github.com/trezcool/eagleeye/core"
	"github.com/trezcool/eagleeye/core/tracker"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp       = errors.New("help provided")
	errNoDatabase = errors.New("remote database not configured")
)

type commandLine struct {
	conf     *core.Config
	db       *sql.DB // nil unless the remote engine is postgres
	migrator *tracker.Migrator
	out      io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS...]  - run a goose command (up, down, status, ...) on the remote database")
	fmt.Fprintln(cli.out, "  export [-o FILE]           - write the local data to FILE (\"-\" for stdout)")
	fmt.Fprintln(cli.out, "  push                       - copy the local data to your empty cloud storage; the session token is prompted")
	fmt.Fprintln(cli.out, "  clear-cloud -yes           - delete all of your cloud data; the session token is prompted")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	exportCmd := flag.NewFlagSet("export", flag.ContinueOnError)
	exportCmd.SetOutput(cli.out)
	exportOut := exportCmd.String("o", tracker.ExportFilename, "The output file.")

	clearCmd := flag.NewFlagSet("clear-cloud", flag.ContinueOnError)
	clearCmd.SetOutput(cli.out)
	clearYes := clearCmd.Bool("yes", false, "Confirm the deletion. This cannot be undone.")

	ctx := context.Background()

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])
	case "export":
		if err := exportCmd.Parse(args[2:]); err != nil {
			return err
		}
		return cli.export(ctx, *exportOut)
	case "push":
		sess, err := cli.promptSession()
		if err != nil {
			return err
		}
		return cli.push(ctx, sess)
	case "clear-cloud":
		if err := clearCmd.Parse(args[2:]); err != nil {
			return err
		}
		if !*clearYes {
			clearCmd.Usage()
			return errHelp
		}
		sess, err := cli.promptSession()
		if err != nil {
			return err
		}
		return cli.clearCloud(ctx, sess)
	default:
		cli.printUsage()
		return errHelp
	}
}

// promptSession reads a session token from the terminal and verifies it.
func (cli *commandLine) promptSession() (*tracker.Session, error) {
	fmt.Fprint(cli.out, "Enter session token:")
	token, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Fprintln(cli.out)
	if err != nil {
		return nil, err
	}
	if len(token) == 0 {
		return nil, errHelp
	}

	claims, err := echoapi.ParseToken(strings.TrimSpace(string(token)), cli.conf.SecretKey)
	if err != nil {
		return nil, err
	}
	sess := claims.Session()
	return &sess, nil
}

func (cli *commandLine) export(ctx context.Context, path string) error {
	res := cli.migrator.Export(ctx)
	if !res.Success {
		return errors.New(res.Message)
	}
	if path == "-" {
		_, err := cli.out.Write(append(res.Data, '\n'))
		return err
	}
	if err := os.WriteFile(path, res.Data, 0o600); err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "%s written to %s\n", res.Message, path)
	return nil
}

func (cli *commandLine) push(ctx context.Context, sess *tracker.Session) error {
	res := cli.migrator.Migrate(ctx, sess)
	fmt.Fprintln(cli.out, res.Message)
	for _, e := range res.Errors {
		fmt.Fprintln(cli.out, "  -", e)
	}
	if !res.Success {
		return errors.New(res.Message)
	}
	return nil
}

func (cli *commandLine) clearCloud(ctx context.Context, sess *tracker.Session) error {
	res := cli.migrator.ClearCloud(ctx, sess)
	if !res.Success {
		return errors.New(res.Message)
	}
	fmt.Fprintln(cli.out, res.Message)
	return nil
}
