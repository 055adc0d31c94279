// Command morphdict maintains Cyrillic word-list dictionaries stored as
// UTF-8 or Windows-1251 text files.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/Adithya-Monish-Kumar-K/morphdict/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/morphdict/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/morphdict/pkg/logger"
)

const helpText = `morphdict - maintain encoding-aware Cyrillic dictionaries

Usage:
  morphdict add [flags] <dictionary> <words-file>
  morphdict delete [flags] <dictionary> <words-file>
  morphdict sort [flags] <dictionary>
  morphdict detect [flags] <file>...
  morphdict history [flags] <dictionary-name>
  morphdict serve [flags]
  morphdict follow [flags]
  morphdict apikey create|list|revoke [flags]
  morphdict help

Commands:
  add       Merge the words of <words-file> into <dictionary>, then sort
            and deduplicate it.
  delete    Remove every line of <dictionary> that appears in <words-file>.
            Order and duplicates of the remaining lines are kept.
  sort      Sort <dictionary> and remove duplicate lines.
  detect    Print the encoding of each file: utf8, windows1251 or unknown.
  history   Print the audit log of a dictionary (requires postgres).
  serve     Run the HTTP API over dictionary.dataDir.
  follow    Replay change events from Kafka onto follower.mirrorDir.
  apikey    Create, list or revoke the keys "serve" requires for writes
            when server.requireApiKey is set (requires postgres).

Common flags:
  -config string    YAML config file (default $MD_CONFIG)
  -json             print results as JSON

Write flags (add, delete, sort):
  -dry-run          compute and print the result without writing
  -collation name   "binary" or a BCP 47 tag (default from config, "ru")
  -create           add only: create a missing dictionary
  -encoding label   encoding for -create (utf8 or windows1251)

Exit codes:
  0  success
  1  failure
  2  usage error or invalid input
  3  unknown encoding
  4  file not found or i/o error
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, helpText)
		return apperrors.ExitUsage
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	switch args[0] {
	case "add":
		err = runWrite(ctx, cmdAdd, args[1:], stdout, stderr)
	case "delete":
		err = runWrite(ctx, cmdDelete, args[1:], stdout, stderr)
	case "sort":
		err = runWrite(ctx, cmdSort, args[1:], stdout, stderr)
	case "detect":
		err = runDetect(ctx, args[1:], stdout, stderr)
	case "history":
		err = runHistory(ctx, args[1:], stdout, stderr)
	case "serve":
		err = runServe(ctx, args[1:], stderr)
	case "follow":
		err = runFollow(ctx, args[1:], stderr)
	case "apikey":
		err = runAPIKey(ctx, args[1:], stdout, stderr)
	case "help", "-h", "-help", "--help":
		fmt.Fprint(stdout, helpText)
		return apperrors.ExitOK
	default:
		fmt.Fprintf(stderr, "morphdict: unknown command %q\n\n", args[0])
		fmt.Fprint(stderr, helpText)
		return apperrors.ExitUsage
	}

	if errors.Is(err, flag.ErrHelp) {
		return apperrors.ExitOK
	}
	if err != nil {
		fmt.Fprintf(stderr, "morphdict %s: %v\n", args[0], err)
	}
	return apperrors.ExitCode(err)
}

// commonFlags are accepted by every subcommand.
type commonFlags struct {
	config string
	json   bool
}

func newFlagSet(name string, stderr io.Writer) (*flag.FlagSet, *commonFlags) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage of morphdict %s:\n", name)
		fs.PrintDefaults()
	}
	c := &commonFlags{}
	fs.StringVar(&c.config, "config", os.Getenv("MD_CONFIG"), "YAML config file")
	fs.BoolVar(&c.json, "json", false, "print results as JSON")
	return fs, c
}

// parseFlags parses args and turns flag errors into usage errors.
func parseFlags(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return fmt.Errorf("%w: %w", apperrors.ErrInvalidInput, err)
	}
	return nil
}

// loadConfig reads the configuration and installs the process logger.
func loadConfig(c *commonFlags) (*config.Config, error) {
	cfg, err := config.Load(c.config)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrInvalidInput, err)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	return cfg, nil
}

func usageError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", apperrors.ErrInvalidInput, fmt.Sprintf(format, args...))
}
