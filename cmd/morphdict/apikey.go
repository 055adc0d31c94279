package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/Adithya-Monish-Kumar-K/morphdict/internal/auth/apikey"
	apperrors "github.com/Adithya-Monish-Kumar-K/morphdict/pkg/errors"
)

// runAPIKey administers the keys accepted by "serve" when
// server.requireApiKey is set.
func runAPIKey(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		return usageError("usage: morphdict apikey create|list|revoke [flags]")
	}
	action := args[0]
	fs, common := newFlagSet("apikey "+action, stderr)
	expires := fs.Duration("expires", 0, "create: lifetime of the key (0 never expires)")
	if err := parseFlags(fs, args[1:]); err != nil {
		return err
	}

	var id int64
	switch action {
	case "create":
		if fs.NArg() != 1 {
			return usageError("usage: morphdict apikey create [-expires duration] <name>")
		}
	case "list":
		if fs.NArg() != 0 {
			return usageError("usage: morphdict apikey list")
		}
	case "revoke":
		if fs.NArg() != 1 {
			return usageError("usage: morphdict apikey revoke <id>")
		}
		var err error
		if id, err = strconv.ParseInt(fs.Arg(0), 10, 64); err != nil {
			return usageError("api key id %q is not a number", fs.Arg(0))
		}
	default:
		return usageError("unknown apikey action %q", action)
	}

	cfg, err := loadConfig(common)
	if err != nil {
		return err
	}
	if !cfg.Postgres.Enabled {
		return fmt.Errorf("api keys need postgres.enabled: %w", apperrors.ErrUnavailable)
	}
	a, err := newApp(ctx, cfg, appOptions{apiKeys: true})
	if err != nil {
		return err
	}
	defer a.Close()

	switch action {
	case "create":
		var expiresAt *time.Time
		if *expires > 0 {
			t := time.Now().Add(*expires).UTC()
			expiresAt = &t
		}
		raw, info, err := a.keys.CreateKey(ctx, fs.Arg(0), expiresAt)
		if err != nil {
			return err
		}
		if common.json {
			return printJSON(stdout, struct {
				Key string `json:"key"`
				*apikey.KeyInfo
			}{raw, info})
		}
		fmt.Fprintf(stdout, "id:  %d\nkey: %s\n", info.ID, raw)
		return nil
	case "list":
		keys, err := a.keys.ListKeys(ctx)
		if err != nil {
			return err
		}
		if common.json {
			return printJSON(stdout, keys)
		}
		printKeys(stdout, keys)
		return nil
	default:
		err := a.keys.RevokeKey(ctx, id)
		if errors.Is(err, apikey.ErrInvalidKey) {
			return fmt.Errorf("no active api key with id %d: %w", id, apperrors.ErrNotFound)
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "revoked %d\n", id)
		return nil
	}
}

func printKeys(w io.Writer, keys []apikey.KeyInfo) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tCREATED\tEXPIRES")
	for _, k := range keys {
		expires := "never"
		if k.ExpiresAt != nil {
			expires = k.ExpiresAt.Local().Format(time.DateTime)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", k.ID, k.Name, k.CreatedAt.Local().Format(time.DateTime), expires)
	}
	tw.Flush()
}
