package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"
	"time"

	"github.com/Adithya-Monish-Kumar-K/morphdict/internal/audit"
	"github.com/Adithya-Monish-Kumar-K/morphdict/internal/charset"
	"github.com/Adithya-Monish-Kumar-K/morphdict/internal/dictionary"
	apperrors "github.com/Adithya-Monish-Kumar-K/morphdict/pkg/errors"
)

// writeCommand describes one of the rewriting subcommands.
type writeCommand struct {
	name  string
	usage string
	nargs int
	run   func(ctx context.Context, svc *dictionary.Service, args []string) (*dictionary.Report, error)
}

var (
	cmdAdd = writeCommand{
		name:  "add",
		usage: "<dictionary> <words-file>",
		nargs: 2,
		run: func(ctx context.Context, svc *dictionary.Service, args []string) (*dictionary.Report, error) {
			return svc.Add(ctx, args[0], args[1])
		},
	}
	cmdDelete = writeCommand{
		name:  "delete",
		usage: "<dictionary> <words-file>",
		nargs: 2,
		run: func(ctx context.Context, svc *dictionary.Service, args []string) (*dictionary.Report, error) {
			return svc.Delete(ctx, args[0], args[1])
		},
	}
	cmdSort = writeCommand{
		name:  "sort",
		usage: "<dictionary>",
		nargs: 1,
		run: func(ctx context.Context, svc *dictionary.Service, args []string) (*dictionary.Report, error) {
			return svc.Sort(ctx, args[0])
		},
	}
)

func runWrite(ctx context.Context, cmd writeCommand, args []string, stdout, stderr io.Writer) error {
	fs, common := newFlagSet(cmd.name, stderr)
	dryRun := fs.Bool("dry-run", false, "compute and print the result without writing")
	collation := fs.String("collation", "", `"binary" or a BCP 47 tag`)
	var create bool
	var encoding string
	if cmd.name == "add" {
		fs.BoolVar(&create, "create", false, "create a missing dictionary")
		fs.StringVar(&encoding, "encoding", "", "encoding for a created dictionary (utf8 or windows1251)")
	}
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() != cmd.nargs {
		return usageError("usage: morphdict %s [flags] %s", cmd.name, cmd.usage)
	}

	cfg, err := loadConfig(common)
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg, appOptions{collation: *collation, publish: true})
	if err != nil {
		return err
	}
	defer a.Close()
	defer a.pushMetrics(context.WithoutCancel(ctx))

	svc := a.svc.WithDryRun(*dryRun)
	if create {
		enc, err := createEncoding(encoding, cfg.Dictionary.DefaultEncoding)
		if err != nil {
			return err
		}
		svc = svc.WithCreate(true, enc)
	}

	report, err := cmd.run(ctx, svc, fs.Args())
	if err != nil {
		return err
	}
	if common.json {
		return printJSON(stdout, report)
	}
	printReport(stdout, report)
	return nil
}

// createEncoding picks the encoding of a dictionary created by add: the flag,
// then the configured default, then UTF-8.
func createEncoding(flagValue, configured string) (charset.Label, error) {
	v := flagValue
	if v == "" {
		v = configured
	}
	if v == "" {
		return charset.UTF8, nil
	}
	enc, err := charset.ParseLabel(v)
	if err != nil {
		return charset.Unknown, fmt.Errorf("-encoding: %w: %w", apperrors.ErrInvalidInput, err)
	}
	return enc, nil
}

func printReport(w io.Writer, r *dictionary.Report) {
	prefix := ""
	if r.DryRun {
		prefix = "(dry run) "
	}
	var what string
	switch r.Operation {
	case dictionary.OpAdd:
		what = fmt.Sprintf("added %d word(s)", r.Added)
		if r.Duplicates > 0 {
			what += fmt.Sprintf(", dropped %d duplicate(s)", r.Duplicates)
		}
	case dictionary.OpDelete:
		what = fmt.Sprintf("removed %d line(s)", r.Removed)
	case dictionary.OpSort:
		what = fmt.Sprintf("removed %d duplicate(s)", r.Duplicates)
	}
	state := "unchanged"
	switch {
	case r.Created:
		state = "created"
	case r.Changed:
		state = "rewritten"
	}
	fmt.Fprintf(w, "%s%s: %s, %d line(s), %s, %s\n", prefix, r.Path, what, r.Total, r.Encoding, state)
}

type detection struct {
	Path     string        `json:"path"`
	Encoding charset.Label `json:"encoding"`
}

// runDetect prints one label per file. It reports ErrUnknownEncoding when
// any file could not be classified, after printing every result.
func runDetect(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs, common := newFlagSet("detect", stderr)
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return usageError("usage: morphdict detect [flags] <file>...")
	}
	cfg, err := loadConfig(common)
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()
	defer a.pushMetrics(context.WithoutCancel(ctx))

	results := make([]detection, 0, fs.NArg())
	unknown := 0
	for _, path := range fs.Args() {
		label, err := a.svc.Detect(ctx, path)
		if err != nil {
			return err
		}
		if !label.Known() {
			unknown++
		}
		results = append(results, detection{Path: path, Encoding: label})
	}

	if common.json {
		if err := printJSON(stdout, results); err != nil {
			return err
		}
	} else {
		for _, d := range results {
			fmt.Fprintf(stdout, "%s\t%s\n", d.Path, d.Encoding)
		}
	}
	if unknown > 0 {
		return fmt.Errorf("%d of %d file(s): %w", unknown, len(results), apperrors.ErrUnknownEncoding)
	}
	return nil
}

func runHistory(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs, common := newFlagSet("history", stderr)
	limit := fs.Int("limit", audit.DefaultLimit, "maximum number of entries")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return usageError("usage: morphdict history [flags] <dictionary-name>")
	}
	name := fs.Arg(0)
	if err := dictionary.ValidateName(name); err != nil {
		return err
	}

	cfg, err := loadConfig(common)
	if err != nil {
		return err
	}
	if !cfg.Postgres.Enabled {
		return fmt.Errorf("history needs postgres.enabled: %w", apperrors.ErrUnavailable)
	}
	a, err := newApp(ctx, cfg, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()
	if a.audit == nil {
		return fmt.Errorf("audit log: %w", apperrors.ErrUnavailable)
	}

	entries, err := a.audit.List(ctx, name, *limit)
	if err != nil {
		return err
	}
	slog.Debug("history listed", "dictionary", name, "entries", len(entries))
	if common.json {
		return printJSON(stdout, entries)
	}
	printHistory(stdout, entries)
	return nil
}

func printHistory(w io.Writer, entries []audit.Entry) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tOPERATION\tENCODING\tADDED\tREMOVED\tDUPLICATES\tTOTAL\tCHANGED\tREQUEST")
	for _, e := range entries {
		op := e.Operation
		if e.DryRun {
			op += " (dry run)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%t\t%s\n",
			e.RecordedAt.Local().Format(time.DateTime), op, e.Encoding,
			e.Added, e.Removed, e.Duplicates, e.Total, e.Changed, e.RequestID)
	}
	tw.Flush()
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
