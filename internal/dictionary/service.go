package dictionary

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/morphdict/internal/charset"
	"github.com/Adithya-Monish-Kumar-K/morphdict/internal/lineset"
	apperrors "github.com/Adithya-Monish-Kumar-K/morphdict/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/morphdict/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/morphdict/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/morphdict/pkg/tracing"
)

// Operation names a dictionary rewrite.
type Operation string

const (
	OpAdd    Operation = "add"
	OpDelete Operation = "delete"
	OpSort   Operation = "sort"
)

// ParseOperation accepts the names used on the command line and in events.
func ParseOperation(s string) (Operation, error) {
	switch op := Operation(s); op {
	case OpAdd, OpDelete, OpSort:
		return op, nil
	}
	return "", fmt.Errorf("operation %q: %w", s, apperrors.ErrInvalidInput)
}

// Report describes the outcome of one operation.
type Report struct {
	Operation  Operation     `json:"operation"`
	Dictionary string        `json:"dictionary"`
	Path       string        `json:"-"`
	Encoding   charset.Label `json:"encoding"`
	Added      int           `json:"added"`
	Removed    int           `json:"removed"`
	Duplicates int           `json:"duplicates_removed"`
	Total      int           `json:"total"`
	Changed    bool          `json:"changed"`
	Created    bool          `json:"created,omitempty"`
	DryRun     bool          `json:"dry_run,omitempty"`
	RequestID  string        `json:"request_id,omitempty"`
	At         time.Time     `json:"at"`
}

// Change is the replayable content of a write: the distinct words that were
// actually added or removed.
type Change struct {
	Operation  Operation     `json:"operation"`
	Dictionary string        `json:"dictionary"`
	Encoding   charset.Label `json:"encoding"`
	Added      []string      `json:"added,omitempty"`
	Removed    []string      `json:"removed,omitempty"`
	Total      int           `json:"total"`
	RequestID  string        `json:"request_id,omitempty"`
	At         time.Time     `json:"at"`
}

// Locker serialises writers of the same dictionary.
type Locker interface {
	Acquire(ctx context.Context, name string) (release func(), err error)
}

// ChangePublisher receives every change that reached the disk.
type ChangePublisher interface {
	Publish(ctx context.Context, c Change) error
}

// AuditRecorder receives a report for every completed operation.
type AuditRecorder interface {
	Record(ctx context.Context, r Report) error
}

// LabelCache remembers the classification of files that have not changed
// since they were last classified.
type LabelCache interface {
	GetOrCompute(ctx context.Context, key string, compute func() (charset.Label, error)) (charset.Label, error)
}

// Options configures a Service. Every collaborator may be nil.
type Options struct {
	Comparator lineset.Comparator
	// DefaultEncoding is used for dictionaries created by add and for
	// existing dictionaries that hold no words at all.
	DefaultEncoding charset.Label
	FileMode        os.FileMode
	Create          bool
	DryRun          bool

	Locker    Locker
	Publisher ChangePublisher
	Audit     AuditRecorder
	Labels    LabelCache
	Metrics   *metrics.Metrics
	Tracing   bool
}

// Service runs add, delete and sort as complete read-compute-write cycles.
type Service struct {
	opts   Options
	logger *slog.Logger
}

func NewService(opts Options) *Service {
	if opts.Comparator == nil {
		opts.Comparator = lineset.Russian()
	}
	if opts.FileMode == 0 {
		opts.FileMode = defaultFileMode
	}
	return &Service{
		opts:   opts,
		logger: slog.Default().With("component", "dictionary"),
	}
}

// WithDryRun returns a copy of s that computes reports without writing.
func (s *Service) WithDryRun(dryRun bool) *Service {
	cp := *s
	cp.opts.DryRun = dryRun
	return &cp
}

// WithCreate returns a copy of s that lets add create missing dictionaries
// in enc. An unknown enc disables creation.
func (s *Service) WithCreate(create bool, enc charset.Label) *Service {
	cp := *s
	cp.opts.Create = create
	if enc.Known() {
		cp.opts.DefaultEncoding = enc
	}
	return &cp
}

// Add merges the words of sourcePath into the dictionary at dictPath.
func (s *Service) Add(ctx context.Context, dictPath, sourcePath string) (*Report, error) {
	return s.apply(ctx, OpAdd, dictPath, fileSource(sourcePath))
}

// AddWords merges words into the dictionary at dictPath.
func (s *Service) AddWords(ctx context.Context, dictPath string, words []string) (*Report, error) {
	clean, err := CleanWords(words)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, OpAdd, dictPath, staticSource(clean))
}

// Delete removes every line of the dictionary that appears in sourcePath.
func (s *Service) Delete(ctx context.Context, dictPath, sourcePath string) (*Report, error) {
	return s.apply(ctx, OpDelete, dictPath, fileSource(sourcePath))
}

// DeleteWords removes every line of the dictionary equal to one of words.
func (s *Service) DeleteWords(ctx context.Context, dictPath string, words []string) (*Report, error) {
	clean, err := CleanWords(words)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, OpDelete, dictPath, staticSource(clean))
}

// Sort deduplicates and orders the dictionary at dictPath.
func (s *Service) Sort(ctx context.Context, dictPath string) (*Report, error) {
	return s.apply(ctx, OpSort, dictPath, nil)
}

// Read loads a dictionary without modifying it.
func (s *Service) Read(ctx context.Context, dictPath string) (*File, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return Load(dictPath)
}

// Detect classifies the file at path. With a LabelCache configured, a file
// whose size and modification time are unchanged is not read again.
func (s *Service) Detect(ctx context.Context, path string) (charset.Label, error) {
	if err := ctx.Err(); err != nil {
		return charset.Unknown, err
	}
	detect := func() (charset.Label, error) {
		raw, err := ReadRaw(path)
		if err != nil {
			return charset.Unknown, err
		}
		return s.Classify(raw), nil
	}
	if s.opts.Labels == nil {
		return detect()
	}
	info, err := os.Stat(path)
	if err != nil {
		return charset.Unknown, ioError("stat", path, err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	key := fmt.Sprintf("%s:%d:%d", abs, info.Size(), info.ModTime().UnixNano())
	return s.opts.Labels.GetOrCompute(ctx, key, detect)
}

// Classify labels raw and counts the result.
func (s *Service) Classify(raw []byte) charset.Label {
	label := charset.Classify(raw)
	if s.opts.Metrics != nil {
		s.opts.Metrics.DetectionsTotal.WithLabelValues(label.String()).Inc()
	}
	return label
}

type wordSource func(ctx context.Context) ([]string, error)

func fileSource(path string) wordSource {
	return func(ctx context.Context) ([]string, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		f, err := Load(path)
		if err != nil {
			return nil, fmt.Errorf("word source: %w", err)
		}
		return f.Lines, nil
	}
}

func staticSource(words []string) wordSource {
	return func(context.Context) ([]string, error) {
		return words, nil
	}
}

func (s *Service) apply(ctx context.Context, op Operation, path string, source wordSource) (report *Report, err error) {
	start := time.Now()
	name := filepath.Base(path)
	log := logger.FromContext(ctx).With("component", "dictionary", "operation", op, "dictionary", name)

	ctx, span := s.startSpan(ctx, "dictionary."+string(op))
	span.SetAttr("dictionary", name)
	defer func() {
		s.observe(op, start, report, err)
		span.SetAttr("ok", err == nil)
		span.Finish()
	}()

	release, err := s.lock(ctx, name)
	if err != nil {
		return nil, err
	}
	defer release()

	f, created, words, err := s.load(ctx, op, path, source)
	if err != nil {
		return nil, err
	}

	_, computeSpan := tracing.StartChildSpan(ctx, "compute")
	out, report, change := s.compute(op, f, words)
	computeSpan.End()

	report.Dictionary = name
	report.Path = path
	report.Created = created && report.Changed
	report.DryRun = s.opts.DryRun
	report.RequestID = logger.RequestIDFrom(ctx)
	report.At = time.Now().UTC()

	if report.Changed {
		if s.opts.DryRun {
			if _, err := Encode(f, out); err != nil {
				return nil, err
			}
		} else {
			_, saveSpan := tracing.StartChildSpan(ctx, "save")
			err := Save(f, out)
			saveSpan.End()
			if err != nil {
				return nil, err
			}
			change.Dictionary = name
			change.RequestID = report.RequestID
			change.At = report.At
			s.publish(ctx, log, change)
		}
	}

	s.record(ctx, log, *report)
	log.Info("operation completed",
		"encoding", report.Encoding,
		"added", report.Added,
		"removed", report.Removed,
		"duplicates_removed", report.Duplicates,
		"total", report.Total,
		"changed", report.Changed,
		"dry_run", report.DryRun,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return report, nil
}

func (s *Service) lock(ctx context.Context, name string) (func(), error) {
	if s.opts.Locker == nil {
		return func() {}, nil
	}
	start := time.Now()
	release, err := s.opts.Locker.Acquire(ctx, name)
	if s.opts.Metrics != nil {
		s.opts.Metrics.LockWaitSeconds.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		return nil, fmt.Errorf("locking %s: %w", name, err)
	}
	return release, nil
}

// load reads the dictionary and the word source concurrently.
func (s *Service) load(ctx context.Context, op Operation, path string, source wordSource) (*File, bool, []string, error) {
	ctx, span := tracing.StartChildSpan(ctx, "load")
	defer span.End()

	var (
		f       *File
		created bool
		words   []string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		f, created, err = s.loadPrimary(gctx, op, path)
		return err
	})
	if source != nil {
		g.Go(func() error {
			var err error
			words, err = source(gctx)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, false, nil, err
	}
	return f, created, words, nil
}

func (s *Service) loadPrimary(ctx context.Context, op Operation, path string) (*File, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	raw, err := ReadRaw(path)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) && op == OpAdd && s.opts.Create && s.opts.DefaultEncoding.Known() {
			return NewFile(path, s.opts.DefaultEncoding, s.opts.FileMode), true, nil
		}
		return nil, false, err
	}
	f, err := Parse(path, raw)
	if err != nil {
		// An empty dictionary has no letters to classify.
		if errors.Is(err, apperrors.ErrUnknownEncoding) && isBlank(raw) && s.opts.DefaultEncoding.Known() {
			f = NewFile(path, s.opts.DefaultEncoding, s.opts.FileMode)
		} else {
			return nil, false, err
		}
	}
	if info, err := os.Stat(path); err == nil {
		f.Mode = info.Mode().Perm()
	}
	return f, false, nil
}

func (s *Service) compute(op Operation, f *File, words []string) ([]string, *Report, Change) {
	report := &Report{Operation: op, Encoding: f.Encoding}
	change := Change{Operation: op, Encoding: f.Encoding}

	var out []string
	switch op {
	case OpAdd:
		res := lineset.Merge(f.Lines, words, s.opts.Comparator)
		out = res.Lines
		report.Added = res.Added
		change.Added = newWords(f.Lines, words)
	case OpDelete:
		res := lineset.Subtract(f.Lines, words)
		out = res.Lines
		report.Removed = res.Removed
		change.Removed = removedWords(f.Lines, words)
	case OpSort:
		res := lineset.Normalize(f.Lines, s.opts.Comparator)
		out = res.Lines
		report.Duplicates = res.Duplicates
	}
	report.Total = len(out)
	report.Changed = !slices.Equal(out, f.Lines)
	change.Total = report.Total
	return out, report, change
}

// newWords returns the distinct words absent from lines, in input order.
func newWords(lines, words []string) []string {
	known, _ := lineset.NewWordSet(lines)
	var added []string
	for _, w := range words {
		if known.Add(w) {
			added = append(added, w)
		}
	}
	return added
}

// removedWords returns the distinct lines that words removes, in file order.
func removedWords(lines, words []string) []string {
	reject, _ := lineset.NewWordSet(words)
	seen := make(lineset.WordSet)
	var removed []string
	for _, l := range lines {
		if reject.Contains(l) && seen.Add(l) {
			removed = append(removed, l)
		}
	}
	return removed
}

func (s *Service) publish(ctx context.Context, log *slog.Logger, c Change) {
	if s.opts.Publisher == nil {
		return
	}
	if err := s.opts.Publisher.Publish(ctx, c); err != nil {
		log.Error("failed to publish change event, followers will miss this write", "error", err)
	}
}

func (s *Service) record(ctx context.Context, log *slog.Logger, r Report) {
	if s.opts.Audit == nil {
		return
	}
	if err := s.opts.Audit.Record(ctx, r); err != nil {
		log.Warn("failed to record audit entry", "error", err)
	}
}

func (s *Service) observe(op Operation, start time.Time, r *Report, err error) {
	m := s.opts.Metrics
	if m == nil {
		return
	}
	status := "ok"
	switch {
	case err != nil:
		status = "error"
	case r.DryRun:
		status = "dry_run"
	}
	m.OperationsTotal.WithLabelValues(string(op), status).Inc()
	m.OperationDuration.WithLabelValues(string(op)).Observe(time.Since(start).Seconds())
	if status != "ok" {
		return
	}
	m.WordsAddedTotal.Add(float64(r.Added))
	m.WordsRemovedTotal.Add(float64(r.Removed))
	m.DuplicatesTotal.Add(float64(r.Duplicates))
	m.DictionaryLines.WithLabelValues(r.Dictionary).Set(float64(r.Total))
}

func (s *Service) startSpan(ctx context.Context, name string) (context.Context, *tracing.Span) {
	if !s.opts.Tracing {
		return ctx, nil
	}
	return tracing.Start(ctx, name)
}
