// Package handler implements the dictionary HTTP API on top of
// dictionary.Service.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sort"
	"strconv"

	"github.com/Adithya-Monish-Kumar-K/morphdict/internal/audit"
	"github.com/Adithya-Monish-Kumar-K/morphdict/internal/charset"
	"github.com/Adithya-Monish-Kumar-K/morphdict/internal/dictionary"
	apperrors "github.com/Adithya-Monish-Kumar-K/morphdict/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/morphdict/pkg/logger"
)

// HistoryStore lists audit entries; *audit.Store is the implementation.
type HistoryStore interface {
	List(ctx context.Context, dictionary string, limit int) ([]audit.Entry, error)
}

// Config holds the handler's limits.
type Config struct {
	DataDir      string
	MaxBodyBytes int64
	// CreateEncoding is used when a POST to a missing dictionary asks for
	// creation without naming an encoding.
	CreateEncoding charset.Label
}

type Handler struct {
	svc     *dictionary.Service
	history HistoryStore
	cfg     Config
	logger  *slog.Logger
}

// New creates a Handler. history may be nil, in which case the history
// endpoint reports 503.
func New(svc *dictionary.Service, history HistoryStore, cfg Config) *Handler {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 16 << 20
	}
	if !cfg.CreateEncoding.Known() {
		cfg.CreateEncoding = charset.UTF8
	}
	return &Handler{
		svc:     svc,
		history: history,
		cfg:     cfg,
		logger:  slog.Default().With("component", "dictionary-handler"),
	}
}

type dictionarySummary struct {
	Name     string        `json:"name"`
	Encoding charset.Label `json:"encoding"`
	Size     int64         `json:"size"`
}

type dictionaryResponse struct {
	Name       string        `json:"name"`
	Encoding   charset.Label `json:"encoding"`
	LineEnding string        `json:"line_ending"`
	BOM        bool          `json:"bom"`
	Total      int           `json:"total"`
	Lines      []string      `json:"lines"`
}

type wordsRequest struct {
	Words []string `json:"words"`
}

// ListDictionaries returns every regular, non-hidden file of the data
// directory with its detected encoding.
func (h *Handler) ListDictionaries(w http.ResponseWriter, r *http.Request) {
	entries, err := os.ReadDir(h.cfg.DataDir)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		h.writeError(w, r, err)
		return
	}

	out := make([]dictionarySummary, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() || dictionary.ValidateName(e.Name()) != nil {
			continue
		}
		path, _ := dictionary.Resolve(h.cfg.DataDir, e.Name())
		label, err := h.svc.Detect(r.Context(), path)
		if err != nil {
			logger.FromContext(r.Context()).Warn("skipping unreadable dictionary", "name", e.Name(), "error", err)
			continue
		}
		var size int64
		if info, err := e.Info(); err == nil {
			size = info.Size()
		}
		out = append(out, dictionarySummary{Name: e.Name(), Encoding: label, Size: size})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	h.writeJSON(w, http.StatusOK, map[string]any{"dictionaries": out})
}

// GetDictionary returns the decoded lines of one dictionary.
func (h *Handler) GetDictionary(w http.ResponseWriter, r *http.Request) {
	path, ok := h.resolve(w, r)
	if !ok {
		return
	}
	f, err := h.svc.Read(r.Context(), path)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, dictionaryResponse{
		Name:       r.PathValue("name"),
		Encoding:   f.Encoding,
		LineEnding: f.LineEnding.String(),
		BOM:        f.HasBOM,
		Total:      len(f.Lines),
		Lines:      f.Lines,
	})
}

// AddWords merges the words of the request body into a dictionary.
// Query parameters: dry_run, create, encoding.
func (h *Handler) AddWords(w http.ResponseWriter, r *http.Request) {
	path, ok := h.resolve(w, r)
	if !ok {
		return
	}
	req, ok := h.decodeWords(w, r)
	if !ok {
		return
	}
	svc, err := h.service(r, true)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	report, err := svc.AddWords(r.Context(), path, req.Words)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if report.Created && !report.DryRun {
		status = http.StatusCreated
	}
	h.writeJSON(w, status, report)
}

// DeleteWords removes the words of the request body from a dictionary.
func (h *Handler) DeleteWords(w http.ResponseWriter, r *http.Request) {
	path, ok := h.resolve(w, r)
	if !ok {
		return
	}
	req, ok := h.decodeWords(w, r)
	if !ok {
		return
	}
	svc, err := h.service(r, false)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	report, err := svc.DeleteWords(r.Context(), path, req.Words)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}

// Sort deduplicates and orders a dictionary.
func (h *Handler) Sort(w http.ResponseWriter, r *http.Request) {
	path, ok := h.resolve(w, r)
	if !ok {
		return
	}
	svc, err := h.service(r, false)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	report, err := svc.Sort(r.Context(), path)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}

// History lists the audit log of a dictionary, newest first.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := dictionary.ValidateName(name); err != nil {
		h.writeError(w, r, err)
		return
	}
	if h.history == nil {
		h.writeError(w, r, apperrors.New(apperrors.ErrUnavailable, http.StatusServiceUnavailable, "audit log is not configured"))
		return
	}
	limit := audit.DefaultLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			h.writeError(w, r, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "limit must be a positive integer"))
			return
		}
		limit = min(n, 1000)
	}
	entries, err := h.history.List(r.Context(), name, limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"dictionary": name, "entries": entries})
}

// Detect classifies the raw request body.
func (h *Handler) Detect(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.cfg.MaxBodyBytes))
	if err != nil {
		h.writeError(w, r, bodyError(err))
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"encoding": h.svc.Classify(body),
		"size":     len(body),
	})
}

func (h *Handler) resolve(w http.ResponseWriter, r *http.Request) (string, bool) {
	path, err := dictionary.Resolve(h.cfg.DataDir, r.PathValue("name"))
	if err != nil {
		h.writeError(w, r, err)
		return "", false
	}
	return path, true
}

func (h *Handler) decodeWords(w http.ResponseWriter, r *http.Request) (*wordsRequest, bool) {
	var req wordsRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, h.cfg.MaxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		h.writeError(w, r, bodyError(err))
		return nil, false
	}
	return &req, true
}

// service applies the per-request options carried in the query string.
func (h *Handler) service(r *http.Request, allowCreate bool) (*dictionary.Service, error) {
	q := r.URL.Query()
	svc := h.svc
	if v := q.Get("dry_run"); v != "" {
		dry, err := strconv.ParseBool(v)
		if err != nil {
			return nil, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "dry_run must be a boolean")
		}
		svc = svc.WithDryRun(dry)
	}
	if !allowCreate {
		return svc, nil
	}
	if v := q.Get("create"); v != "" {
		create, err := strconv.ParseBool(v)
		if err != nil {
			return nil, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "create must be a boolean")
		}
		enc := h.cfg.CreateEncoding
		if s := q.Get("encoding"); s != "" {
			enc, err = charset.ParseLabel(s)
			if err != nil {
				return nil, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, err.Error())
			}
		}
		svc = svc.WithCreate(create, enc)
	}
	return svc, nil
}

func bodyError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return apperrors.New(apperrors.ErrInvalidInput, http.StatusRequestEntityTooLarge, "request body too large")
	}
	return apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "invalid request body: "+err.Error())
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatusCode(err)
	message := err.Error()
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		logger.FromContext(r.Context()).Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		message = "internal error"
	}
	h.writeJSON(w, status, map[string]string{"error": message})
}
