// Package engine maps roster workbooks against stored station tables.
// It ties together the mapping store, dictionary files and the xlsx
// adapter, and runs batches of files concurrently.
package engine

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/leapstack-labs/rostermap/internal/dictionary"
	"github.com/leapstack-labs/rostermap/internal/store"
	"github.com/leapstack-labs/rostermap/pkg/roster"
)

// StationSettings supplies per-station table options.
type StationSettings interface {
	SeparatorsFor(station string) []string
	FallbackFor(station string) string
}

// Engine maps workbooks for one state database.
type Engine struct {
	logger    *slog.Logger
	store     *store.Store
	ownsStore bool
	settings  StationSettings
	workers   int
	outputDir string

	mu     sync.Mutex
	tables map[string]*cachedTable
}

type cachedTable struct {
	table   *roster.Table
	version *store.Version
}

// Config holds engine configuration.
type Config struct {
	// StatePath is the path to the SQLite mapping store. Ignored when Store is set.
	StatePath string
	// Store is an already opened mapping store (optional).
	Store *store.Store
	// Settings supplies separators and fallback stations (optional).
	Settings StationSettings
	// Workers bounds concurrent jobs in MapBatch. Defaults to 1.
	Workers int
	// OutputDir receives mapped workbooks when a request names no output.
	OutputDir string
	// Logger is the structured logger (optional, uses discard if nil)
	Logger *slog.Logger
}

type defaultSettings struct{}

func (defaultSettings) SeparatorsFor(string) []string { return roster.DefaultSeparators }
func (defaultSettings) FallbackFor(string) string     { return store.Global }

// New creates an engine, opening the mapping store unless one is given.
func New(ctx context.Context, cfg Config) (*Engine, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	st := cfg.Store
	owns := false
	if st == nil {
		if dir := filepath.Dir(cfg.StatePath); cfg.StatePath != ":memory:" && dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("failed to create state directory: %w", err)
			}
		}
		var err error
		st, err = store.Open(ctx, cfg.StatePath, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open mapping store: %w", err)
		}
		owns = true
	}

	settings := cfg.Settings
	if settings == nil {
		settings = defaultSettings{}
	}

	logger.Debug("engine initialized", "state_path", cfg.StatePath, "workers", cfg.Workers)
	return &Engine{
		logger:    logger,
		store:     st,
		ownsStore: owns,
		settings:  settings,
		workers:   max(cfg.Workers, 1),
		outputDir: cfg.OutputDir,
		tables:    make(map[string]*cachedTable),
	}, nil
}

// Store returns the mapping store.
func (e *Engine) Store() *store.Store { return e.store }

// Close releases the mapping store if the engine opened it.
func (e *Engine) Close() error {
	if e.ownsStore {
		return e.store.Close()
	}
	return nil
}

// LoadTable returns a private copy of the station's mapping table, using
// the configured fallback station when it has none.
func (e *Engine) LoadTable(ctx context.Context, station string) (*roster.Table, *store.Version, error) {
	code, err := store.NormalizeStation(station)
	if err != nil {
		return nil, nil, err
	}

	e.mu.Lock()
	cached, ok := e.tables[code]
	e.mu.Unlock()
	if ok {
		return cached.table.Clone(), cached.version, nil
	}

	entries, v, err := e.store.LoadWithFallback(ctx, code, e.settings.FallbackFor(code))
	if err != nil {
		return nil, nil, err
	}
	t := roster.New(code, entries,
		roster.WithSeparators(e.settings.SeparatorsFor(code)...),
		roster.WithLogger(e.logger),
	)

	e.mu.Lock()
	e.tables[code] = &cachedTable{table: t, version: v}
	e.mu.Unlock()

	e.logger.Debug("mapping table loaded",
		"station", code,
		"source_station", v.Station,
		"version", v.Number,
		"entries", t.Len())
	return t.Clone(), v, nil
}

// ImportRequest describes a dictionary file to store as a new version.
type ImportRequest struct {
	Station string
	Path    string
	Author  string
	Note    string
	Replace bool
}

// ImportMapping loads a dictionary file and saves it for the station.
func (e *Engine) ImportMapping(ctx context.Context, req ImportRequest) (*store.Version, error) {
	entries, err := dictionary.Load(req.Path)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%s: %w", req.Path, store.ErrEmptyMapping)
	}
	note := req.Note
	if note == "" {
		note = "imported from " + filepath.Base(req.Path)
	}
	v, err := e.store.SaveMapping(ctx, store.SaveRequest{
		Station: req.Station,
		Entries: entries,
		Author:  req.Author,
		Note:    note,
		Replace: req.Replace,
	})
	if err != nil {
		return nil, err
	}
	e.Invalidate()
	return v, nil
}

// DeleteMapping removes a stored version and drops cached tables.
func (e *Engine) DeleteMapping(ctx context.Context, station string, number int, actor string) (bool, error) {
	ok, err := e.store.DeleteMapping(ctx, station, number, actor)
	if ok {
		e.Invalidate()
	}
	return ok, err
}

// Invalidate drops all cached tables.
func (e *Engine) Invalidate() {
	e.mu.Lock()
	clear(e.tables)
	e.mu.Unlock()
}

// DetectStation returns the stored station whose code appears in the file
// name, preferring longer codes. It returns "" when none matches.
func (e *Engine) DetectStation(ctx context.Context, filename string) (string, error) {
	stations, err := e.store.Stations(ctx)
	if err != nil {
		return "", err
	}
	codes := make([]string, 0, len(stations))
	for _, s := range stations {
		if s.Station != store.Global {
			codes = append(codes, s.Station)
		}
	}
	slices.SortStableFunc(codes, func(a, b string) int { return cmp.Compare(len(b), len(a)) })

	name := strings.ToUpper(filepath.Base(filename))
	for _, code := range codes {
		if strings.Contains(name, code) {
			return code, nil
		}
	}
	return "", nil
}
