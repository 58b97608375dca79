package engine

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/rostermap/pkg/roster"
)

// DefaultZipName is the archive name used when a batch is packaged.
const DefaultZipName = "roster_mapped_batch.zip"

// BatchItem is the outcome of one batch job. Exactly one of Result and Err is set.
type BatchItem struct {
	Request MapRequest
	Result  *MapResult
	Err     error
}

// BatchResult reports a batch run.
type BatchResult struct {
	Items    []BatchItem
	Stats    roster.Stats
	Failed   int
	Archive  string
	Duration time.Duration
}

// MapBatch maps workbooks concurrently, bounded by the configured worker
// count. A failing job does not stop the others. When zipPath is set, the
// successful outputs are packaged into a zip archive there.
func (e *Engine) MapBatch(ctx context.Context, reqs []MapRequest, zipPath string) (*BatchResult, error) {
	start := time.Now()
	items := make([]BatchItem, len(reqs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)

	// Two inputs mapping to the same output would clobber each other.
	var mu sync.Mutex
	claimed := make(map[string]int, len(reqs))

	for i, req := range reqs {
		items[i].Request = req
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				items[i].Err = err
				return nil
			}
			t, v, req, err := e.prepare(gctx, req)
			if err != nil {
				items[i].Err = err
				return nil
			}
			if req.Output == "" {
				req.Output = e.OutputPath(req.Input, req.Station)
			}
			mu.Lock()
			prev, dup := claimed[req.Output]
			if !dup {
				claimed[req.Output] = i
			}
			mu.Unlock()
			if dup {
				items[i].Err = fmt.Errorf("output %s already written by %s", req.Output, reqs[prev].Input)
				return nil
			}

			items[i].Request = req
			items[i].Result, items[i].Err = e.mapWith(gctx, t, v, req)
			return nil
		})
	}
	_ = g.Wait()

	result := &BatchResult{Items: items}
	var outputs []string
	for _, it := range items {
		if it.Err != nil {
			result.Failed++
			e.logger.Warn("batch job failed", "input", it.Request.Input, "error", it.Err)
			continue
		}
		result.Stats.Add(it.Result.Stats)
		outputs = append(outputs, it.Result.Output)
	}

	if zipPath != "" && len(outputs) > 0 {
		if err := writeZip(zipPath, outputs); err != nil {
			return result, err
		}
		result.Archive = zipPath
	}
	result.Duration = time.Since(start)

	e.logger.Info("batch completed",
		"files", len(reqs),
		"failed", result.Failed,
		"mapped_cells", result.Stats.Mapped,
		"archive", result.Archive,
		"duration", result.Duration)
	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}

// ZipPath returns where a batch archive is written when only a directory
// or nothing is given.
func (e *Engine) ZipPath(path string) string {
	if path == "" {
		return filepath.Join(e.outputDir, DefaultZipName)
	}
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return filepath.Join(path, DefaultZipName)
	}
	return path
}

func writeZip(path string, files []string) (err error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("failed to create archive directory: %w", err)
		}
	}
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}
	defer func() {
		if cerr := out.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("failed to close archive: %w", cerr)
		}
	}()

	zw := zip.NewWriter(out)
	for i, name := range archiveNames(files) {
		if err := addToZip(zw, files[i], name); err != nil {
			return err
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to finish archive: %w", err)
	}
	return nil
}

// archiveNames gives each file its base name inside the archive. A repeated
// base name gets a numeric suffix ("mapped_SGN_june_2.xlsx").
func archiveNames(files []string) []string {
	names := make([]string, len(files))
	used := make(map[string]bool, len(files))
	for i, path := range files {
		base := filepath.Base(path)
		name := base
		ext := filepath.Ext(base)
		for n := 2; used[name]; n++ {
			name = fmt.Sprintf("%s_%d%s", strings.TrimSuffix(base, ext), n, ext)
		}
		used[name] = true
		names[i] = name
	}
	return names
}

func addToZip(zw *zip.Writer, path, name string) error {
	in, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = in.Close() }()

	info, err := in.Stat()
	if err != nil {
		return err
	}
	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	hdr.Name = name
	hdr.Method = zip.Deflate

	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return fmt.Errorf("failed to add %s to archive: %w", hdr.Name, err)
	}
	if _, err := io.Copy(w, in); err != nil {
		return fmt.Errorf("failed to add %s to archive: %w", hdr.Name, err)
	}
	return nil
}
