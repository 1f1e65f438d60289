// Package manifest reads bulk registrations from a CSV or JSON Lines manifest
// that sits next to an images directory:
//
//	<dir>/manifest.csv | manifest.jsonl
//	<dir>/images/<filename>
//
// CSV manifests need a header row with the columns id, filename, latitude,
// longitude, status and optionally description.
package manifest

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/afero"

	"github.com/timmy/petmatch/internal/source"
)

const (
	CSVFileName   = "manifest.csv"
	JSONLFileName = "manifest.jsonl"
	// ImagesDir is the directory name for the manifest's images.
	ImagesDir = "images"
)

// Entry is one manifest row.
type Entry struct {
	ID          string   `json:"id"`
	Filename    string   `json:"filename"`
	Latitude    *float64 `json:"latitude"`
	Longitude   *float64 `json:"longitude"`
	Status      string   `json:"status"`
	Description string   `json:"description"`
}

// Problem is a manifest row that was skipped.
type Problem struct {
	Line   int
	Reason string
}

// Adapter implements source.Source for a manifest directory.
type Adapter struct {
	fs       afero.Fs
	dir      string
	items    []source.ReportItem
	problems []Problem
	loaded   bool
}

// NewAdapter creates an adapter for the manifest in dir.
func NewAdapter(fs afero.Fs, dir string) *Adapter {
	return &Adapter{fs: fs, dir: dir}
}

// GetSourceID returns "manifest:<dir base name>".
func (a *Adapter) GetSourceID() string {
	return "manifest:" + filepath.Base(a.dir)
}

// GetDisplayName returns a human-readable name for this source.
func (a *Adapter) GetDisplayName() string {
	return fmt.Sprintf("Manifest (%s)", a.dir)
}

// FetchBatch returns up to limit items after cursor, an index into the manifest.
func (a *Adapter) FetchBatch(ctx context.Context, cursor string, limit int) ([]source.ReportItem, string, error) {
	if err := a.load(); err != nil {
		return nil, "", err
	}
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}

	start := 0
	if cursor != "" {
		var err error
		start, err = strconv.Atoi(cursor)
		if err != nil || start < 0 {
			return nil, "", fmt.Errorf("invalid cursor %q", cursor)
		}
	}
	if start >= len(a.items) {
		return []source.ReportItem{}, "", nil
	}
	if limit <= 0 {
		limit = len(a.items)
	}

	end := start + limit
	if end > len(a.items) {
		end = len(a.items)
	}
	next := ""
	if end < len(a.items) {
		next = strconv.Itoa(end)
	}
	return a.items[start:end], next, nil
}

// Problems returns the rows skipped while loading.
func (a *Adapter) Problems() []Problem {
	return a.problems
}

// Count returns the number of usable items.
func (a *Adapter) Count() (int, error) {
	if err := a.load(); err != nil {
		return 0, err
	}
	return len(a.items), nil
}

func (a *Adapter) load() error {
	if a.loaded {
		return nil
	}

	var (
		entries []lineEntry
		err     error
	)
	csvPath := filepath.Join(a.dir, CSVFileName)
	jsonlPath := filepath.Join(a.dir, JSONLFileName)
	switch {
	case exists(a.fs, csvPath):
		entries, err = a.readCSV(csvPath)
	case exists(a.fs, jsonlPath):
		entries, err = a.readJSONL(jsonlPath)
	default:
		return fmt.Errorf("no %s or %s in %s", CSVFileName, JSONLFileName, a.dir)
	}
	if err != nil {
		return err
	}

	seen := make(map[string]bool, len(entries))
	for _, le := range entries {
		e := le.entry
		if e.ID == "" || e.Filename == "" {
			a.problems = append(a.problems, Problem{Line: le.line, Reason: "id and filename are required"})
			continue
		}
		if seen[e.ID] {
			a.problems = append(a.problems, Problem{Line: le.line, Reason: "duplicate id " + e.ID})
			continue
		}
		local := filepath.Join(a.dir, ImagesDir, filepath.Clean("/" + e.Filename))
		if !exists(a.fs, local) {
			a.problems = append(a.problems, Problem{Line: le.line, Reason: "image not found: " + e.Filename})
			continue
		}
		seen[e.ID] = true
		a.items = append(a.items, source.ReportItem{
			SourceID:    e.ID,
			LocalPath:   local,
			Filename:    filepath.Base(e.Filename),
			Latitude:    e.Latitude,
			Longitude:   e.Longitude,
			Status:      e.Status,
			Description: e.Description,
			Line:        le.line,
		})
	}

	a.loaded = true
	return nil
}

type lineEntry struct {
	line  int
	entry Entry
}

func (a *Adapter) readJSONL(path string) ([]lineEntry, error) {
	file, err := a.fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open manifest: %w", err)
	}
	defer file.Close()

	var out []lineEntry
	scanner := bufio.NewScanner(file)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var e Entry
		if err := json.Unmarshal([]byte(text), &e); err != nil {
			a.problems = append(a.problems, Problem{Line: line, Reason: "malformed JSON: " + err.Error()})
			continue
		}
		out = append(out, lineEntry{line: line, entry: e})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading manifest: %w", err)
	}
	return out, nil
}

var requiredColumns = []string{"id", "filename", "latitude", "longitude", "status"}

func (a *Adapter) readCSV(path string) ([]lineEntry, error) {
	file, err := a.fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open manifest: %w", err)
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.TrimLeadingSpace = true
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, c := range requiredColumns {
		if _, ok := cols[c]; !ok {
			return nil, fmt.Errorf("manifest is missing column %q", c)
		}
	}

	get := func(rec []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var out []lineEntry
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				a.problems = append(a.problems, Problem{Line: pe.Line, Reason: pe.Err.Error()})
				continue
			}
			return nil, fmt.Errorf("error reading manifest: %w", err)
		}
		line, _ := r.FieldPos(0)

		e := Entry{
			ID:          get(rec, "id"),
			Filename:    get(rec, "filename"),
			Status:      get(rec, "status"),
			Description: get(rec, "description"),
		}
		if e.Latitude, err = parseCoord(get(rec, "latitude")); err != nil {
			a.problems = append(a.problems, Problem{Line: line, Reason: "latitude: " + err.Error()})
			continue
		}
		if e.Longitude, err = parseCoord(get(rec, "longitude")); err != nil {
			a.problems = append(a.problems, Problem{Line: line, Reason: "longitude: " + err.Error()})
			continue
		}
		out = append(out, lineEntry{line: line, entry: e})
	}
	return out, nil
}

// parseCoord leaves missing values nil; the register pipeline rejects them.
func parseCoord(raw string) (*float64, error) {
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, fmt.Errorf("not a number: %q", raw)
	}
	return &v, nil
}

func exists(fs afero.Fs, path string) bool {
	ok, err := afero.Exists(fs, path)
	return err == nil && ok
}
