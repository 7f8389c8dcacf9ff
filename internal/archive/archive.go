// Package archive persists optimization runs as YAML files under a
// date-partitioned tree:
//
//	<root>/YYYY/YYYY-MM/YYYY-MM-DD/BadgerOpt-YYYY-MM-DD-HHMMSS.yaml
//
// Each file holds the routine that produced the run, the evaluated data as
// parallel arrays keyed by column name, and an optional machine state
// snapshot. In-progress runs are checkpointed under <root>/.tmp.
package archive

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/badger-opt/badger/internal/routine"
	"github.com/badger-opt/badger/pkg/frame"
	"gopkg.in/yaml.v3"
)

const (
	filePrefix   = "BadgerOpt"
	fileExt      = ".yaml"
	tmpDir       = ".tmp"
	failedMarker = " (failed to load)"

	// suffixLayout renders the run timestamp embedded in filenames.
	suffixLayout = "2006-01-02-150405"
)

// Run is one archived optimization run.
type Run struct {
	Filename     string
	Path         string
	Routine      *routine.Routine
	Data         *frame.Frame
	SystemStates map[string]any
}

type runFile struct {
	Routine      *routine.Routine `yaml:"routine"`
	Data         *frame.Frame     `yaml:"data"`
	SystemStates map[string]any   `yaml:"system_states,omitempty"`
}

// Archive manages the run tree under a single root directory.
type Archive struct {
	root string
	log  *slog.Logger
	now  func() time.Time
}

// New opens (creating if needed) the archive root.
func New(root string, logger *slog.Logger) (*Archive, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create archive root %s: %w", root, err)
	}
	return &Archive{root: root, log: logger, now: time.Now}, nil
}

// Root returns the archive root directory.
func (a *Archive) Root() string { return a.root }

// Save writes a finished run into the date tree. The run timestamp comes from
// the routine's creation time, falling back to the first data timestamp.
func (a *Archive) Save(r *routine.Routine, data *frame.Frame, states map[string]any) (*Run, error) {
	ts := a.runTime(r, data)
	suffix := ts.Format(suffixLayout)
	fname := filePrefix + "-" + suffix + fileExt

	dir := filepath.Join(append([]string{a.root}, datePath(suffix)...)...)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create run directory %s: %w", dir, err)
	}

	path := filepath.Join(dir, fname)
	if err := writeRun(path, &runFile{Routine: r, Data: data, SystemStates: states}); err != nil {
		return nil, err
	}
	a.log.Debug("archived run", "filename", fname, "dir", dir)

	return &Run{Filename: fname, Path: dir, Routine: r, Data: data, SystemStates: states}, nil
}

// Load reads a run by filename. The directory is derived from the timestamp
// tokens embedded in the name; tmp checkpoints load from the .tmp directory.
// A " (failed to load)" display marker on the name is ignored.
func (a *Archive) Load(fname string) (*Run, error) {
	fname = BaseRunFilename(fname)
	path, err := a.pathFor(fname)
	if err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read run %s: %w", fname, err)
	}
	var rf runFile
	if err := yaml.Unmarshal(raw, &rf); err != nil {
		return nil, fmt.Errorf("failed to parse run %s: %w", fname, err)
	}
	return &Run{
		Filename:     fname,
		Path:         filepath.Dir(path),
		Routine:      rf.Routine,
		Data:         rf.Data,
		SystemStates: rf.SystemStates,
	}, nil
}

// Delete removes a run file from the tree.
func (a *Archive) Delete(fname string) error {
	fname = BaseRunFilename(fname)
	path, err := a.pathFor(fname)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("failed to delete run %s: %w", fname, err)
	}
	return nil
}

// List returns the run tree as year -> month -> day -> filenames, every level
// newest first (files by modification time).
func (a *Archive) List() (map[string]map[string]map[string][]string, error) {
	runs := make(map[string]map[string]map[string][]string)
	years, err := subdirs(a.root)
	if err != nil {
		return nil, err
	}
	for _, year := range years {
		runs[year] = make(map[string]map[string][]string)
		months, err := subdirs(filepath.Join(a.root, year))
		if err != nil {
			return nil, err
		}
		for _, month := range months {
			runs[year][month] = make(map[string][]string)
			days, err := subdirs(filepath.Join(a.root, year, month))
			if err != nil {
				return nil, err
			}
			for _, day := range days {
				files, err := runFiles(filepath.Join(a.root, year, month, day))
				if err != nil {
					return nil, err
				}
				runs[year][month][day] = files
			}
		}
	}
	return runs, nil
}

// Runs returns every archived run filename, newest day first.
func (a *Archive) Runs() ([]string, error) {
	tree, err := a.List()
	if err != nil {
		return nil, err
	}

	var out []string
	for _, year := range sortedKeysDesc(tree) {
		for _, month := range sortedKeysDesc(tree[year]) {
			for _, day := range sortedKeysDesc(tree[year][month]) {
				out = append(out, tree[year][month][day]...)
			}
		}
	}
	return out, nil
}

// SaveTmp checkpoints an in-progress run under the .tmp directory and returns
// the checkpoint filename.
func (a *Archive) SaveTmp(r *routine.Routine, data *frame.Frame) (string, error) {
	dir := filepath.Join(a.root, tmpDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create tmp directory: %w", err)
	}

	suffix := a.now().Format(suffixLayout)
	fname := tmpDir + "-" + filePrefix + "-" + suffix + fileExt
	if err := writeRun(filepath.Join(dir, fname), &runFile{Routine: r, Data: data}); err != nil {
		return "", err
	}
	return fname, nil
}

// ClearTmp deletes all tmp checkpoints.
func (a *Archive) ClearTmp() error {
	dir := filepath.Join(a.root, tmpDir)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read tmp directory: %w", err)
	}
	for _, entry := range entries {
		if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil {
			return fmt.Errorf("failed to clear tmp run %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// BaseRunFilename strips the display marker appended to runs that previously
// failed to load.
func BaseRunFilename(fname string) string {
	return strings.TrimSuffix(fname, failedMarker)
}

func (a *Archive) pathFor(fname string) (string, error) {
	if strings.HasPrefix(fname, tmpDir) {
		return filepath.Join(a.root, tmpDir, fname), nil
	}
	rest, ok := strings.CutPrefix(fname, filePrefix+"-")
	if !ok {
		return "", fmt.Errorf("malformed run filename %s", fname)
	}
	suffix := strings.TrimSuffix(rest, fileExt)
	levels := datePath(suffix)
	if levels == nil {
		return "", fmt.Errorf("malformed run filename %s", fname)
	}
	return filepath.Join(append([]string{a.root}, append(levels, fname)...)...), nil
}

// datePath splits a YYYY-MM-DD-HHMMSS suffix into the three directory levels.
func datePath(suffix string) []string {
	tokens := strings.Split(suffix, "-")
	if len(tokens) < 3 {
		return nil
	}
	return []string{
		tokens[0],
		tokens[0] + "-" + tokens[1],
		tokens[0] + "-" + tokens[1] + "-" + tokens[2],
	}
}

func (a *Archive) runTime(r *routine.Routine, data *frame.Frame) time.Time {
	if r != nil && !r.CreationTime.IsZero() {
		return r.CreationTime
	}
	if data != nil && data.Len() > 0 {
		if ts := data.Row(0)[frame.TimestampColumn]; ts > 0 {
			return time.Unix(0, int64(ts*1e9))
		}
	}
	return a.now()
}

func writeRun(path string, rf *runFile) error {
	out, err := yaml.Marshal(rf)
	if err != nil {
		return fmt.Errorf("failed to encode run: %w", err)
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return fmt.Errorf("failed to write run %s: %w", path, err)
	}
	return nil
}

func subdirs(path string) ([]string, error) {
	entries, err := os.ReadDir(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read archive directory %s: %w", path, err)
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() && entry.Name() != tmpDir {
			names = append(names, entry.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	return names, nil
}

// runFiles lists the yaml files in a day directory, newest mtime first.
func runFiles(path string) ([]string, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read archive directory %s: %w", path, err)
	}
	type stamped struct {
		name  string
		mtime time.Time
	}
	var files []stamped
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != fileExt {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return nil, fmt.Errorf("failed to stat run %s: %w", entry.Name(), err)
		}
		files = append(files, stamped{name: entry.Name(), mtime: info.ModTime()})
	}
	sort.SliceStable(files, func(i, j int) bool { return files[i].mtime.After(files[j].mtime) })

	names := make([]string, len(files))
	for i, f := range files {
		names[i] = f.name
	}
	return names, nil
}

func sortedKeysDesc[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(keys)))
	return keys
}
