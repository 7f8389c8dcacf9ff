package commands

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/badger-opt/badger/internal/archive"
	"github.com/fsnotify/fsnotify"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

// NewArchiveCommand creates the archive command group.
func NewArchiveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Inspect the run archive",
	}
	cmd.AddCommand(newArchiveListCommand())
	cmd.AddCommand(newArchiveShowCommand())
	cmd.AddCommand(newArchiveDeleteCommand())
	cmd.AddCommand(newArchiveWatchCommand())
	return cmd
}

func newArchiveListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List archived runs, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			tree, err := cmdCtx.Archive.List()
			if err != nil {
				return err
			}
			if len(tree) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "The archive is empty")
				return nil
			}

			w := cmd.OutOrStdout()
			for _, year := range sortedDesc(tree) {
				for _, month := range sortedDesc(tree[year]) {
					for _, day := range sortedDesc(tree[year][month]) {
						_, _ = fmt.Fprintln(w, styleHeader.Render(day))
						for _, fname := range tree[year][month][day] {
							_, _ = fmt.Fprintln(w, "  "+fname)
						}
					}
				}
			}
			return nil
		},
	}
}

func newArchiveShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-file>",
		Short: "Show an archived run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			run, err := cmdCtx.Archive.Load(args[0])
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			_, _ = fmt.Fprintln(w, styleHeader.Render(run.Filename))
			_, _ = fmt.Fprintf(w, "Routine: %s\n", run.Routine.Name)
			_, _ = fmt.Fprintf(w, "Environment: %s\n", run.Routine.Environment.Name)
			_, _ = fmt.Fprintf(w, "Generator: %s\n", run.Routine.Generator.Name)
			if run.Data == nil || run.Data.Len() == 0 {
				_, _ = fmt.Fprintln(w, "Evaluations: 0")
				return nil
			}
			_, _ = fmt.Fprintf(w, "Evaluations: %d\n", run.Data.Len())
			cols := run.Data.Columns()
			t := table.NewWriter()
			t.SetOutputMirror(w)
			t.SetStyle(table.StyleLight)
			header := make(table.Row, len(cols))
			for i, c := range cols {
				header[i] = c
			}
			t.AppendHeader(header)
			for i := 0; i < run.Data.Len(); i++ {
				point := run.Data.Row(i)
				row := make(table.Row, len(cols))
				for j, c := range cols {
					row[j] = fmt.Sprintf("%.6g", point[c])
				}
				t.AppendRow(row)
			}
			t.Render()
			return nil
		},
	}
}

func newArchiveDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <run-file>",
		Short: "Delete an archived run and its database record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := cmdCtx.Archive.Delete(args[0]); err != nil {
				return err
			}
			if err := cmdCtx.Store.RemoveRunByFilename(args[0]); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Run %s deleted\n", args[0])
			return nil
		},
	}
}

func newArchiveWatchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Watch the archive root and report new runs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			return watchArchive(cmd, cmdCtx.Archive)
		},
	}
}

// watchArchive tails the archive root until the command context is canceled.
// Run files land in dated subdirectories created on the fly, so new
// directories are added to the watch as they appear.
func watchArchive(cmd *cobra.Command, arch *archive.Archive) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := watchDirRecursive(watcher, arch.Root()); err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	_, _ = fmt.Fprintln(w, styleMuted.Render("Watching "+arch.Root()))

	for {
		select {
		case <-cmd.Context().Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&fsnotify.Create == 0 {
				continue
			}
			if isDir(event.Name) {
				_ = watchDirRecursive(watcher, event.Name)
				continue
			}
			name := filepath.Base(event.Name)
			if strings.HasPrefix(name, "BadgerOpt-") && strings.HasSuffix(name, ".yaml") {
				_, _ = fmt.Fprintln(w, styleSuccess.Render("New run: ")+name)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			_, _ = fmt.Fprintln(cmd.ErrOrStderr(), styleError.Render("watch error: "+err.Error()))
		}
	}
}

func watchDirRecursive(watcher *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() && filepath.Base(path) != ".tmp" {
			return watcher.Add(path)
		}
		return nil
	})
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func sortedDesc[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(keys)))
	return keys
}
