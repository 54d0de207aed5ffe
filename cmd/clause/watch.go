package main

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/benjaminschreck/go-clause/internal/watcher"
	"github.com/spf13/cobra"
)

func newWatchCmd(a *app) *cobra.Command {
	var initial bool

	cmd := &cobra.Command{
		Use:   "watch <dir>...",
		Short: "Re-validate templates as they change",
		Long: `Watch directories for template changes (.txt, .tmpl, .docx) and report
whether each changed template is valid. Stops on interrupt.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.runWatch(ctx, cmd.OutOrStdout(), args, initial)
		},
	}
	cmd.Flags().BoolVar(&initial, "initial", true, "validate existing templates before watching")
	return cmd
}

func (a *app) runWatch(ctx context.Context, out io.Writer, dirs []string, initial bool) error {
	w, err := watcher.New(a.engine, a.cfg.WatchDebounce)
	if err != nil {
		return err
	}
	defer w.Stop()

	for _, dir := range dirs {
		if err := w.Watch(dir); err != nil {
			return err
		}
	}

	var mu sync.Mutex
	emit := func(r watcher.Result) {
		mu.Lock()
		defer mu.Unlock()
		printResult(out, r)
	}

	if initial {
		for _, dir := range dirs {
			if err := scanTemplates(a, dir, emit); err != nil {
				return err
			}
		}
	}

	w.AddHandler(emit)
	if err := w.Start(ctx); err != nil {
		return err
	}
	fmt.Fprintf(out, "Watching %d director%s, press Ctrl+C to stop\n", len(dirs), plural(len(dirs), "y", "ies"))

	<-ctx.Done()
	return w.Stop()
}

// scanTemplates checks every template file already under dir.
func scanTemplates(a *app, dir string, report watcher.Handler) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && !watcher.NoHiddenFilter(path) {
				return filepath.SkipDir
			}
			return nil
		}
		if watcher.TemplateFilter(path) && watcher.NoHiddenFilter(path) {
			report(watcher.Check(a.engine, path))
		}
		return nil
	})
}

func printResult(w io.Writer, r watcher.Result) {
	switch {
	case r.Removed:
		fmt.Fprintf(w, "GONE %s\n", r.Path)
	case r.Err != nil:
		fmt.Fprintf(w, "FAIL %s: %v\n", r.Path, r.Err)
	default:
		fmt.Fprintf(w, "OK   %s (%d fields, %d blocks)\n", r.Path, len(r.Template.Fields()), len(r.Template.Blocks()))
	}
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
