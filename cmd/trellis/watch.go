package main

import (
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"
)

var (
	flagWatchSnapshot bool
	flagDebounce      time.Duration
)

var watchCmd = &cobra.Command{
	Use:   "watch [path]",
	Short: "Index a directory and keep the graph current as files change",
	Long:  "Watches the directory tree, re-opens changed documents, and logs the resulting revision. Bursts of filesystem events are debounced into one refresh.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runWatch,
}

func init() {
	watchCmd.Flags().BoolVar(&flagWatchSnapshot, "snapshot", false, "archive a graph snapshot after each refresh")
	watchCmd.Flags().DurationVar(&flagDebounce, "debounce", 300*time.Millisecond, "quiet period before a refresh")
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eng, root, err := openIndexed(ctx, args)
	if err != nil {
		return outputError("watch", err)
	}
	defer eng.Close()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return outputError("watch", err)
	}
	defer watcher.Close()
	if err := watchTree(watcher, root); err != nil {
		return outputError("watch", err)
	}

	logger.Info("watching", "root", root, "revision", eng.Revision())

	// Snapshots are rate limited so a noisy build loop cannot flood the
	// archive.
	snapLimit := rate.NewLimiter(rate.Every(5*time.Second), 1)

	pending := make(map[string]bool)
	var timer *time.Timer
	var timerC <-chan time.Time

	refresh := func() {
		for rel := range pending {
			delete(pending, rel)
			path := filepath.Join(root, filepath.FromSlash(rel))
			data, err := os.ReadFile(path)
			if err != nil {
				if os.IsNotExist(err) {
					if err := eng.CloseDocument(rel); err != nil {
						logger.Debug("close skipped", "doc", rel, "err", err)
					}
					continue
				}
				logger.Warn("read failed", "doc", rel, "err", err)
				continue
			}
			if _, err := eng.OpenDocument(rel, string(data)); err != nil {
				logger.Warn("reopen failed", "doc", rel, "err", err)
			}
		}
		logger.Info("refreshed", "revision", eng.Revision())
		if flagWatchSnapshot && snapLimit.Allow() {
			if rev, err := eng.Snapshot(ctx); err != nil {
				logger.Warn("snapshot failed", "err", err)
			} else {
				logger.Info("snapshot archived", "revision", rev)
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watch error", "err", err)
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := watchTree(watcher, ev.Name); err != nil {
						logger.Warn("watch add failed", "dir", ev.Name, "err", err)
					}
					continue
				}
			}
			rel, err := filepath.Rel(root, ev.Name)
			if err != nil {
				continue
			}
			rel = filepath.ToSlash(rel)
			if !claimedByPack(rel) {
				continue
			}
			pending[rel] = true
			if timer == nil {
				timer = time.NewTimer(flagDebounce)
				timerC = timer.C
			} else {
				timer.Reset(flagDebounce)
			}
		case <-timerC:
			timer = nil
			timerC = nil
			refresh()
		}
	}
}

// watchTree registers a directory and all its subdirectories, skipping
// hidden directories.
func watchTree(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if base := filepath.Base(path); base != "." && strings.HasPrefix(base, ".") && path != root {
			return filepath.SkipDir
		}
		if err := w.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}

// claimedByPack reports whether a relative path has an extension one of the
// registered packs claims.
func claimedByPack(rel string) bool {
	switch strings.ToLower(filepath.Ext(rel)) {
	case ".mini", ".go":
		return true
	}
	return false
}
