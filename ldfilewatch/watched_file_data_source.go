// Package ldfilewatch provides a mechanism for reloading the ldfiledata data
// source whenever its files change, using filesystem notifications.
//
// Use it with the Reloader option of the ldfiledata package:
//
//	config.UpdateProcessorFactory = ldfiledata.NewFileDataSourceFactory(
//	    ldfiledata.FilePaths("my-flags.json"),
//	    ldfiledata.Reloader(ldfilewatch.WatchFiles))
package ldfilewatch

import (
	"fmt"
	"path"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"gopkg.in/launchdarkly/go-server-sdk.v4/ldlog"
)

const retryDuration = time.Second

type fileWatcher struct {
	watcher  *fsnotify.Watcher
	loggers  ldlog.Loggers
	reload   func()
	paths    []string
	absPaths map[string]bool
}

// WatchFiles sets up a filesystem watcher that calls the reload function
// whenever any of the files change. It is the standard implementation of the
// ldfiledata ReloaderFactory.
//
// The watcher is registered on each file's parent directory, because editors
// and configuration systems commonly replace files by renaming over them,
// which would silently detach a watch on the file itself.
func WatchFiles(paths []string, loggers ldlog.Loggers, reload func(), closeCh <-chan struct{}) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("unable to create file watcher: %s", err)
	}
	fw := &fileWatcher{
		watcher:  watcher,
		loggers:  loggers,
		reload:   reload,
		paths:    paths,
		absPaths: make(map[string]bool),
	}
	go fw.run(closeCh)
	return nil
}

func (fw *fileWatcher) run(closeCh <-chan struct{}) {
	retryCh := make(chan struct{}, 1)
	scheduleRetry := func() {
		time.AfterFunc(retryDuration, func() {
			select {
			case retryCh <- struct{}{}: // don't need multiple retries so no need to block
			default:
			}
		})
	}
	for {
		if err := fw.setupWatches(); err != nil {
			fw.loggers.Error(err.Error())
			scheduleRetry()
		}

		// Consume changes until we are signalled to stop. If a change
		// affects files that do not all exist yet, a retry is scheduled so
		// that a file that appears later is still picked up.
		quit := fw.waitForEvents(closeCh, retryCh, scheduleRetry)
		if quit {
			return
		}
	}
}

func (fw *fileWatcher) setupWatches() error {
	for _, p := range fw.paths {
		absDirPath := path.Dir(p)
		realDirPath, err := filepath.EvalSymlinks(absDirPath)
		if err != nil {
			return fmt.Errorf(`unable to evaluate symlinks for "%s": %s`, absDirPath, err)
		}

		realPath := path.Join(realDirPath, path.Base(p))
		fw.absPaths[realPath] = true
		if err = fw.watcher.Add(realPath); err != nil {
			return fmt.Errorf(`unable to watch path "%s": %s`, realPath, err)
		}
		if err = fw.watcher.Add(realDirPath); err != nil {
			return fmt.Errorf(`unable to watch path "%s": %s`, realDirPath, err)
		}
	}
	return nil
}

func (fw *fileWatcher) waitForEvents(closeCh <-chan struct{}, retryCh <-chan struct{}, scheduleRetry func()) bool {
	for {
		select {
		case <-closeCh:
			err := fw.watcher.Close()
			if err != nil {
				fw.loggers.Errorf("Error closing Watcher: %s", err)
			}
			return true
		case event := <-fw.watcher.Events:
			if !fw.absPaths[event.Name] {
				break
			}
			fw.triggerReload(scheduleRetry)
		case err := <-fw.watcher.Errors:
			fw.loggers.Error(err.Error())
		case <-retryCh:
			fw.triggerReload(scheduleRetry)
		}
	}
}

func (fw *fileWatcher) triggerReload(scheduleRetry func()) {
	fw.reload()
	// Rewatch in case a file was renamed over; a rename detaches the watch
	// on the original inode.
	if err := fw.setupWatches(); err != nil {
		fw.loggers.Error(err.Error())
		scheduleRetry()
	}
}
