package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads settings.yaml while the client is running and hands
// the fresh settings to onChange. Editors tend to replace the file
// rather than write it in place, so the parent directory is watched.
type Watcher struct {
	path        string
	onChange    func(*Settings)
	onError     func(error)
	stop        chan struct{}
	lastModTime time.Time
}

func NewWatcher(onChange func(*Settings), onError func(error)) (*Watcher, error) {
	path, err := GetSettingsFile()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		path:     path,
		onChange: onChange,
		onError:  onError,
		stop:     make(chan struct{}),
	}, nil
}

// Start watches in a goroutine until Stop is called.
func (w *Watcher) Start() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		watcher.Close()
		return err
	}

	go w.loop(watcher)
	return nil
}

func (w *Watcher) Stop() {
	close(w.stop)
}

func (w *Watcher) loop(watcher *fsnotify.Watcher) {
	defer watcher.Close()

	for {
		select {
		case <-w.stop:
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}

			stat, err := os.Stat(w.path)
			if err != nil {
				continue
			}
			if !stat.ModTime().After(w.lastModTime) {
				continue
			}
			w.lastModTime = stat.ModTime()

			// Give the editor a moment to finish the write.
			time.Sleep(100 * time.Millisecond)

			settings, err := LoadSettings()
			if err != nil {
				if w.onError != nil {
					w.onError(err)
				}
				continue
			}
			w.onChange(settings)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			if w.onError != nil {
				w.onError(err)
			}
		}
	}
}
