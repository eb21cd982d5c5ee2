package reactor

import (
	"io/fs"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

type FSEventType uint8

const (
	FSRename FSEventType = 1 << iota
	FSChange
)

type FSEventFlags uint8

const (
	FSWatchEntry FSEventFlags = 1 << iota
	FSStat
	FSRecursive
)

type FSEventCallback func(handle *FSEvent, filename string, events FSEventType, status Status)

// FSEvent reports changes under a path. The watch runs on an fsnotify
// goroutine and every notification is delivered through the loop.
type FSEvent struct {
	Handle
	path     string
	flags    FSEventFlags
	callback FSEventCallback
	watcher  *fsnotify.Watcher
	done     chan struct{}
}

func InitFSEvent(loop *Loop, event *FSEvent) error {
	if loop.closed {
		return StatusInvalid
	}
	*event = FSEvent{}
	event.Handle.init(loop, HandleFSEvent)
	event.Handle.stop = func() {
		event.Stop()
	}
	return nil
}

func (e *FSEvent) Start(callback FSEventCallback, path string, flags FSEventFlags) error {
	if callback == nil || path == "" || e.IsClosing() || e.IsActive() {
		return StatusInvalid
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return StatusOf(err)
	}
	err = watcher.Add(path)
	if err == nil && flags&FSRecursive != 0 {
		err = filepath.WalkDir(path, func(subPath string, entry fs.DirEntry, walkErr error) error {
			if walkErr != nil || !entry.IsDir() || subPath == path {
				return walkErr
			}
			return watcher.Add(subPath)
		})
	}
	if err != nil {
		watcher.Close()
		return StatusOf(err)
	}
	e.path = path
	e.flags = flags
	e.callback = callback
	e.watcher = watcher
	e.done = make(chan struct{})
	e.activate()
	go e.loopWatch(watcher, e.done)
	return nil
}

// Stop closes the watcher and waits for its goroutine to exit.
func (e *FSEvent) Stop() error {
	if e.watcher == nil {
		return nil
	}
	watcher, done := e.watcher, e.done
	e.watcher = nil
	e.done = nil
	e.deactivate()
	err := watcher.Close()
	<-done
	return statusError(err)
}

func (e *FSEvent) Path() string {
	return e.path
}

func (e *FSEvent) loopWatch(watcher *fsnotify.Watcher, done chan struct{}) {
	defer close(done)
	for {
		select {
		case event, loaded := <-watcher.Events:
			if !loaded {
				return
			}
			e.loop.post(func() {
				e.dispatch(watcher, event)
			})
		case err, loaded := <-watcher.Errors:
			if !loaded {
				return
			}
			e.loop.post(func() {
				if e.watcher == watcher {
					e.callback(e, "", 0, StatusOf(err))
				}
			})
		}
	}
}

func (e *FSEvent) dispatch(watcher *fsnotify.Watcher, event fsnotify.Event) {
	if e.watcher != watcher {
		return
	}
	var events FSEventType
	if event.Has(fsnotify.Create) || event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
		events |= FSRename
	}
	if event.Has(fsnotify.Write) || event.Has(fsnotify.Chmod) {
		events |= FSChange
	}
	if events == 0 {
		return
	}
	filename := filepath.Base(event.Name)
	if relPath, err := filepath.Rel(e.path, event.Name); err == nil && relPath != "." {
		filename = relPath
	}
	e.callback(e, filename, events, StatusOK)
}
