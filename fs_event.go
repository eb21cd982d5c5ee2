package uv

import (
	E "github.com/sagernet/sing-uv/common/exceptions"
	"github.com/sagernet/sing-uv/reactor"
)

var ErrEmptyPath = E.New("empty path")

// FsEvent publishes EvFsEvent for changes to a file or directory.
type FsEvent struct {
	Handle
	native reactor.FSEvent
}

func NewFsEvent(loop *reactor.Loop) (*FsEvent, error) {
	watch := new(FsEvent)
	err := reactor.InitFSEvent(loop, &watch.native)
	if err != nil {
		return nil, E.Cause(err, "init fs event")
	}
	watch.initHandle(loop, &watch.native.Handle, watch)
	return watch, nil
}

func (e *FsEvent) Start(path string, flags reactor.FSEventFlags) error {
	if path == "" {
		return ErrEmptyPath
	}
	err := e.native.Start(onFsEvent, path, flags)
	if err != nil {
		return E.Cause(err, "watch ", path)
	}
	return nil
}

func (e *FsEvent) Stop() error {
	return e.native.Stop()
}

// Path returns the last watched path.
func (e *FsEvent) Path() string {
	return e.native.Path()
}

func onFsEvent(native *reactor.FSEvent, filename string, events reactor.FSEventType, status reactor.Status) {
	if watch, loaded := reactor.Lookup[*FsEvent](native.Loop(), native.Data); loaded {
		watch.publish(EvFsEvent{Path: filename, Events: events, Status: status})
	}
}
