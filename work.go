package uv

import (
	E "github.com/sagernet/sing-uv/common/exceptions"
	"github.com/sagernet/sing-uv/reactor"
)

type workOwner interface {
	complete(status reactor.Status)
}

// Work runs task on the loop thread pool.
//
// Once task returned, EvWork carries its result and EvAfterWork follows,
// both on the loop goroutine. A canceled Work only publishes EvAfterWork with
// reactor.StatusCanceled.
type Work[T any] struct {
	Req
	native reactor.WorkReq
	task   func() (T, error)
	value  T
	err    error
}

func NewWork[T any](loop *reactor.Loop, task func() (T, error)) *Work[T] {
	work := &Work[T]{task: task}
	work.initReq(loop, &work.native.Req, work)
	return work
}

// Start queues task. A Work can be started again after EvAfterWork.
func (w *Work[T]) Start() error {
	if w.task == nil {
		return reactor.StatusInvalid
	}
	err := w.begin()
	if err != nil {
		return err
	}
	var zero T
	w.value, w.err = zero, nil
	err = reactor.QueueWork(w.loop, &w.native, w.run, onAfterWork)
	if err != nil {
		w.end()
		return E.Cause(err, "queue work")
	}
	return nil
}

// run is called on a pool goroutine.
func (w *Work[T]) run(*reactor.WorkReq) {
	w.value, w.err = w.task()
}

func (w *Work[T]) complete(status reactor.Status) {
	w.end()
	if status == reactor.StatusOK {
		w.publish(EvWork[T]{Value: w.value, Err: w.err})
	} else {
		reqLogger.Debug("work ", w.id, ": ", status)
	}
	w.publish(EvAfterWork{Status: status})
	w.maybeDestroy()
}

func onAfterWork(native *reactor.WorkReq, status reactor.Status) {
	owner, loaded := reactor.Lookup[workOwner](native.Loop(), native.Data)
	if loaded {
		owner.complete(status)
	}
}
