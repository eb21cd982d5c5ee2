package uv

import (
	"github.com/sagernet/sing-uv/common/log"
	"github.com/sagernet/sing-uv/reactor"
)

var reqLogger = log.NewLogger("req")

// Req is a resource wrapping one asynchronous operation. A Req runs a single
// operation at a time; starting another while one is in flight fails with
// ErrReqInFlight.
type Req struct {
	Resource
	nativeReq *reactor.Req
	inFlight  bool
}

func (r *Req) initReq(loop *reactor.Loop, native *reactor.Req, owner any) {
	r.Resource.init(loop, owner)
	r.nativeReq = native
	native.Data = r.id
	r.detached = func() bool {
		return !r.inFlight
	}
}

func (r *Req) Type() reactor.ReqType {
	return r.nativeReq.Type()
}

func (r *Req) InFlight() bool {
	return r.inFlight
}

// Cancel asks the loop to drop the operation before it starts.
// Failure is published as EvError.
func (r *Req) Cancel() {
	if r.destroyed {
		return
	}
	err := r.loop.Cancel(r.nativeReq)
	if err != nil {
		status := reactor.StatusOf(err)
		reqLogger.Debug("cancel ", r.nativeReq.Type(), " request: ", status)
		r.reportError("cancel", status)
	}
}

func (r *Req) begin() error {
	if r.destroyed {
		return ErrDestroyed
	}
	if r.inFlight {
		return ErrReqInFlight
	}
	r.inFlight = true
	return nil
}

// start marks a freshly created internal request as in flight.
func (r *Req) start() {
	r.inFlight = true
}

func (r *Req) end() {
	r.inFlight = false
}

// discard drops an internal request whose submission failed or completed.
func (r *Req) discard() {
	r.end()
	r.Release()
}
