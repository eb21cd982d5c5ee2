package uv

import (
	"github.com/sagernet/sing-uv/common/buf"
	E "github.com/sagernet/sing-uv/common/exceptions"
	"github.com/sagernet/sing-uv/common/log"
	"github.com/sagernet/sing-uv/reactor"

	"github.com/eapache/queue"
)

const DefaultReadBufferSize = 4096

var (
	ErrNilBuffer = E.New("nil buffer")
	ErrReading   = E.New("stream is reading")
	ErrDraining  = E.New("stream is draining")
)

var streamLogger = log.NewLogger("stream")

type streamOwner interface {
	stream() *Stream
}

// Stream is the read and write pipeline shared by TCP and Pipe.
//
// Reads land in one reusable buffer and are published as EvRead. Buffers
// passed to WriteAsync are owned by the stream until they come back through
// EvBufferRecycled, in submission order. When the stream fails or closes
// with writes still queued, every queued buffer is recycled before EvError
// listeners run and before the close is requested.
type Stream struct {
	Handle
	nativeStream *reactor.Stream
	readBuffer   []byte
	pending      *queue.Queue
	acceptClient func() error
	reading      bool
	draining     bool
}

func (s *Stream) initStream(loop *reactor.Loop, native *reactor.Stream, owner any) {
	s.initHandle(loop, &native.Handle, owner)
	s.nativeStream = native
	s.readBuffer = make([]byte, DefaultReadBufferSize)
	s.pending = queue.New()
	s.before[KindError] = append(s.before[KindError], s.drainPending)
	s.closeHooks = append(s.closeHooks, s.drainPending)
}

func (s *Stream) stream() *Stream {
	return s
}

// SetReadBufferSize replaces the read buffer. It fails while reading.
func (s *Stream) SetReadBufferSize(size int) error {
	if size <= 0 {
		return reactor.StatusInvalid
	}
	if s.IsReading() {
		return ErrReading
	}
	s.readBuffer = make([]byte, size)
	return nil
}

func (s *Stream) IsReading() bool {
	return s.reading && !s.nativeStream.IsClosing()
}

// PendingWrites returns the number of buffers owned by the write queue.
func (s *Stream) PendingWrites() int {
	return s.pending.Length()
}

// WriteQueueSize returns the number of bytes not yet written by the loop.
func (s *Stream) WriteQueueSize() int {
	return s.nativeStream.WriteQueueSize()
}

func (s *Stream) ReadStart() error {
	err := s.nativeStream.ReadStart(onStreamAlloc, onStreamRead)
	if err != nil {
		return E.Cause(err, "read start")
	}
	s.reading = true
	return nil
}

func (s *Stream) ReadStop() error {
	s.reading = false
	return s.nativeStream.ReadStop()
}

// WriteSync writes what the socket accepts right now without taking
// ownership of data. It fails with reactor.StatusAgain when nothing could be
// written, including while asynchronous writes are queued.
func (s *Stream) WriteSync(data []byte) (int, error) {
	return s.nativeStream.TryWrite(data)
}

// WriteAsync queues buffer for writing and takes ownership of it. On error
// nothing was queued and the caller keeps the buffer; otherwise it comes back
// through exactly one EvBufferRecycled. Writes are rejected with ErrDraining
// once the stream failed or started closing.
func (s *Stream) WriteAsync(buffer *buf.Buffer) error {
	if buffer == nil {
		return ErrNilBuffer
	}
	if s.destroyed {
		return ErrDestroyed
	}
	if s.draining {
		return ErrDraining
	}
	req := newWriteRequest(s.loop, buffer)
	req.start()
	err := s.nativeStream.Write(&req.native, [][]byte{buffer.Bytes()}, onStreamWrite)
	if err != nil {
		req.buffer = nil
		req.discard()
		return E.Cause(err, "write")
	}
	s.pending.Add(req)
	return nil
}

// Shutdown half-closes the write side once queued writes are flushed and
// publishes EvShutdown. Reads continue until the peer closes.
func (s *Stream) Shutdown() error {
	if s.destroyed {
		return ErrDestroyed
	}
	req := newShutdownRequest(s.loop)
	req.start()
	err := s.nativeStream.Shutdown(&req.native, onStreamShutdown)
	if err != nil {
		req.discard()
		return E.Cause(err, "shutdown")
	}
	return nil
}

func (s *Stream) Listen(backlog int) error {
	if s.acceptClient == nil {
		return reactor.StatusNotSupported
	}
	err := s.nativeStream.Listen(backlog, onStreamConnection)
	if err != nil {
		return E.Cause(err, "listen")
	}
	return nil
}

func (s *Stream) handleRead(nread int, data []byte) {
	switch {
	case nread > 0:
		s.publish(EvRead{Data: data[:nread]})
	case nread == 0:
	case reactor.Status(nread) == reactor.StatusEOF:
		streamLogger.Debug("stream ", s.id, " closed by peer")
		s.Close()
	default:
		s.reportError("read", reactor.Status(nread))
	}
}

func (s *Stream) handleWrite(status reactor.Status) {
	if s.pending.Length() == 0 {
		return
	}
	req := s.pending.Remove().(*writeRequest)
	buffer := req.buffer
	req.buffer = nil
	req.discard()
	s.publish(EvBufferRecycled{Buffer: buffer})
	switch status {
	case reactor.StatusOK:
		s.publish(EvWrite{})
	case reactor.StatusCanceled:
	default:
		s.reportError("write", status)
	}
}

func (s *Stream) handleShutdown(status reactor.Status) {
	switch status {
	case reactor.StatusOK:
		s.publish(EvShutdown{})
	case reactor.StatusCanceled:
	default:
		s.reportError("shutdown", status)
	}
}

func (s *Stream) handleConnect(status reactor.Status) {
	switch status {
	case reactor.StatusOK:
		s.publish(EvConnect{})
	case reactor.StatusCanceled:
	default:
		s.reportError("connect", status)
	}
}

func (s *Stream) handleConnection(status reactor.Status) {
	if status != reactor.StatusOK {
		s.reportError("listen", status)
		return
	}
	err := s.acceptClient()
	if err != nil {
		if reactor.StatusOf(err) == reactor.StatusAgain {
			streamLogger.Trace("stream ", s.id, " accept: ", err)
			return
		}
		streamLogger.Warn("stream ", s.id, " accept: ", err)
	}
}

// drainPending recycles every queued buffer in submission order. Writes
// submitted from recycle listeners are rejected.
func (s *Stream) drainPending() {
	s.draining = true
	pending := s.pending
	s.pending = queue.New()
	for pending.Length() > 0 {
		req := pending.Remove().(*writeRequest)
		buffer := req.buffer
		req.buffer = nil
		req.discard()
		s.publish(EvBufferRecycled{Buffer: buffer})
	}
}

func lookupStream(native *reactor.Stream) *Stream {
	owner, loaded := reactor.Lookup[streamOwner](native.Loop(), native.Data)
	if !loaded {
		return nil
	}
	return owner.stream()
}

func onStreamAlloc(native *reactor.Handle, _ int) []byte {
	owner, loaded := reactor.Lookup[streamOwner](native.Loop(), native.Data)
	if !loaded {
		return nil
	}
	return owner.stream().readBuffer
}

func onStreamRead(native *reactor.Stream, nread int, data []byte) {
	if s := lookupStream(native); s != nil {
		s.handleRead(nread, data)
	}
}

func onStreamWrite(native *reactor.WriteReq, status reactor.Status) {
	if s := lookupStream(native.Stream()); s != nil {
		s.handleWrite(status)
	}
}

func onStreamShutdown(native *reactor.ShutdownReq, status reactor.Status) {
	if req, loaded := reactor.Lookup[*shutdownRequest](native.Loop(), native.Data); loaded {
		req.discard()
	}
	if s := lookupStream(native.Stream()); s != nil {
		s.handleShutdown(status)
	}
}

func onStreamConnect(native *reactor.ConnectReq, status reactor.Status) {
	if req, loaded := reactor.Lookup[*connectRequest](native.Loop(), native.Data); loaded {
		req.discard()
	}
	if s := lookupStream(native.Stream()); s != nil {
		s.handleConnect(status)
	}
}

func onStreamConnection(native *reactor.Stream, status reactor.Status) {
	if s := lookupStream(native); s != nil {
		s.handleConnection(status)
	}
}

type writeRequest struct {
	Req
	native reactor.WriteReq
	buffer *buf.Buffer
}

func newWriteRequest(loop *reactor.Loop, buffer *buf.Buffer) *writeRequest {
	req := &writeRequest{buffer: buffer}
	req.initReq(loop, &req.native.Req, req)
	return req
}

type shutdownRequest struct {
	Req
	native reactor.ShutdownReq
}

func newShutdownRequest(loop *reactor.Loop) *shutdownRequest {
	req := new(shutdownRequest)
	req.initReq(loop, &req.native.Req, req)
	return req
}

type connectRequest struct {
	Req
	native reactor.ConnectReq
}

func newConnectRequest(loop *reactor.Loop) *connectRequest {
	req := new(connectRequest)
	req.initReq(loop, &req.native.Req, req)
	return req
}
