package reactor

import (
	"github.com/eapache/queue"
	"golang.org/x/sys/unix"
)

const (
	streamReading uint8 = 1 << iota
	streamListening
	streamShut
	streamReadEOF
)

const (
	readSuggestedSize = 64 * 1024
	maxReadsPerEvent  = 32
)

// AllocCallback returns the buffer for the next read. A nil or empty
// buffer makes the read fail with StatusNoBufs.
type AllocCallback func(handle *Handle, suggestedSize int) []byte

// ReadCallback receives the number of bytes read, zero when the read would
// block, or a negative Status, StatusEOF for an orderly shutdown.
type ReadCallback func(stream *Stream, nread int, buffer []byte)

type ConnectionCallback func(server *Stream, status Status)

type (
	WriteCallback    func(req *WriteReq, status Status)
	ConnectCallback  func(req *ConnectReq, status Status)
	ShutdownCallback func(req *ShutdownReq, status Status)
)

type WriteReq struct {
	Req
	stream   *Stream
	buffers  [][]byte
	callback WriteCallback
	status   Status
}

func (r *WriteReq) Stream() *Stream {
	return r.stream
}

type ConnectReq struct {
	Req
	stream   *Stream
	callback ConnectCallback
}

func (r *ConnectReq) Stream() *Stream {
	return r.stream
}

type ShutdownReq struct {
	Req
	stream   *Stream
	callback ShutdownCallback
}

func (r *ShutdownReq) Stream() *Stream {
	return r.stream
}

// Stream is the native record of a connected or listening byte stream.
// Write requests complete in submission order and their callbacks always run
// on a later loop phase, never from inside Write.
type Stream struct {
	Handle
	fd                 int
	watcher            ioWatcher
	flags              uint8
	allocCallback      AllocCallback
	readCallback       ReadCallback
	connectionCallback ConnectionCallback
	connectReq         *ConnectReq
	shutdownReq        *ShutdownReq
	writeQueue         *queue.Queue
	completedQueue     *queue.Queue
	writeQueueSize     int
	callbacksScheduled bool
}

func (s *Stream) init(loop *Loop, handleType HandleType) {
	*s = Stream{
		fd:             -1,
		writeQueue:     queue.New(),
		completedQueue: queue.New(),
	}
	s.Handle.init(loop, handleType)
	s.Handle.stop = s.closeIO
	s.Handle.finish = s.destroy
	s.watcher.fd = -1
	s.watcher.callback = s.handleIO
}

func (s *Stream) open(fd int) error {
	if s.fd >= 0 {
		return StatusBusy
	}
	err := unix.SetNonblock(fd, true)
	if err != nil {
		return StatusOf(err)
	}
	s.fd = fd
	s.watcher.fd = fd
	return nil
}

func (s *Stream) openSocket(family int) error {
	if s.fd >= 0 {
		return nil
	}
	fd, err := unix.Socket(family, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return StatusOf(err)
	}
	s.fd = fd
	s.watcher.fd = fd
	return nil
}

// Fileno returns the underlying descriptor.
func (s *Stream) Fileno() (int, error) {
	if s.fd < 0 {
		return -1, StatusBadFD
	}
	return s.fd, nil
}

func (s *Stream) IsReadable() bool {
	return s.fd >= 0 && s.flags&streamReadEOF == 0
}

func (s *Stream) IsWritable() bool {
	return s.fd >= 0 && s.flags&streamShut == 0 && s.shutdownReq == nil
}

// WriteQueueSize returns the number of bytes queued and not yet written.
func (s *Stream) WriteQueueSize() int {
	return s.writeQueueSize
}

func (s *Stream) ReadStart(alloc AllocCallback, callback ReadCallback) error {
	if alloc == nil || callback == nil || s.IsClosing() || s.flags&streamListening != 0 {
		return StatusInvalid
	}
	if s.fd < 0 {
		return StatusNotConnected
	}
	s.allocCallback = alloc
	s.readCallback = callback
	if s.flags&streamReading != 0 {
		return nil
	}
	err := s.loop.poller.start(&s.watcher, unix.EPOLLIN)
	if err != nil {
		return StatusOf(err)
	}
	s.flags |= streamReading
	s.activate()
	return nil
}

func (s *Stream) ReadStop() error {
	if s.flags&streamReading == 0 {
		return nil
	}
	s.flags &^= streamReading
	s.loop.poller.stop(&s.watcher, unix.EPOLLIN)
	s.updateActive()
	return nil
}

// TryWrite writes as much of data as the socket accepts right now. It fails
// with StatusAgain when nothing could be written or writes are still queued.
func (s *Stream) TryWrite(data []byte) (int, error) {
	if s.IsClosing() {
		return 0, StatusInvalid
	}
	if s.fd < 0 {
		return 0, StatusBadFD
	}
	if s.writeQueue.Length() > 0 || s.connectReq != nil {
		return 0, StatusAgain
	}
	if !s.IsWritable() {
		return 0, StatusPipe
	}
	for {
		n, err := unix.Write(s.fd, data)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return 0, StatusOf(err)
		}
		if n == 0 && len(data) > 0 {
			return 0, StatusAgain
		}
		return n, nil
	}
}

// Write queues buffers for writing. The buffers must stay untouched until the
// callback runs.
func (s *Stream) Write(req *WriteReq, buffers [][]byte, callback WriteCallback) error {
	if s.IsClosing() {
		return StatusInvalid
	}
	if s.fd < 0 {
		return StatusBadFD
	}
	if !s.IsWritable() {
		return StatusPipe
	}
	req.Req.init(s.loop, ReqWrite)
	req.stream = s
	req.buffers = append(req.buffers[:0], buffers...)
	req.callback = callback
	req.status = StatusOK
	req.register()
	empty := s.writeQueue.Length() == 0
	s.writeQueue.Add(req)
	for _, buffer := range buffers {
		s.writeQueueSize += len(buffer)
	}
	if s.connectReq == nil {
		if empty {
			s.flushWrites()
		} else {
			s.watchWritable()
		}
	}
	return nil
}

func (s *Stream) Shutdown(req *ShutdownReq, callback ShutdownCallback) error {
	if s.IsClosing() {
		return StatusInvalid
	}
	if s.fd < 0 || !s.IsWritable() {
		return StatusNotConnected
	}
	req.Req.init(s.loop, ReqShutdown)
	req.stream = s
	req.callback = callback
	req.register()
	s.shutdownReq = req
	s.loop.feed(s.drain)
	return nil
}

func (s *Stream) Listen(backlog int, callback ConnectionCallback) error {
	if callback == nil || s.IsClosing() || s.flags&streamReading != 0 {
		return StatusInvalid
	}
	if s.fd < 0 {
		return StatusInvalid
	}
	err := unix.Listen(s.fd, backlog)
	if err != nil {
		return StatusOf(err)
	}
	err = s.loop.poller.start(&s.watcher, unix.EPOLLIN)
	if err != nil {
		return StatusOf(err)
	}
	s.connectionCallback = callback
	s.flags |= streamListening
	s.activate()
	return nil
}

// Accept takes exactly one pending connection into client, which must be
// initialized and not yet connected.
func (s *Stream) Accept(client *Stream) error {
	if s.flags&streamListening == 0 || s.IsClosing() {
		return StatusInvalid
	}
	if client.fd >= 0 || client.IsClosing() {
		return StatusBusy
	}
	for {
		fd, _, err := unix.Accept4(s.fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return StatusOf(err)
		}
		client.fd = fd
		client.watcher.fd = fd
		return nil
	}
}

func (s *Stream) connect(req *ConnectReq, sockaddr unix.Sockaddr, callback ConnectCallback) error {
	if s.IsClosing() {
		return StatusInvalid
	}
	if s.connectReq != nil {
		return StatusAlready
	}
	var err error
	for {
		err = unix.Connect(s.fd, sockaddr)
		if err != unix.EINTR {
			break
		}
	}
	switch err {
	case nil, unix.EINPROGRESS, unix.ECONNREFUSED:
	default:
		return StatusOf(err)
	}
	req.Req.init(s.loop, ReqConnect)
	req.stream = s
	req.callback = callback
	req.register()
	s.connectReq = req
	if err == unix.EINPROGRESS {
		watchErr := s.loop.poller.start(&s.watcher, unix.EPOLLOUT)
		if watchErr == nil {
			return nil
		}
		err = watchErr
	}
	status := StatusOf(err)
	s.loop.feed(func() {
		s.completeConnect(req, status)
	})
	return nil
}

func (s *Stream) completeConnect(req *ConnectReq, status Status) {
	if s.connectReq != req {
		return
	}
	s.connectReq = nil
	req.unregister()
	if status == StatusOK && s.writeQueue.Length() > 0 {
		s.flushWrites()
	} else if s.writeQueue.Length() == 0 {
		s.loop.poller.stop(&s.watcher, unix.EPOLLOUT)
		if s.shutdownReq != nil {
			s.loop.feed(s.drain)
		}
	}
	if req.callback != nil {
		req.callback(req, status)
	}
}

func (s *Stream) handleIO(events uint32) {
	if s.flags&streamListening != 0 {
		status := StatusOK
		if events&unix.EPOLLERR != 0 {
			status = s.socketError()
		}
		s.connectionCallback(s, status)
		return
	}
	if s.connectReq != nil && events&(unix.EPOLLOUT|unix.EPOLLERR|unix.EPOLLHUP) != 0 {
		status := s.socketError()
		if status == -Status(unix.EINPROGRESS) {
			return
		}
		s.completeConnect(s.connectReq, status)
		if s.IsClosing() {
			return
		}
	}
	if events&unix.EPOLLIN != 0 && s.flags&streamReading != 0 {
		s.read()
		if s.IsClosing() {
			return
		}
	}
	if events&unix.EPOLLOUT != 0 && s.connectReq == nil && s.writeQueue.Length() > 0 {
		s.flushWrites()
	}
}

func (s *Stream) socketError() Status {
	value, err := unix.GetsockoptInt(s.fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return StatusOf(err)
	}
	return -Status(value)
}

func (s *Stream) read() {
	for count := 0; count < maxReadsPerEvent && s.flags&streamReading != 0 && s.fd >= 0; count++ {
		buffer := s.allocCallback(&s.Handle, readSuggestedSize)
		if len(buffer) == 0 {
			s.readCallback(s, int(StatusNoBufs), nil)
			return
		}
		n, err := unix.Read(s.fd, buffer)
		if err == unix.EINTR {
			continue
		}
		if err == unix.EAGAIN {
			s.readCallback(s, 0, buffer[:0])
			return
		}
		if err != nil {
			s.readCallback(s, int(StatusOf(err)), buffer[:0])
			return
		}
		if n == 0 {
			s.flags |= streamReadEOF
			s.ReadStop()
			s.readCallback(s, int(StatusEOF), buffer[:0])
			return
		}
		s.readCallback(s, n, buffer[:n])
		if n < len(buffer) {
			return
		}
	}
}

func (s *Stream) flushWrites() {
	for s.writeQueue.Length() > 0 {
		req := s.writeQueue.Peek().(*WriteReq)
		n, err := unix.Writev(s.fd, req.buffers)
		if err == unix.EINTR {
			continue
		}
		if err == unix.EAGAIN {
			break
		}
		if err != nil {
			req.status = StatusOf(err)
			s.completeWrite()
			s.loop.poller.stop(&s.watcher, unix.EPOLLOUT)
			return
		}
		s.writeQueueSize -= n
		req.advance(n)
		if len(req.buffers) > 0 {
			break
		}
		s.completeWrite()
	}
	if s.writeQueue.Length() > 0 {
		s.watchWritable()
		return
	}
	s.loop.poller.stop(&s.watcher, unix.EPOLLOUT)
	if s.shutdownReq != nil {
		s.drain()
	}
}

func (s *Stream) watchWritable() {
	err := s.loop.poller.start(&s.watcher, unix.EPOLLOUT)
	if err != nil && s.writeQueue.Length() > 0 {
		req := s.writeQueue.Peek().(*WriteReq)
		req.status = StatusOf(err)
		s.completeWrite()
	}
}

func (s *Stream) completeWrite() {
	req := s.writeQueue.Remove().(*WriteReq)
	for _, buffer := range req.buffers {
		s.writeQueueSize -= len(buffer)
	}
	req.buffers = req.buffers[:0]
	s.completedQueue.Add(req)
	if !s.callbacksScheduled {
		s.callbacksScheduled = true
		s.loop.feed(s.runWriteCallbacks)
	}
}

func (s *Stream) runWriteCallbacks() {
	s.callbacksScheduled = false
	for s.completedQueue.Length() > 0 {
		req := s.completedQueue.Remove().(*WriteReq)
		req.unregister()
		if req.callback != nil {
			req.callback(req, req.status)
		}
	}
}

// drain performs a requested shutdown once every queued write is flushed.
func (s *Stream) drain() {
	req := s.shutdownReq
	if req == nil || s.writeQueue.Length() > 0 || s.connectReq != nil || s.fd < 0 {
		return
	}
	s.shutdownReq = nil
	status := StatusOf(unix.Shutdown(s.fd, unix.SHUT_WR))
	s.flags |= streamShut
	req.unregister()
	if req.callback != nil {
		req.callback(req, status)
	}
}

func (s *Stream) updateActive() {
	if s.flags&(streamReading|streamListening) == 0 {
		s.deactivate()
	}
}

func (s *Stream) closeIO() {
	s.flags &^= streamReading | streamListening
	if s.fd >= 0 {
		s.loop.poller.remove(&s.watcher)
		unix.Close(s.fd)
		s.fd = -1
		s.watcher.fd = -1
	}
}

// destroy cancels every request still attached to the stream.
func (s *Stream) destroy() {
	if req := s.connectReq; req != nil {
		s.completeConnect(req, StatusCanceled)
	}
	for s.writeQueue.Length() > 0 {
		req := s.writeQueue.Peek().(*WriteReq)
		req.status = StatusCanceled
		s.completeWrite()
	}
	s.runWriteCallbacks()
	if req := s.shutdownReq; req != nil {
		s.shutdownReq = nil
		req.unregister()
		if req.callback != nil {
			req.callback(req, StatusCanceled)
		}
	}
}

func (r *WriteReq) advance(n int) {
	for n > 0 && len(r.buffers) > 0 {
		if n < len(r.buffers[0]) {
			r.buffers[0] = r.buffers[0][n:]
			return
		}
		n -= len(r.buffers[0])
		r.buffers = r.buffers[1:]
	}
	for len(r.buffers) > 0 && len(r.buffers[0]) == 0 {
		r.buffers = r.buffers[1:]
	}
}
