package reactor

import (
	"bytes"
	"net/netip"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func newPipePair(t *testing.T, loop *Loop) (*Pipe, *Pipe) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	require.NoError(t, err)
	var left, right Pipe
	require.NoError(t, InitPipe(loop, &left))
	require.NoError(t, InitPipe(loop, &right))
	require.NoError(t, left.Open(fds[0]))
	require.NoError(t, right.Open(fds[1]))
	return &left, &right
}

func allocFrom(buffer []byte) AllocCallback {
	return func(*Handle, int) []byte {
		return buffer
	}
}

func TestTCPEcho(t *testing.T) {
	loop := newTestLoop(t)
	var server, client, accepted TCP
	require.NoError(t, InitTCP(loop, &server))
	require.NoError(t, InitTCP(loop, &client))
	require.NoError(t, InitTCP(loop, &accepted))
	require.NoError(t, server.Bind(netip.MustParseAddrPort("127.0.0.1:0")))
	require.NoError(t, server.SetNoDelay(true))
	serverAddr, err := server.SockName()
	require.NoError(t, err)
	require.NotZero(t, serverAddr.Port())

	readBuffer := make([]byte, 4096)
	require.NoError(t, server.Listen(16, func(server *Stream, status Status) {
		require.Equal(t, StatusOK, status)
		require.NoError(t, server.Accept(&accepted.Stream))
		require.NoError(t, accepted.ReadStart(allocFrom(readBuffer), func(stream *Stream, nread int, buffer []byte) {
			if nread == 0 {
				return
			}
			if nread < 0 {
				require.Equal(t, int(StatusEOF), nread)
				stream.Close(nil)
				server.Close(nil)
				return
			}
			var req WriteReq
			require.NoError(t, stream.Write(&req, [][]byte{bytes.Clone(buffer)}, nil))
		}))
	}))

	var connectReq ConnectReq
	var echoed []byte
	clientBuffer := make([]byte, 4096)
	require.NoError(t, client.Connect(&connectReq, serverAddr, func(req *ConnectReq, status Status) {
		require.Equal(t, StatusOK, status)
		require.Same(t, &client.Stream, req.Stream())
		peer, err := client.PeerName()
		require.NoError(t, err)
		require.Equal(t, serverAddr, peer)
		require.NoError(t, client.SetKeepAlive(true, 0))
		var writeReq WriteReq
		require.NoError(t, client.Write(&writeReq, [][]byte{[]byte("hello "), []byte("world")}, nil))
		require.NoError(t, client.ReadStart(allocFrom(clientBuffer), func(stream *Stream, nread int, buffer []byte) {
			if nread <= 0 {
				return
			}
			echoed = append(echoed, buffer...)
			if len(echoed) == len("hello world") {
				var shutdownReq ShutdownReq
				require.NoError(t, stream.Shutdown(&shutdownReq, func(req *ShutdownReq, status Status) {
					require.Equal(t, StatusOK, status)
					stream.Close(nil)
				}))
			}
		}))
	}))
	require.NoError(t, loop.Run(RunDefault))
	require.Equal(t, "hello world", string(echoed))
	require.True(t, server.IsClosed())
	require.True(t, client.IsClosed())
	require.True(t, accepted.IsClosed())
}

func TestWriteOrder(t *testing.T) {
	loop := newTestLoop(t)
	left, right := newPipePair(t, loop)
	var completed []int
	reqs := make([]WriteReq, 3)
	for index := range reqs {
		index := index
		require.NoError(t, left.Write(&reqs[index], [][]byte{{byte('a' + index)}}, func(req *WriteReq, status Status) {
			require.Equal(t, StatusOK, status)
			require.Same(t, &reqs[index], req)
			completed = append(completed, index)
		}))
		require.True(t, reqs[index].IsActive())
	}
	require.Empty(t, completed)
	var received []byte
	buffer := make([]byte, 16)
	require.NoError(t, right.ReadStart(allocFrom(buffer), func(stream *Stream, nread int, buffer []byte) {
		if nread > 0 {
			received = append(received, buffer...)
		}
		if len(received) == 3 {
			left.Close(nil)
			right.Close(nil)
		}
	}))
	require.NoError(t, loop.Run(RunDefault))
	require.Equal(t, []int{0, 1, 2}, completed)
	require.Equal(t, "abc", string(received))
	require.Zero(t, left.WriteQueueSize())
}

func TestTryWrite(t *testing.T) {
	loop := newTestLoop(t)
	left, right := newPipePair(t, loop)
	n, err := left.TryWrite([]byte("ping"))
	require.NoError(t, err)
	require.Equal(t, 4, n)
	buffer := make([]byte, 64*1024)
	for {
		_, err = left.TryWrite(buffer)
		if err != nil {
			break
		}
	}
	require.Equal(t, StatusAgain, err)
	left.Close(nil)
	right.Close(nil)
	require.NoError(t, loop.Run(RunDefault))
	_, err = left.TryWrite(buffer)
	require.Equal(t, StatusInvalid, err)
}

func TestCloseCancelsWrites(t *testing.T) {
	loop := newTestLoop(t)
	left, right := newPipePair(t, loop)
	buffer := make([]byte, 64*1024)
	var statuses []Status
	reqs := make([]WriteReq, 16)
	for index := range reqs {
		require.NoError(t, left.Write(&reqs[index], [][]byte{buffer}, func(req *WriteReq, status Status) {
			statuses = append(statuses, status)
		}))
	}
	require.NotZero(t, left.WriteQueueSize())
	var shutdownReq ShutdownReq
	var shutdownStatus Status
	require.NoError(t, left.Shutdown(&shutdownReq, func(req *ShutdownReq, status Status) {
		shutdownStatus = status
	}))
	require.Equal(t, StatusNotConnected, left.Shutdown(new(ShutdownReq), nil))
	var closed bool
	left.Close(func(*Handle) {
		closed = true
		require.Len(t, statuses, len(reqs))
	})
	right.Close(nil)
	require.NoError(t, loop.Run(RunDefault))
	require.True(t, closed)
	require.Equal(t, StatusOK, statuses[0])
	require.Equal(t, StatusCanceled, statuses[len(statuses)-1])
	require.Equal(t, StatusCanceled, shutdownStatus)
}

func TestReadEOF(t *testing.T) {
	loop := newTestLoop(t)
	left, right := newPipePair(t, loop)
	var results []int
	buffer := make([]byte, 16)
	require.NoError(t, right.ReadStart(allocFrom(buffer), func(stream *Stream, nread int, buffer []byte) {
		results = append(results, nread)
		if nread == int(StatusEOF) {
			require.False(t, stream.IsActive())
			require.False(t, stream.IsReadable())
			stream.Close(nil)
		}
	}))
	var req WriteReq
	require.NoError(t, left.Write(&req, [][]byte{[]byte("bye")}, func(req *WriteReq, status Status) {
		left.Close(nil)
	}))
	require.NoError(t, loop.Run(RunDefault))
	require.Contains(t, results, 3)
	require.Equal(t, int(StatusEOF), results[len(results)-1])
}

func TestConnectRefused(t *testing.T) {
	loop := newTestLoop(t)
	var probe TCP
	require.NoError(t, InitTCP(loop, &probe))
	require.NoError(t, probe.Bind(netip.MustParseAddrPort("127.0.0.1:0")))
	addr, err := probe.SockName()
	require.NoError(t, err)
	probe.Close(nil)
	require.NoError(t, loop.Run(RunDefault))

	var client TCP
	require.NoError(t, InitTCP(loop, &client))
	var req ConnectReq
	var connectStatus Status
	require.NoError(t, client.Connect(&req, addr, func(req *ConnectReq, status Status) {
		connectStatus = status
		client.Close(nil)
	}))
	require.Equal(t, StatusAlready, client.Connect(new(ConnectReq), addr, nil))
	require.NoError(t, loop.Run(RunDefault))
	require.Equal(t, StatusConnRefused, connectStatus)
}

func TestPipeListen(t *testing.T) {
	loop := newTestLoop(t)
	path := filepath.Join(t.TempDir(), "uv.sock")
	var server, client, accepted Pipe
	require.NoError(t, InitPipe(loop, &server))
	require.NoError(t, InitPipe(loop, &client))
	require.NoError(t, InitPipe(loop, &accepted))
	require.NoError(t, server.Bind(path))
	require.Equal(t, path, server.SockName())
	require.NoError(t, server.Listen(4, func(server *Stream, status Status) {
		require.NoError(t, server.Accept(&accepted.Stream))
		require.Equal(t, StatusBusy, server.Accept(&accepted.Stream))
		accepted.Close(nil)
		server.Close(nil)
	}))
	var req ConnectReq
	require.NoError(t, client.Connect(&req, path, func(req *ConnectReq, status Status) {
		require.Equal(t, StatusOK, status)
		peer, err := client.PeerName()
		require.NoError(t, err)
		require.Equal(t, path, peer)
		client.Close(nil)
	}))
	require.NoError(t, loop.Run(RunDefault))
	require.NoFileExists(t, path)
}

func TestStreamNotConnected(t *testing.T) {
	loop := newTestLoop(t)
	var tcp TCP
	require.NoError(t, InitTCP(loop, &tcp))
	require.Equal(t, StatusNotConnected, tcp.ReadStart(allocFrom(nil), func(*Stream, int, []byte) {}))
	require.Equal(t, StatusBadFD, tcp.Write(new(WriteReq), nil, nil))
	require.Equal(t, StatusInvalid, tcp.Listen(1, func(*Stream, Status) {}))
	_, err := tcp.Fileno()
	require.Equal(t, StatusBadFD, err)
	_, err = tcp.SockName()
	require.Equal(t, StatusBadFD, err)
	tcp.Close(nil)
	require.NoError(t, loop.Run(RunDefault))
}
