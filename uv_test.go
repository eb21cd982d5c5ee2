package uv

import (
	"testing"

	"github.com/sagernet/sing-uv/reactor"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/sys/unix"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestLoop(t *testing.T) *reactor.Loop {
	t.Helper()
	loop, err := reactor.New(reactor.Options{})
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, loop.Close())
	})
	return loop
}

func runLoop(t *testing.T, loop *reactor.Loop) {
	t.Helper()
	require.NoError(t, loop.Run(reactor.RunDefault))
}

func newPipePair(t *testing.T, loop *reactor.Loop) (*Pipe, *Pipe) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	require.NoError(t, err)
	left, err := NewPipe(loop)
	require.NoError(t, err)
	right, err := NewPipe(loop)
	require.NoError(t, err)
	require.NoError(t, left.Open(fds[0]))
	require.NoError(t, right.Open(fds[1]))
	return left, right
}

type testResource struct {
	Resource
}

func newTestResource(loop *reactor.Loop) *testResource {
	resource := new(testResource)
	resource.init(loop, resource)
	return resource
}
