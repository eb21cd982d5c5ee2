package exceptions_test

import (
	"io"
	"syscall"
	"testing"

	E "github.com/sagernet/sing-uv/common/exceptions"

	"github.com/stretchr/testify/require"
)

func TestCause(t *testing.T) {
	t.Parallel()
	err := E.Cause(io.EOF, "read stream")
	require.EqualError(t, err, "read stream: EOF")
	require.ErrorIs(t, err, io.EOF)
	require.Nil(t, E.Cause(nil, "nothing"))
}

func TestCast(t *testing.T) {
	t.Parallel()
	err := E.Cause(E.Errors(io.EOF, syscall.ECONNRESET), "write")
	errno, loaded := E.Cast[syscall.Errno](err)
	require.True(t, loaded)
	require.Equal(t, syscall.ECONNRESET, errno)
	_, loaded = E.Cast[syscall.Errno](io.EOF)
	require.False(t, loaded)
}

func TestErrors(t *testing.T) {
	t.Parallel()
	require.NoError(t, E.Errors(nil, nil))
	require.Equal(t, io.EOF, E.Errors(nil, io.EOF))
	err := E.Errors(io.EOF, io.ErrClosedPipe)
	require.True(t, E.Is(err, io.ErrClosedPipe))
	require.Contains(t, err.Error(), "multi error")
}
