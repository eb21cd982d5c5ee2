package list_test

import (
	"testing"

	"github.com/sagernet/sing-uv/common/x/list"

	"github.com/stretchr/testify/require"
)

func TestList(t *testing.T) {
	t.Parallel()
	var l list.List[int]
	require.True(t, l.IsEmpty())
	require.Zero(t, l.PopFront())
	first := l.PushBack(2)
	l.PushBack(3)
	l.PushFront(1)
	require.Equal(t, []int{1, 2, 3}, l.Array())
	require.Equal(t, 2, l.Remove(first))
	require.Equal(t, 2, l.Remove(first))
	require.Equal(t, []int{1, 3}, l.Array())
	require.Equal(t, 1, l.PopFront())
	require.Equal(t, 3, l.PopFront())
	require.True(t, l.IsEmpty())
}

func TestListSwap(t *testing.T) {
	t.Parallel()
	var l list.List[string]
	require.Zero(t, l.Swap().Len())
	l.PushBack("a")
	element := l.PushBack("b")
	swapped := l.Swap()
	require.True(t, l.IsEmpty())
	require.Equal(t, []string{"a", "b"}, swapped.Array())
	l.Remove(element)
	require.Equal(t, 2, swapped.Len())
	swapped.Remove(element)
	require.Equal(t, []string{"a"}, swapped.Array())
	l.PushBack("c")
	require.Equal(t, []string{"c"}, l.Array())
}
