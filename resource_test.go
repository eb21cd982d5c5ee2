package uv

import (
	"testing"

	"github.com/sagernet/sing-uv/reactor"

	"github.com/stretchr/testify/require"
)

func TestOnceFiresOnce(t *testing.T) {
	loop := newTestLoop(t)
	resource := newTestResource(loop)
	var calls [3]int
	for i := range calls {
		Once(resource, func(event EvTimer, resource *testResource) {
			calls[i]++
		})
	}
	Publish(resource, EvTimer{})
	Publish(resource, EvTimer{})
	require.Equal(t, [3]int{1, 1, 1}, calls)
	resource.Release()
}

func TestOnFiresEveryTime(t *testing.T) {
	loop := newTestLoop(t)
	resource := newTestResource(loop)
	var order []int
	for i := 0; i < 2; i++ {
		On(resource, func(event EvPrepare, resource *testResource) {
			order = append(order, i)
		})
	}
	for i := 0; i < 3; i++ {
		Publish(resource, EvPrepare{})
	}
	require.Equal(t, []int{0, 1, 0, 1, 0, 1}, order)
	resource.Release()
}

func TestOneShotKinds(t *testing.T) {
	loop := newTestLoop(t)
	resource := newTestResource(loop)
	var errors int
	On(resource, func(event EvError, resource *testResource) {
		errors++
	})
	Publish(resource, EvError{Status: reactor.StatusConnReset})
	Publish(resource, EvError{Status: reactor.StatusConnReset})
	require.Equal(t, 1, errors)
	require.True(t, KindError.OneShot())
	require.True(t, KindDestroy.OneShot())
	require.True(t, KindUnref.OneShot())
	require.False(t, KindClose.OneShot())
	require.False(t, KindRead.OneShot())
	resource.Release()
}

func TestPublishWithoutListeners(t *testing.T) {
	loop := newTestLoop(t)
	resource := newTestResource(loop)
	Publish(resource, EvWrite{})
	Publish(resource, EvError{Status: reactor.StatusPipe})
	resource.Release()
}

func TestNestedPublish(t *testing.T) {
	loop := newTestLoop(t)
	resource := newTestResource(loop)
	var order []string
	Once(resource, func(event EvTimer, resource *testResource) {
		order = append(order, "timer")
		Once(resource, func(event EvTimer, resource *testResource) {
			order = append(order, "late timer")
		})
		Publish(resource, EvPrepare{})
	})
	Once(resource, func(event EvPrepare, resource *testResource) {
		order = append(order, "prepare")
	})
	Once(resource, func(event EvTimer, resource *testResource) {
		order = append(order, "second timer")
	})
	Publish(resource, EvTimer{})
	require.Equal(t, []string{"timer", "prepare", "second timer"}, order)
	Publish(resource, EvTimer{})
	require.Equal(t, []string{"timer", "prepare", "second timer", "late timer"}, order)
	resource.Release()
}

func TestReleaseDestroys(t *testing.T) {
	loop := newTestLoop(t)
	resource := newTestResource(loop)
	var order []string
	On(resource, func(event EvUnref, resource *testResource) {
		order = append(order, "unref")
	})
	On(resource, func(event EvDestroy, resource *testResource) {
		order = append(order, "destroy")
	})
	resource.Retain()
	resource.Release()
	require.False(t, resource.IsDestroyed())
	require.Equal(t, []string{"unref"}, order)
	resource.Release()
	require.True(t, resource.IsDestroyed())
	require.Equal(t, []string{"unref", "destroy"}, order)
	require.Zero(t, loop.Registry().Len())

	resource.Release()
	Once(resource, func(event EvTimer, resource *testResource) {
		t.Fatal("listener registered after destroy")
	})
	Publish(resource, EvTimer{})
}

func TestSelfRefUntil(t *testing.T) {
	loop := newTestLoop(t)
	resource := newTestResource(loop)
	var destroyed int
	On(resource, func(event EvDestroy, resource *testResource) {
		destroyed++
	})
	SelfRefUntil[EvShutdown](resource)
	resource.Release()
	require.False(t, resource.IsDestroyed())
	require.Equal(t, 1, loop.Registry().Pinned())
	Publish(resource, EvWrite{})
	require.False(t, resource.IsDestroyed())
	Publish(resource, EvShutdown{})
	require.True(t, resource.IsDestroyed())
	require.Equal(t, 1, destroyed)
	require.Zero(t, loop.Registry().Pinned())
	require.Zero(t, loop.Registry().Len())
}

func TestMismatchedEventIgnored(t *testing.T) {
	loop := newTestLoop(t)
	resource := newTestResource(loop)
	var accepted int
	On(resource, func(event EvAccept[*TCP], resource *testResource) {
		accepted++
	})
	Publish(resource, EvAccept[*Pipe]{})
	Publish(resource, EvAccept[*TCP]{})
	require.Equal(t, 1, accepted)
	resource.Release()
}
