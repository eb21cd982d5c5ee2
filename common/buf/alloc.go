package buf

// Inspired by https://github.com/xtaci/smux/blob/master/alloc.go

import (
	"math/bits"
	"sync"

	E "github.com/sagernet/sing-uv/common/exceptions"
)

const (
	minClass = 6
	maxClass = 16
)

var DefaultAllocator Allocator = newDefaultAllocator()

type Allocator interface {
	Get(size int) []byte
	Put(buf []byte) error
}

// defaultAllocator keeps one pool per power-of-two class from 64B to 64K.
type defaultAllocator struct {
	buffers [maxClass - minClass + 1]sync.Pool
}

func newDefaultAllocator() *defaultAllocator {
	alloc := new(defaultAllocator)
	for index := range alloc.buffers {
		size := 1 << (index + minClass)
		alloc.buffers[index].New = func() any {
			buffer := make([]byte, size)
			return &buffer
		}
	}
	return alloc
}

func (alloc *defaultAllocator) Get(size int) []byte {
	if size <= 0 || size > 1<<maxClass {
		return nil
	}
	index := class(size) - minClass
	buffer := alloc.buffers[index].Get().(*[]byte)
	return (*buffer)[:size]
}

func (alloc *defaultAllocator) Put(buf []byte) error {
	capacity := cap(buf)
	if capacity < 1<<minClass || capacity > 1<<maxClass || capacity&(capacity-1) != 0 {
		return E.New("allocator: incorrect buffer size ", capacity)
	}
	buf = buf[:capacity]
	alloc.buffers[msb(capacity)-minClass].Put(&buf)
	return nil
}

func Get(size int) []byte {
	return DefaultAllocator.Get(size)
}

func Put(buf []byte) error {
	return DefaultAllocator.Put(buf)
}

// class returns the smallest power of two exponent holding size.
func class(size int) int {
	if size <= 1<<minClass {
		return minClass
	}
	index := msb(size)
	if size != 1<<index {
		index++
	}
	return index
}

func msb(size int) int {
	return bits.Len32(uint32(size)) - 1
}
