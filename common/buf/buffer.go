package buf

import (
	"io"
	"sync"

	"github.com/sagernet/sing-uv/common"
	F "github.com/sagernet/sing-uv/common/format"
)

const BufferSize = 16 * 1024

var bufferPool = sync.Pool{
	New: func() any {
		return new(Buffer)
	},
}

// Buffer is a fixed-capacity byte region with a logical window [start, end).
// Whoever holds a *Buffer owns it until it is handed to a write pipeline,
// which returns it through a recycle event.
type Buffer struct {
	data        []byte
	start       int
	end         int
	capacity    int
	managed     bool
	dataManaged bool
}

func New() *Buffer {
	return NewSize(BufferSize)
}

// NewSize returns a pooled buffer of exactly size bytes capacity.
func NewSize(size int) *Buffer {
	buffer := bufferPool.Get().(*Buffer)
	switch {
	case size == 0:
		*buffer = Buffer{managed: true}
	case size > 1<<maxClass:
		*buffer = Buffer{
			data:     make([]byte, size),
			capacity: size,
			managed:  true,
		}
	default:
		*buffer = Buffer{
			data:        Get(size),
			capacity:    size,
			managed:     true,
			dataManaged: true,
		}
	}
	return buffer
}

// Copy returns a pooled buffer holding a copy of data.
func Copy(data []byte) *Buffer {
	buffer := NewSize(len(data))
	buffer.end = copy(buffer.data, data)
	return buffer
}

// As wraps data as a full buffer. Release is a no-op for it.
func As(data []byte) *Buffer {
	return &Buffer{
		data:     data,
		end:      len(data),
		capacity: len(data),
	}
}

// With wraps data as an empty buffer.
func With(data []byte) *Buffer {
	return &Buffer{
		data:     data,
		capacity: len(data),
	}
}

func (b *Buffer) Extend(n int) []byte {
	end := b.end + n
	if end > b.capacity {
		panic(F.ToString("buffer overflow: capacity ", b.capacity, ", end ", b.end, ", need ", n))
	}
	ext := b.data[b.end:end]
	b.end = end
	return ext
}

func (b *Buffer) Advance(from int) {
	b.start += from
}

func (b *Buffer) Truncate(to int) {
	b.end = b.start + to
}

func (b *Buffer) Write(data []byte) (n int, err error) {
	if len(data) == 0 {
		return
	}
	n = copy(b.FreeBytes(), data)
	b.end += n
	if n < len(data) {
		err = io.ErrShortBuffer
	}
	return
}

func (b *Buffer) WriteString(s string) (n int, err error) {
	if len(s) == 0 {
		return
	}
	n = copy(b.FreeBytes(), s)
	b.end += n
	if n < len(s) {
		err = io.ErrShortBuffer
	}
	return
}

func (b *Buffer) Reset() {
	b.start = 0
	b.end = 0
	b.capacity = len(b.data)
}

// Release returns a pooled buffer. The buffer must not be used afterwards.
func (b *Buffer) Release() {
	if b == nil || !(b.managed || b.dataManaged) {
		return
	}
	if b.dataManaged {
		common.Must(Put(b.data))
	}
	*b = Buffer{}
	bufferPool.Put(b)
}

func (b *Buffer) Len() int {
	return b.end - b.start
}

func (b *Buffer) Cap() int {
	return b.capacity
}

func (b *Buffer) Bytes() []byte {
	return b.data[b.start:b.end]
}

func (b *Buffer) FreeLen() int {
	return b.capacity - b.end
}

func (b *Buffer) FreeBytes() []byte {
	return b.data[b.end:b.capacity]
}

func (b *Buffer) IsEmpty() bool {
	return b.end-b.start == 0
}

func (b *Buffer) IsFull() bool {
	return b.end == b.capacity
}

func (b *Buffer) ToOwned() *Buffer {
	n := NewSize(b.capacity)
	copy(n.data[b.start:b.end], b.data[b.start:b.end])
	n.start = b.start
	n.end = b.end
	return n
}
