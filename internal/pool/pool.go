// Package pool provides reusable buffers for reading sensor files.
package pool

import (
	"bytes"
	"io"
	"sync"
)

const (
	// DefaultBufferSize fits the head of a typical sensor file.
	DefaultBufferSize = 64 * 1024

	// DefaultFieldCap covers the 15 tokens of a ceop_sep row.
	DefaultFieldCap = 16
)

// ByteBuffer wraps a byte slice for pooled reuse.
type ByteBuffer struct {
	Data []byte
}

// Reset clears the buffer for reuse.
func (b *ByteBuffer) Reset() {
	b.Data = b.Data[:0]
}

// ReadFrom appends everything from r to the buffer.
func (b *ByteBuffer) ReadFrom(r io.Reader) (int64, error) {
	var total int64
	for {
		if len(b.Data) == cap(b.Data) {
			b.Data = append(b.Data, 0)[:len(b.Data)]
		}
		n, err := r.Read(b.Data[len(b.Data):cap(b.Data)])
		b.Data = b.Data[:len(b.Data)+n]
		total += int64(n)
		if err == io.EOF {
			return total, nil
		}
		if err != nil {
			return total, err
		}
	}
}

// Len returns the current length of data in the buffer.
func (b *ByteBuffer) Len() int {
	return len(b.Data)
}

// Bytes returns the underlying byte slice.
func (b *ByteBuffer) Bytes() []byte {
	return b.Data
}

// BufferPool manages reusable byte buffers.
type BufferPool struct {
	pool sync.Pool
	size int
}

// NewBufferPool creates a new buffer pool with the specified buffer size.
func NewBufferPool(bufferSize int) *BufferPool {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	bp := &BufferPool{size: bufferSize}
	bp.pool.New = func() any {
		return &ByteBuffer{
			Data: make([]byte, 0, bufferSize),
		}
	}
	return bp
}

// Get retrieves a buffer from the pool.
func (p *BufferPool) Get() *ByteBuffer {
	return p.pool.Get().(*ByteBuffer)
}

// Put returns a buffer to the pool.
func (p *BufferPool) Put(buf *ByteBuffer) {
	buf.Reset()
	p.pool.Put(buf)
}

// Buffers is the shared pool used by the file readers.
var Buffers = NewBufferPool(DefaultBufferSize)

// Lines splits data into lines, dropping the trailing \r of CRLF endings.
// A final line without newline is kept. The returned slices share memory
// with data.
func Lines(data []byte) [][]byte {
	lines := make([][]byte, 0, 64)
	for len(data) > 0 {
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			lines = append(lines, trimCR(data))
			break
		}
		lines = append(lines, trimCR(data[:i]))
		data = data[i+1:]
	}
	return lines
}

func trimCR(line []byte) []byte {
	if n := len(line); n > 0 && line[n-1] == '\r' {
		return line[:n-1]
	}
	return line
}
