package buffer

// Buffer is a fixed-capacity append buffer holding log text that has not been
// written to the active file yet. It is owned by a single goroutine and is not
// safe for concurrent use.
//
// The fill length never exceeds the capacity, with one exception: an entry
// larger than the capacity may be held alone (see Reset).
type Buffer struct {
	data []byte
	size int
}

// New creates a buffer with the given capacity in bytes.
func New(size int) *Buffer {
	if size < 0 {
		size = 0
	}
	return &Buffer{
		data: make([]byte, 0, size),
		size: size,
	}
}

// Fits reports whether n more bytes can be appended without exceeding capacity.
func (b *Buffer) Fits(n int) bool {
	return len(b.data)+n <= b.size
}

// Append copies p to the end of the buffer. It returns false and leaves the
// buffer untouched if p does not fit.
func (b *Buffer) Append(p []byte) bool {
	if !b.Fits(len(p)) {
		return false
	}
	b.data = append(b.data, p...)
	return true
}

// AppendString is Append for string data, avoiding a conversion allocation.
func (b *Buffer) AppendString(s string) bool {
	if !b.Fits(len(s)) {
		return false
	}
	b.data = append(b.data, s...)
	return true
}

// Reset replaces the buffer content with s regardless of capacity. This is the
// only way the buffer can hold more than Cap bytes: a single oversized entry
// placed into an empty buffer.
func (b *Buffer) Reset(s string) {
	b.data = append(b.data[:0], s...)
	if cap(b.data) > b.size && len(b.data) <= b.size {
		// Drop the backing array grown by a previous oversized entry.
		b.data = append(make([]byte, 0, b.size), b.data...)
	}
}

// TakeAndClear returns the buffered bytes and empties the buffer. The returned
// slice aliases internal storage and is only valid until the next mutation.
func (b *Buffer) TakeAndClear() []byte {
	out := b.data
	b.data = b.data[:0]
	return out
}

// Bytes returns the buffered bytes without clearing them.
func (b *Buffer) Bytes() []byte {
	return b.data
}

// Len returns the current fill length.
func (b *Buffer) Len() int {
	return len(b.data)
}

// Cap returns the configured capacity.
func (b *Buffer) Cap() int {
	return b.size
}

// RemainingCapacity returns how many more bytes fit. It is zero while an
// oversized entry is held.
func (b *Buffer) RemainingCapacity() int {
	if r := b.size - len(b.data); r > 0 {
		return r
	}
	return 0
}
