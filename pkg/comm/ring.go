package comm

// Ring is a fixed capacity circular byte buffer. The occupied count is
// tracked explicitly so all Cap bytes are usable. It is not safe for
// concurrent use.
type Ring struct {
	buf   []byte
	head  int
	count int
}

// NewRing creates a Ring holding up to size bytes.
func NewRing(size int) *Ring {
	return &Ring{buf: make([]byte, size)}
}

// Len returns the number of unread bytes.
func (r *Ring) Len() int {
	return r.count
}

// Cap returns the capacity.
func (r *Ring) Cap() int {
	return len(r.buf)
}

// Free returns the number of bytes which can be written.
func (r *Ring) Free() int {
	return len(r.buf) - r.count
}

// At returns the i-th unread byte. i must be less than Len.
func (r *Ring) At(i int) byte {
	return r.buf[(r.head+i)%len(r.buf)]
}

// Skip discards up to n unread bytes.
func (r *Ring) Skip(n int) {
	if n > r.count {
		n = r.count
	}
	r.head = (r.head + n) % len(r.buf)
	r.count -= n
	if r.count == 0 {
		r.head = 0
	}
}

// Write appends as many bytes of p as fit and returns the count.
func (r *Ring) Write(p []byte) int {
	total := 0
	for len(p) > 0 && r.count < len(r.buf) {
		tail := (r.head + r.count) % len(r.buf)
		end := len(r.buf)
		if tail < r.head {
			end = r.head
		}
		n := copy(r.buf[tail:end], p)
		r.count += n
		total += n
		p = p[n:]
	}
	return total
}

// Peek copies unread bytes into p without consuming them.
func (r *Ring) Peek(p []byte) int {
	n := min(len(p), r.count)
	first := copy(p[:n], r.buf[r.head:])
	copy(p[first:n], r.buf)
	return n
}

// Read copies and consumes unread bytes.
func (r *Ring) Read(p []byte) int {
	n := r.Peek(p)
	r.Skip(n)
	return n
}

// Reset discards all content.
func (r *Ring) Reset() {
	r.head, r.count = 0, 0
}
