package comm

// Scanner extracts checksum-valid packets from a byte stream delivered in
// arbitrary chunks. Bytes which do not start a packet with an accepted
// tag are discarded. It is not safe for concurrent use.
type Scanner struct {
	ring    *Ring
	tags    [256]bool
	scratch []byte
}

// NewScanner creates a Scanner buffering up to size bytes and accepting
// packets with any of tags. A packet may be at most size-1 bytes.
func NewScanner(size int, tags ...byte) *Scanner {
	s := &Scanner{ring: NewRing(size), scratch: make([]byte, size)}
	for _, tag := range tags {
		s.tags[tag] = true
	}
	return s
}

// Buffered returns the number of bytes waiting for a complete packet.
func (s *Scanner) Buffered() int {
	return s.ring.Len()
}

// Reset discards buffered bytes.
func (s *Scanner) Reset() {
	s.ring.Reset()
}

// Feed buffers p and calls fn for every complete packet. The packet
// passed to fn is only valid during the call.
func (s *Scanner) Feed(p []byte, fn func(pkt []byte)) {
	for len(p) > 0 {
		n := s.ring.Write(p)
		p = p[n:]
		// a scan over a full ring always consumes at least one byte.
		s.Scan(fn)
	}
}

// Scan extracts buffered packets and returns how many were found.
func (s *Scanner) Scan(fn func(pkt []byte)) int {
	r, found := s.ring, 0
	for {
		for r.Len() > 0 && !s.tags[r.At(0)] {
			r.Skip(1)
		}
		if r.Len() < HeaderSize {
			return found
		}
		n := int(r.At(1))
		if n < MinPacketSize || n > r.Cap()-1 {
			r.Skip(1)
			continue
		}
		if r.Len() < n {
			return found
		}
		pkt := s.scratch[:n]
		r.Peek(pkt)
		if !Valid(pkt) {
			r.Skip(1)
			continue
		}
		fn(pkt)
		r.Skip(n)
		found++
	}
}
