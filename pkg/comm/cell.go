package comm

import (
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"
)

// Cell is the storage of a parameter or data item value. Values are
// little-endian on the wire and Load/Store exchange exactly Size bytes.
type Cell interface {
	Size() int
	Load(p []byte)
	Store(p []byte)
}

// Word is a Cell of 1 to 4 bytes. Load and Store are atomic so a reader
// never observes a torn value.
type Word struct {
	size int
	v    atomic.Uint32
}

// NewWord creates a Word of size bytes holding v.
// It panics if size is not within 1 to 4.
func NewWord(size int, v uint32) *Word {
	if size < 1 || size > MaxValueSize {
		panic(fmt.Sprintf("invalid word size %d", size))
	}
	w := &Word{size: size}
	w.Set(v)
	return w
}

// Size implements Cell.
func (w *Word) Size() int {
	return w.size
}

// Load implements Cell.
func (w *Word) Load(p []byte) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], w.v.Load())
	copy(p[:w.size], b[:])
}

// Store implements Cell. Missing high-order bytes are zero.
func (w *Word) Store(p []byte) {
	var b [4]byte
	copy(b[:w.size], p)
	w.v.Store(binary.LittleEndian.Uint32(b[:]))
}

// Get returns the zero-extended value.
func (w *Word) Get() uint32 {
	return w.v.Load()
}

// Set stores v truncated to the word size.
func (w *Word) Set(v uint32) {
	w.v.Store(truncate(v, w.size))
}

// Add adds delta, wrapping at the word size, and returns the new value.
func (w *Word) Add(delta uint32) uint32 {
	for {
		old := w.v.Load()
		v := truncate(old+delta, w.size)
		if w.v.CompareAndSwap(old, v) {
			return v
		}
	}
}

// Int returns the sign-extended value.
func (w *Word) Int() int32 {
	return signExtend(w.v.Load(), w.size)
}

// SetInt stores v in two's complement truncated to the word size.
func (w *Word) SetInt(v int32) {
	w.Set(uint32(v))
}

// Blob is a Cell larger than a machine word, guarded by a lock.
type Blob struct {
	lock sync.RWMutex
	data []byte
}

// NewBlob creates a Blob holding a copy of initial.
func NewBlob(initial []byte) *Blob {
	return &Blob{data: append([]byte(nil), initial...)}
}

// Size implements Cell.
func (b *Blob) Size() int {
	return len(b.data)
}

// Load implements Cell.
func (b *Blob) Load(p []byte) {
	b.lock.RLock()
	copy(p, b.data)
	b.lock.RUnlock()
}

// Store implements Cell. Missing trailing bytes are zero.
func (b *Blob) Store(p []byte) {
	b.lock.Lock()
	n := copy(b.data, p)
	clear(b.data[n:])
	b.lock.Unlock()
}

// Bytes returns a copy of the content.
func (b *Blob) Bytes() []byte {
	p := make([]byte, b.Size())
	b.Load(p)
	return p
}

func truncate(v uint32, size int) uint32 {
	if size >= 4 {
		return v
	}
	return v & (1<<(uint(size)*8) - 1)
}

func signExtend(v uint32, size int) int32 {
	if size >= 4 {
		return int32(v)
	}
	shift := uint(32 - size*8)
	return int32(v<<shift) >> shift
}

func putValue(p []byte, v uint32, size int) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return append(p, b[:size]...)
}
