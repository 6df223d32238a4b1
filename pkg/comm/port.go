package comm

import (
	"context"
	"io"
	"sync"
)

// Port is the outgoing direction of a transport. Write must not block
// and should accept at least Available bytes.
type Port interface {
	Available() int
	Write(p []byte) (int, error)
}

// SpaceNotifier is implemented by ports which raise an event when
// previously unavailable space becomes available.
type SpaceNotifier interface {
	OnSpace(fn func())
}

// DefaultWindow is the number of bytes a WriterPort accepts before the
// underlying writer catches up.
const DefaultWindow = 512

// WriterPort adapts a blocking io.Writer into a Port. Accepted bytes are
// written by Run in the background.
type WriterPort struct {
	w      io.Writer
	window int

	lock     sync.Mutex
	buf      []byte
	inflight int
	onSpace  func()
	err      error
	wakeCh   chan struct{}
	closeCh  chan struct{}
	closed   bool
}

// NewWriterPort creates a WriterPort accepting up to window bytes ahead
// of the underlying writer.
func NewWriterPort(w io.Writer, window int) *WriterPort {
	if window <= 0 {
		window = DefaultWindow
	}
	return &WriterPort{
		w:       w,
		window:  window,
		buf:     make([]byte, 0, window),
		wakeCh:  make(chan struct{}, 1),
		closeCh: make(chan struct{}),
	}
}

// Available implements Port.
func (p *WriterPort) Available() int {
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.closed || p.err != nil {
		return 0
	}
	return p.window - len(p.buf) - p.inflight
}

// Write implements Port. It accepts the bytes which fit the window.
func (p *WriterPort) Write(b []byte) (int, error) {
	p.lock.Lock()
	if p.closed {
		p.lock.Unlock()
		return 0, ErrPortClosed
	}
	if p.err != nil {
		err := p.err
		p.lock.Unlock()
		return 0, err
	}
	n := min(len(b), p.window-len(p.buf)-p.inflight)
	p.buf = append(p.buf, b[:n]...)
	p.lock.Unlock()
	if n > 0 {
		select {
		case p.wakeCh <- struct{}{}:
		default:
		}
	}
	if n < len(b) {
		return n, io.ErrShortWrite
	}
	return n, nil
}

// OnSpace implements SpaceNotifier. fn is called from Run after a
// batch reached the underlying writer.
func (p *WriterPort) OnSpace(fn func()) {
	p.lock.Lock()
	p.onSpace = fn
	p.lock.Unlock()
}

// Close stops Run and closes the underlying writer if it is an
// io.Closer.
func (p *WriterPort) Close() error {
	p.lock.Lock()
	if p.closed {
		p.lock.Unlock()
		return nil
	}
	p.closed = true
	close(p.closeCh)
	p.lock.Unlock()
	if c, ok := p.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Run writes accepted bytes to the underlying writer until ctx is done,
// the port is closed or a write fails.
func (p *WriterPort) Run(ctx context.Context) error {
	out := make([]byte, 0, p.window)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.closeCh:
			return nil
		case <-p.wakeCh:
		}
		p.lock.Lock()
		out = append(out[:0], p.buf...)
		p.buf = p.buf[:0]
		p.inflight = len(out)
		p.lock.Unlock()
		if len(out) == 0 {
			continue
		}
		_, err := p.w.Write(out)
		p.lock.Lock()
		p.inflight = 0
		p.err = err
		fn := p.onSpace
		p.lock.Unlock()
		if err != nil {
			return err
		}
		if fn != nil {
			fn()
		}
	}
}
