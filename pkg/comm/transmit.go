package comm

import "github.com/golang/glog"

// TransmitResult is the outcome of Transmit.
type TransmitResult int

// Transmit results.
const (
	// Delivered means all bytes were written to the port.
	Delivered TransmitResult = iota
	// Queued means some bytes wait in the transmit buffer.
	Queued
	// Overflow means the packet was dropped.
	Overflow
)

func (r TransmitResult) String() string {
	switch r {
	case Delivered:
		return "delivered"
	case Queued:
		return "queued"
	case Overflow:
		return "overflow"
	}
	return "unknown"
}

// Transmit seals pkt, whose tag and body are in place with a trailing
// checksum slot, and sends it. Bytes the port can't take immediately are
// queued; if they don't fit the transmit buffer the packet is dropped
// before anything is written.
func (e *Engine) Transmit(pkt []byte) TransmitResult {
	e.txLock.Lock()
	defer e.txLock.Unlock()
	return e.transmitLocked(pkt)
}

func (e *Engine) transmitLocked(pkt []byte) TransmitResult {
	Seal(pkt)
	if e.port == nil {
		e.overflows.Add(1)
		return Overflow
	}
	direct := 0
	if e.tx.Len() == 0 {
		direct = min(e.port.Available(), len(pkt))
		if direct < 0 {
			direct = 0
		}
	}
	if len(pkt)-direct > e.tx.Free() {
		e.overflows.Add(1)
		return Overflow
	}
	if direct > 0 {
		if n, err := e.port.Write(pkt[:direct]); err != nil || n < direct {
			glog.V(2).Infof("%s: write failed: %v", e.Name, err)
			e.overflows.Add(1)
			return Overflow
		}
	}
	e.txPackets.Add(1)
	if direct == len(pkt) {
		return Delivered
	}
	e.queued += uint64(e.tx.Write(pkt[direct:]))
	return Queued
}

// Drain moves queued bytes to the port while it has space. It is the
// handler of the port's space event.
func (e *Engine) Drain() {
	e.txLock.Lock()
	defer e.txLock.Unlock()
	e.drainLocked()
}

func (e *Engine) drainLocked() {
	if e.port == nil {
		return
	}
	for e.tx.Len() > 0 {
		avail := e.port.Available()
		if avail <= 0 {
			return
		}
		chunk := e.drainBuf[:e.tx.Peek(e.drainBuf[:min(avail, e.tx.Len())])]
		n, err := e.port.Write(chunk)
		e.tx.Skip(n)
		e.drained += uint64(n)
		if err != nil {
			glog.V(2).Infof("%s: drain failed: %v", e.Name, err)
			return
		}
	}
}

// Pending returns the number of queued bytes.
func (e *Engine) Pending() int {
	e.txLock.Lock()
	defer e.txLock.Unlock()
	return e.tx.Len()
}
