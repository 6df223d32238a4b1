package comm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type collector struct {
	packets [][]byte
}

func (c *collector) handle(pkt []byte) {
	c.packets = append(c.packets, append([]byte(nil), pkt...))
}

func TestScannerResync(t *testing.T) {
	good := Command(CmdIDTarget)
	streams := map[string][]byte{
		"garbage":      append([]byte{0x12, 0x34}, good...),
		"short-length": append([]byte{0xff, 0x03}, good...),
		"bad-checksum": append([]byte{0xff, 0x05, 0xaa}, good...),
	}
	for name, stream := range streams {
		t.Run(name, func(t *testing.T) {
			var c collector
			s := NewScanner(DefaultRxSize, TagCommand)
			s.Feed(stream, c.handle)
			require.Equal(t, [][]byte{good}, c.packets)
			require.Zero(t, s.Buffered())
		})
	}
}

func TestScannerPartialDelivery(t *testing.T) {
	pkt := Command(CmdSetParamValue, 0x04, 0x0a, 0x00)
	var c collector
	s := NewScanner(DefaultRxSize, TagCommand)
	for i, b := range pkt {
		s.Feed([]byte{b}, c.handle)
		if i < len(pkt)-1 {
			require.Empty(t, c.packets)
		}
	}
	require.Equal(t, [][]byte{pkt}, c.packets)
}

func TestScannerMultiplePackets(t *testing.T) {
	a, b := Command(CmdRun), Command(CmdGetParamValue, 0x04)
	var c collector
	s := NewScanner(DefaultRxSize, TagCommand)
	s.Feed(append(append([]byte{}, a...), b[:3]...), c.handle)
	require.Equal(t, [][]byte{a}, c.packets)
	require.Equal(t, 3, s.Buffered())
	s.Feed(b[3:], c.handle)
	require.Equal(t, [][]byte{a, b}, c.packets)
}

func TestScannerTags(t *testing.T) {
	status := NewPacket(TagStatus, []byte{CmdIDTarget, TargetACIM})
	data := NewPacket(TagData, []byte{1, 2})
	var c collector
	s := NewScanner(DefaultRxSize, TagStatus, TagData)
	s.Feed(append(append(Command(CmdRun), status...), data...), c.handle)
	require.Equal(t, [][]byte{status, data}, c.packets)
}

func TestScannerFullRingProgress(t *testing.T) {
	var c collector
	s := NewScanner(8, TagCommand)
	stream := make([]byte, 32)
	for i := range stream {
		stream[i] = 0xff
	}
	s.Feed(stream, c.handle)
	require.Empty(t, c.packets)
	require.LessOrEqual(t, s.Buffered(), 8)

	// a packet longer than the ring can hold is never accepted.
	s.Reset()
	s.Feed(Command(CmdGetParamValue, 1, 2, 3, 4, 5), c.handle)
	require.Empty(t, c.packets)
	pkt := Command(CmdGetParamValue, 1, 2)
	s.Feed(pkt, c.handle)
	require.Equal(t, [][]byte{pkt}, c.packets)
}
