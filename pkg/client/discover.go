package client

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/robotalks/drivelink/pkg/comm"
)

// DiscoveryReplySize is the size of a discovery reply packet.
const DiscoveryReplySize = 10

// Target is a drive answering discovery.
type Target struct {
	Addr    *net.UDPAddr
	Type    byte
	BoardID byte
	// Peer is the host holding the TCP connection, nil when free.
	Peer net.IP
}

// ParseDiscoveryReply decodes a discovery reply.
func ParseDiscoveryReply(p []byte) (Target, bool) {
	var t Target
	if len(p) != DiscoveryReplySize ||
		p[0] != comm.TagStatus ||
		p[1] != DiscoveryReplySize ||
		p[2] != comm.CmdDiscoverTarget ||
		!comm.Valid(p) {
		return t, false
	}
	t.Type, t.BoardID = p[3], p[4]
	if ip := net.IP(p[5:9]); !ip.Equal(net.IPv4zero) {
		t.Peer = append(net.IP(nil), ip...)
	}
	return t, true
}

// Discover sends a discovery request to addr, usually a broadcast
// address, and collects replies until ctx is done.
func Discover(ctx context.Context, addr string) ([]Target, error) {
	raddr, err := net.ResolveUDPAddr("udp4", addr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp4", nil)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	if _, err := conn.WriteToUDP(comm.Command(comm.CmdDiscoverTarget), raddr); err != nil {
		return nil, err
	}

	var targets []Target
	buf := make([]byte, comm.MaxPacketSize)
	for {
		deadline := time.Now().Add(100 * time.Millisecond)
		if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
			deadline = d
		}
		conn.SetReadDeadline(deadline)
		n, from, err := conn.ReadFromUDP(buf)
		if ctx.Err() != nil {
			return targets, nil
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			continue
		}
		if err != nil {
			return targets, err
		}
		if t, ok := ParseDiscoveryReply(buf[:n]); ok {
			t.Addr = from
			targets = append(targets, t)
		}
	}
}
