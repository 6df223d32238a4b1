package tcp

import (
	"context"
	"net"
	"sync"

	"github.com/golang/glog"

	"github.com/robotalks/drivelink/pkg/comm"
	"github.com/robotalks/drivelink/pkg/framework"
)

// DiscoveryReplySize is the size of a discovery reply packet.
const DiscoveryReplySize = 10

// Discovery answers target discovery requests on a UDP port.
type Discovery struct {
	Server  *Server
	Addr    string
	BoardID byte

	lock sync.Mutex
	conn net.PacketConn
}

// NewDiscovery creates a Discovery for server.
func NewDiscovery(server *Server, addr string, boardID byte) *Discovery {
	return &Discovery{Server: server, Addr: addr, BoardID: boardID}
}

// Listen binds the UDP socket. Run calls it when needed.
func (d *Discovery) Listen() error {
	d.lock.Lock()
	defer d.lock.Unlock()
	if d.conn != nil {
		return nil
	}
	conn, err := net.ListenPacket("udp", d.Addr)
	if err != nil {
		return err
	}
	d.conn = conn
	return nil
}

// ListenAddr returns the bound address, nil before Listen.
func (d *Discovery) ListenAddr() net.Addr {
	d.lock.Lock()
	defer d.lock.Unlock()
	if d.conn == nil {
		return nil
	}
	return d.conn.LocalAddr()
}

// Run implements framework.Runnable.
func (d *Discovery) Run(ctx context.Context) error {
	if err := d.Listen(); err != nil {
		return err
	}
	defer func() {
		d.lock.Lock()
		d.conn = nil
		d.lock.Unlock()
	}()
	return framework.RunWithContextCloser(ctx, d.conn, func() error {
		buf := make([]byte, comm.MaxPacketSize)
		for {
			n, addr, err := d.conn.ReadFrom(buf)
			if err != nil {
				return err
			}
			reply := d.Reply(buf[:n])
			if reply == nil {
				continue
			}
			glog.V(2).Infof("discovery request from %s", addr)
			if _, err := d.conn.WriteTo(reply, addr); err != nil {
				glog.Warningf("discovery reply to %s: %v", addr, err)
			}
		}
	})
}

// Reply returns the reply to a discovery request, or nil if req is
// not a valid request.
func (d *Discovery) Reply(req []byte) []byte {
	if len(req) < comm.MinPacketSize ||
		req[0] != comm.TagCommand ||
		req[1] != comm.MinPacketSize ||
		req[2] != comm.CmdDiscoverTarget ||
		!comm.Valid(req[:comm.MinPacketSize]) {
		return nil
	}
	d.Server.RxCount.Add(1)
	ip := net.IPv4zero.To4()
	if tcpAddr, ok := d.Server.Peer().(*net.TCPAddr); ok {
		if v4 := tcpAddr.IP.To4(); v4 != nil {
			ip = v4
		}
	}
	reply := make([]byte, DiscoveryReplySize)
	reply[0] = comm.TagStatus
	reply[2] = comm.CmdDiscoverTarget
	reply[3] = d.Server.Engine.Registry().TargetType
	reply[4] = d.BoardID
	copy(reply[5:9], ip)
	return comm.Seal(reply)
}
