// Package client implements the host side of the drive protocol.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/golang/glog"

	"github.com/robotalks/drivelink/pkg/comm"
)

var (
	// ErrNoReply indicates a later command was answered first, so the
	// earlier one will not be.
	ErrNoReply = errors.New("no reply")
	// ErrUnknownParameter indicates the target has no such parameter.
	ErrUnknownParameter = errors.New("unknown parameter")
	// ErrClosed is returned for commands pending when the client stops.
	ErrClosed = errors.New("client closed")
)

// ResponseError indicates a malformed response.
type ResponseError struct {
	Cmd    byte
	Reason string
}

// Error implements error.
func (e *ResponseError) Error() string {
	return fmt.Sprintf("command 0x%02x: %s", e.Cmd, e.Reason)
}

// Result is the result of a command sent with Do.
type Result struct {
	Err error
	// Data is the response payload following the command byte.
	Data []byte
}

// Command represents a pending command waiting for reply.
type Command struct {
	cmd      byte
	resultCh chan Result
	next     *Command
}

// Cmd returns the command byte.
func (c *Command) Cmd() byte {
	return c.cmd
}

// ResultChan returns the chan to retrieve result.
func (c *Command) ResultChan() <-chan Result {
	return c.resultCh
}

// Client sends commands over a connection and matches the status
// packets against pending commands. Telemetry packets are delivered on
// TelemetryChan.
type Client struct {
	conn io.ReadWriter

	writeLock   sync.Mutex
	telemetryCh chan []byte

	cmdsLock sync.Mutex
	cmdsHead *Command
	cmdsTail *Command
	closed   bool
}

// New creates a Client over conn. Run must be running to receive
// responses.
func New(conn io.ReadWriter) *Client {
	return &Client{conn: conn, telemetryCh: make(chan []byte, 16)}
}

// TelemetryChan delivers the payload of telemetry packets. Packets are
// dropped when the chan is full.
func (c *Client) TelemetryChan() <-chan []byte {
	return c.telemetryCh
}

// Send writes a command without expecting a response.
func (c *Client) Send(cmd byte, payload ...byte) error {
	c.writeLock.Lock()
	defer c.writeLock.Unlock()
	_, err := c.conn.Write(comm.Command(cmd, payload...))
	return err
}

// Do sends a command and returns a Command for result.
func (c *Client) Do(cmd byte, payload ...byte) *Command {
	command := &Command{cmd: cmd, resultCh: make(chan Result, 1)}

	c.cmdsLock.Lock()
	defer c.cmdsLock.Unlock()
	if c.closed {
		command.resultCh <- Result{Err: ErrClosed}
		return command
	}
	if err := c.Send(cmd, payload...); err != nil {
		command.resultCh <- Result{Err: err}
		return command
	}
	if c.cmdsHead == nil {
		c.cmdsHead = command
	} else {
		c.cmdsTail.next = command
	}
	c.cmdsTail = command
	return command
}

// Call sends a command and waits for the response payload.
func (c *Client) Call(ctx context.Context, cmd byte, payload ...byte) ([]byte, error) {
	command := c.Do(cmd, payload...)
	select {
	case <-ctx.Done():
		c.cancel(command)
		return nil, ctx.Err()
	case r := <-command.resultCh:
		return r.Data, r.Err
	}
}

func (c *Client) cancel(command *Command) {
	c.cmdsLock.Lock()
	defer c.cmdsLock.Unlock()
	var prev *Command
	for curr := c.cmdsHead; curr != nil; prev, curr = curr, curr.next {
		if curr != command {
			continue
		}
		if prev == nil {
			c.cmdsHead = curr.next
		} else {
			prev.next = curr.next
		}
		if c.cmdsTail == curr {
			c.cmdsTail = prev
		}
		return
	}
}

// Run reads the connection until it fails or ctx is done. Pending
// commands fail with ErrClosed afterwards.
func (c *Client) Run(ctx context.Context) error {
	defer c.close()
	scanner := comm.NewScanner(comm.MaxPacketSize+1, comm.TagStatus, comm.TagData)
	errCh := make(chan error, 1)
	go func() {
		buf := make([]byte, comm.MaxPacketSize)
		for {
			n, err := c.conn.Read(buf)
			if n > 0 {
				scanner.Feed(buf[:n], c.handlePacket)
			}
			if err != nil {
				errCh <- err
				return
			}
		}
	}()
	select {
	case <-ctx.Done():
		if closer, ok := c.conn.(io.Closer); ok {
			closer.Close()
		}
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (c *Client) close() {
	c.cmdsLock.Lock()
	head := c.cmdsHead
	c.cmdsHead, c.cmdsTail, c.closed = nil, nil, true
	c.cmdsLock.Unlock()
	for ; head != nil; head = head.next {
		head.resultCh <- Result{Err: ErrClosed}
	}
}

func (c *Client) handlePacket(pkt []byte) {
	body := comm.Body(pkt)
	if pkt[0] == comm.TagData {
		select {
		case c.telemetryCh <- append([]byte(nil), body...):
		default:
			glog.V(3).Info("telemetry dropped")
		}
		return
	}
	cmd := body[0]
	c.cmdsLock.Lock()
	head := c.cmdsHead
	curr := c.cmdsHead
	for ; curr != nil; curr = curr.next {
		if curr.cmd == cmd {
			break
		}
	}
	if curr != nil {
		// everything queued before the answered command is dropped.
		if c.cmdsHead = curr.next; c.cmdsHead == nil {
			c.cmdsTail = nil
		}
		curr.next = nil
	}
	c.cmdsLock.Unlock()
	if curr == nil {
		glog.V(3).Infof("unexpected response 0x%02x", cmd)
		return
	}
	for ; head != curr; head = head.next {
		head.resultCh <- Result{Err: ErrNoReply}
	}
	curr.resultCh <- Result{Data: append([]byte(nil), body[1:]...)}
}
