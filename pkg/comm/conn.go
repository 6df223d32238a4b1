package comm

import (
	"context"
	"errors"
	"io"

	"github.com/robotalks/drivelink/pkg/framework"
)

// Serve runs the protocol over a connection until ctx is done, the peer
// closes the connection or a newer connection replaces it. The
// connection is closed on return. It returns ErrUpgrading if the peer
// requested a firmware upgrade.
func (e *Engine) Serve(ctx context.Context, conn io.ReadWriteCloser, window int) error {
	port := NewWriterPort(conn, window)
	sess := e.Attach(port)
	defer sess.Close()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	flushCh := make(chan error, 1)
	go func() {
		flushCh <- port.Run(runCtx)
	}()

	err := framework.RunWithContextCloser(runCtx, port, func() error {
		_, err := io.Copy(sess, conn)
		return err
	})
	cancel()
	flushErr := <-flushCh

	switch {
	case e.Upgrading():
		return ErrUpgrading
	case sess.Detached():
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	case err != nil:
		return err
	case flushErr != nil && !errors.Is(flushErr, context.Canceled):
		return flushErr
	}
	return nil
}
