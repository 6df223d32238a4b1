package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/golang/glog"
)

// HostConn is the host side of a Bridge: it publishes commands and
// reads status and telemetry bytes of one drive.
type HostConn struct {
	*topicConn
	closeQueue bool
}

// NewHostConn creates a HostConn for the drive name over a connected
// queue.
func NewHostConn(q *Queue, name string) *HostConn {
	return &HostConn{topicConn: newTopicConn(q, name+"/"+TopicMsg, name+"/"+TopicCmd)}
}

// Dial connects to the broker and opens a HostConn for the drive name.
// Closing the HostConn disconnects from the broker.
func Dial(brokerURL, name string) (*HostConn, error) {
	opts, prefix, err := ClientOptionsFromURL(brokerURL)
	if err != nil {
		return nil, err
	}
	q := NewQueue(opts, prefix)
	if token := q.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect: %w", token.Error())
	}
	conn := NewHostConn(q, name)
	conn.closeQueue = true
	return conn, nil
}

// Close implements io.Closer.
func (c *HostConn) Close() error {
	err := c.topicConn.Close()
	if c.closeQueue {
		c.queue.Close()
	}
	return err
}

var _ io.ReadWriteCloser = &HostConn{}

// Drives collects the retained meta of drives on the queue until ctx is
// done. The result is sorted by name.
func Drives(ctx context.Context, q *Queue) []Meta {
	var (
		lock  sync.Mutex
		found = make(map[string]Meta)
	)
	sub := q.Sub("+/"+TopicMeta, func(topic string, payload []byte) {
		name := strings.TrimSuffix(topic, "/"+TopicMeta)
		lock.Lock()
		defer lock.Unlock()
		if len(payload) == 0 {
			delete(found, name)
			return
		}
		var meta Meta
		if err := json.Unmarshal(payload, &meta); err != nil {
			glog.Warningf("drive %s: invalid meta: %v", name, err)
			return
		}
		found[name] = meta
	})
	<-ctx.Done()
	sub.Close()

	lock.Lock()
	defer lock.Unlock()
	drives := make([]Meta, 0, len(found))
	for _, meta := range found {
		drives = append(drives, meta)
	}
	sort.Slice(drives, func(i, j int) bool { return drives[i].Name < drives[j].Name })
	return drives
}
