package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/golang/glog"

	"github.com/robotalks/drivelink/pkg/comm"
)

// Topics below <prefix><name>/.
const (
	// TopicCmd carries command bytes from hosts.
	TopicCmd = "cmd"
	// TopicMsg carries status and telemetry bytes to hosts.
	TopicMsg = "msg"
	// TopicMeta is the retained description of the drive, cleared when
	// the drive goes away.
	TopicMeta = "meta"
)

// Meta is published retained on the meta topic.
type Meta struct {
	Name       string `json:"name"`
	TargetType byte   `json:"target"`
	BoardID    byte   `json:"board"`
	Parameters []int  `json:"params"`
	DataItems  []int  `json:"items"`
}

// Bridge serves an Engine over a pair of MQTT topics.
type Bridge struct {
	Queue   *Queue
	Engine  *comm.Engine
	Name    string
	BoardID byte
	Window  int
}

// NewBridge creates a Bridge connecting to brokerURL.
func NewBridge(brokerURL, name string, engine *comm.Engine, boardID byte) (*Bridge, error) {
	opts, prefix, err := ClientOptionsFromURL(brokerURL)
	if err != nil {
		return nil, err
	}
	opts.SetBinaryWill(prefix+name+"/"+TopicMeta, nil, 1, true)
	if opts.ClientID == "" {
		opts.SetClientID("drive:" + name)
	}
	b := &Bridge{Engine: engine, Name: name, BoardID: boardID}
	b.Queue = NewQueue(opts, prefix)
	b.Queue.OnConnect = func(*Queue) { b.publishMeta() }
	return b, nil
}

// Meta describes the served drive.
func (b *Bridge) Meta() Meta {
	reg := b.Engine.Registry()
	meta := Meta{Name: b.Name, TargetType: reg.TargetType, BoardID: b.BoardID}
	for _, p := range reg.Parameters {
		meta.Parameters = append(meta.Parameters, int(p.ID))
	}
	for _, d := range reg.DataItems {
		meta.DataItems = append(meta.DataItems, int(d.ID))
	}
	return meta
}

// Run implements framework.Runnable.
func (b *Bridge) Run(ctx context.Context) error {
	if token := b.Queue.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("mqtt connect: %w", token.Error())
	}
	defer func() {
		b.Queue.PubWith(b.topic(TopicMeta), nil, 1, true).Wait()
		b.Queue.Close()
	}()
	conn := newTopicConn(b.Queue, b.topic(TopicCmd), b.topic(TopicMsg))
	return b.Engine.Serve(ctx, conn, b.Window)
}

func (b *Bridge) topic(name string) string {
	return b.Name + "/" + name
}

func (b *Bridge) publishMeta() {
	data, err := json.Marshal(b.Meta())
	if err != nil {
		panic(err)
	}
	b.Queue.PubWith(b.topic(TopicMeta), data, 1, true)
}

// topicConn is a byte stream over a subscribed and a published topic.
type topicConn struct {
	queue *Queue
	pub   string
	sub   *Subscription
	r     *io.PipeReader
	w     *io.PipeWriter
	once  sync.Once
}

func newTopicConn(q *Queue, subTopic, pubTopic string) *topicConn {
	r, w := io.Pipe()
	c := &topicConn{queue: q, pub: pubTopic, r: r, w: w}
	c.sub = q.Sub(subTopic, func(_ string, payload []byte) {
		// fails only after Close.
		w.Write(payload)
	})
	return c
}

func (c *topicConn) Read(p []byte) (int, error) {
	return c.r.Read(p)
}

func (c *topicConn) Write(p []byte) (int, error) {
	token := c.queue.Pub(c.pub, append([]byte(nil), p...))
	token.Wait()
	if err := token.Error(); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *topicConn) Close() error {
	c.once.Do(func() {
		if err := c.sub.Close(); err != nil {
			glog.Warningf("mqtt unsubscribe %s: %v", c.pub, err)
		}
		c.w.Close()
		c.r.Close()
	})
	return nil
}
