package sh

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/drivelink/pkg/client"
)

// Shell provides ishell backed interactive shell.
type Shell struct {
	Interactive bool
	OutputJSON  bool
	AutoConnect bool

	Shell  *ishell.Shell
	Config *Config
	Conn   *Conn
}

// Conn is a connected drive.
type Conn struct {
	Target string
	Ctx    context.Context
	Cancel func()
	Client *client.Client

	stream io.ReadWriteCloser
	items  []client.DataItemInfo
	// enabled tracks the data items enabled from this shell.
	enabled map[byte]bool
}

// Config provides the shell options.
type Config struct {
	// Target is connected on start, see Open for the forms.
	Target string
	// DiscoverAddr is where UDP discovery requests go.
	DiscoverAddr string
	// MQTTURL is the broker and topic prefix listing drives.
	MQTTURL string
	// Timeout bounds each command.
	Timeout time.Duration
}

const (
	shellKey          = "$shell"
	unconnectedPrompt = "[none] > "
)

var (
	// flags

	evalOnly      bool
	outputJSON    bool
	defaultConfig = Config{
		DiscoverAddr: "255.255.255.255:23",
		Timeout:      time.Second,
	}

	// commands
	commands = []*ishell.Cmd{
		&DiscoverCmd,
		&DrivesCmd,
		&ConnectCmd,
		&DisconnectCmd,
	}
)

func init() {
	if val := os.Getenv("DRIVE_TARGET"); val != "" {
		defaultConfig.Target = val
	}
	if val := os.Getenv("DRIVE_DISCOVER_ADDR"); val != "" {
		defaultConfig.DiscoverAddr = val
	}
	if val := os.Getenv("DRIVE_MQTT_URL"); val != "" {
		defaultConfig.MQTTURL = val
	}
	flag.BoolVar(&evalOnly, "e", evalOnly, "Evaluation only, no interactive shell.")
	flag.BoolVar(&outputJSON, "json", outputJSON, "Print output in JSON.")
	flag.StringVar(&defaultConfig.Target, "target", defaultConfig.Target, "Drive to connect: tcp://host[:port], serial:///dev/tty?baud=N, ws://host/path or mqtt://broker/prefix/name.")
	flag.StringVar(&defaultConfig.DiscoverAddr, "discover-addr", defaultConfig.DiscoverAddr, "UDP discovery address.")
	flag.StringVar(&defaultConfig.MQTTURL, "mqtt", defaultConfig.MQTTURL, "MQTT broker URL with topic prefix.")
	flag.DurationVar(&defaultConfig.Timeout, "timeout", defaultConfig.Timeout, "Command timeout.")
}

// AddCmds is used by other commands providers during init func.
func AddCmds(cmds ...*ishell.Cmd) {
	commands = append(commands, cmds...)
}

// NewConfig creates a Config with default configurations.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

// New creates a new shell.
func New(conf *Config) *Shell {
	s := &Shell{
		Interactive: !evalOnly,
		OutputJSON:  outputJSON,

		Shell:  ishell.New(),
		Config: conf,
	}
	s.Shell.Set(shellKey, s)
	s.Shell.SetPrompt(unconnectedPrompt)
	for _, cmd := range commands {
		s.Shell.AddCmd(cmd)
	}
	return s
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

// MustBeConnected wraps command func requires a connection.
func MustBeConnected(fn func(c *ishell.Context)) func(c *ishell.Context) {
	return func(c *ishell.Context) {
		if ShellFrom(c).Conn == nil {
			c.Err(fmt.Errorf("not connected"))
			return
		}
		fn(c)
	}
}

// WithAutoConnect sets AutoConnect.
func (s *Shell) WithAutoConnect(en bool) *Shell {
	s.AutoConnect = en
	return s
}

// CommandContext bounds a command with the configured timeout.
func (s *Shell) CommandContext() (context.Context, context.CancelFunc) {
	parent := context.Background()
	if s.Conn != nil {
		parent = s.Conn.Ctx
	}
	timeout := s.Config.Timeout
	if timeout <= 0 {
		timeout = time.Second
	}
	return context.WithTimeout(parent, timeout)
}

// Print prints v as JSON, or with text otherwise.
func (s *Shell) Print(c *ishell.Context, v interface{}, text func() string) {
	if s.OutputJSON {
		out, err := json.Marshal(v)
		if err != nil {
			c.Err(err)
			return
		}
		c.Println(string(out))
		return
	}
	c.Println(text())
}

// DoCommand runs fn with the connected client bounded by the command
// timeout. Errors are printed and reported as false.
func DoCommand(c *ishell.Context, fn func(ctx context.Context, cl *client.Client) error) bool {
	s := ShellFrom(c)
	if s.Conn == nil {
		c.Err(fmt.Errorf("not connected"))
		return false
	}
	ctx, cancel := s.CommandContext()
	defer cancel()
	if err := fn(ctx, s.Conn.Client); err != nil {
		c.Err(err)
		return false
	}
	return true
}

// OK prints an acknowledgement.
func (s *Shell) OK(c *ishell.Context) {
	s.Print(c, map[string]bool{"ok": true}, func() string { return "OK" })
}

// Connect opens target and starts the client.
func (s *Shell) Connect(target string) error {
	stream, err := Open(target)
	if err != nil {
		return err
	}
	conn := &Conn{
		Target:  target,
		Client:  client.New(stream),
		stream:  stream,
		enabled: make(map[byte]bool),
	}
	conn.Ctx, conn.Cancel = context.WithCancel(context.Background())
	s.Disconnect()
	s.Conn = conn
	go func() {
		err := conn.Client.Run(conn.Ctx)
		if conn.Ctx.Err() == nil {
			s.Shell.Printf("\nconnection lost: %v\n", err)
		}
	}()
	s.Shell.SetPrompt(fmt.Sprintf("%s > ", target))
	return nil
}

// Disconnect disconnects current drive.
func (s *Shell) Disconnect() {
	if s.Conn != nil {
		s.Conn.Cancel()
		s.Conn.stream.Close()
		s.Conn = nil
		s.Shell.SetPrompt(unconnectedPrompt)
	}
}

// DataItems returns the data item list, queried once per connection.
func (c *Conn) DataItems(ctx context.Context) ([]client.DataItemInfo, error) {
	if c.items != nil {
		return c.items, nil
	}
	items, err := c.Client.DataItems(ctx)
	if err != nil {
		return nil, err
	}
	c.items = items
	return items, nil
}

// Enabled reports whether the data item was enabled from this shell.
func (c *Conn) Enabled(id byte) bool {
	return c.enabled[id]
}

// SetEnabled records a data item enabled or disabled from this shell.
func (c *Conn) SetEnabled(id byte, en bool) {
	if en {
		c.enabled[id] = true
	} else {
		delete(c.enabled, id)
	}
}

// Run runs the shell.
func (s *Shell) Run(args ...string) {
	if s.AutoConnect && s.Config.Target != "" {
		if s.Interactive {
			s.Shell.Printf("Connecting %s ...\n", s.Config.Target)
		}
		if err := s.Connect(s.Config.Target); err != nil {
			log.Fatalf("connect %q failed: %v", s.Config.Target, err)
		}
	}
	defer s.Disconnect()

	if len(args) > 0 {
		if err := s.Shell.Process(args...); err != nil {
			log.Fatalln(err)
		}
		return
	}
	if s.Interactive {
		s.Shell.Run()
		return
	}
	log.Fatalln("command expected")
}

// Main is a helper to provide a single call in main.
func Main() {
	flag.Parse()
	New(NewConfig()).WithAutoConnect(true).Run(flag.Args()...)
}
