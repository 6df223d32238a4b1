package drive

import (
	"context"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/drivelink/pkg/cli/sh"
	"github.com/robotalks/drivelink/pkg/client"
	"github.com/robotalks/drivelink/pkg/comm"
)

// DefaultWatchCount is the number of telemetry packets watch prints.
const DefaultWatchCount = 10

// ParseID parses a parameter or data item ID, decimal or 0x hex.
func ParseID(s string) (byte, error) {
	v, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid ID %q: %w", s, err)
	}
	return byte(v), nil
}

// Signed reports whether desc describes a signed range. A signed range
// is advertised with min above max when both are read as unsigned.
func Signed(desc client.ParamDesc) bool {
	return desc.Min > desc.Max
}

// FormatValue formats a raw value by its description.
func FormatValue(desc client.ParamDesc, raw []byte) string {
	if len(raw) > comm.MaxValueSize {
		return hex.EncodeToString(raw)
	}
	v := client.Value(raw)
	if Signed(desc) && len(raw) > 0 {
		shift := uint(32 - 8*len(raw))
		return strconv.FormatInt(int64(int32(v<<shift)>>shift), 10)
	}
	return fmt.Sprintf("%d (0x%0*x)", v, 2*len(raw), v)
}

// ParseValue encodes text for a parameter by its description. Values over
// 4 bytes are hex strings.
func ParseValue(desc client.ParamDesc, text string) ([]byte, error) {
	if desc.Size > comm.MaxValueSize {
		data, err := hex.DecodeString(strings.TrimPrefix(text, "0x"))
		if err != nil {
			return nil, fmt.Errorf("invalid hex value: %w", err)
		}
		if len(data) != desc.Size {
			return nil, fmt.Errorf("%d bytes expected, got %d", desc.Size, len(data))
		}
		return data, nil
	}
	v, err := strconv.ParseInt(text, 0, 64)
	if err != nil {
		u, uerr := strconv.ParseUint(text, 0, 32)
		if uerr != nil {
			return nil, fmt.Errorf("invalid value %q: %w", text, err)
		}
		v = int64(u)
	}
	return client.Encode(uint32(v), desc.Size), nil
}

func parseIDs(c *ishell.Context) ([]byte, bool) {
	if len(c.Args) < 1 {
		c.Err(fmt.Errorf("ID required"))
		return nil, false
	}
	ids := make([]byte, 0, len(c.Args))
	for _, arg := range c.Args {
		id, err := ParseID(arg)
		if err != nil {
			c.Err(err)
			return nil, false
		}
		ids = append(ids, id)
	}
	return ids, true
}

func ack(fn func(ctx context.Context, cl *client.Client) error) func(c *ishell.Context) {
	return sh.MustBeConnected(func(c *ishell.Context) {
		if sh.DoCommand(c, fn) {
			sh.ShellFrom(c).OK(c)
		}
	})
}

type paramJSON struct {
	ID    byte   `json:"id"`
	Size  int    `json:"size"`
	Min   uint32 `json:"min"`
	Max   uint32 `json:"max"`
	Step  uint32 `json:"step"`
	Value string `json:"value,omitempty"`
}

func paramOf(desc client.ParamDesc) paramJSON {
	return paramJSON{ID: desc.ID, Size: desc.Size, Min: desc.Min, Max: desc.Max, Step: desc.Step}
}

var (
	// IDCmd queries the target type.
	IDCmd = ishell.Cmd{
		Name: "id",
		Help: "",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			var t byte
			if sh.DoCommand(c, func(ctx context.Context, cl *client.Client) (err error) {
				t, err = cl.TargetType(ctx)
				return
			}) {
				sh.ShellFrom(c).Print(c, map[string]byte{"type": t}, func() string {
					return sh.TargetName(t)
				})
			}
		}),
	}

	// ParamsCmd lists parameters with their descriptions.
	ParamsCmd = ishell.Cmd{
		Name:    "params",
		Aliases: []string{"p"},
		Help:    "",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			var descs []client.ParamDesc
			if !sh.DoCommand(c, func(ctx context.Context, cl *client.Client) error {
				ids, err := cl.Parameters(ctx)
				if err != nil {
					return err
				}
				for _, id := range ids {
					desc, err := cl.Describe(ctx, id)
					if err != nil {
						return fmt.Errorf("describe 0x%02x: %w", id, err)
					}
					descs = append(descs, desc)
				}
				return nil
			}) {
				return
			}
			out := make([]paramJSON, 0, len(descs))
			for _, desc := range descs {
				out = append(out, paramOf(desc))
			}
			sh.ShellFrom(c).Print(c, out, func() string {
				lines := make([]string, 0, len(descs))
				for _, desc := range descs {
					lines = append(lines, desc.String())
				}
				return strings.Join(lines, "\n")
			})
		}),
	}

	// DescCmd describes a parameter.
	DescCmd = ishell.Cmd{
		Name: "desc",
		Help: "ID",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			ids, ok := parseIDs(c)
			if !ok {
				return
			}
			var desc client.ParamDesc
			if sh.DoCommand(c, func(ctx context.Context, cl *client.Client) (err error) {
				desc, err = cl.Describe(ctx, ids[0])
				return
			}) {
				sh.ShellFrom(c).Print(c, paramOf(desc), desc.String)
			}
		}),
	}

	// GetCmd reads a parameter.
	GetCmd = ishell.Cmd{
		Name:    "get",
		Aliases: []string{"g"},
		Help:    "ID",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			ids, ok := parseIDs(c)
			if !ok {
				return
			}
			var (
				desc client.ParamDesc
				raw  []byte
			)
			if !sh.DoCommand(c, func(ctx context.Context, cl *client.Client) (err error) {
				if desc, err = cl.Describe(ctx, ids[0]); err != nil {
					return
				}
				raw, err = cl.Get(ctx, ids[0])
				return
			}) {
				return
			}
			text := FormatValue(desc, raw)
			sh.ShellFrom(c).Print(c, map[string]string{"value": text}, func() string { return text })
		}),
	}

	// SetCmd writes a parameter and prints the value read back.
	SetCmd = ishell.Cmd{
		Name:    "set",
		Aliases: []string{"s"},
		Help:    "ID VALUE",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			if len(c.Args) < 2 {
				c.Err(fmt.Errorf("ID and VALUE required"))
				return
			}
			id, err := ParseID(c.Args[0])
			if err != nil {
				c.Err(err)
				return
			}
			var (
				desc client.ParamDesc
				raw  []byte
			)
			if !sh.DoCommand(c, func(ctx context.Context, cl *client.Client) (err error) {
				if desc, err = cl.Describe(ctx, id); err != nil {
					return
				}
				value, err := ParseValue(desc, c.Args[1])
				if err != nil {
					return err
				}
				if err = cl.Set(ctx, id, value); err != nil {
					return
				}
				raw, err = cl.Get(ctx, id)
				return
			}) {
				return
			}
			text := FormatValue(desc, raw)
			sh.ShellFrom(c).Print(c, map[string]string{"value": text}, func() string { return text })
		}),
	}

	// LoadCmd loads parameters from persistent storage.
	LoadCmd = ishell.Cmd{
		Name: "load",
		Help: "",
		Func: ack(func(ctx context.Context, cl *client.Client) error { return cl.LoadParams(ctx) }),
	}

	// SaveCmd saves parameters to persistent storage.
	SaveCmd = ishell.Cmd{
		Name: "save",
		Help: "",
		Func: ack(func(ctx context.Context, cl *client.Client) error { return cl.SaveParams(ctx) }),
	}

	// ItemsCmd lists real-time data items.
	ItemsCmd = ishell.Cmd{
		Name:    "items",
		Aliases: []string{"i"},
		Help:    "",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			s := sh.ShellFrom(c)
			var items []client.DataItemInfo
			if !sh.DoCommand(c, func(ctx context.Context, cl *client.Client) (err error) {
				items, err = s.Conn.DataItems(ctx)
				return
			}) {
				return
			}
			type itemJSON struct {
				ID      byte `json:"id"`
				Size    int  `json:"size"`
				Enabled bool `json:"enabled"`
			}
			out := make([]itemJSON, 0, len(items))
			for _, item := range items {
				out = append(out, itemJSON{ID: item.ID, Size: item.Size, Enabled: s.Conn.Enabled(item.ID)})
			}
			s.Print(c, out, func() string {
				lines := make([]string, 0, len(out))
				for _, item := range out {
					mark := " "
					if item.Enabled {
						mark = "*"
					}
					lines = append(lines, fmt.Sprintf("%s 0x%02x size=%d", mark, item.ID, item.Size))
				}
				return strings.Join(lines, "\n")
			})
		}),
	}

	// EnableCmd enables data items in telemetry.
	EnableCmd = ishell.Cmd{
		Name:    "enable",
		Aliases: []string{"en"},
		Help:    "ID...",
		Func:    sh.MustBeConnected(func(c *ishell.Context) { toggleItems(c, true) }),
	}

	// DisableCmd disables data items in telemetry.
	DisableCmd = ishell.Cmd{
		Name:    "disable",
		Aliases: []string{"dis"},
		Help:    "ID...",
		Func:    sh.MustBeConnected(func(c *ishell.Context) { toggleItems(c, false) }),
	}

	// StreamCmd starts or stops streaming.
	StreamCmd = ishell.Cmd{
		Name: "stream",
		Help: "start|stop",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			if len(c.Args) < 1 {
				c.Err(fmt.Errorf("start or stop required"))
				return
			}
			var fn func(ctx context.Context, cl *client.Client) error
			switch c.Args[0] {
			case "start", "on":
				fn = func(ctx context.Context, cl *client.Client) error { return cl.StartStream(ctx) }
			case "stop", "off":
				fn = func(ctx context.Context, cl *client.Client) error { return cl.StopStream(ctx) }
			default:
				c.Err(fmt.Errorf("unknown stream action %q", c.Args[0]))
				return
			}
			if sh.DoCommand(c, fn) {
				sh.ShellFrom(c).OK(c)
			}
		}),
	}

	// WatchCmd streams and prints telemetry.
	WatchCmd = ishell.Cmd{
		Name:    "watch",
		Aliases: []string{"w"},
		Help:    "[COUNT]",
		Func:    sh.MustBeConnected(watch),
	}

	// RunCmd starts the motor.
	RunCmd = ishell.Cmd{
		Name: "run",
		Help: "",
		Func: ack(func(ctx context.Context, cl *client.Client) error { return cl.RunMotor(ctx) }),
	}

	// StopCmd stops the motor.
	StopCmd = ishell.Cmd{
		Name: "stop",
		Help: "",
		Func: ack(func(ctx context.Context, cl *client.Client) error { return cl.StopMotor(ctx) }),
	}

	// EStopCmd stops the motor immediately.
	EStopCmd = ishell.Cmd{
		Name:    "estop",
		Aliases: []string{"x"},
		Help:    "",
		Func: ack(func(ctx context.Context, cl *client.Client) error { return cl.EmergencyStop(ctx) }),
	}

	// UpgradeCmd puts the drive into firmware upgrade and disconnects.
	UpgradeCmd = ishell.Cmd{
		Name: "upgrade",
		Help: "",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			s := sh.ShellFrom(c)
			if err := s.Conn.Client.Upgrade(); err != nil {
				c.Err(err)
				return
			}
			s.Disconnect()
			s.OK(c)
		}),
	}
)

func toggleItems(c *ishell.Context, en bool) {
	ids, ok := parseIDs(c)
	if !ok {
		return
	}
	s := sh.ShellFrom(c)
	if !sh.DoCommand(c, func(ctx context.Context, cl *client.Client) error {
		for _, id := range ids {
			var err error
			if en {
				err = cl.Enable(ctx, id)
			} else {
				err = cl.Disable(ctx, id)
			}
			if err != nil {
				return fmt.Errorf("item 0x%02x: %w", id, err)
			}
			s.Conn.SetEnabled(id, en)
		}
		return nil
	}) {
		return
	}
	s.OK(c)
}

func watch(c *ishell.Context) {
	count := DefaultWatchCount
	if len(c.Args) > 0 {
		n, err := strconv.Atoi(c.Args[0])
		if err != nil || n <= 0 {
			c.Err(fmt.Errorf("invalid COUNT %q", c.Args[0]))
			return
		}
		count = n
	}
	s := sh.ShellFrom(c)
	var items []client.DataItemInfo
	if !sh.DoCommand(c, func(ctx context.Context, cl *client.Client) (err error) {
		if items, err = s.Conn.DataItems(ctx); err != nil {
			return
		}
		return cl.StartStream(ctx)
	}) {
		return
	}
	defer sh.DoCommand(c, func(ctx context.Context, cl *client.Client) error {
		return cl.StopStream(ctx)
	})

	telemetryCh := s.Conn.Client.TelemetryChan()
	// a stalled stream ends watch after a few missed reports.
	idle := 10 * s.Config.Timeout
	for n := 0; n < count; n++ {
		var payload []byte
		select {
		case payload = <-telemetryCh:
		case <-s.Conn.Ctx.Done():
			return
		case <-time.After(idle):
			c.Err(fmt.Errorf("no telemetry"))
			return
		}
		samples, err := client.DecodeTelemetry(items, s.Conn.Enabled, payload)
		if err != nil {
			c.Err(err)
			continue
		}
		s.Print(c, samples, func() string {
			fields := make([]string, 0, len(samples))
			for _, sample := range samples {
				fields = append(fields, fmt.Sprintf("%02x=%d", sample.ID, sample.Value))
			}
			return strings.Join(fields, " ")
		})
	}
}

func init() {
	sh.AddCmds(
		&IDCmd,
		&ParamsCmd,
		&DescCmd,
		&GetCmd,
		&SetCmd,
		&LoadCmd,
		&SaveCmd,
		&ItemsCmd,
		&EnableCmd,
		&DisableCmd,
		&StreamCmd,
		&WatchCmd,
		&RunCmd,
		&StopCmd,
		&EStopCmd,
		&UpgradeCmd,
	)
}
