package sh

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/drivelink/pkg/client"
	"github.com/robotalks/drivelink/pkg/comm/mqtt"
)

// DiscoverTimeout is how long discovery waits for replies.
const DiscoverTimeout = time.Second

// TargetName names a target type.
func TargetName(t byte) string {
	switch t {
	case 0x00:
		return "BLDC"
	case 0x01:
		return "stepper"
	case 0x02:
		return "ACIM"
	}
	return fmt.Sprintf("0x%02x", t)
}

type targetJSON struct {
	Addr    string `json:"addr"`
	Type    byte   `json:"type"`
	BoardID byte   `json:"board"`
	Peer    string `json:"peer,omitempty"`
}

// FormatTarget prints a discovered drive.
func FormatTarget(t client.Target) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s board=0x%02x", t.Addr.IP, TargetName(t.Type), t.BoardID)
	if t.Peer != nil {
		fmt.Fprintf(&b, " connected=%s", t.Peer)
	}
	return b.String()
}

// ListDrives lists the drives announced on MQTT.
func (s *Shell) ListDrives(wait time.Duration) ([]mqtt.Meta, error) {
	if s.Config.MQTTURL == "" {
		return nil, fmt.Errorf("MQTT URL not configured")
	}
	opts, prefix, err := mqtt.ClientOptionsFromURL(s.Config.MQTTURL)
	if err != nil {
		return nil, err
	}
	q := mqtt.NewQueue(opts, prefix)
	if token := q.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	defer q.Close()
	ctx, cancel := context.WithTimeout(context.Background(), wait)
	defer cancel()
	return mqtt.Drives(ctx, q), nil
}

var (
	// DiscoverCmd discovers drives on the local network.
	DiscoverCmd = ishell.Cmd{
		Name:    "discover",
		Aliases: []string{"list", "l"},
		Help:    "[ADDR]",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			addr := s.Config.DiscoverAddr
			if len(c.Args) > 0 {
				addr = c.Args[0]
			}
			ctx, cancel := context.WithTimeout(context.Background(), DiscoverTimeout)
			defer cancel()
			targets, err := client.Discover(ctx, addr)
			if err != nil {
				c.Err(err)
				return
			}
			if s.OutputJSON {
				out := make([]targetJSON, 0, len(targets))
				for _, t := range targets {
					j := targetJSON{Addr: t.Addr.IP.String(), Type: t.Type, BoardID: t.BoardID}
					if t.Peer != nil {
						j.Peer = t.Peer.String()
					}
					out = append(out, j)
				}
				s.Print(c, out, nil)
				return
			}
			if len(targets) == 0 {
				c.Println("No drives found")
				return
			}
			for _, t := range targets {
				c.Println(FormatTarget(t))
			}
		},
	}

	// DrivesCmd lists drives announced on MQTT.
	DrivesCmd = ishell.Cmd{
		Name: "drives",
		Help: "",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			drives, err := s.ListDrives(DiscoverTimeout)
			if err != nil {
				c.Err(err)
				return
			}
			s.Print(c, drives, func() string {
				if len(drives) == 0 {
					return "No drives found"
				}
				lines := make([]string, 0, len(drives))
				for _, d := range drives {
					lines = append(lines, fmt.Sprintf("%s %s board=0x%02x", d.Name, TargetName(d.TargetType), d.BoardID))
				}
				return strings.Join(lines, "\n")
			})
		},
	}

	// ConnectCmd connects a drive.
	ConnectCmd = ishell.Cmd{
		Name:    "connect",
		Aliases: []string{"c"},
		Help:    "[TARGET]",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			var target string
			if len(c.Args) > 0 {
				target = c.Args[0]
			} else {
				selected, err := s.SelectTarget()
				if err != nil {
					c.Err(err)
					return
				}
				target = selected
			}
			if err := s.Connect(target); err != nil {
				c.Err(err)
			}
		},
	}

	// DisconnectCmd disconnects current drive.
	DisconnectCmd = ishell.Cmd{
		Name:    "disconnect",
		Aliases: []string{"d"},
		Help:    "",
		Func: func(c *ishell.Context) {
			ShellFrom(c).Disconnect()
		},
	}
)

// SelectTarget discovers drives and asks for a choice.
func (s *Shell) SelectTarget() (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), DiscoverTimeout)
	defer cancel()
	targets, err := client.Discover(ctx, s.Config.DiscoverAddr)
	if err != nil {
		return "", err
	}
	if len(targets) == 0 {
		return "", fmt.Errorf("no drive discovered")
	}
	var index int
	if len(targets) > 1 {
		if !s.Interactive {
			return "", fmt.Errorf("more than 1 drives discovered in non-interactive mode")
		}
		items := make([]string, len(targets))
		for n, t := range targets {
			items[n] = FormatTarget(t)
		}
		index = s.Shell.MultiChoice(items, "Which one to connect?")
	}
	return "tcp://" + net.JoinHostPort(targets[index].Addr.IP.String(), fmt.Sprint(targets[index].Addr.Port)), nil
}
