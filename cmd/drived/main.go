package main

//go-build: CGO_ENABLED=0

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/golang/glog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/robotalks/drivelink/pkg/comm"
	"github.com/robotalks/drivelink/pkg/comm/serial"
	"github.com/robotalks/drivelink/pkg/daemon"
	"github.com/robotalks/drivelink/pkg/framework"
)

// ExitUpgrade is the exit code when a host requested a firmware upgrade
// so a supervisor can start the updater.
const ExitUpgrade = 3

var rootCmd = &cobra.Command{
	Use:   "drived",
	Short: "Simulated motor drive",
	Long: `drived serves a simulated AC induction motor drive over the packet
protocol on serial, TCP (with UDP discovery), WebSocket and MQTT.

Settings may also come from DRIVE_NAME, DRIVE_BOARD_ID, DRIVE_SERIAL,
DRIVE_BAUD, DRIVE_LISTEN, DRIVE_DISCOVERY, DRIVE_WEBSOCKET,
DRIVE_MQTT_URL and DRIVE_DB.

Exit codes:
  0 - stopped
  1 - failed
  3 - firmware upgrade requested`,
	SilenceUsage: true,
	RunE:         runDaemon,
}

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List serial ports",
	RunE: func(cmd *cobra.Command, args []string) error {
		ports, err := serial.Ports()
		if err != nil {
			return err
		}
		for _, port := range ports {
			fmt.Fprintln(cmd.OutOrStdout(), port)
		}
		return nil
	},
}

func init() {
	daemon.SetupFlags(rootCmd.Flags())
	rootCmd.AddCommand(portsCmd)
	pflag.CommandLine.AddGoFlagSet(flag.CommandLine)
	rootCmd.PersistentFlags().AddFlagSet(pflag.CommandLine)
}

func runDaemon(cmd *cobra.Command, args []string) error {
	d, err := daemon.NewConfig().NewDaemon()
	if err != nil {
		return err
	}
	return framework.NewRunner().HandleSignals().Go(d).Wait()
}

func main() {
	// glog reads its settings from the go flag set.
	flag.CommandLine.Parse(nil)
	err := rootCmd.Execute()
	glog.Flush()
	switch {
	case errors.Is(err, comm.ErrUpgrading):
		os.Exit(ExitUpgrade)
	case err != nil:
		os.Exit(1)
	}
}
