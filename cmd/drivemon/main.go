package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"

	"github.com/robotalks/drivelink/pkg/comm"
	"github.com/robotalks/drivelink/pkg/comm/mqtt"
)

var (
	mqttURL = "mqtt://localhost:1883/drives/"

	cmdNames = map[byte]string{
		comm.CmdIDTarget:        "id",
		comm.CmdUpgrade:         "upgrade",
		comm.CmdDiscoverTarget:  "discover",
		comm.CmdGetParams:       "params",
		comm.CmdGetParamDesc:    "desc",
		comm.CmdGetParamValue:   "get",
		comm.CmdSetParamValue:   "set",
		comm.CmdLoadParams:      "load",
		comm.CmdSaveParams:      "save",
		comm.CmdGetDataItems:    "items",
		comm.CmdEnableDataItem:  "enable",
		comm.CmdDisableDataItem: "disable",
		comm.CmdStartDataStream: "stream.start",
		comm.CmdStopDataStream:  "stream.stop",
		comm.CmdRun:             "run",
		comm.CmdStop:            "stop",
		comm.CmdEmergencyStop:   "estop",
	}
)

func init() {
	if val := os.Getenv("DRIVE_MQTT_URL"); val != "" {
		mqttURL = val
	}
	flag.StringVar(&mqttURL, "mqtt", mqttURL, "MQTT broker URL with topic prefix.")
}

func describe(pkt []byte) string {
	body := comm.Body(pkt)
	if pkt[0] == comm.TagData {
		return fmt.Sprintf("telemetry % x", body)
	}
	name, ok := cmdNames[body[0]]
	if !ok {
		name = fmt.Sprintf("0x%02x", body[0])
	}
	dir := "cmd"
	if pkt[0] == comm.TagStatus {
		dir = "reply"
	}
	return fmt.Sprintf("%s %s % x", dir, name, body[1:])
}

func main() {
	flag.Parse()
	log.SetFlags(log.Lmicroseconds)

	opts, prefix, err := mqtt.ClientOptionsFromURL(mqttURL)
	if err != nil {
		log.Fatalln(err)
	}
	q := mqtt.NewQueue(opts, prefix)
	if token := q.Connect(); token.Wait() && token.Error() != nil {
		log.Fatalln(token.Error())
	}

	var (
		lock     sync.Mutex
		scanners = make(map[string]*comm.Scanner)
	)
	q.Sub("#", func(topic string, payload []byte) {
		if strings.HasSuffix(topic, "/"+mqtt.TopicMeta) {
			log.Printf("%s: %s", topic, string(payload))
			return
		}
		lock.Lock()
		defer lock.Unlock()
		s := scanners[topic]
		if s == nil {
			s = comm.NewScanner(comm.MaxPacketSize+1, comm.TagCommand, comm.TagStatus, comm.TagData)
			scanners[topic] = s
		}
		s.Feed(payload, func(pkt []byte) {
			log.Printf("%s: %s", topic, describe(pkt))
		})
	})
	<-(chan struct{})(nil)
}
