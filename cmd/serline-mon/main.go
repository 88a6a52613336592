package main

//go-build: CGO_ENABLED=0

import (
	"flag"
	"fmt"
	"os"

	"github.com/golang/glog"

	"github.com/robotalks/serline/pkg/comm"
	"github.com/robotalks/serline/pkg/comm/mqtt"
	"github.com/robotalks/serline/pkg/comm/stream"
	"github.com/robotalks/serline/pkg/comm/websocket"
	fx "github.com/robotalks/serline/pkg/framework"
	"github.com/robotalks/serline/pkg/monitor"
)

var (
	mqttURL    = "mqtt://localhost:1883/serline/"
	wsURL      string
	eventsFile string
	source     = "+"
	errorsOnly bool
)

func init() {
	if val := os.Getenv("SERLINE_MQTT_URL"); val != "" {
		mqttURL = val
	}
	flag.StringVar(&mqttURL, "mqtt", mqttURL, "MQTT broker URL.")
	flag.StringVar(&wsURL, "ws", wsURL, "Websocket URL of a bench, e.g. ws://localhost:7701/events, instead of MQTT.")
	flag.StringVar(&eventsFile, "file", eventsFile, "Events file to replay instead of MQTT.")
	flag.StringVar(&source, "source", source, "Source to monitor over MQTT, + for all.")
	flag.BoolVar(&errorsOnly, "errors", errorsOnly, "Print failures only.")
}

func main() {
	flag.Parse()

	stats := monitor.NewStats()
	handler := func(ev *monitor.Event) {
		stats.Add(ev)
		if !errorsOnly || ev.Kind.IsError() || ev.Err != "" {
			fmt.Println(ev.String())
		}
	}

	runner := fx.NewRunner().HandleSignals()
	var reader comm.PacketReader
	switch {
	case eventsFile != "":
		f, err := os.Open(eventsFile)
		if err != nil {
			glog.Exit(err)
		}
		reader = stream.New(f)
	case wsURL != "":
		rw, err := websocket.Dial(wsURL)
		if err != nil {
			glog.Exit(err)
		}
		reader = rw
	default:
		q, err := mqtt.NewQueueFromURL(mqttURL)
		if err != nil {
			glog.Exit(err)
		}
		if err = q.ConnectAndWait(); err != nil {
			glog.Exitf("connect %s: %v", mqttURL, err)
		}
		defer q.Close()
		rw := mqtt.NewPacketReadWriter(q).ForMonitor(source)
		runner.Go(fx.NamedRun("mqtt", rw))
		reader = rw
	}
	runner.Go(fx.NamedRun("subscriber", monitor.NewSubscriber(reader, handler)))
	err := runner.Wait()
	fmt.Fprintln(os.Stderr, stats.String())
	if err != nil {
		glog.Exit(err)
	}
}
