package main

import (
	"flag"
	"os"
	"time"

	"github.com/golang/glog"
	"go.bug.st/serial"

	"github.com/robotalks/serline/pkg/bridge"
	"github.com/robotalks/serline/pkg/comm/mqtt"
	"github.com/robotalks/serline/pkg/config"
	fx "github.com/robotalks/serline/pkg/framework"
	"github.com/robotalks/serline/pkg/gpio"
	"github.com/robotalks/serline/pkg/monitor"
)

var serialPort string

func init() {
	config.SetupFlags()
	gpio.SetupFlags()
	flag.StringVar(&serialPort, "serial", serialPort, "Serial port bridged to the GPIO UART, stdin/stdout if empty.")
}

type stdio struct{}

func (stdio) Read(p []byte) (int, error)  { return os.Stdin.Read(p) }
func (stdio) Write(p []byte) (int, error) { return os.Stdout.Write(p) }

func main() {
	flag.Parse()

	conf, err := config.FromFlags()
	if err != nil {
		glog.Exit(err)
	}
	if conf.Clock == 0 {
		glog.Exit(config.ErrNoClock)
	}
	gconf := gpio.Default()
	chip, err := gconf.OpenChip()
	if err != nil {
		glog.Exitf("open %s: %v", gconf.Chip, err)
	}
	defer chip.Close()
	pins, err := gconf.RequestPins(chip, conf.Spi.Mode.Polarity())
	if err != nil {
		glog.Exit(err)
	}
	defer pins.Close()
	driver, err := gpio.NewDriver(pins, conf.Uart, conf.Spi)
	if err != nil {
		glog.Exit(err)
	}

	source := conf.Board.Source
	if source == "" {
		source = monitor.DefaultSource()
	}
	reporter := monitor.NewReporter(source)
	if url := conf.Monitor.MQTT; url != "" {
		q, err := mqtt.NewQueueFromURL(url)
		if err != nil {
			glog.Exit(err)
		}
		if err = q.ConnectAndWait(); err != nil {
			glog.Exitf("connect %s: %v", url, err)
		}
		defer q.Close()
		reporter.AddSink(mqtt.NewPacketReadWriter(q).ForPublisher(source))
	}

	loop := fx.NewLoopWithInterval(time.Duration(float64(time.Second) / float64(conf.TickHz())))
	port := gpio.NewPort(driver, loop)
	loop.Add(driver, reporter)
	glog.Infof("%s: tick %v", chip.Name(), loop.Interval)

	var b *bridge.Bridge
	if serialPort != "" {
		sp, err := serial.Open(serialPort, &serial.Mode{
			BaudRate: int(conf.Baud),
			DataBits: conf.Uart.DataBits,
			Parity:   serial.NoParity,
			StopBits: serial.OneStopBit,
		})
		if err != nil {
			glog.Exitf("open %s: %v", serialPort, err)
		}
		defer sp.Close()
		b = bridge.New(sp, port)
	} else {
		b = bridge.New(stdio{}, port)
		b.Terminator = '\n'
	}

	err = fx.NewRunner().HandleSignals().Go(
		fx.NamedRun("loop", loop),
		fx.NamedRun("bridge", b),
	).Wait()
	port.Close()
	glog.Info(reporter.Stats.String())
	if n := driver.PinErrors(); n > 0 {
		glog.Warningf("%d pin errors", n)
	}
	if err != nil {
		glog.Exit(err)
	}
}
