package monitor

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/golang/glog"

	"github.com/robotalks/serline/pkg/comm"
	fx "github.com/robotalks/serline/pkg/framework"
)

// DefaultQueueSize is the number of encoded events buffered for sinks.
const DefaultQueueSize = 1024

// EventHandler observes events.
type EventHandler func(*Event)

// Reporter drains events posted during a tick, counts them and
// publishes them to the attached sinks.
//
// Control runs in the loop and never blocks on sinks: encoded events
// are queued and written by Run. Sink errors are logged.
type Reporter struct {
	Source string
	Stats  *Stats

	handlers []EventHandler
	sinks    map[int]comm.PacketWriter
	nextID   int
	lock     sync.RWMutex
	queue    chan []byte
	dropped  uint64
}

// NewReporter creates a Reporter.
func NewReporter(source string) *Reporter {
	return &Reporter{
		Source: source,
		Stats:  NewStats(),
		sinks:  make(map[int]comm.PacketWriter),
		queue:  make(chan []byte, DefaultQueueSize),
	}
}

// AddSink attaches a sink permanently.
func (r *Reporter) AddSink(sinks ...comm.PacketWriter) *Reporter {
	for _, sink := range sinks {
		r.Attach(sink)
	}
	return r
}

// Attach adds a sink and returns the func detaching it.
func (r *Reporter) Attach(sink comm.PacketWriter) func() {
	r.lock.Lock()
	id := r.nextID
	r.nextID++
	r.sinks[id] = sink
	r.lock.Unlock()
	return func() {
		r.lock.Lock()
		delete(r.sinks, id)
		r.lock.Unlock()
	}
}

// Observe installs a handler called in the loop for every event.
func (r *Reporter) Observe(h EventHandler) *Reporter {
	r.lock.Lock()
	r.handlers = append(r.handlers, h)
	r.lock.Unlock()
	return r
}

// Dropped returns the number of events not published because the
// queue was full.
func (r *Reporter) Dropped() uint64 {
	return atomic.LoadUint64(&r.dropped)
}

// AddToLoop implements LoopAdder.
func (r *Reporter) AddToLoop(l *fx.Loop) {
	l.AddController(fx.PrLvPostProc, r)
}

// Control implements Controller.
func (r *Reporter) Control(cc fx.ControlContext) error {
	cc.Messages().ProcessMessages(fx.ProcessMessageFunc(func(mc fx.MessageProcessingContext) {
		if ev, ok := mc.CurrentMessage().(*Event); ok {
			mc.MessageTaken()
			r.Report(ev)
		}
	}))
	return nil
}

// Report processes one event.
func (r *Reporter) Report(ev *Event) {
	if ev.Source == "" {
		ev.Source = r.Source
	}
	r.Stats.Add(ev)
	glog.V(2).Info(ev)

	r.lock.RLock()
	handlers, sinks := r.handlers, len(r.sinks)
	r.lock.RUnlock()
	for _, h := range handlers {
		h(ev)
	}
	if sinks == 0 {
		return
	}
	pkt, err := Encode(ev)
	if err != nil {
		glog.Warningf("encode %s: %v", ev, err)
		return
	}
	select {
	case r.queue <- pkt:
	default:
		if atomic.AddUint64(&r.dropped, 1) == 1 {
			glog.Warningf("event queue full, dropping events")
		}
	}
}

// Run implements Runnable. It publishes queued events to sinks.
func (r *Reporter) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case pkt := <-r.queue:
			r.publish(pkt)
		}
	}
}

func (r *Reporter) publish(pkt []byte) {
	r.lock.RLock()
	sinks := make([]comm.PacketWriter, 0, len(r.sinks))
	for _, sink := range r.sinks {
		sinks = append(sinks, sink)
	}
	r.lock.RUnlock()
	for _, sink := range sinks {
		if err := sink.WritePacket(pkt); err != nil {
			glog.Warningf("publish event: %v", err)
		}
	}
}
